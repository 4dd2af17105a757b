package domain

import "fmt"

// ValidationError rejects bad input synchronously; no state is mutated.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func Validationf(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError marks a signal that contradicts current state (responder not
// in the required set, second ruling). Callers log and ignore it; decision
// state is unchanged.
type ConflictError struct {
	Msg string
}

func (e ConflictError) Error() string { return e.Msg }

func Conflictf(format string, args ...any) error {
	return ConflictError{Msg: fmt.Sprintf(format, args...)}
}
