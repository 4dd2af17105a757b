package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"quorum/internal/coordinator"
	"quorum/internal/directory"
	"quorum/internal/domain"
	"quorum/internal/inbox"
	"quorum/internal/metrics"
	"quorum/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Coordinator *coordinator.Coordinator
	Inbox       *inbox.Store
	Directory   *directory.Directory
	Repo        repo.Repo
	BasePath    string
	Logger      *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"decision not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Quorum API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(metricsMiddleware)
	router.Handle("/metrics", promhttp.Handler())

	hcfg := huma.DefaultConfig("Quorum API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerDecisions(group, cfg)
	registerTasks(group, cfg)
	registerInbox(group, cfg)
	registerStakeholders(group, cfg)
	registerEvents(group, cfg)

	return router, nil
}

// metricsMiddleware times every request by route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = r.URL.Path
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, routePattern, strconv.Itoa(ww.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve domain.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	var ce domain.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerDecisions(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-decision",
		Method:        http.MethodPost,
		Path:          "/decisions",
		Summary:       "Start a decision",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body StartDecisionRequest `json:"body"`
	}) (*struct {
		Body coordinator.Status `json:"body"`
	}, error) {
		d, err := cfg.Coordinator.Start(ctx, input.Body.Category, input.Body.InitiatorID, input.Body.Proposal)
		if err != nil {
			return nil, handleError(err)
		}
		st, err := cfg.Coordinator.Status(ctx, d.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body coordinator.Status `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-decisions",
		Method:      http.MethodGet,
		Path:        "/decisions",
		Summary:     "List decisions",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:",created,dispatching,awaiting_responses,awaiting_ruling,complete,cancelled,failed"`
	}) (*struct {
		Body []coordinator.Status `json:"body"`
	}, error) {
		items, err := cfg.Coordinator.List(ctx, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []coordinator.Status `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decision-status",
		Method:      http.MethodGet,
		Path:        "/decisions/{decision_id}",
		Summary:     "Decision status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DecisionID string `path:"decision_id"`
	}) (*struct {
		Body coordinator.Status `json:"body"`
	}, error) {
		st, err := cfg.Coordinator.Status(ctx, input.DecisionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body coordinator.Status `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "respond",
		Method:      http.MethodPost,
		Path:        "/decisions/{decision_id}/responses",
		Summary:     "Record a stakeholder response",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		DecisionID string `path:"decision_id"`
		Body       RespondRequest `json:"body"`
	}) (*struct {
		Body coordinator.Status `json:"body"`
	}, error) {
		_, err := cfg.Coordinator.RecordResponse(ctx, input.DecisionID, input.Body.ResponderID, input.Body.Decision, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		st, err := cfg.Coordinator.Status(ctx, input.DecisionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body coordinator.Status `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rule",
		Method:      http.MethodPost,
		Path:        "/decisions/{decision_id}/ruling",
		Summary:     "Record the final ruling",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		DecisionID string `path:"decision_id"`
		Body       RuleRequest `json:"body"`
	}) (*struct {
		Body coordinator.Status `json:"body"`
	}, error) {
		_, err := cfg.Coordinator.RecordRuling(ctx, input.DecisionID, input.Body.ActorID, input.Body.Ruling)
		if err != nil {
			return nil, handleError(err)
		}
		st, err := cfg.Coordinator.Status(ctx, input.DecisionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body coordinator.Status `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-decision",
		Method:      http.MethodPost,
		Path:        "/decisions/{decision_id}/cancel",
		Summary:     "Cancel a decision",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		DecisionID string `path:"decision_id"`
		Body       CancelRequest `json:"body"`
	}) (*struct {
		Body coordinator.Status `json:"body"`
	}, error) {
		_, err := cfg.Coordinator.Cancel(ctx, input.DecisionID, input.Body.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		st, err := cfg.Coordinator.Status(ctx, input.DecisionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body coordinator.Status `json:"body"`
		}{Body: st}, nil
	})

	// live lifecycle stream; the persisted event log stays authoritative
	sse.Register(api, huma.Operation{
		OperationID: "stream-decisions",
		Method:      http.MethodGet,
		Path:        "/decisions/stream",
		Summary:     "Stream decision lifecycle notifications",
	}, map[string]any{
		"notification": coordinator.Notification{},
	}, func(ctx context.Context, input *struct{}, send sse.Sender) {
		id, ch := cfg.Coordinator.Bus.Subscribe(streamBuffer)
		defer cfg.Coordinator.Bus.Unsubscribe(id)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-ch:
				if !ok {
					return
				}
				if err := send.Data(n); err != nil {
					return
				}
			}
		}
	})
}

const streamBuffer = 16

func registerTasks(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create a task record",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.TaskRecord `json:"body"`
	}, error) {
		t, err := cfg.Inbox.CreateTask(ctx, input.Body.toRecord())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskRecord `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Fetch one task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID      string `path:"task_id"`
		RecipientID string `query:"recipient_id" required:"true"`
	}) (*struct {
		Body domain.TaskRecord `json:"body"`
	}, error) {
		t, err := cfg.Inbox.Get(ctx, input.TaskID, input.RecipientID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskRecord `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-status",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/status",
		Summary:     "Apply a task status transition",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
		Body   UpdateTaskStatusRequest `json:"body"`
	}) (*struct {
		Body domain.TaskRecord `json:"body"`
	}, error) {
		t, err := cfg.Inbox.UpdateStatus(ctx, input.TaskID, input.Body.RecipientID, input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskRecord `json:"body"`
		}{Body: t}, nil
	})
}

func registerInbox(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-inbox",
		Method:      http.MethodGet,
		Path:        "/inbox/{recipient_id}",
		Summary:     "Ranked inbox view",
	}, func(ctx context.Context, input *struct {
		RecipientID string `path:"recipient_id"`
		View        string `query:"view" enum:",ranked,urgent,pending,unread"`
		Limit       int    `query:"limit" minimum:"0"`
	}) (*struct {
		Body []domain.TaskRecord `json:"body"`
	}, error) {
		tasks, err := cfg.Inbox.GetRanked(ctx, input.RecipientID)
		if err != nil {
			return nil, handleError(err)
		}
		switch input.View {
		case "urgent":
			tasks = inbox.Urgent(tasks)
		case "pending":
			tasks = inbox.PendingDecisions(tasks)
		case "unread":
			tasks = inbox.UnreadView(tasks, input.Limit)
		default:
			if input.Limit > 0 && len(tasks) > input.Limit {
				tasks = tasks[:input.Limit]
			}
		}
		if tasks == nil {
			tasks = []domain.TaskRecord{}
		}
		return &struct {
			Body []domain.TaskRecord `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "inbox-summary",
		Method:      http.MethodGet,
		Path:        "/inbox/{recipient_id}/summary",
		Summary:     "Dashboard summary",
	}, func(ctx context.Context, input *struct {
		RecipientID string `path:"recipient_id"`
	}) (*struct {
		Body inbox.Summary `json:"body"`
	}, error) {
		s, err := cfg.Inbox.DashboardSummary(ctx, input.RecipientID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body inbox.Summary `json:"body"`
		}{Body: s}, nil
	})
}

func registerStakeholders(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-stakeholders",
		Method:      http.MethodGet,
		Path:        "/stakeholders",
		Summary:     "Stakeholder directory",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Stakeholder `json:"body"`
	}, error) {
		return &struct {
			Body []domain.Stakeholder `json:"body"`
		}{Body: cfg.Directory.List()}, nil
	})
}

func registerEvents(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit event tail",
	}, func(ctx context.Context, input *struct {
		AfterID int64 `query:"after_id" minimum:"0"`
		Limit   int   `query:"limit" minimum:"0" maximum:"1000"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		limit := input.Limit
		if limit == 0 {
			limit = 100
		}
		items, err := cfg.Repo.ListEvents(ctx, input.AfterID, limit)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
