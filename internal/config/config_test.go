package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"quorum/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	if err := config.Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Directory) == 0 || len(cfg.Categories) == 0 {
		t.Fatalf("fallback config empty")
	}
}

func TestLoadFromWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	doc := `
directory:
  ada:
    name: Ada L
    role: Founder
    tone: direct
    urgency_multiplier: 1.0
  bob:
    name: Bob M
    role: Ops
    tone: casual
    urgency_multiplier: 1.0
categories:
  ops:
    responders: [ada, bob]
    escalation: ada
    task_type: request
    high_priority: 4
    normal_priority: 3
composer:
  default_urgency: 3
`
	if err := os.WriteFile(filepath.Join(dir, "quorum.yml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Categories["ops"].Escalation != "ada" {
		t.Fatalf("parsed config = %+v", cfg.Categories["ops"])
	}
}

func TestValidateRejectsBrokenReferences(t *testing.T) {
	cfg := config.Default()
	cat := cfg.Categories["budget"]
	cat.Responders = append(cat.Responders, "ghost")
	cfg.Categories["budget"] = cat
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown responder error")
	}

	cfg = config.Default()
	cfg.Composer.DefaultUrgency = 9
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected urgency range error")
	}
}
