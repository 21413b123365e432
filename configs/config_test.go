package configs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setupTestEnv sets the credentials every valid configuration needs
func setupTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("WPS_APP_ID", "test_app_id")
	t.Setenv("WPS_APP_SECRET", "test_secret")
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

// TestLoadDefaultsWithoutFile tests that a missing config file falls back to defaults
func TestLoadDefaultsWithoutFile(t *testing.T) {
	setupTestEnv(t)

	cfg, err := Load(t.TempDir(), "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.App.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.App.Port)
	}
	if cfg.WPS.BaseURL != "https://openapi.wps.cn" {
		t.Errorf("unexpected base url %s", cfg.WPS.BaseURL)
	}
	if cfg.LLM.APIBase != "http://localhost:8000/v1" {
		t.Errorf("unexpected llm api base %s", cfg.LLM.APIBase)
	}
	if cfg.LLM.Model != "gpt-3.5-turbo" {
		t.Errorf("unexpected llm model %s", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.7 || cfg.LLM.TopP != 1.0 || cfg.LLM.MaxTokens != 2048 {
		t.Errorf("unexpected sampling defaults %+v", cfg.LLM)
	}
	if cfg.LLM.RequestTimeoutDuration() != 120*time.Second {
		t.Errorf("expected 120s llm timeout, got %v", cfg.LLM.RequestTimeoutDuration())
	}
	if cfg.Session.IdleTTLDuration() != time.Hour {
		t.Errorf("expected 1h idle ttl, got %v", cfg.Session.IdleTTLDuration())
	}
	if cfg.Session.Backend != "memory" {
		t.Errorf("expected memory backend, got %s", cfg.Session.Backend)
	}
	if len(cfg.Bot.GroupWhitelist) != 1 || cfg.Bot.GroupWhitelist[0] != "ALL_GROUP" {
		t.Errorf("expected ALL_GROUP whitelist, got %v", cfg.Bot.GroupWhitelist)
	}
	if len(cfg.Bot.SingleChatPrefix) != 1 || cfg.Bot.SingleChatPrefix[0] != "" {
		t.Errorf("expected empty single chat prefix, got %v", cfg.Bot.SingleChatPrefix)
	}
	if cfg.Dispatch.MaxAttempts != 4 {
		t.Errorf("expected 4 dispatch attempts, got %d", cfg.Dispatch.MaxAttempts)
	}
	if !cfg.Dedupe.Enabled || cfg.Dedupe.WindowDuration() != 5*time.Minute {
		t.Errorf("unexpected dedupe defaults %+v", cfg.Dedupe)
	}
	if cfg.Postgres.Enabled {
		t.Error("expected postgres to be disabled by default")
	}
}

// TestLoadFileAndEnvironmentOverride tests that the environment wins over the file
func TestLoadFileAndEnvironmentOverride(t *testing.T) {
	setupTestEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
app:
  port: "9000"
llm:
  model: file-model
session:
  max_turns: 8
`)
	t.Setenv("LLM_MODEL", "env-model")

	cfg, err := Load(dir, "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.App.Port != "9000" {
		t.Errorf("expected port from file, got %s", cfg.App.Port)
	}
	if cfg.LLM.Model != "env-model" {
		t.Errorf("expected model from environment, got %s", cfg.LLM.Model)
	}
	if cfg.Session.MaxTurns != 8 {
		t.Errorf("expected 8 max turns, got %d", cfg.Session.MaxTurns)
	}
	if cfg.WPS.AppID != "test_app_id" {
		t.Errorf("expected app id from environment, got %s", cfg.WPS.AppID)
	}
}

// TestLoadEnvironmentOverlay tests that config.<env>.yaml is merged on top
func TestLoadEnvironmentOverlay(t *testing.T) {
	setupTestEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
app:
  port: "9000"
  debug: false
session:
  backend: memory
`)
	writeFile(t, dir, "config.test.yaml", `
app:
  debug: true
session:
  backend: redis
`)

	cfg, err := Load(dir, "test")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !cfg.App.Debug {
		t.Error("expected overlay to enable debug")
	}
	if cfg.Session.Backend != "redis" {
		t.Errorf("expected overlay backend redis, got %s", cfg.Session.Backend)
	}
	if cfg.App.Port != "9000" {
		t.Errorf("expected base file port to survive the overlay, got %s", cfg.App.Port)
	}
}

// TestLoadMissingCredentials tests that the application credentials are required
func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("WPS_APP_ID", "")
	t.Setenv("WPS_APP_SECRET", "")

	_, err := Load(t.TempDir(), "")
	if err == nil {
		t.Fatal("expected validation error")
	}

	if !strings.HasPrefix(err.Error(), "validation failed") {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "AppID") || !strings.Contains(err.Error(), "AppSecret") {
		t.Errorf("expected both credentials to be reported, got %v", err)
	}
}

// TestLoadRejectsInvalidValues tests enum and range validation
func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"SESSION_BACKEND":       "memcached",
		"BOT_REPLY_KIND":        "html",
		"LLM_TEMPERATURE":       "3.5",
		"DISPATCH_MAX_ATTEMPTS": "0",
		"DISPATCH_JITTER":       "1.5",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setupTestEnv(t)
			t.Setenv(key, value)
			if _, err := Load(t.TempDir(), ""); err == nil {
				t.Errorf("expected %s=%s to be rejected", key, value)
			}
		})
	}
}

// TestLoadMalformedFile tests that an unreadable config file is an error, not a fallback
func TestLoadMalformedFile(t *testing.T) {
	setupTestEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "app: [unterminated")

	if _, err := Load(dir, ""); err == nil {
		t.Error("expected malformed yaml to fail")
	}
}

// TestInitViperGetViper tests the process-wide accessor
func TestInitViperGetViper(t *testing.T) {
	setupTestEnv(t)
	t.Setenv("APP_PORT", "7070")

	InitViper(t.TempDir(), "")

	cfg := GetViper()
	if cfg.App.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.App.Port)
	}
}
