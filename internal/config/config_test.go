package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Backend.Endpoints.StaleContent != "stale-content-query" {
		t.Errorf("expected stale-content-query endpoint, got %q", cfg.Backend.Endpoints.StaleContent)
	}
	if cfg.Backend.Timeout != 2*time.Minute {
		t.Errorf("expected 2m timeout, got %v", cfg.Backend.Timeout)
	}
	if cfg.Newsletter.Namespace != "staleflix" {
		t.Errorf("expected namespace 'staleflix', got %q", cfg.Newsletter.Namespace)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
backend:
  base_url: https://n8n.example.com/webhook
newsletter:
  message_format: markdown
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Backend.BaseURL != "https://n8n.example.com/webhook" {
		t.Errorf("unexpected base url %q", cfg.Backend.BaseURL)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Backend.Endpoints.SubmitSelection != "submit-selection" {
		t.Errorf("expected default submit endpoint, got %q", cfg.Backend.Endpoints.SubmitSelection)
	}
	if cfg.Newsletter.FilenamePrefix != "staleflix-newsletter" {
		t.Errorf("expected default filename prefix, got %q", cfg.Newsletter.FilenamePrefix)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Newsletter.Deliver) != 1 || cfg.Newsletter.Deliver[0] != "mailing_list" {
		t.Errorf("expected mailing_list delivery, got %v", cfg.Newsletter.Deliver)
	}
}

func TestLoadAppliesEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	t.Setenv("STALEFLIX_BACKEND_URL", "https://env.example.com/hook")
	t.Setenv("STALEFLIX_SMTP_PASSWORD", "s3cret")
	t.Setenv("STALEFLIX_MAIL_TO", "a@example.com,b@example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Backend.BaseURL != "https://env.example.com/hook" {
		t.Errorf("expected env base url, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Mail.Password != "s3cret" {
		t.Errorf("expected env smtp password, got %q", cfg.Mail.Password)
	}
	if len(cfg.Mail.To) != 2 || cfg.Mail.To[1] != "b@example.com" {
		t.Errorf("expected two recipients, got %v", cfg.Mail.To)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("STALEFLIX_TEST_DOTENV=from-file\n"), 0o644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Setenv("STALEFLIX_TEST_DOTENV", "")
	os.Unsetenv("STALEFLIX_TEST_DOTENV")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("STALEFLIX_TEST_DOTENV"); got != "from-file" {
		t.Errorf("expected value from .env, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	cfg, _ := parse(nil)

	cfg.Newsletter.MessageFormat = "rtf"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown message format")
	}

	cfg.Newsletter.MessageFormat = MessageHTML
	cfg.Newsletter.Deliver = []string{"smtp"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for smtp without mail settings")
	}

	cfg.Mail.Host = "smtp.example.com"
	cfg.Mail.From = "staleflix@example.com"
	cfg.Mail.To = []string{"crew@example.com"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.Newsletter.Deliver = []string{"pigeon"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown delivery target")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}
