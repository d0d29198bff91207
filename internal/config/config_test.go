package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
inbox:
  email: relay@example.jp
  password: secret
  server: imap.example.jp
  port: 993
webhook:
  url: https://hooks.example.jp/inquiry
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Inbox.Folder != "INBOX" {
		t.Errorf("folder default: got %q", cfg.Inbox.Folder)
	}
	if cfg.Inbox.ArchiveFolder != "Processed" {
		t.Errorf("archive folder default: got %q", cfg.Inbox.ArchiveFolder)
	}
	if cfg.Dedup.Window() != 24*time.Hour {
		t.Errorf("dedup window default: got %v", cfg.Dedup.Window())
	}
	if cfg.Pipeline.PollInterval() != 20*time.Second {
		t.Errorf("poll interval default: got %v", cfg.Pipeline.PollInterval())
	}
	if cfg.Pipeline.BatchSize != 10 {
		t.Errorf("batch size default: got %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Webhook.Timeout() != 10*time.Second {
		t.Errorf("webhook timeout default: got %v", cfg.Webhook.Timeout())
	}
	if cfg.Dashboard.Port != 8750 {
		t.Errorf("dashboard port default: got %d", cfg.Dashboard.Port)
	}
}

func TestLoadProviderShortcuts(t *testing.T) {
	path := writeConfig(t, `
inbox:
  provider: gmail
  email: relay@gmail.com
  password: secret
webhook:
  url: https://hooks.example.jp/inquiry
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Inbox.Server != "imap.gmail.com" || cfg.Inbox.Port != 993 {
		t.Errorf("gmail shortcut: got %s:%d", cfg.Inbox.Server, cfg.Inbox.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing webhook url",
			mutate:  func(c *Config) { c.Webhook.URL = "" },
			wantErr: true,
		},
		{
			name:    "negative window",
			mutate:  func(c *Config) { c.Dedup.WindowHours = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Webhook: WebhookConfig{URL: "https://hooks.example.jp/inquiry"}}
			cfg.fillDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateInbox(t *testing.T) {
	cfg := &Config{
		Inbox: InboxConfig{
			Email:    "relay@example.jp",
			Password: "secret",
			Server:   "imap.example.jp",
			Port:     993,
		},
	}
	if err := cfg.ValidateInbox(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.Inbox.Password = ""
	if err := cfg.ValidateInbox(); err == nil {
		t.Error("missing password should fail validation")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := &Config{
		Inbox:   InboxConfig{Email: "relay@example.jp", Password: "secret", Server: "imap.example.jp", Port: 993},
		Webhook: WebhookConfig{URL: "https://hooks.example.jp/inquiry"},
	}
	cfg.fillDefaults()

	if err := Save(path, cfg); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions: got %04o, want 0600", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	if loaded.Webhook.URL != cfg.Webhook.URL || loaded.Inbox.Email != cfg.Inbox.Email {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
}
