package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPollIntervalSec   = 20
	defaultBatchSize         = 10
	defaultWindowHours       = 24
	defaultWebhookTimeoutSec = 10
	defaultDashboardPort     = 8750
)

func checkFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %04o; should be 0600", path, perm)
	}
	return nil
}

type Config struct {
	Inbox     InboxConfig     `yaml:"inbox"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Dedup     DedupConfig     `yaml:"dedup,omitempty"`
	Pipeline  PipelineConfig  `yaml:"pipeline,omitempty"`
	Dashboard DashboardConfig `yaml:"dashboard,omitempty"`
	DBPath    string          `yaml:"db_path,omitempty"`
}

// InboxConfig holds IMAP settings for the monitored inquiry mailbox
type InboxConfig struct {
	Provider      string `yaml:"provider"` // "gmail", "outlook", "imap"
	Server        string `yaml:"server"`   // e.g., "imap.gmail.com"
	Port          int    `yaml:"port"`     // e.g., 993
	Email         string `yaml:"email"`    // Mailbox receiving inquiry form mail
	Password      string `yaml:"password"` // App password (not main password)
	Folder        string `yaml:"folder"`   // Folder to monitor (default: "INBOX")
	AutoArchive   bool   `yaml:"auto_archive"`
	ArchiveFolder string `yaml:"archive_folder"` // Folder processed mail moves to
}

// WebhookConfig is the downstream delivery endpoint
type WebhookConfig struct {
	URL        string `yaml:"url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

func (w WebhookConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutSec) * time.Second
}

// DedupConfig controls the duplicate suppression window
type DedupConfig struct {
	WindowHours int `yaml:"window_hours"`
}

func (d DedupConfig) Window() time.Duration {
	return time.Duration(d.WindowHours) * time.Hour
}

// PipelineConfig controls the polling loop
type PipelineConfig struct {
	PollIntervalSec int `yaml:"poll_interval_sec"`
	BatchSize       int `yaml:"batch_size"`
}

func (p PipelineConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSec) * time.Second
}

type DashboardConfig struct {
	Port int `yaml:"port"`
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".inquiry-relay", "config.yaml")
}

func Load(path string) (*Config, error) {
	if err := checkFilePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.fillDefaults()
	return &cfg, nil
}

func (c *Config) fillDefaults() {
	if c.Inbox.Folder == "" {
		c.Inbox.Folder = "INBOX"
	}
	if c.Inbox.ArchiveFolder == "" {
		c.Inbox.ArchiveFolder = "Processed"
	}
	if c.Inbox.Provider == "gmail" && c.Inbox.Server == "" {
		c.Inbox.Server = "imap.gmail.com"
		c.Inbox.Port = 993
	}
	if c.Inbox.Provider == "outlook" && c.Inbox.Server == "" {
		c.Inbox.Server = "outlook.office365.com"
		c.Inbox.Port = 993
	}

	if c.Webhook.TimeoutSec == 0 {
		c.Webhook.TimeoutSec = defaultWebhookTimeoutSec
	}
	if c.Dedup.WindowHours == 0 {
		c.Dedup.WindowHours = defaultWindowHours
	}
	if c.Pipeline.PollIntervalSec == 0 {
		c.Pipeline.PollIntervalSec = defaultPollIntervalSec
	}
	if c.Pipeline.BatchSize == 0 {
		c.Pipeline.BatchSize = defaultBatchSize
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultDashboardPort
	}
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) Validate() error {
	if c.Webhook.URL == "" {
		return fmt.Errorf("webhook: url is required")
	}
	if c.Dedup.WindowHours < 0 {
		return fmt.Errorf("dedup: window_hours must not be negative")
	}
	return nil
}

// ValidateInbox checks the IMAP settings (only needed by commands that
// actually connect to the mailbox)
func (c *Config) ValidateInbox() error {
	if c.Inbox.Email == "" {
		return fmt.Errorf("inbox: email address is required")
	}
	if c.Inbox.Password == "" {
		return fmt.Errorf("inbox: password (app password) is required")
	}
	if c.Inbox.Server == "" {
		return fmt.Errorf("inbox: IMAP server is required")
	}
	if c.Inbox.Port == 0 {
		return fmt.Errorf("inbox: IMAP port is required")
	}
	return nil
}
