package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/inquiry-relay/inquiry-relay/internal/config"
	"github.com/inquiry-relay/inquiry-relay/internal/dedup"
	"github.com/inquiry-relay/inquiry-relay/internal/inbox"
	"github.com/inquiry-relay/inquiry-relay/internal/pipeline"
	"github.com/inquiry-relay/inquiry-relay/internal/store"
	"github.com/inquiry-relay/inquiry-relay/internal/web"
	"github.com/inquiry-relay/inquiry-relay/internal/webhook"
	"github.com/spf13/cobra"
)

var cfgFile string

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "inquiry-relay",
		Short: "Inquiry Relay - Forward housing inquiry mail as webhooks",
		Long: `Inquiry Relay watches a mailbox for inquiry form mail, extracts the
structured fields (name, contact details, visit preferences), suppresses
repeat submissions from the same person, and posts each fresh inquiry to
a webhook endpoint.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.inquiry-relay/config.yaml)")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(windowsCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long:  "Create a new configuration file with mailbox and webhook settings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

func runCmd() *cobra.Command {
	var once bool
	var intervalSec int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the mailbox and relay inquiries",
		Long: `Connect to the configured mailbox and process unread inquiry mail.

Each message is parsed into structured fields, checked against the
duplicate suppression window, and fresh submissions are posted to the
webhook endpoint. Processed mail is archived or marked read.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(once, intervalSec)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Process the current unread mail and exit")
	cmd.Flags().IntVar(&intervalSec, "interval", 0, "Poll interval in seconds (overrides config)")

	return cmd
}

func statusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show relay statistics and recent messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of recent messages to show")

	return cmd
}

func windowsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "windows",
		Short: "Show active duplicate suppression windows",
		Long:  "List the sender/type pairs currently tracked for duplicate suppression, with last sighting and cumulative count.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWindows(limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Number of windows to show")

	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local dashboard",
		Long: `Start a local web server with a read-only dashboard showing processed
messages, duplicate suppression windows, logs and errors.

The server binds to localhost only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (overrides config)")

	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify mailbox and webhook configuration",
		Long:  "Load the config, connect to the IMAP server, and report whether the relay is ready to run. No mail is processed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck()
		},
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Inquiry Relay Configuration Setup")
	fmt.Println("=================================")
	fmt.Println()

	cfg := &config.Config{}

	fmt.Println("Mailbox (IMAP) settings:")
	fmt.Println("  (For Gmail, use an App Password: https://myaccount.google.com/apppasswords)")
	fmt.Println()

	provider := prompt(reader, "Provider (gmail/outlook/imap) [imap]: ")
	if provider == "" {
		provider = "imap"
	}
	cfg.Inbox.Provider = provider
	if provider == "imap" {
		cfg.Inbox.Server = prompt(reader, "IMAP server: ")
		if portStr := prompt(reader, "IMAP port [993]: "); portStr != "" {
			if port, err := strconv.Atoi(portStr); err == nil {
				cfg.Inbox.Port = port
			}
		}
		if cfg.Inbox.Port == 0 {
			cfg.Inbox.Port = 993
		}
	}
	cfg.Inbox.Email = prompt(reader, "Mailbox address: ")
	cfg.Inbox.Password = prompt(reader, "App password: ")

	archive := prompt(reader, "Move processed mail to an archive folder? (y/n) [y]: ")
	cfg.Inbox.AutoArchive = archive == "" || strings.EqualFold(archive, "y")

	fmt.Println()
	fmt.Println("Webhook settings:")
	fmt.Println()
	cfg.Webhook.URL = prompt(reader, "Webhook URL: ")

	configPath := resolveConfigPath()
	if err := config.Save(configPath, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Printf("Configuration saved to: %s\n", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review and edit the config file if needed")
	fmt.Println("  2. Run 'inquiry-relay check' to verify connectivity")
	fmt.Println("  3. Run 'inquiry-relay run --once' for a single pass")
	fmt.Println("  4. Run 'inquiry-relay run' to start the relay loop")

	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = store.DefaultDBPath()
	}
	return store.NewStore(dbPath)
}

func runRelay(once bool, intervalSec int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateInbox(); err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	monitor := inbox.NewMonitor(cfg.Inbox)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	if err := monitor.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to inbox: %w", err)
	}
	defer monitor.Disconnect()

	if cfg.Inbox.AutoArchive {
		if err := monitor.EnsureFolderExists(cfg.Inbox.ArchiveFolder); err != nil {
			return fmt.Errorf("failed to prepare archive folder: %w", err)
		}
	}

	engine := dedup.New(st, cfg.Dedup.Window())
	deliverer := webhook.NewClient(cfg.Webhook.URL, cfg.Webhook.Timeout())
	processor := pipeline.NewProcessor(monitor, st, engine, deliverer, cfg.Pipeline.BatchSize, cfg.Inbox.AutoArchive)

	if once {
		stats, err := processor.ProcessOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Processed %d messages: %d relayed, %d duplicates, %d skipped, %d failed\n",
			stats.Fetched, stats.Relayed, stats.Duplicates, stats.Skipped, stats.Failed)
		return nil
	}

	interval := cfg.Pipeline.PollInterval()
	if intervalSec > 0 {
		interval = time.Duration(intervalSec) * time.Second
	}

	fmt.Printf("Relaying inquiries from %s every %s (Ctrl+C to stop)\n", cfg.Inbox.Email, interval)
	if err := processor.Run(ctx, interval); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runStatus(limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	stats, err := st.GetStats()
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Println("Inquiry Relay Statistics")
	fmt.Println("------------------------")
	fmt.Printf("  Processed:  %d\n", stats.Total)
	fmt.Printf("  Relayed:    %d\n", stats.Relayed)
	fmt.Printf("  Duplicates: %d\n", stats.Duplicates)
	fmt.Printf("  Failed:     %d\n", stats.Failed)
	fmt.Printf("  Tracked senders: %d\n", stats.Windows)

	messages, err := st.RecentMessages(limit)
	if err != nil {
		return fmt.Errorf("failed to get recent messages: %w", err)
	}

	if len(messages) > 0 {
		fmt.Println()
		fmt.Printf("Recent messages (last %d)\n", limit)
		fmt.Println("------------------------")

		for _, m := range messages {
			status := "relayed"
			switch {
			case m.Error != "":
				status = "failed"
			case m.Duplicate:
				status = "duplicate"
			case !m.WebhookSent:
				status = "processed"
			}
			fmt.Printf("%s  %-9s  %s  %s\n",
				m.ProcessedAt.Format("2006-01-02 15:04"), status, m.OriginatorEmail, m.DisplayTitle)
			if m.Error != "" {
				fmt.Printf("    Error: %s\n", m.Error)
			}
		}
	}

	return nil
}

func runWindows(limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	windows, err := st.RecentWindows(limit)
	if err != nil {
		return fmt.Errorf("failed to get windows: %w", err)
	}

	if len(windows) == 0 {
		fmt.Println("No tracked senders yet.")
		return nil
	}

	window := cfg.Dedup.Window()
	fmt.Printf("Duplicate suppression windows (%s)\n", window)
	fmt.Println("------------------------")

	now := time.Now()
	for _, rec := range windows {
		state := "expired"
		if rec.LastSeen.After(now.Add(-window)) {
			state = "active"
		}
		fmt.Printf("%s  %-7s  x%-3d  %s / %s\n",
			rec.LastSeen.Format("2006-01-02 15:04"), state, rec.Count, rec.Identity.Email, rec.Identity.Type)
	}
	return nil
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Dashboard.Port
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	server := web.NewServer(port, st)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	return server.Start()
}

func runCheck() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("Config:  %s\n", resolveConfigPath())
	fmt.Printf("Webhook: %s\n", cfg.Webhook.URL)
	fmt.Printf("Window:  %s\n", cfg.Dedup.Window())

	if err := cfg.ValidateInbox(); err != nil {
		fmt.Println()
		fmt.Println("Inbox is not configured:")
		fmt.Printf("  %v\n", err)
		fmt.Println()
		fmt.Println("Add the following to your config.yaml:")
		fmt.Println()
		fmt.Println("inbox:")
		fmt.Println("  provider: gmail")
		fmt.Println("  email: your-mailbox@gmail.com")
		fmt.Println("  password: your-app-password  # Use an App Password, not your main password")
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	monitor := inbox.NewMonitor(cfg.Inbox)
	if err := monitor.Connect(ctx); err != nil {
		return fmt.Errorf("inbox connection failed: %w", err)
	}
	defer monitor.Disconnect()

	fmt.Println()
	fmt.Printf("Connected to %s as %s\n", cfg.Inbox.Server, cfg.Inbox.Email)
	fmt.Println("Ready to relay.")
	return nil
}

func prompt(reader *bufio.Reader, message string) string {
	fmt.Print(message)
	input, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(input)
}
