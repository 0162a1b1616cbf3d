package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"fullsync/internal/coalesce"
	"fullsync/internal/config"
	"fullsync/internal/fetch"
	"fullsync/internal/metrics"
	"fullsync/internal/rollinglog"
	"fullsync/internal/schedule"
	"fullsync/internal/security"
	"fullsync/internal/server"
	"fullsync/internal/update"
	"fullsync/pkg/fileutil"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const configFileName = "fullsync.yaml"

var (
	logFile string
	host    string
	port    int
	dryRun  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Start the HTTP server to receive GitHub webhook requests.

Pushes to the configured branch trigger the full update job. The job also
runs every periodic_interval seconds. The server stops if a job fails.`,
	RunE: runServe,
}

func init() {
	// Flags for serve command
	serveCmd.Flags().StringVar(&logFile, "log", getEnvOrDefault("FULLSYNC_LOG_FILE", "./fullsync.log"), "Path to log file")
	serveCmd.Flags().StringVar(&host, "host", getEnvOrDefault("FULLSYNC_HOST", ""), "Host to bind to (overrides listen.host)")
	serveCmd.Flags().IntVarP(&port, "port", "p", getEnvOrDefaultInt("FULLSYNC_PORT", 0), "Port to listen on (overrides listen.port)")
	serveCmd.Flags().BoolVar(&dryRun, "dry-run", getEnvBool("FULLSYNC_DRY_RUN"), "Run the job in dry-run mode")
}

func runServe(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}

	// Set up logging
	logger, logFileHandle, err := setupLogging(logFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("Starting fullsync", "version", version)

	// Load configuration
	logger.Info("Loading configuration", "config", path)
	if err := security.ValidateSecurePermissions(path); err != nil {
		logger.Warn("Insecure configuration file permissions", "error", err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyFlagOverrides(cfg)

	if security.IsWeakSecret(cfg.Secret) {
		logger.Warn("Webhook secret looks weak, consider 'fullsync secret' to generate one")
	}
	logger.Info("Configuration validated successfully",
		"branch", cfg.SourceBranch,
		"dry_run", cfg.DryRun,
		"periodic_interval", cfg.PeriodicInterval.String())

	// Open the rolling log
	if err := security.CreateSecureDir(filepath.Dir(cfg.RollingLog.DB), security.PermDirectory); err != nil {
		return err
	}
	logger.Info("Opening rolling log", "db", cfg.RollingLog.DB, "name", cfg.RollingLog.Name)
	rl, err := rollinglog.Open(cfg.RollingLog.DB, cfg.RollingLog.Name, cfg.RollingLog.Capacity)
	if err != nil {
		logger.Error("Failed to open rolling log", "error", err)
		return fmt.Errorf("failed to open rolling log: %w", err)
	}
	defer rl.Close()

	m := metrics.New()

	fetchOpts := []fetch.Option{fetch.WithMetrics(m)}
	if cfg.GitHub.Token != "" {
		fetchOpts = append(fetchOpts, fetch.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHub.Token})))
	} else if cfg.GitHub.Enabled() {
		logger.Warn("No GitHub token found, API requests are unauthenticated")
	}
	fetcher := fetch.New(fetchOpts...)

	runner, err := update.New(cfg, fetcher)
	if err != nil {
		return fmt.Errorf("failed to set up update job: %w", err)
	}
	job := coalesce.New(runner.Run, coalesce.WithMetrics(m))

	srv := server.New(server.Config{
		Host:      cfg.Host,
		Port:      cfg.Port,
		Secret:    cfg.Secret,
		SourceRef: cfg.SourceRef(),
		RateLimit: cfg.RateLimit,
	}, job, rl, logger, m)

	periodic := &schedule.Periodic{
		Interval:  cfg.PeriodicInterval,
		Coalescer: job,
		Sink:      rl,
		Logger:    logger,
		Metrics:   m,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return periodic.Run(gctx) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return m.Serve(gctx, cfg.MetricsAddr, logger) })
	}

	err = g.Wait()

	// Let running jobs finish so their logs reach the rolling log
	if job.Running() {
		logger.Info("Waiting for the running update to finish")
	}
	srv.Wait()
	periodic.Wait()

	if err != nil && !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
		logger.Error("Server stopped", "error", err)
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func applyFlagOverrides(cfg *config.Config) {
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}
	if dryRun {
		cfg.DryRun = true
	}
}

// resolveConfigPath returns --config or the first fullsync.yaml found in
// the default locations.
func resolveConfigPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}

	searchPaths := fileutil.DefaultConfigPaths(configFileName)
	path, err := fileutil.SearchPaths(searchPaths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: No configuration file found in default locations:\n")
		for _, p := range searchPaths {
			fmt.Fprintf(os.Stderr, "  - %s\n", p)
		}
		fmt.Fprintf(os.Stderr, "Use --config flag to specify a custom location\n")
		return "", fmt.Errorf("configuration file not found")
	}
	return path, nil
}

// setupLogging configures slog for file logging
// Returns both the logger and the file handle (caller must close the file)
func setupLogging(logPath string) (*slog.Logger, *os.File, error) {
	// Create log directory if needed
	if err := security.CreateSecureDir(filepath.Dir(logPath), security.PermDirectory); err != nil {
		return nil, nil, err
	}

	file, err := security.OpenAppendFile(logPath, security.PermLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// Create multi-writer to log to both file and console
	multiWriter := io.MultiWriter(os.Stdout, file)

	// Create JSON handler for structured logging
	handler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return slog.New(handler), file, nil
}
