package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"fullsync/internal/security"
	"fullsync/pkg/cmdutil"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHost             = "0.0.0.0"
	DefaultPort             = 8080
	DefaultSourceBranch     = "master"
	DefaultPeriodicInterval = 300 // seconds
	DefaultRateLimit        = 60  // requests per minute per IP
	DefaultJobTimeout       = 3600
	DefaultTokenEnv         = "GITHUB_ACCESS_TOKEN"
	DefaultAPIURL           = "https://api.github.com"
	DefaultRollingLogDB     = "./fullsync.db"
	DefaultRollingLogName   = "webhook-logs.md"
	DefaultRollingLogSize   = 1000

	// SecretEnv overrides the secret from the config file.
	SecretEnv = "FULLSYNC_WEBHOOK_SECRET"
)

// LoadConfig loads and validates the configuration from a YAML file.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, os.Getenv)
}

// Parse validates YAML configuration, resolving secrets through getenv.
func Parse(data []byte, getenv func(string) string) (*Config, error) {
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if secret := getenv(SecretEnv); secret != "" {
		fc.Secret = secret
	}

	if errors := ValidateFileConfig(fc); len(errors) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n%s", strings.Join(errors, "\n"))
	}

	cfg := &Config{
		Host:         fc.Listen.Host,
		Port:         fc.Listen.Port,
		Secret:       fc.Secret,
		SourceBranch: fc.SourceBranch,
		DryRun:       fc.DryRun,
		MetricsAddr:  fc.MetricsAddr,
		RollingLog:   fc.RollingLog,
	}

	// Apply defaults
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.SourceBranch == "" {
		cfg.SourceBranch = DefaultSourceBranch
	}

	interval := DefaultPeriodicInterval
	if fc.PeriodicInterval != nil {
		interval = *fc.PeriodicInterval
	}
	cfg.PeriodicInterval = time.Duration(interval) * time.Second

	cfg.RateLimit = DefaultRateLimit
	if fc.RateLimit != nil {
		cfg.RateLimit = *fc.RateLimit
	}

	tokenEnv := fc.GitHub.TokenEnv
	if tokenEnv == "" {
		tokenEnv = DefaultTokenEnv
	}
	apiURL := fc.GitHub.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	cfg.GitHub = GitHubConfig{
		Owner:        fc.GitHub.Owner,
		Repo:         fc.GitHub.Repo,
		Token:        getenv(tokenEnv),
		ReportStatus: fc.GitHub.ReportStatus,
		APIURL:       strings.TrimSuffix(apiURL, "/"),
	}

	// Validation already proved the command parses
	command, _ := cmdutil.ParseCommandList(fc.Job.Command)
	timeout := fc.Job.Timeout
	if timeout == 0 {
		timeout = DefaultJobTimeout
	}
	cfg.Job = JobConfig{
		Command: command,
		Dir:     fc.Job.Dir,
		Timeout: time.Duration(timeout) * time.Second,
	}

	if cfg.RollingLog.DB == "" {
		cfg.RollingLog.DB = DefaultRollingLogDB
	}
	if cfg.RollingLog.Name == "" {
		cfg.RollingLog.Name = DefaultRollingLogName
	}
	if cfg.RollingLog.Capacity == 0 {
		cfg.RollingLog.Capacity = DefaultRollingLogSize
	}

	return cfg, nil
}

// ValidateFileConfig returns every problem found in fc, one per line.
func ValidateFileConfig(fc FileConfig) []string {
	var errors []string

	// Validate secret
	if fc.Secret == "" {
		errors = append(errors, fmt.Sprintf("  - missing required 'secret' field (or %s)", SecretEnv))
	} else if err := security.ValidateSecret(fc.Secret); err != nil {
		errors = append(errors, fmt.Sprintf("  - secret: %v", err))
	}

	// Validate listen address
	if fc.Listen.Port < 0 || fc.Listen.Port > 65535 {
		errors = append(errors, fmt.Sprintf("  - listen.port must be between 1 and 65535, got %d", fc.Listen.Port))
	}

	// Validate branch
	if fc.SourceBranch != "" {
		if err := security.ValidateBranchName(fc.SourceBranch); err != nil {
			errors = append(errors, fmt.Sprintf("  - source_branch: %v", err))
		}
	}

	if fc.PeriodicInterval != nil && *fc.PeriodicInterval < 0 {
		errors = append(errors, fmt.Sprintf("  - periodic_interval must not be negative, got %d", *fc.PeriodicInterval))
	}
	if fc.RateLimit != nil && *fc.RateLimit < 0 {
		errors = append(errors, fmt.Sprintf("  - rate_limit must not be negative, got %d", *fc.RateLimit))
	}

	// Validate GitHub repository
	if fc.GitHub.Owner != "" || fc.GitHub.Repo != "" {
		if err := security.ValidateRepoSlug("github.owner", fc.GitHub.Owner); err != nil {
			errors = append(errors, fmt.Sprintf("  - %v", err))
		}
		if err := security.ValidateRepoSlug("github.repo", fc.GitHub.Repo); err != nil {
			errors = append(errors, fmt.Sprintf("  - %v", err))
		}
	} else if fc.GitHub.ReportStatus {
		errors = append(errors, "  - github.report_status requires github.owner and github.repo")
	}

	// Validate job
	if fc.Job.Command == nil {
		errors = append(errors, "  - missing required 'job.command' field")
	} else if _, err := cmdutil.ParseCommandList(fc.Job.Command); err != nil {
		errors = append(errors, fmt.Sprintf("  - job.command: %v", err))
	}
	if fc.Job.Timeout < 0 {
		errors = append(errors, fmt.Sprintf("  - job.timeout must be a positive integer, got %d", fc.Job.Timeout))
	}

	if fc.RollingLog.Capacity < 0 {
		errors = append(errors, fmt.Sprintf("  - rolling_log.capacity must be positive, got %d", fc.RollingLog.Capacity))
	}

	return errors
}
