package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS2uW5yA7bD0fG3hK6"

func noEnv(string) string { return "" }

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestParse_Defaults(t *testing.T) {
	yaml := `
secret: ` + testSecret + `
job:
  command: "make full"
`
	cfg, err := Parse([]byte(yaml), noEnv)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Host != DefaultHost {
		t.Errorf("Expected host %q, got %q", DefaultHost, cfg.Host)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Expected port %d, got %d", DefaultPort, cfg.Port)
	}
	if cfg.SourceBranch != "master" {
		t.Errorf("Expected branch master, got %q", cfg.SourceBranch)
	}
	if cfg.SourceRef() != "refs/heads/master" {
		t.Errorf("Expected ref refs/heads/master, got %q", cfg.SourceRef())
	}
	if cfg.PeriodicInterval != 300*time.Second {
		t.Errorf("Expected periodic interval 300s, got %v", cfg.PeriodicInterval)
	}
	if cfg.RateLimit != DefaultRateLimit {
		t.Errorf("Expected rate limit %d, got %d", DefaultRateLimit, cfg.RateLimit)
	}
	if cfg.Job.Timeout != time.Hour {
		t.Errorf("Expected job timeout 1h, got %v", cfg.Job.Timeout)
	}
	if len(cfg.Job.Command) != 2 || cfg.Job.Command[0] != "make" || cfg.Job.Command[1] != "full" {
		t.Errorf("Expected command [make full], got %v", cfg.Job.Command)
	}
	if cfg.RollingLog.Name != "webhook-logs.md" || cfg.RollingLog.Capacity != 1000 {
		t.Errorf("Unexpected rolling log defaults: %+v", cfg.RollingLog)
	}
	if cfg.GitHub.APIURL != DefaultAPIURL {
		t.Errorf("Expected API URL %q, got %q", DefaultAPIURL, cfg.GitHub.APIURL)
	}
	if cfg.GitHub.Enabled() {
		t.Error("Expected GitHub to be disabled without owner/repo")
	}
}

func TestParse_ExplicitValues(t *testing.T) {
	yaml := `
listen:
  host: 127.0.0.1
  port: 9000
secret: ` + testSecret + `
source_branch: main
dry_run: true
periodic_interval: 0
rate_limit: 0
metrics_addr: 127.0.0.1:9100
github:
  owner: example
  repo: data
  token_env: MY_TOKEN
  report_status: true
  api_url: http://localhost:3000/
job:
  command: ["./full.sh", "--all"]
  dir: /srv/data
  timeout: 60
rolling_log:
  db: /var/lib/fullsync/log.db
  name: custom.md
  capacity: 5
`
	cfg, err := Parse([]byte(yaml), envMap(map[string]string{"MY_TOKEN": "tok"}))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Host != "127.0.0.1" || cfg.Port != 9000 {
		t.Errorf("Unexpected listen address %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.SourceRef() != "refs/heads/main" {
		t.Errorf("Expected ref refs/heads/main, got %q", cfg.SourceRef())
	}
	if !cfg.DryRun {
		t.Error("Expected dry run to be enabled")
	}
	if cfg.PeriodicInterval != 0 {
		t.Errorf("Expected periodic trigger disabled, got %v", cfg.PeriodicInterval)
	}
	if cfg.RateLimit != 0 {
		t.Errorf("Expected rate limiting disabled, got %d", cfg.RateLimit)
	}
	if cfg.GitHub.Token != "tok" {
		t.Errorf("Expected token from MY_TOKEN, got %q", cfg.GitHub.Token)
	}
	if cfg.GitHub.APIURL != "http://localhost:3000" {
		t.Errorf("Expected trailing slash trimmed, got %q", cfg.GitHub.APIURL)
	}
	if !cfg.GitHub.Enabled() || !cfg.GitHub.ReportStatus {
		t.Error("Expected GitHub status reporting to be enabled")
	}
	if len(cfg.Job.Command) != 2 || cfg.Job.Command[0] != "./full.sh" {
		t.Errorf("Unexpected command %v", cfg.Job.Command)
	}
	if cfg.Job.Timeout != time.Minute {
		t.Errorf("Expected job timeout 1m, got %v", cfg.Job.Timeout)
	}
	if cfg.RollingLog.Capacity != 5 || cfg.RollingLog.Name != "custom.md" {
		t.Errorf("Unexpected rolling log config %+v", cfg.RollingLog)
	}
}

func TestParse_SecretFromEnvironment(t *testing.T) {
	yaml := `
job:
  command: "true"
`
	cfg, err := Parse([]byte(yaml), envMap(map[string]string{SecretEnv: testSecret}))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Secret != testSecret {
		t.Errorf("Expected secret from %s", SecretEnv)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantErrs []string
	}{
		{
			"missing secret and command",
			`source_branch: master`,
			[]string{"missing required 'secret'", "missing required 'job.command'"},
		},
		{
			"short secret",
			"secret: short\njob:\n  command: \"true\"",
			[]string{"secret too short"},
		},
		{
			"bad branch",
			"secret: " + testSecret + "\nsource_branch: refs/heads/master\njob:\n  command: \"true\"",
			[]string{"source_branch"},
		},
		{
			"bad port",
			"secret: " + testSecret + "\nlisten:\n  port: 70000\njob:\n  command: \"true\"",
			[]string{"listen.port"},
		},
		{
			"negative values",
			"secret: " + testSecret + "\nperiodic_interval: -1\nrate_limit: -5\njob:\n  command: \"true\"\n  timeout: -1\nrolling_log:\n  capacity: -2",
			[]string{"periodic_interval", "rate_limit", "job.timeout", "rolling_log.capacity"},
		},
		{
			"report status without repo",
			"secret: " + testSecret + "\ngithub:\n  report_status: true\njob:\n  command: \"true\"",
			[]string{"github.report_status requires"},
		},
		{
			"bad repo slug",
			"secret: " + testSecret + "\ngithub:\n  owner: example\n  repo: \"bad/repo\"\njob:\n  command: \"true\"",
			[]string{"github.repo contains invalid characters"},
		},
		{
			"unbalanced quotes",
			"secret: " + testSecret + "\njob:\n  command: \"echo 'oops\"",
			[]string{"job.command"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), noEnv)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			for _, want := range tt.wantErrs {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Expected error to contain %q, got:\n%v", want, err)
				}
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fullsync.yaml")
	content := "secret: " + testSecret + "\njob:\n  command: \"true\"\n"
	if err := os.WriteFile(path, []byte(content), 0640); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv(SecretEnv, "")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Secret != testSecret {
		t.Errorf("Expected secret from file")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected read error, got %v", err)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("secret: [unclosed"), 0640)

	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse YAML") {
		t.Errorf("Expected YAML error, got %v", err)
	}
}
