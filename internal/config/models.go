package config

import "time"

// FileConfig is the YAML layout of fullsync.yaml.
type FileConfig struct {
	Listen           ListenConfig     `yaml:"listen"`
	Secret           string           `yaml:"secret"`
	SourceBranch     string           `yaml:"source_branch"`
	DryRun           bool             `yaml:"dry_run"`
	PeriodicInterval *int             `yaml:"periodic_interval"` // seconds; nil = default, 0 = disabled
	RateLimit        *int             `yaml:"rate_limit"`        // per minute per IP; nil = default, 0 = disabled
	MetricsAddr      string           `yaml:"metrics_addr"`
	GitHub           GitHubFileConfig `yaml:"github"`
	Job              JobFileConfig    `yaml:"job"`
	RollingLog       RollingLogConfig `yaml:"rolling_log"`
}

// ListenConfig is the webhook listener address.
type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GitHubFileConfig configures access to the repository being synced.
type GitHubFileConfig struct {
	Owner        string `yaml:"owner"`
	Repo         string `yaml:"repo"`
	TokenEnv     string `yaml:"token_env"`
	ReportStatus bool   `yaml:"report_status"`
	APIURL       string `yaml:"api_url"`
}

// JobFileConfig describes the full update command.
type JobFileConfig struct {
	Command interface{} `yaml:"command"` // string or list of strings
	Dir     string      `yaml:"dir"`
	Timeout int         `yaml:"timeout"` // seconds
}

// RollingLogConfig locates the bounded request log.
type RollingLogConfig struct {
	DB       string `yaml:"db"`
	Name     string `yaml:"name"`
	Capacity int    `yaml:"capacity"`
}

// Config is the validated runtime configuration.
type Config struct {
	Host             string
	Port             int
	Secret           string
	SourceBranch     string
	DryRun           bool
	PeriodicInterval time.Duration
	RateLimit        int
	MetricsAddr      string
	GitHub           GitHubConfig
	Job              JobConfig
	RollingLog       RollingLogConfig
}

// GitHubConfig is the resolved GitHub section; Token comes from the
// environment, never from the file.
type GitHubConfig struct {
	Owner        string
	Repo         string
	Token        string
	ReportStatus bool
	APIURL       string
}

// Enabled reports whether a repository is configured.
func (g GitHubConfig) Enabled() bool {
	return g.Owner != "" && g.Repo != ""
}

// JobConfig is the resolved job section.
type JobConfig struct {
	Command []string
	Dir     string
	Timeout time.Duration
}

// SourceRef is the push ref that triggers an update.
func (c *Config) SourceRef() string {
	return "refs/heads/" + c.SourceBranch
}
