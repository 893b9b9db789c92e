// Package config loads and validates the coordinator's YAML
// configuration, applying documented defaults for every omitted field.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"roundtable/internal/domain"
)

// Config is the top-level system configuration.
type Config struct {
	Owner         string `yaml:"owner"`
	Repo          string `yaml:"repo"`
	DefaultBranch string `yaml:"default_branch"`

	// MessagingPath is the base directory the message persistence
	// adapter writes under. DecisionsPath holds the decision log.
	MessagingPath string `yaml:"messaging_path"`
	DecisionsPath string `yaml:"decisions_path"`

	AutoMerge AutoMergeConfig `yaml:"auto_merge"`
	Github    GithubConfig    `yaml:"github"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`

	// Schedule is an optional cron expression for coordinator runs
	// covering all agents; per-agent schedules live on the agent entry.
	Schedule string `yaml:"schedule,omitempty"`

	Agents []AgentEntry `yaml:"agents"`
}

// AgentEntry couples an agent type name (resolved through the factory
// registry) with the agent's configuration.
type AgentEntry struct {
	Type               string `yaml:"type"`
	domain.AgentConfig `yaml:",inline"`
}

// AutoMergeConfig is the auto-merge policy.
type AutoMergeConfig struct {
	Enabled        *bool    `yaml:"enabled"` // nil = default (true)
	RequiredChecks []string `yaml:"required_checks"`
	MergeDelay     string   `yaml:"merge_delay"`  // duration string
	MergeMethod    string   `yaml:"merge_method"` // merge, squash, rebase
	BlockingLabels []string `yaml:"blocking_labels"`
}

// IsEnabled resolves the tri-state enabled flag.
func (a AutoMergeConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// Delay parses the merge delay, falling back to the default on error.
func (a AutoMergeConfig) Delay() time.Duration {
	d, err := time.ParseDuration(a.MergeDelay)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GithubConfig configures the GitHub gateway adapter. When Token is
// empty the coordinator falls back to the in-memory fake gateway.
type GithubConfig struct {
	Token             string  `yaml:"token"`
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// LoggerConfig controls slog output.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig controls OpenTelemetry tracing.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout, noop
}

// Default returns a configuration with every documented default applied.
func Default() *Config {
	return &Config{
		DefaultBranch: "main",
		MessagingPath: ".agents/messages",
		DecisionsPath: ".agents/decisions",
		AutoMerge: AutoMergeConfig{
			MergeDelay:     "60s",
			MergeMethod:    "squash",
			BlockingLabels: []string{"do-not-merge", "wip", "blocked"},
		},
		Github: GithubConfig{
			BaseURL:           "https://api.github.com",
			RequestsPerSecond: 1,
		},
		Logger: LoggerConfig{Level: "info", Format: "text", Output: "stderr"},
		Tracer: TracerConfig{Exporter: "noop"},
	}
}

// Load reads the YAML file at path, layers it over the defaults and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigLoad, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigLoad, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets secrets stay out of the config file.
func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv("ROUNDTABLE_GITHUB_TOKEN"); token != "" {
		cfg.Github.Token = token
	}
}
