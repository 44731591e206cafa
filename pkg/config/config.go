// Package config loads CLI settings from defaults, an optional config file,
// .env and EASYDEPLOY_* environment variables, and bound flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EASYDEPLOY_API_URL.
const EnvPrefix = "EASYDEPLOY"

// Config holds all configuration for the CLI
type Config struct {
	API     APIConfig
	Log     LogConfig
	Project ProjectConfig
	Deploy  DeployConfig
	Retry   RetryConfig
	State   StateConfig
	Notify  NotifyConfig
	Watch   WatchConfig
	Tracing TracingConfig
}

// APIConfig holds control plane client settings
type APIConfig struct {
	URL           string
	Key           string
	Timeout       time.Duration
	HealthTimeout time.Duration
	RateLimit     float64
	Burst         int
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// ProjectConfig locates the deployment descriptor
type ProjectConfig struct {
	File string
}

// DeployConfig holds deploy follow-up settings
type DeployConfig struct {
	PollDelay    time.Duration
	WaitInterval time.Duration
	WaitPolls    int
}

// RetryConfig holds retry settings for idempotent reads
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// StateConfig holds tracker persistence settings
type StateConfig struct {
	Enabled bool
	Path    string
}

// NotifyConfig holds Redis event publishing settings. An empty URL
// disables publishing.
type NotifyConfig struct {
	RedisURL      string
	RedisPassword string
	RedisDB       int
	Channel       string
}

// WatchConfig holds settings for the watch command
type WatchConfig struct {
	Interval    time.Duration
	MetricsAddr string
}

// TracingConfig holds distributed tracing configuration
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	SampleRate     float64
	Insecure       bool
}

// Load reads configuration into a Config. v may already carry bound flags;
// nil uses a fresh instance. configFile overrides the default
// <user config dir>/easydeploy/config.yaml.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Debug().Err(err).Msg("Ignoring unreadable .env file")
	}

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "easydeploy"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// EASYDEPLOY_API is what earlier releases read.
	_ = v.BindEnv("api.url", EnvPrefix+"_API_URL", EnvPrefix+"_API")

	cfg := &Config{
		API: APIConfig{
			URL:           v.GetString("api.url"),
			Key:           v.GetString("api.key"),
			Timeout:       v.GetDuration("api.timeout"),
			HealthTimeout: v.GetDuration("api.health_timeout"),
			RateLimit:     v.GetFloat64("api.rate_limit"),
			Burst:         v.GetInt("api.burst"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Project: ProjectConfig{
			File: v.GetString("project.file"),
		},
		Deploy: DeployConfig{
			PollDelay:    v.GetDuration("deploy.poll_delay"),
			WaitInterval: v.GetDuration("deploy.wait_interval"),
			WaitPolls:    v.GetInt("deploy.wait_polls"),
		},
		Retry: RetryConfig{
			MaxAttempts: v.GetInt("retry.max_attempts"),
			BaseDelay:   v.GetDuration("retry.base_delay"),
			MaxDelay:    v.GetDuration("retry.max_delay"),
		},
		State: StateConfig{
			Enabled: v.GetBool("state.enabled"),
			Path:    expandHome(v.GetString("state.path")),
		},
		Notify: NotifyConfig{
			RedisURL:      v.GetString("notify.redis_url"),
			RedisPassword: v.GetString("notify.redis_password"),
			RedisDB:       v.GetInt("notify.redis_db"),
			Channel:       v.GetString("notify.channel"),
		},
		Watch: WatchConfig{
			Interval:    v.GetDuration("watch.interval"),
			MetricsAddr: v.GetString("watch.metrics_addr"),
		},
		Tracing: TracingConfig{
			Enabled:        v.GetBool("tracing.enabled"),
			ServiceName:    v.GetString("tracing.service_name"),
			ServiceVersion: v.GetString("tracing.service_version"),
			Environment:    v.GetString("tracing.environment"),
			OTLPEndpoint:   v.GetString("tracing.otlp_endpoint"),
			SampleRate:     v.GetFloat64("tracing.sample_rate"),
			Insecure:       v.GetBool("tracing.insecure"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.API.URL == "" {
		problems = append(problems, "api.url is required")
	}
	if c.API.Timeout <= 0 {
		problems = append(problems, "api.timeout must be positive")
	}
	if c.Deploy.WaitPolls < 1 {
		problems = append(problems, "deploy.wait_polls must be at least 1")
	}
	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, "retry.max_attempts must be at least 1")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q must be console or json", c.Log.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.url", "http://localhost:8000/api/v1")
	v.SetDefault("api.key", "")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.health_timeout", 10*time.Second)
	v.SetDefault("api.rate_limit", 0.0)
	v.SetDefault("api.burst", 1)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("project.file", "easydeploy.yaml")

	// Deploy defaults
	v.SetDefault("deploy.poll_delay", 3*time.Second)
	v.SetDefault("deploy.wait_interval", 2*time.Second)
	v.SetDefault("deploy.wait_polls", 5)

	// Retry defaults
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", 500*time.Millisecond)
	v.SetDefault("retry.max_delay", 10*time.Second)

	// State defaults
	v.SetDefault("state.enabled", true)
	v.SetDefault("state.path", defaultStatePath())

	// Notify defaults
	v.SetDefault("notify.redis_url", "")
	v.SetDefault("notify.redis_password", "")
	v.SetDefault("notify.redis_db", 0)
	v.SetDefault("notify.channel", "easydeploy:deployments")

	// Watch defaults
	v.SetDefault("watch.interval", 10*time.Second)
	v.SetDefault("watch.metrics_addr", "")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "easydeploy-cli")
	v.SetDefault("tracing.service_version", "dev")
	v.SetDefault("tracing.environment", "local")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4318")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)
}

func defaultStatePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "easydeploy", "state.db")
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
