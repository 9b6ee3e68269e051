package config

import (
	"time"

	redisclient "github.com/chainmint/issuer/internal/infra/redis"
	"github.com/chainmint/issuer/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Networks   []NetworkConfig    `yaml:"networks"`
	Redis      redisclient.Config `yaml:"redis"`
	Logging    LoggingConfig      `yaml:"logging"`
	Database   postgres.Config    `yaml:"database"`
	Webhook    WebhookConfig      `yaml:"webhook"`
	Submission SubmissionConfig   `yaml:"submission"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// NetworkConfig holds settings for a deployment target network.
type NetworkConfig struct {
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`
}

// WebhookConfig holds notification delivery settings. An empty URL
// disables webhook dispatch entirely.
type WebhookConfig struct {
	URL         string        `yaml:"url"`
	QueueSize   int           `yaml:"queue_size"`
	Workers     int           `yaml:"workers"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// SubmissionConfig controls the chain submission layer. Simulated mode
// runs the full pipeline without a chain connection.
type SubmissionConfig struct {
	Simulated bool          `yaml:"simulated"`
	Latency   time.Duration `yaml:"latency"`
}

// EnabledNetworks returns the allow-list of deployment targets.
func (c *AppConfig) EnabledNetworks() []string {
	var out []string
	for _, n := range c.Networks {
		if n.Enabled {
			out = append(out, n.Name)
		}
	}
	return out
}
