package server

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the host-level server settings.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

// Addr renders the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig builds the configuration tree: baked-in defaults, overlaid
// by the config file when one is found, overlaid by HF_* environment
// variables. A missing config file is not an error.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/hashfleet.db")

	// Per-module defaults, keyed the way the registry scopes them.
	v.SetDefault("plugins.telemetry.enabled", true)
	v.SetDefault("plugins.telemetry.snapshot_cap", 32)
	v.SetDefault("plugins.telemetry.api_key", "")
	v.SetDefault("plugins.telemetry.retention", "720h")
	v.SetDefault("plugins.telemetry.maintenance_interval", "1h")
	v.SetDefault("plugins.telemetry.probe_timeout", "3s")
	v.SetDefault("plugins.telemetry.probe_count", 3)
	v.SetDefault("plugins.settings.enabled", true)
	v.SetDefault("plugins.mqtt.enabled", true)
	v.SetDefault("plugins.mqtt.broker_url", "")
	v.SetDefault("plugins.mqtt.client_id", "hashfleet")
	v.SetDefault("plugins.mqtt.topic_prefix", "hashfleet")
	v.SetDefault("plugins.mqtt.qos", 1)
	v.SetDefault("plugins.mqtt.timeout", "10s")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("hashfleet")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/hashfleet")
	}

	// HF_SERVER_PORT=9090 overrides server.port, and so on.
	v.SetEnvPrefix("HF")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return v, nil
}
