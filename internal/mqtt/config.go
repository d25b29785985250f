package mqtt

import (
	"time"

	"github.com/hashfleet/hashfleet/pkg/plugin"
)

// Config holds the broker connection and topic settings for the bridge.
type Config struct {
	BrokerURL   string        `mapstructure:"broker_url"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"` //nolint:gosec // G101: config field name, not a credential
	ClientID    string        `mapstructure:"client_id"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	QoS         byte          `mapstructure:"qos"`
	Retain      bool          `mapstructure:"retain"`
	UseTLS      bool          `mapstructure:"use_tls"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DefaultConfig leaves the broker URL empty, which keeps the bridge in
// no-op mode until one is configured.
func DefaultConfig() Config {
	return Config{
		ClientID:    "hashfleet",
		TopicPrefix: "hashfleet",
		QoS:         1,
		Timeout:     10 * time.Second,
	}
}

// applyOverrides folds the module's config section over the defaults.
// Unset keys keep their default values.
func (c *Config) applyOverrides(src plugin.Config) {
	if src == nil {
		return
	}
	if u := src.GetString("broker_url"); u != "" {
		c.BrokerURL = u
	}
	if u := src.GetString("username"); u != "" {
		c.Username = u
	}
	if p := src.GetString("password"); p != "" {
		c.Password = p
	}
	if id := src.GetString("client_id"); id != "" {
		c.ClientID = id
	}
	if tp := src.GetString("topic_prefix"); tp != "" {
		c.TopicPrefix = tp
	}
	if src.IsSet("qos") {
		c.QoS = byte(src.GetInt("qos"))
	}
	if src.IsSet("retain") {
		c.Retain = src.GetBool("retain")
	}
	if src.IsSet("use_tls") {
		c.UseTLS = src.GetBool("use_tls")
	}
	if d := src.GetDuration("timeout"); d > 0 {
		c.Timeout = d
	}
}
