// Package config adapts viper to the plugin.Config surface modules see,
// and builds the process logger from the same configuration tree.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/hashfleet/hashfleet/pkg/plugin"
)

var _ plugin.Config = (*ViperConfig)(nil)

// ViperConfig hands a module its slice of the configuration tree. The
// registry scopes each module to its own section via Sub, so a module
// reading "interval" sees "plugins.<name>.interval" from the file.
type ViperConfig struct {
	v *viper.Viper
}

// New wraps v. A nil v yields an empty configuration, which is what a
// module without a config section gets.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

func (c *ViperConfig) Unmarshal(target any) error { return c.v.Unmarshal(target) }

func (c *ViperConfig) Get(key string) any { return c.v.Get(key) }

func (c *ViperConfig) GetString(key string) string { return c.v.GetString(key) }

func (c *ViperConfig) GetInt(key string) int { return c.v.GetInt(key) }

func (c *ViperConfig) GetBool(key string) bool { return c.v.GetBool(key) }

func (c *ViperConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }

func (c *ViperConfig) IsSet(key string) bool { return c.v.IsSet(key) }

// Sub returns the named subsection, or an empty config when the section
// is absent so callers never branch on nil.
func (c *ViperConfig) Sub(key string) plugin.Config {
	sub := c.v.Sub(key)
	if sub == nil {
		return New(nil)
	}
	return New(sub)
}

// Viper exposes the underlying instance for host-level keys such as
// server.port that live outside any module section.
func (c *ViperConfig) Viper() *viper.Viper {
	return c.v
}
