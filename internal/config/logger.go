package config

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger from the "logging" viper section.
// "logging.level" takes the usual zap names (debug, info, warn, error;
// empty means info). "logging.format" is "json" for production output or
// "console" for development.
func NewLogger(v *viper.Viper) (*zap.Logger, error) {
	level := v.GetString("logging.level")
	if level == "" {
		level = "info"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging.level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format := v.GetString("logging.format"); format {
	case "json", "":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("logging.format %q: want json or console", format)
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
