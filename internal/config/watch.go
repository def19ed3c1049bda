package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ApplyLogLevel sets the global zerolog level. Empty means info.
func ApplyLogLevel(level string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// Watch re-reads the config file on change and applies a new log_level.
// onChange, if set, gets every successfully decoded config. Only log_level
// takes effect without a restart.
func (c *Config) Watch(onChange func(*Config)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	current := c.LogLevel
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decodeServer(c.v)
		if err != nil {
			log.Error().Err(err).Str("module", "config").Str("file", e.Name).Msg("reload failed")
			return
		}
		if next.LogLevel != current {
			if err := ApplyLogLevel(next.LogLevel); err != nil {
				log.Error().Err(err).Str("module", "config").Msg("bad log level")
				return
			}
			current = next.LogLevel
			log.Info().Str("module", "config").Str("log_level", next.LogLevel).Msg("log level changed")
		}
		if onChange != nil {
			onChange(next)
		}
	})
	c.v.WatchConfig()
}
