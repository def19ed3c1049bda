package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type ClientConfig struct {
	ServerURL   string `mapstructure:"server_url"`
	UserID      string `mapstructure:"user_id"`
	DisplayName string `mapstructure:"display_name"`
	AvatarRef   string `mapstructure:"avatar_ref"`
	LogLevel    string `mapstructure:"log_level"`

	// Sources lists the capture sources a call starts with.
	Sources    []string `mapstructure:"sources"`
	ICEServers []string `mapstructure:"ice_servers"`

	RingTimeout         time.Duration `mapstructure:"ring_timeout"`
	ConnectTimeout      time.Duration `mapstructure:"connect_timeout"`
	ReleaseTimeout      time.Duration `mapstructure:"release_timeout"`
	ReconnectMaxElapsed time.Duration `mapstructure:"reconnect_max_elapsed"`
}

// SetClientDefaults registers client defaults on v. Flags bound later take
// precedence.
func SetClientDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("log_level", "info")
	v.SetDefault("sources", []string{"microphone"})
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("ring_timeout", "30s")
	v.SetDefault("connect_timeout", "20s")
	v.SetDefault("release_timeout", "2s")
	v.SetDefault("reconnect_max_elapsed", "1m")
}

// NewClientViper returns a viper with client defaults and VOICECALL_* env
// overrides. configFile may be empty.
func NewClientViper(configFile string) (*viper.Viper, error) {
	v := newViper()
	SetClientDefaults(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read client config: %w", err)
		}
	}
	return v, nil
}

func LoadClient(v *viper.Viper) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if cfg.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = cfg.UserID
	}
	return &cfg, nil
}
