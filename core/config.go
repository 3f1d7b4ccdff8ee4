package core

import (
	"fmt"
	"strings"
)

type SyncConfig struct {
	WindowDays int `koanf:"window_days" mapstructure:"window_days"`
}

type TokenConfig struct {
	ExpirySkewSeconds int `koanf:"expiry_skew_seconds" mapstructure:"expiry_skew_seconds"`
	RefreshLockTTLSec int `koanf:"refresh_lock_ttl_seconds" mapstructure:"refresh_lock_ttl_seconds"`
}

type StateConfig struct {
	SigningSecret string `koanf:"signing_secret" mapstructure:"signing_secret"`
	MaxAgeSeconds int    `koanf:"max_age_seconds" mapstructure:"max_age_seconds"`
}

type Config struct {
	ServiceName     string      `koanf:"service_name" mapstructure:"service_name"`
	CallbackBaseURL string      `koanf:"callback_base_url" mapstructure:"callback_base_url"`
	Sync            SyncConfig  `koanf:"sync" mapstructure:"sync"`
	Token           TokenConfig `koanf:"token" mapstructure:"token"`
	State           StateConfig `koanf:"state" mapstructure:"state"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "integrations",
		Sync:        SyncConfig{WindowDays: 30},
		Token: TokenConfig{
			ExpirySkewSeconds: 60,
			RefreshLockTTLSec: 30,
		},
		State: StateConfig{MaxAgeSeconds: 600},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Sync.WindowDays < 0 {
		return fmt.Errorf("core: sync.window_days must not be negative")
	}
	if c.Token.ExpirySkewSeconds < 0 {
		return fmt.Errorf("core: token.expiry_skew_seconds must not be negative")
	}
	return nil
}
