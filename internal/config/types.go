// Package config resolves, loads, validates, and persists raindrop settings.
package config

import "time"

// Identity is the user-controlled record shared by every helper invocation.
type Identity struct {
	DisplayName string `mapstructure:"name" json:"name"`
	ListenPort  int    `mapstructure:"port" json:"port"`
	TargetPort  int    `mapstructure:"target_port" json:"target_port"`
	Adapter     string `mapstructure:"adapter" json:"adapter"`
}

// Config is the fully materialized runtime configuration.
type Config struct {
	Identity    Identity        `mapstructure:",squash"`
	DevMode     bool            `mapstructure:"dev_mode"`
	IncludeSelf bool            `mapstructure:"include_self"`
	AppDir      string          `mapstructure:"app_dir"`
	Indicator   IndicatorConfig `mapstructure:"indicator"`
	Peers       PeersConfig     `mapstructure:"peers"`
}

// IndicatorConfig controls desktop notifications and audio cues.
type IndicatorConfig struct {
	Enable         bool   `mapstructure:"enable"`
	Backend        string `mapstructure:"backend"`
	DesktopAppName string `mapstructure:"desktop_app_name"`
	SoundEnable    bool   `mapstructure:"sound_enable"`
	TimeoutMS      int    `mapstructure:"timeout_ms"`
}

// PeersConfig controls the peer-name side-channel lookup.
type PeersConfig struct {
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

// Warning is a non-fatal load/validation message.
type Warning struct {
	Message string
}
