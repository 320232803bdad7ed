package config

import "time"

// Setting keys as they appear in settings.json.
const (
	KeyName        = "name"
	KeyPort        = "port"
	KeyTargetPort  = "target_port"
	KeyAdapter     = "adapter"
	KeyDevMode     = "dev_mode"
	KeyIncludeSelf = "include_self"
	KeyAppDir      = "app_dir"
)

// DefaultPort is used for both the listen and target port.
const DefaultPort = 2001

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Identity: Identity{
			DisplayName: "Anonymous",
			ListenPort:  DefaultPort,
			TargetPort:  DefaultPort,
			Adapter:     "",
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "desktop",
			DesktopAppName: "raindrop",
			SoundEnable:    true,
			TimeoutMS:      4000,
		},
		Peers: PeersConfig{
			LookupTimeout: 2 * time.Second,
			CacheTTL:      5 * time.Minute,
		},
	}
}

func defaultValues() map[string]any {
	d := Default()
	return map[string]any{
		KeyName:                      d.Identity.DisplayName,
		KeyPort:                      d.Identity.ListenPort,
		KeyTargetPort:                d.Identity.TargetPort,
		KeyAdapter:                   d.Identity.Adapter,
		KeyDevMode:                   d.DevMode,
		KeyIncludeSelf:               d.IncludeSelf,
		KeyAppDir:                    d.AppDir,
		"indicator.enable":           d.Indicator.Enable,
		"indicator.backend":          d.Indicator.Backend,
		"indicator.desktop_app_name": d.Indicator.DesktopAppName,
		"indicator.sound_enable":     d.Indicator.SoundEnable,
		"indicator.timeout_ms":       d.Indicator.TimeoutMS,
		"peers.lookup_timeout":       d.Peers.LookupTimeout,
		"peers.cache_ttl":            d.Peers.CacheTTL,
	}
}
