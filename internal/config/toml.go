// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/verte-zerg/mtpe/internal/model"
	"github.com/verte-zerg/mtpe/internal/tracker"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Session SessionConfig `toml:"session"`
	Editor  EditorConfig  `toml:"editor"`
}

// SessionConfig maps timing settings.
type SessionConfig struct {
	Mode          *string `toml:"mode"`
	IdleThreshold *string `toml:"idle-threshold"`
	MinDwell      *string `toml:"min-dwell"`
	Tick          *string `toml:"tick"`
	IdleDetection *bool   `toml:"idle-detection"`
}

// EditorConfig maps editor UI settings.
type EditorConfig struct {
	Context  *int    `toml:"context"`
	Operator *string `toml:"operator"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}

// Defaults returns the session settings used when nothing is configured.
func Defaults() model.Config {
	return model.Config{
		Mode:          model.ModeCurrent,
		IdleThreshold: tracker.DefaultIdleThreshold,
		MinDwell:      tracker.DefaultMinDwell,
		TickInterval:  tracker.DefaultTickInterval,
		IdleDetection: true,
		ContextLines:  2,
	}
}

// Apply overlays the file settings on cfg. Durations are Go duration strings.
func (f FileConfig) Apply(cfg *model.Config) error {
	if f.Session.Mode != nil {
		mode, err := model.ParseMode(*f.Session.Mode)
		if err != nil {
			return fmt.Errorf("session.mode: %w", err)
		}
		cfg.Mode = mode
	}
	durations := []struct {
		key string
		raw *string
		dst *time.Duration
	}{
		{"session.idle-threshold", f.Session.IdleThreshold, &cfg.IdleThreshold},
		{"session.min-dwell", f.Session.MinDwell, &cfg.MinDwell},
		{"session.tick", f.Session.Tick, &cfg.TickInterval},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		v, err := ParseDuration(d.key, *d.raw)
		if err != nil {
			return err
		}
		*d.dst = v
	}
	if f.Session.IdleDetection != nil {
		cfg.IdleDetection = *f.Session.IdleDetection
	}
	if f.Editor.Context != nil {
		if *f.Editor.Context < 0 {
			return fmt.Errorf("editor.context must be >= 0")
		}
		cfg.ContextLines = *f.Editor.Context
	}
	if f.Editor.Operator != nil {
		cfg.Operator = *f.Editor.Operator
	}
	return nil
}

// ParseDuration parses a non-negative duration for the named setting.
func ParseDuration(key, raw string) (time.Duration, error) {
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return v, nil
}

// Validate checks settings that are independent of where they came from.
func Validate(cfg model.Config) error {
	if cfg.IdleThreshold <= 0 {
		return fmt.Errorf("idle threshold must be positive")
	}
	if cfg.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if cfg.TickInterval >= cfg.IdleThreshold {
		return fmt.Errorf("tick interval %s must be shorter than idle threshold %s", cfg.TickInterval, cfg.IdleThreshold)
	}
	return nil
}

// TrackerOptions converts session settings into tracker options.
func TrackerOptions(cfg model.Config) tracker.Options {
	opts := tracker.DefaultOptions()
	opts.IdleThreshold = cfg.IdleThreshold
	opts.MinDwell = cfg.MinDwell
	opts.IdleDetection = cfg.IdleDetection
	return opts
}

// DefaultFile is written by `mtpe config` when no config exists yet.
const DefaultFile = `# mtpe configuration

[session]
# mode = "current"         # "current" or "pet"
# idle-threshold = "30s"   # gaps at or above this count as idle (current mode)
# min-dwell = "2s"         # minimum time before a pet timer may start
# tick = "200ms"           # checkpoint interval
# idle-detection = true

[editor]
# context = 2              # neighbouring segments shown above and below
# operator = ""
`
