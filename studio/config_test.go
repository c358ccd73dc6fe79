package studio

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero quota", func(c *Config) { c.StoreQuota = 0 }},
		{"negative quota", func(c *Config) { c.StoreQuota = -1 }},
		{"zero settings capacity", func(c *Config) { c.SettingsCapacity = 0 }},
		{"zero settings debounce", func(c *Config) { c.SettingsDebounce = 0 }},
		{"zero waveform capacity", func(c *Config) { c.WaveformCapacity = 0 }},
		{"zero waveform flush delay", func(c *Config) { c.WaveformFlushDelay = 0 }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"empty voice", func(c *Config) { c.Voice = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.StoreQuota != 5*1024*1024 {
		t.Errorf("StoreQuota = %d, want 5 MiB", cfg.StoreQuota)
	}
	if cfg.SettingsCapacity != 50 {
		t.Errorf("SettingsCapacity = %d, want 50", cfg.SettingsCapacity)
	}
	if cfg.SettingsDebounce != 300*time.Millisecond {
		t.Errorf("SettingsDebounce = %s, want 300ms", cfg.SettingsDebounce)
	}
	if cfg.WaveformCapacity != 500 {
		t.Errorf("WaveformCapacity = %d, want 500", cfg.WaveformCapacity)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %s, want 500ms", cfg.PollInterval)
	}
}
