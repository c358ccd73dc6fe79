// Package studio wires the client core together: configuration and the
// per-session cache context that owns the store, the cache families, and
// the progress tracker.
package studio

import (
	"fmt"
	"time"
)

// Config contains all client-core configuration options.
type Config struct {
	// Storage
	DataDir    string `yaml:"data_dir" env:"VOICELAB_DATA_DIR"`
	StoreQuota int64  `yaml:"store_quota_bytes" env:"VOICELAB_STORE_QUOTA_BYTES"`

	// Variant settings cache
	SettingsCapacity int           `yaml:"settings_capacity" env:"VOICELAB_SETTINGS_CAPACITY"`
	SettingsDebounce time.Duration `yaml:"settings_debounce" env:"VOICELAB_SETTINGS_DEBOUNCE"`

	// Waveform peak cache
	WaveformCapacity   int           `yaml:"waveform_capacity" env:"VOICELAB_WAVEFORM_CAPACITY"`
	WaveformFlushDelay time.Duration `yaml:"waveform_flush_delay" env:"VOICELAB_WAVEFORM_FLUSH_DELAY"`

	// Progress tracking
	PollInterval time.Duration `yaml:"poll_interval" env:"VOICELAB_POLL_INTERVAL"`
	NATSURL      string        `yaml:"nats_url" env:"VOICELAB_NATS_URL"`

	// Generation defaults
	Voice string `yaml:"voice" env:"VOICELAB_VOICE"`
	Slot  string `yaml:"slot" env:"VOICELAB_SLOT"`

	// Initial history tab
	Tab string `yaml:"tab" env:"VOICELAB_TAB"`
}

// DefaultConfig returns a Config with sensible defaults. The store quota
// mirrors the 5 MiB browser-storage ceiling the caches were designed
// around.
func DefaultConfig() Config {
	return Config{
		StoreQuota: 5 * 1024 * 1024,

		SettingsCapacity: 50,
		SettingsDebounce: 300 * time.Millisecond,

		WaveformCapacity:   500,
		WaveformFlushDelay: 500 * time.Millisecond,

		PollInterval: 500 * time.Millisecond,
		NATSURL:      "nats://127.0.0.1:4222",

		Voice: "katerina",
		Slot:  "default",
		Tab:   "main",
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.StoreQuota <= 0 {
		return fmt.Errorf("%w: store quota must be positive, got %d", ErrInvalidConfig, c.StoreQuota)
	}
	if c.SettingsCapacity <= 0 {
		return fmt.Errorf("%w: settings capacity must be positive, got %d", ErrInvalidConfig, c.SettingsCapacity)
	}
	if c.SettingsDebounce <= 0 {
		return fmt.Errorf("%w: settings debounce must be positive, got %s", ErrInvalidConfig, c.SettingsDebounce)
	}
	if c.WaveformCapacity <= 0 {
		return fmt.Errorf("%w: waveform capacity must be positive, got %d", ErrInvalidConfig, c.WaveformCapacity)
	}
	if c.WaveformFlushDelay <= 0 {
		return fmt.Errorf("%w: waveform flush delay must be positive, got %s", ErrInvalidConfig, c.WaveformFlushDelay)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive, got %s", ErrInvalidConfig, c.PollInterval)
	}
	if c.Voice == "" {
		return fmt.Errorf("%w: voice must not be empty", ErrInvalidConfig)
	}
	return nil
}
