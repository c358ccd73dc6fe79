package studio

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoadConfigFromViper loads the client-core configuration from Viper.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	// Storage
	if viper.IsSet("store.data_dir") {
		cfg.DataDir = viper.GetString("store.data_dir")
	}
	if viper.IsSet("store.quota_bytes") {
		cfg.StoreQuota = viper.GetInt64("store.quota_bytes")
	}

	// Variant settings cache
	if viper.IsSet("settings.capacity") {
		cfg.SettingsCapacity = viper.GetInt("settings.capacity")
	}
	if viper.IsSet("settings.debounce") {
		if d, err := time.ParseDuration(viper.GetString("settings.debounce")); err == nil {
			cfg.SettingsDebounce = d
		}
	}

	// Waveform peak cache
	if viper.IsSet("waveform.capacity") {
		cfg.WaveformCapacity = viper.GetInt("waveform.capacity")
	}
	if viper.IsSet("waveform.flush_delay") {
		if d, err := time.ParseDuration(viper.GetString("waveform.flush_delay")); err == nil {
			cfg.WaveformFlushDelay = d
		}
	}

	// Progress tracking
	if viper.IsSet("progress.poll_interval") {
		if d, err := time.ParseDuration(viper.GetString("progress.poll_interval")); err == nil {
			cfg.PollInterval = d
		}
	}
	if viper.IsSet("nats.url") {
		cfg.NATSURL = viper.GetString("nats.url")
	}

	// Generation defaults
	if viper.IsSet("voice") {
		cfg.Voice = viper.GetString("voice")
	}
	if viper.IsSet("slot") {
		cfg.Slot = viper.GetString("slot")
	}
	if viper.IsSet("tab") {
		cfg.Tab = viper.GetString("tab")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid voicelab configuration: %w", err)
	}
	return cfg, nil
}

// SetDefaults sets default values in Viper for the client core.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("store.data_dir", defaults.DataDir)
	viper.SetDefault("store.quota_bytes", defaults.StoreQuota)

	viper.SetDefault("settings.capacity", defaults.SettingsCapacity)
	viper.SetDefault("settings.debounce", defaults.SettingsDebounce.String())

	viper.SetDefault("waveform.capacity", defaults.WaveformCapacity)
	viper.SetDefault("waveform.flush_delay", defaults.WaveformFlushDelay.String())

	viper.SetDefault("progress.poll_interval", defaults.PollInterval.String())
	viper.SetDefault("nats.url", defaults.NATSURL)

	viper.SetDefault("voice", defaults.Voice)
	viper.SetDefault("slot", defaults.Slot)
	viper.SetDefault("tab", defaults.Tab)
}
