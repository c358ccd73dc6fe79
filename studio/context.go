package studio

import (
	"fmt"

	"github.com/lukaswana/voicelab/internal/history"
	"github.com/lukaswana/voicelab/internal/progress"
	"github.com/lukaswana/voicelab/internal/settings"
	"github.com/lukaswana/voicelab/internal/store"
	"github.com/lukaswana/voicelab/internal/waveform"
)

// Context is the per-session cache context: it owns the durable store and
// every cache family, constructed once and injected into consumers instead
// of living in package-level state. Each family uses a disjoint key prefix;
// the store namespace has one logical owner per family.
type Context struct {
	Config   Config
	Store    *store.Store
	Settings *settings.Cache
	Waveform *waveform.Cache
	History  *history.History
	Tracker  *progress.Tracker

	closed bool
}

// New builds a Context on an injected backend and progress transport.
// The settings cache registers its quota evictor and the waveform cache
// registers itself as an auxiliary, so a quota-exhausted write can recover
// without any caller involvement.
func New(cfg Config, backend store.Backend, transport progress.Transport) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cache context: %w", err)
	}

	st := store.New(backend)
	return &Context{
		Config:   cfg,
		Store:    st,
		Settings: settings.New(st, cfg.SettingsCapacity, cfg.SettingsDebounce),
		Waveform: waveform.New(st, cfg.WaveformCapacity, cfg.WaveformFlushDelay),
		History:  history.New(st, cfg.Tab),
		Tracker:  progress.NewTracker(transport, cfg.PollInterval),
	}, nil
}

// Close stops progress tracking and forces every pending debounced write
// through. The context must not be used afterwards.
func (c *Context) Close() error {
	if c.closed {
		return ErrContextClosed
	}
	c.closed = true

	c.Tracker.Stop()
	c.Settings.Flush()
	c.Waveform.Flush()
	c.History.Flush()
	return nil
}
