package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lukaswana/voicelab/internal/progress"
	"github.com/lukaswana/voicelab/internal/settings"
	"github.com/lukaswana/voicelab/internal/store"
	"github.com/lukaswana/voicelab/studio"
)

const generateSubject = "voicelab.jobs.generate"

var (
	generateVoice string
	generateSlot  string

	generateCmd = &cobra.Command{
		Use:   "generate [TEXT]",
		Short: "Queue a generation job and stream its progress",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerate,
	}
)

// generateRequest is the job envelope published to the backend.
type generateRequest struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Voice    string            `json:"voice"`
	Slot     string            `json:"slot"`
	Settings settings.Settings `json:"settings"`
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if generateVoice != "" {
		cfg.Voice = generateVoice
	}
	if generateSlot != "" {
		cfg.Slot = generateSlot
	}
	if !settings.IsKnownSlot(cfg.Slot) {
		log.Warn("unknown preset slot, default parameters apply",
			"slot", cfg.Slot, "known", strings.Join(settings.Slots(), ", "))
	}

	if cfgPath := viper.ConfigFileUsed(); cfgPath != "" {
		stop, err := studio.WatchConfig(cfgPath, func() {
			log.Info("configuration changed, restart to apply", "path", cfgPath)
		})
		if err != nil {
			log.Debug("config watch unavailable", "error", err)
		} else {
			defer stop()
		}
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("voicelab"))
	if err != nil {
		return fmt.Errorf("unable to connect to %s: %w", cfg.NATSURL, err)
	}
	defer nc.Drain() //nolint:errcheck

	backend, err := store.NewFileBackend(cfg.DataDir, cfg.StoreQuota)
	if err != nil {
		return fmt.Errorf("unable to open store: %w", err)
	}
	defer backend.Close() //nolint:errcheck

	session, err := studio.New(cfg, backend, progress.NewNATSTransport(nc, ""))
	if err != nil {
		return err
	}
	defer session.Close() //nolint:errcheck

	jobID := uuid.NewString()
	done := make(chan progress.State, 1)
	session.Tracker.OnUpdate(func(id string, st progress.State) {
		log.Info("progress",
			"job", id,
			"status", st.Status,
			"percent", fmt.Sprintf("%.0f%%", st.Percent),
			"message", st.Message)
		if st.Final() {
			select {
			case done <- st:
			default:
			}
		}
	})

	req := generateRequest{
		ID:       jobID,
		Text:     args[0],
		Voice:    cfg.Voice,
		Slot:     cfg.Slot,
		Settings: session.Settings.Load(cfg.Voice, cfg.Slot),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("unable to encode job request: %w", err)
	}
	if err := nc.Publish(generateSubject, payload); err != nil {
		return fmt.Errorf("unable to queue job: %w", err)
	}

	session.Tracker.Start(jobID)
	session.History.SaveVersion(cfg.Tab, args[0])

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	select {
	case st := <-done:
		if st.Status == progress.StatusError {
			return fmt.Errorf("generation failed: %s", st.Message)
		}
		log.Info("generation finished", "job", jobID)
		return nil
	case <-interrupt:
		session.Tracker.Stop()
		log.Info("generation canceled", "job", jobID)
		return nil
	}
}

func init() {
	generateCmd.Flags().StringVar(&generateVoice, "voice", "", "voice to generate with")
	generateCmd.Flags().StringVar(&generateSlot, "slot", "", "preset slot for generation parameters")
}
