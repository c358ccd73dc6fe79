package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# durable store settings
store:
  # data directory (defaults to the platform data dir)
  # data_dir: "/path/to/voicelab/store"
  # hard storage ceiling for all cache families
  quota_bytes: 5242880

# variant settings cache
settings:
  # maximum number of (voice, slot) presets kept
  capacity: 50
  # write-coalescing delay for parameter edits
  debounce: "300ms"

# waveform peak cache
waveform:
  # maximum number of cached waveforms
  capacity: 500
  # debounce window before the cache is persisted
  flush_delay: "500ms"

# progress tracking
progress:
  # polling cadence when the push channel is unavailable
  poll_interval: "500ms"

# backend connection
nats:
  url: "nats://127.0.0.1:4222"

# generation defaults
voice: "katerina"
slot: "default"
tab: "main"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Edit the voicelab config file",
	Long:    "Edit the voicelab config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.",
	Example: "voicelab config\nvoicelab config --config path/to/voicelab.yml",
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Voicelab", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
