// Package config loads daemon configuration from flowboard.yaml and
// FLOWBOARD_* environment variables, with sensible defaults so a bare
// `flowboard serve` works out of the box.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the daemon configuration.
type Config struct {
	ListenAddr string
	DataDir    string

	// StoreDriver selects the persistence sink: "sqlite", "json" or "none".
	StoreDriver string

	WIPLimit int

	StaleThreshold time.Duration
	PollInterval   time.Duration

	// UseMockAssistants forces the built-in mock generator/reviewer even
	// when an API key is present.
	UseMockAssistants bool
	AnthropicKey      string
	Model             string
}

// Load reads configuration, looking for flowboard.yaml in the current
// directory and the data directory. Missing file means defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determine home directory: %w", err)
	}
	defaultDataDir := filepath.Join(home, ".flowboard")

	v := viper.New()
	v.SetConfigName("flowboard")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(defaultDataDir)

	v.SetEnvPrefix("FLOWBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", "127.0.0.1:8080")
	v.SetDefault("data_dir", defaultDataDir)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("board.wip_limit", 3)
	v.SetDefault("monitor.threshold_seconds", 300)
	v.SetDefault("monitor.interval_seconds", 60)
	v.SetDefault("assistant.mock", false)
	v.SetDefault("assistant.model", "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading flowboard.yaml: %w", err)
		}
	}

	cfg := &Config{
		ListenAddr:        v.GetString("listen_addr"),
		DataDir:           v.GetString("data_dir"),
		StoreDriver:       v.GetString("store.driver"),
		WIPLimit:          v.GetInt("board.wip_limit"),
		StaleThreshold:    time.Duration(v.GetInt("monitor.threshold_seconds")) * time.Second,
		PollInterval:      time.Duration(v.GetInt("monitor.interval_seconds")) * time.Second,
		UseMockAssistants: v.GetBool("assistant.mock"),
		AnthropicKey:      os.Getenv("ANTHROPIC_API_KEY"),
		Model:             v.GetString("assistant.model"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.WIPLimit <= 0 {
		return fmt.Errorf("board.wip_limit must be positive, got %d", c.WIPLimit)
	}
	switch c.StoreDriver {
	case "sqlite", "json", "none":
	default:
		return fmt.Errorf("store.driver must be sqlite, json or none, got %q", c.StoreDriver)
	}
	if c.StaleThreshold <= 0 {
		return fmt.Errorf("monitor.threshold_seconds must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("monitor.interval_seconds must be positive")
	}
	return nil
}
