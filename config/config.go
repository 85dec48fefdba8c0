// Package config is the persistent device configuration, stored as YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/akhenakh/tracklink/prepass"
	"github.com/akhenakh/tracklink/scheduler"
)

type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Cellular  CellularConfig  `yaml:"cellular"`
	Satellite SatelliteConfig `yaml:"satellite"`
	Cloud     CloudConfig     `yaml:"cloud"`
	Log       LogConfig       `yaml:"log"`
}

type DeviceConfig struct {
	Name string `yaml:"name"`
	// ArgosID is the 28 bits ARGOS platform id.
	ArgosID         uint32 `yaml:"argos_id"`
	FirmwareVersion uint32 `yaml:"firmware_version"`
	ConfigVersion   uint32 `yaml:"config_version"`
}

// CellularConfig intervals are in seconds.
type CellularConfig struct {
	Enabled            bool          `yaml:"enabled"`
	MinInterval        uint32        `yaml:"min_interval"`
	MaxInterval        uint32        `yaml:"max_interval"`
	MinUpdates         uint32        `yaml:"min_updates"`
	MaxBackoffInterval uint32        `yaml:"max_backoff_interval"`
	Priority           uint8         `yaml:"priority"`
	LogFilter          uint32        `yaml:"log_filter"`
	Timeout            time.Duration `yaml:"timeout"`
}

// SatelliteConfig intervals are in seconds.
type SatelliteConfig struct {
	Enabled            bool               `yaml:"enabled"`
	MinInterval        uint32             `yaml:"min_interval"`
	MaxInterval        uint32             `yaml:"max_interval"`
	MinUpdates         uint32             `yaml:"min_updates"`
	Priority           uint8              `yaml:"priority"`
	RandomizedTxWindow uint32             `yaml:"randomized_tx_window"`
	TurnOnLatency      uint32             `yaml:"turn_on_latency"`
	TestMode           bool               `yaml:"test_mode"`
	Timeout            time.Duration      `yaml:"timeout"`
	Prepass            prepass.Config     `yaml:"prepass"`
	Bulletins          []prepass.Bulletin `yaml:"bulletins"`
}

type CloudConfig struct {
	URL      string        `yaml:"url"`
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

type LogConfig struct {
	Path       string `yaml:"path"`
	BufferSize int    `yaml:"buffer_size"`
}

// Load reads and decodes the file at path, unknown fields are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// SchedulerConfig returns the scheduler settings.
// It MUST be called only after Validate().
func (c *Config) SchedulerConfig() (scheduler.Config, error) {
	sc := scheduler.Config{
		FirmwareVersion: c.Device.FirmwareVersion,
		ConfigVersion:   c.Device.ConfigVersion,
		Cellular: scheduler.CellularConfig{
			Enabled:            c.Cellular.Enabled,
			MinInterval:        c.Cellular.MinInterval,
			MaxInterval:        c.Cellular.MaxInterval,
			MinUpdates:         c.Cellular.MinUpdates,
			MaxBackoffInterval: c.Cellular.MaxBackoffInterval,
			Priority:           c.Cellular.Priority,
			LogFilter:          c.Cellular.LogFilter,
			Timeout:            c.Cellular.Timeout,
		},
		Satellite: scheduler.SatelliteConfig{
			Enabled:            c.Satellite.Enabled,
			MinInterval:        c.Satellite.MinInterval,
			MaxInterval:        c.Satellite.MaxInterval,
			MinUpdates:         c.Satellite.MinUpdates,
			Priority:           c.Satellite.Priority,
			RandomizedTxWindow: c.Satellite.RandomizedTxWindow,
			TurnOnLatency:      c.Satellite.TurnOnLatency,
			TestMode:           c.Satellite.TestMode,
			Timeout:            c.Satellite.Timeout,
			Prepass:            c.Satellite.Prepass,
		},
	}
	for _, b := range c.Satellite.Bulletins {
		if err := sc.Satellite.Bulletins.Add(b); err != nil {
			return sc, fmt.Errorf("bulletin %s: %w", b.ID, err)
		}
	}
	return sc, nil
}
