package config

import (
	"time"

	"github.com/akhenakh/tracklink/logship"
	"github.com/akhenakh/tracklink/prepass"
	"github.com/akhenakh/tracklink/scheduler"
)

const (
	defaultCellularTimeout  = 3 * time.Minute
	defaultSatelliteTimeout = time.Minute
	defaultTokenTTL         = time.Hour
)

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Cellular.Timeout == 0 {
		cfg.Cellular.Timeout = defaultCellularTimeout
	}
	if cfg.Cellular.MaxBackoffInterval < scheduler.BackoffSeed {
		cfg.Cellular.MaxBackoffInterval = scheduler.BackoffSeed
	}
	if cfg.Satellite.Timeout == 0 {
		cfg.Satellite.Timeout = defaultSatelliteTimeout
	}
	if cfg.Cloud.TokenTTL == 0 {
		cfg.Cloud.TokenTTL = defaultTokenTTL
	}
	if cfg.Log.BufferSize == 0 {
		cfg.Log.BufferSize = logship.DefaultBufferSize
	}

	p := &cfg.Satellite.Prepass
	d := prepass.DefaultConfig()
	if *p == (prepass.Config{}) {
		*p = d
	}
	if p.Step == 0 {
		p.Step = d.Step
	}
	if p.Horizon == 0 {
		p.Horizon = d.Horizon
	}
	if p.MaxPasses <= 0 {
		p.MaxPasses = d.MaxPasses
	}
	if p.MinPeakElevation < p.MinElevation {
		p.MinPeakElevation = p.MinElevation
	}
}
