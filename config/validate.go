package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/akhenakh/tracklink/argos"
	"github.com/akhenakh/tracklink/logship"
	"github.com/akhenakh/tracklink/prepass"
)

var ErrInvalid = errors.New("invalid configuration")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalid)
}

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return invalid("empty configuration")
	}

	name := cfg.Device.Name
	if name == "" || strings.ContainsAny(name, "#/ ") {
		return invalid("device name %q", name)
	}
	if cfg.Device.ArgosID&^argos.DeviceIDMask != 0 {
		return invalid("argos id %#x exceeds %d bits", cfg.Device.ArgosID, argos.DeviceIDBits)
	}

	c := cfg.Cellular
	if c.MaxInterval != 0 && c.MaxInterval < c.MinInterval {
		return invalid("cellular max_interval %d below min_interval %d", c.MaxInterval, c.MinInterval)
	}
	if c.Timeout < 0 {
		return invalid("cellular timeout %s", c.Timeout)
	}
	if c.Enabled {
		u, err := url.Parse(cfg.Cloud.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("cloud url %q", cfg.Cloud.URL)
		}
		if cfg.Cloud.Secret == "" {
			return invalid("cloud secret is required with the cellular radio")
		}
	}

	s := cfg.Satellite
	if s.MaxInterval != 0 && s.MaxInterval < s.MinInterval {
		return invalid("satellite max_interval %d below min_interval %d", s.MaxInterval, s.MinInterval)
	}
	if s.Timeout < 0 {
		return invalid("satellite timeout %s", s.Timeout)
	}
	if len(s.Bulletins) > prepass.MaxBulletins {
		return invalid("%d bulletins, at most %d", len(s.Bulletins), prepass.MaxBulletins)
	}
	seen := make(map[string]bool, len(s.Bulletins))
	for _, b := range s.Bulletins {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%v: %w", err, ErrInvalid)
		}
		if seen[b.ID] {
			return invalid("duplicated bulletin %s", b.ID)
		}
		seen[b.ID] = true
	}
	p := s.Prepass
	if p.MinElevation < 0 || p.MinElevation >= 90 || p.MinPeakElevation < 0 || p.MinPeakElevation >= 90 {
		return invalid("prepass elevations must be in [0, 90)")
	}
	if p.TimeMargin < 0 || p.GeoMargin < 0 {
		return invalid("prepass margins must be positive")
	}

	if cfg.Log.BufferSize != 0 && cfg.Log.BufferSize < logship.MaxRecordSize {
		return invalid("log buffer_size %d below the largest record %d", cfg.Log.BufferSize, logship.MaxRecordSize)
	}
	return nil
}
