package cellular

import (
	"context"
	"errors"
	"sync"

	"github.com/akhenakh/tracklink/radio"
)

// Modem is the cellular modem driver.
type Modem interface {
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
	// Attach registers on the network.
	Attach(ctx context.Context) (radio.NetworkInfo, error)
}

// HAL codes returned by StubModem.
const (
	HALNotPowered int32 = iota + 1
	HALNoNetwork
)

// vendorNoService is the modem CME error for a missing network service.
const vendorNoService = 30

var ErrNoNetwork = errors.New("no network service")

// StubModem is a host modem, attached to whatever network is configured.
type StubModem struct {
	Network radio.NetworkInfo
	// Coverage reports if a network is reachable, nil means always.
	Coverage func() bool

	mu sync.Mutex
	on bool
}

func (m *StubModem) PowerOn(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.on = true
	return nil
}

func (m *StubModem) PowerOff(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.on = false
	return nil
}

func (m *StubModem) Attach(ctx context.Context) (radio.NetworkInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.on {
		return radio.NetworkInfo{}, radio.NewHALError(HALNotPowered, 0, radio.ErrNotPowered)
	}
	if err := ctx.Err(); err != nil {
		return radio.NetworkInfo{}, err
	}
	if m.Coverage != nil && !m.Coverage() {
		return radio.NetworkInfo{}, radio.NewHALError(HALNoNetwork, vendorNoService, ErrNoNetwork)
	}
	return m.Network, nil
}
