package radio

import (
	"context"
	"time"

	"github.com/akhenakh/tracklink/devstatus"
	"github.com/akhenakh/tracklink/logship"
	"github.com/akhenakh/tracklink/shadow"
)

// Mux routes the session operations to the radio powered on last.
type Mux struct {
	Cellular  Session
	Satellite Session

	active  Session
	powered bool
}

func (m *Mux) session(t Type) Session {
	switch t {
	case Cellular:
		return m.Cellular
	case Satellite:
		return m.Satellite
	}
	return nil
}

func (m *Mux) PowerOn(ctx context.Context, t Type) error {
	s := m.session(t)
	if s == nil {
		return ErrNotSupported
	}
	m.active = s
	m.powered = true
	return s.PowerOn(ctx, t)
}

func (m *Mux) PowerOff(ctx context.Context) error {
	if !m.powered {
		return ErrNotPowered
	}
	m.powered = false
	return m.active.PowerOff(ctx)
}

func (m *Mux) current() (Session, error) {
	if !m.powered {
		return nil, ErrNotPowered
	}
	return m.active, nil
}

func (m *Mux) Connect(ctx context.Context, timeout time.Duration) error {
	s, err := m.current()
	if err != nil {
		return err
	}
	return s.Connect(ctx, timeout)
}

func (m *Mux) FetchDeviceShadow(ctx context.Context, timeout time.Duration) (shadow.Document, error) {
	s, err := m.current()
	if err != nil {
		return shadow.Document{}, err
	}
	return s.FetchDeviceShadow(ctx, timeout)
}

func (m *Mux) SendDeviceStatus(ctx context.Context, timeout time.Duration, st devstatus.DeviceStatus) error {
	s, err := m.current()
	if err != nil {
		return err
	}
	return s.SendDeviceStatus(ctx, timeout, st)
}

func (m *Mux) SendPayload(ctx context.Context, timeout time.Duration, payload []byte) error {
	s, err := m.current()
	if err != nil {
		return err
	}
	return s.SendPayload(ctx, timeout, payload)
}

func (m *Mux) SendLogging(ctx context.Context, timeout time.Duration, f logship.File, pos uint32) (uint32, error) {
	s, err := m.current()
	if err != nil {
		return pos, err
	}
	return s.SendLogging(ctx, timeout, f, pos)
}

func (m *Mux) DownloadFile(ctx context.Context, timeout time.Duration, url, name string) (uint32, error) {
	s, err := m.current()
	if err != nil {
		return 0, err
	}
	return s.DownloadFile(ctx, timeout, url, name)
}

// ErrorReport returns the report of the last powered radio.
func (m *Mux) ErrorReport() ErrorReport {
	if m.active == nil {
		return ErrorReport{}
	}
	return m.active.ErrorReport()
}

func (m *Mux) NetworkInfo() NetworkInfo {
	if m.active == nil {
		return NetworkInfo{}
	}
	return m.active.NetworkInfo()
}
