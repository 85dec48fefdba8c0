// Package satellite is the ARGOS session: it frames the payloads and hands
// them to the modem driver.
package satellite

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/tracklink/argos"
	"github.com/akhenakh/tracklink/devstatus"
	"github.com/akhenakh/tracklink/logship"
	"github.com/akhenakh/tracklink/radio"
	"github.com/akhenakh/tracklink/shadow"
)

// Session implements radio.Session on an ARGOS modem, the cellular
// operations are not supported.
type Session struct {
	deviceID uint32
	driver   Driver
	logger   log.Logger
	report   radio.ErrorReport
}

// New returns a session transmitting as deviceID, a 28 bits ARGOS id.
func New(deviceID uint32, driver Driver, logger log.Logger) (*Session, error) {
	if deviceID&^argos.DeviceIDMask != 0 {
		return nil, fmt.Errorf("device id %#x exceeds %d bits", deviceID, argos.DeviceIDBits)
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Session{
		deviceID: deviceID,
		driver:   driver,
		logger:   log.With(logger, "component", "satellite"),
	}, nil
}

func (s *Session) PowerOn(ctx context.Context, t radio.Type) error {
	if t != radio.Satellite {
		return s.fail(radio.CodePowerOn, radio.ErrNotSupported)
	}
	s.report = radio.ErrorReport{}
	if err := s.driver.PowerOn(ctx); err != nil {
		return s.fail(radio.CodePowerOn, err)
	}
	return nil
}

func (s *Session) PowerOff(ctx context.Context) error {
	if err := s.driver.PowerOff(ctx); err != nil {
		return s.fail(radio.CodePowerOff, err)
	}
	return nil
}

// SendPayload frames payload in the smallest fitting class and transmits it.
func (s *Session) SendPayload(ctx context.Context, timeout time.Duration, payload []byte) error {
	frame, err := argos.Encode(s.deviceID, payload)
	if err != nil {
		return s.fail(radio.CodeProtocol, err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.driver.Transmit(ctx, frame); err != nil {
		return s.fail(radio.CodeTransfer, err)
	}
	level.Debug(s.logger).Log("msg", "frame transmitted", "payload", len(payload), "frame", len(frame))
	return nil
}

func (s *Session) Connect(ctx context.Context, timeout time.Duration) error {
	return radio.ErrNotSupported
}

func (s *Session) FetchDeviceShadow(ctx context.Context, timeout time.Duration) (shadow.Document, error) {
	return shadow.Document{}, radio.ErrNotSupported
}

func (s *Session) SendDeviceStatus(ctx context.Context, timeout time.Duration, st devstatus.DeviceStatus) error {
	return radio.ErrNotSupported
}

func (s *Session) SendLogging(ctx context.Context, timeout time.Duration, f logship.File, pos uint32) (uint32, error) {
	return pos, radio.ErrNotSupported
}

func (s *Session) DownloadFile(ctx context.Context, timeout time.Duration, url, name string) (uint32, error) {
	return 0, radio.ErrNotSupported
}

func (s *Session) ErrorReport() radio.ErrorReport { return s.report }

func (s *Session) NetworkInfo() radio.NetworkInfo { return radio.NetworkInfo{Technology: "ARGOS"} }

func (s *Session) fail(code int32, err error) error {
	s.report = radio.Report(code, err)
	return err
}
