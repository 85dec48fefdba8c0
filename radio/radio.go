// Package radio abstracts the connection sessions of the two uplinks.
package radio

import (
	"context"
	"errors"
	"time"

	"github.com/akhenakh/tracklink/devstatus"
	"github.com/akhenakh/tracklink/logship"
	"github.com/akhenakh/tracklink/shadow"
)

// Type identifies a radio.
type Type int

const (
	Cellular Type = iota
	Satellite
)

func (t Type) String() string {
	switch t {
	case Cellular:
		return "cellular"
	case Satellite:
		return "satellite"
	}
	return "unknown"
}

var (
	ErrNotSupported = errors.New("operation not supported by this radio")
	ErrNotPowered   = errors.New("radio not powered")
)

// ErrorReport describes the last failure of a session.
type ErrorReport struct {
	// RadioCode is the session level error code.
	RadioCode int32 `json:"radio_code"`
	// HALCode is the error returned by the modem layer.
	HALCode int32 `json:"hal_code"`
	// HALLine is the source line in the modem layer that failed.
	HALLine int32 `json:"hal_line"`
	// VendorCode is the modem vendor specific error.
	VendorCode int32 `json:"vendor_code"`
}

func (r ErrorReport) IsZero() bool { return r == ErrorReport{} }

// NetworkInfo is the registration reported after connecting.
type NetworkInfo struct {
	Technology string `json:"technology"`
	Operator   string `json:"operator"`
	MCC        uint16 `json:"mcc"`
	MNC        uint16 `json:"mnc"`
	SignalDBm  int16  `json:"signal_dbm"`
}

// Session drives one connection: power on, exchanges, power off.
// Operations a radio does not implement return ErrNotSupported.
type Session interface {
	PowerOn(ctx context.Context, t Type) error
	PowerOff(ctx context.Context) error
	Connect(ctx context.Context, timeout time.Duration) error
	FetchDeviceShadow(ctx context.Context, timeout time.Duration) (shadow.Document, error)
	SendDeviceStatus(ctx context.Context, timeout time.Duration, s devstatus.DeviceStatus) error
	// SendPayload transmits a raw payload, framed by the session.
	SendPayload(ctx context.Context, timeout time.Duration, payload []byte) error
	// SendLogging ships the log from pos and returns the new acknowledged position.
	SendLogging(ctx context.Context, timeout time.Duration, f logship.File, pos uint32) (uint32, error)
	// DownloadFile stores url as name and returns its size.
	DownloadFile(ctx context.Context, timeout time.Duration, url, name string) (uint32, error)
	ErrorReport() ErrorReport
	NetworkInfo() NetworkInfo
}
