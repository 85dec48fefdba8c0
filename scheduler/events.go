package scheduler

import (
	"github.com/akhenakh/tracklink/radio"
	"github.com/akhenakh/tracklink/shadow"
)

// Kind enumerates the lifecycle events.
type Kind int

const (
	KindAboutToPowerOn Kind = iota
	KindCellularPowerOn
	KindCellularPowerOff
	KindSatellitePowerOn
	KindSatellitePowerOff
	KindCellularConnect
	KindCellularFetchShadow
	KindCellularSendLogging
	KindCellularSendStatus
	KindCellularDownloadFirmwareFile
	KindCellularDownloadConfigFile
	KindCellularMaxBackoffReached
	KindCellularNetworkInfo
	KindSatelliteSendStatus
	KindApplyFirmwareUpdate
	KindApplyConfigUpdate
	KindNextPrepass
)

var kindNames = [...]string{
	KindAboutToPowerOn:               "about-to-power-on",
	KindCellularPowerOn:              "cellular-power-on",
	KindCellularPowerOff:             "cellular-power-off",
	KindSatellitePowerOn:             "satellite-power-on",
	KindSatellitePowerOff:            "satellite-power-off",
	KindCellularConnect:              "cellular-connect",
	KindCellularFetchShadow:          "cellular-fetch-shadow",
	KindCellularSendLogging:          "cellular-send-logging",
	KindCellularSendStatus:           "cellular-send-status",
	KindCellularDownloadFirmwareFile: "cellular-download-firmware-file",
	KindCellularDownloadConfigFile:   "cellular-download-config-file",
	KindCellularMaxBackoffReached:    "cellular-max-backoff-reached",
	KindCellularNetworkInfo:          "cellular-network-info",
	KindSatelliteSendStatus:          "satellite-send-status",
	KindApplyFirmwareUpdate:          "apply-firmware-update",
	KindApplyConfigUpdate:            "apply-config-update",
	KindNextPrepass:                  "next-prepass-prediction",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Kinds returns every event kind.
func Kinds() []Kind {
	res := make([]Kind, len(kindNames))
	for i := range kindNames {
		res[i] = Kind(i)
	}
	return res
}

// Event is emitted at each step of a connection.
type Event interface {
	Kind() Kind
	// Report is the error report of the step, zero on success.
	Report() radio.ErrorReport
}

// EventSink receives the events, it is called synchronously.
type EventSink interface {
	Handle(e Event)
}

// EventSinkFunc adapts a function to an EventSink.
type EventSinkFunc func(e Event)

func (f EventSinkFunc) Handle(e Event) { f(e) }

type result struct {
	Error radio.ErrorReport
}

func (r result) Report() radio.ErrorReport { return r.Error }

type noReport struct{}

func (noReport) Report() radio.ErrorReport { return radio.ErrorReport{} }

type AboutToPowerOn struct {
	noReport
	Radio radio.Type
}

func (AboutToPowerOn) Kind() Kind { return KindAboutToPowerOn }

type PowerOn struct {
	result
	Radio radio.Type
}

func (e PowerOn) Kind() Kind {
	if e.Radio == radio.Satellite {
		return KindSatellitePowerOn
	}
	return KindCellularPowerOn
}

type PowerOff struct {
	result
	Radio radio.Type
}

func (e PowerOff) Kind() Kind {
	if e.Radio == radio.Satellite {
		return KindSatellitePowerOff
	}
	return KindCellularPowerOff
}

type CellularConnect struct {
	result
}

func (CellularConnect) Kind() Kind { return KindCellularConnect }

type CellularNetworkInfo struct {
	noReport
	Info radio.NetworkInfo
}

func (CellularNetworkInfo) Kind() Kind { return KindCellularNetworkInfo }

type CellularFetchShadow struct {
	result
	Document shadow.Document
}

func (CellularFetchShadow) Kind() Kind { return KindCellularFetchShadow }

type CellularSendLogging struct {
	result
	// Position is the log offset acknowledged after the transfer.
	Position uint32
}

func (CellularSendLogging) Kind() Kind { return KindCellularSendLogging }

type CellularSendStatus struct {
	result
}

func (CellularSendStatus) Kind() Kind { return KindCellularSendStatus }

// UpdateTarget is what a downloaded file updates.
type UpdateTarget int

const (
	UpdateFirmware UpdateTarget = iota
	UpdateConfig
)

type CellularDownloadFile struct {
	result
	Target UpdateTarget
	Size   uint32
}

func (e CellularDownloadFile) Kind() Kind {
	if e.Target == UpdateConfig {
		return KindCellularDownloadConfigFile
	}
	return KindCellularDownloadFirmwareFile
}

type CellularMaxBackoffReached struct {
	noReport
	Backoff uint32
}

func (CellularMaxBackoffReached) Kind() Kind { return KindCellularMaxBackoffReached }

type SatelliteSendStatus struct {
	result
	Size int
}

func (SatelliteSendStatus) Kind() Kind { return KindSatelliteSendStatus }

type ApplyFirmwareUpdate struct {
	noReport
	Version uint32
}

func (ApplyFirmwareUpdate) Kind() Kind { return KindApplyFirmwareUpdate }

type ApplyConfigUpdate struct {
	noReport
	Version uint32
}

func (ApplyConfigUpdate) Kind() Kind { return KindApplyConfigUpdate }

// NextPrepass carries the planned satellite transmission time.
type NextPrepass struct {
	noReport
	Timestamp uint32
}

func (NextPrepass) Kind() Kind { return KindNextPrepass }
