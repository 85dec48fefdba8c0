// Package shadow is the cloud side device shadow: the document a tracker
// fetches when it connects and the service storing what it reports.
package shadow

import (
	"bytes"
	"fmt"

	"github.com/akhenakh/cayenne"

	"github.com/akhenakh/tracklink/devstatus"
)

// GPSChannel is the Cayenne LPP channel carrying the location.
const GPSChannel = 1

// Document is the device shadow.
type Document struct {
	DeviceName    string     `json:"device_name"`
	Firmware      UpdateInfo `json:"firmware"`
	Configuration UpdateInfo `json:"configuration"`
	Logging       Logging    `json:"logging"`
	Reported      *Status    `json:"reported,omitempty"`
}

// UpdateInfo is the version the cloud wants the device to run.
type UpdateInfo struct {
	Version uint32 `json:"version"`
	URL     string `json:"url,omitempty"`
}

// Logging tracks the log transfer.
type Logging struct {
	// ReadPosition is the last log offset acknowledged by the cloud.
	ReadPosition uint32 `json:"read_position"`
}

// Status is the JSON form of a device status, absent fields are omitted.
type Status struct {
	Timestamp              uint32              `json:"timestamp"`
	LogPosition            *uint32             `json:"log_position,omitempty"`
	Location               *devstatus.Location `json:"location,omitempty"`
	BatteryLevel           *uint8              `json:"battery_level,omitempty"`
	BatteryVoltage         *uint16             `json:"battery_voltage,omitempty"`
	LastCellularConnection *uint32             `json:"last_cellular_connection,omitempty"`
	LastSatelliteTx        *uint32             `json:"last_satellite_tx,omitempty"`
	NextSatelliteTx        *uint32             `json:"next_satellite_tx,omitempty"`
	ConfigVersion          *uint32             `json:"config_version,omitempty"`
	FirmwareVersion        *uint32             `json:"firmware_version,omitempty"`
	// LPP is the location as a Cayenne LPP payload.
	LPP []byte `json:"lpp,omitempty"`
}

// NewStatus converts a device snapshot taken at ts.
func NewStatus(s devstatus.DeviceStatus, ts uint32) Status {
	st := Status{Timestamp: ts}
	u32 := func(f devstatus.Field, v uint32) *uint32 {
		if !s.Has(f) {
			return nil
		}
		return &v
	}
	st.LogPosition = u32(devstatus.FieldLogPosition, s.LogPosition)
	st.LastCellularConnection = u32(devstatus.FieldLastCellularConnection, s.LastCellularConnection)
	st.LastSatelliteTx = u32(devstatus.FieldLastSatelliteTx, s.LastSatelliteTx)
	st.NextSatelliteTx = u32(devstatus.FieldNextSatelliteTx, s.NextSatelliteTx)
	st.ConfigVersion = u32(devstatus.FieldConfigVersion, s.ConfigVersion)
	st.FirmwareVersion = u32(devstatus.FieldFirmwareVersion, s.FirmwareVersion)

	if s.Has(devstatus.FieldLocation) {
		loc := s.Location
		st.Location = &loc
		st.LPP = EncodeLocation(loc)
	}
	if s.Has(devstatus.FieldBatteryLevel) {
		v := s.BatteryLevel
		st.BatteryLevel = &v
	}
	if s.Has(devstatus.FieldBatteryVoltage) {
		v := s.BatteryVoltage
		st.BatteryVoltage = &v
	}
	return st
}

// Device converts back to a snapshot.
func (st Status) Device() devstatus.DeviceStatus {
	var s devstatus.DeviceStatus
	set := func(f devstatus.Field, p *uint32, dst *uint32) {
		if p != nil {
			*dst = *p
			s.Set(f)
		}
	}
	set(devstatus.FieldLogPosition, st.LogPosition, &s.LogPosition)
	set(devstatus.FieldLastCellularConnection, st.LastCellularConnection, &s.LastCellularConnection)
	set(devstatus.FieldLastSatelliteTx, st.LastSatelliteTx, &s.LastSatelliteTx)
	set(devstatus.FieldNextSatelliteTx, st.NextSatelliteTx, &s.NextSatelliteTx)
	set(devstatus.FieldConfigVersion, st.ConfigVersion, &s.ConfigVersion)
	set(devstatus.FieldFirmwareVersion, st.FirmwareVersion, &s.FirmwareVersion)

	if st.Location != nil {
		s.Location = *st.Location
		s.Set(devstatus.FieldLocation)
	}
	if st.BatteryLevel != nil {
		s.BatteryLevel = *st.BatteryLevel
		s.Set(devstatus.FieldBatteryLevel)
	}
	if st.BatteryVoltage != nil {
		s.BatteryVoltage = *st.BatteryVoltage
		s.Set(devstatus.FieldBatteryVoltage)
	}
	return s
}

// EncodeLocation returns loc as a Cayenne LPP GPS payload.
func EncodeLocation(loc devstatus.Location) []byte {
	e := cayenne.NewEncoder()
	e.AddGPS(GPSChannel, float32(loc.Latitude), float32(loc.Longitude), 0.0)
	return e.Bytes()
}

// DecodeLocation reads the lat, lng of a Cayenne LPP payload.
func DecodeLocation(lpp []byte) (float64, float64, error) {
	dec := cayenne.NewDecoder(bytes.NewBuffer(lpp))
	msg, err := dec.DecodeUplink()
	if err != nil {
		return 0, 0, err
	}
	locKey, ok := msg.GotLocation()
	if !ok {
		return 0, 0, fmt.Errorf("payload does not contain coordinates")
	}
	locf, ok := msg.Values()[locKey].([]float32)
	if !ok || len(locf) < 2 {
		return 0, 0, fmt.Errorf("invalid coordinates in payload")
	}
	return float64(locf[0]), float64(locf[1]), nil
}
