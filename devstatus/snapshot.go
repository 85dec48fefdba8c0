// Package devstatus holds the device status snapshot reported over both
// radios and its compact satellite encoding.
package devstatus

// Location is a GPS fix.
type Location struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	// Timestamp of the fix, Unix seconds.
	Timestamp uint32 `json:"timestamp"`
}

// DeviceStatus is a snapshot of the device state, only the members flagged
// in Present are meaningful.
type DeviceStatus struct {
	Present Field

	LogPosition            uint32
	Location               Location
	BatteryLevel           uint8
	BatteryVoltage         uint16 // mV
	LastCellularConnection uint32
	LastSatelliteTx        uint32
	NextSatelliteTx        uint32
	ConfigVersion          uint32
	FirmwareVersion        uint32
}

// Has reports whether f is populated.
func (s DeviceStatus) Has(f Field) bool { return s.Present&f != 0 }

// Set marks f as populated.
func (s *DeviceStatus) Set(f Field) { s.Present |= f }
