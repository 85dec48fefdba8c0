package devstatus

// Field flags the members of a DeviceStatus that are populated.
type Field uint32

// Fields in their satellite packing order, highest priority first.
const (
	FieldLogPosition Field = 1 << iota
	FieldLocation
	FieldBatteryLevel
	FieldBatteryVoltage
	FieldLastCellularConnection
	FieldLastSatelliteTx
	FieldNextSatelliteTx
	FieldConfigVersion
	FieldFirmwareVersion
)

// PacketTypeStatus is the first byte of a satellite status packet.
const PacketTypeStatus byte = 0x01

const (
	headerLen   = 1 + 4
	locationLen = 4 + 4 + 4
)

var packingOrder = []struct {
	field Field
	size  int
}{
	{FieldLogPosition, 4},
	{FieldLocation, locationLen},
	{FieldBatteryLevel, 1},
	{FieldBatteryVoltage, 2},
	{FieldLastCellularConnection, 4},
	{FieldLastSatelliteTx, 4},
	{FieldNextSatelliteTx, 4},
	{FieldConfigVersion, 4},
	{FieldFirmwareVersion, 4},
}

func (f Field) String() string {
	switch f {
	case FieldLogPosition:
		return "log_position"
	case FieldLocation:
		return "location"
	case FieldBatteryLevel:
		return "battery_level"
	case FieldBatteryVoltage:
		return "battery_voltage"
	case FieldLastCellularConnection:
		return "last_cellular_connection"
	case FieldLastSatelliteTx:
		return "last_satellite_tx"
	case FieldNextSatelliteTx:
		return "next_satellite_tx"
	case FieldConfigVersion:
		return "config_version"
	case FieldFirmwareVersion:
		return "firmware_version"
	}
	return "unknown"
}
