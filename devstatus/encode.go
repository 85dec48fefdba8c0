package devstatus

import (
	"encoding/binary"
	"errors"
	"math"
)

var ErrShortPacket = errors.New("short status packet")

// EncodeSatellite packs s into at most budget bytes: the packet type, a
// little endian bitmap of the packed fields, then the fields in priority
// order. Packing stops at the first field that does not fit, lower priority
// fields are dropped.
func EncodeSatellite(s DeviceStatus, budget int) []byte {
	if budget < headerLen {
		return nil
	}
	b := make([]byte, headerLen, budget)
	b[0] = PacketTypeStatus

	var packed Field
	for _, f := range packingOrder {
		if !s.Has(f.field) {
			continue
		}
		if len(b)+f.size > budget {
			break
		}
		b = appendField(b, s, f.field)
		packed |= f.field
	}

	binary.LittleEndian.PutUint32(b[1:], uint32(packed))
	return b
}

func appendField(b []byte, s DeviceStatus, f Field) []byte {
	switch f {
	case FieldLogPosition:
		return appendUint32(b, s.LogPosition)
	case FieldLocation:
		b = appendUint32(b, uint32(int32(math.Round(s.Location.Longitude*1e7))))
		b = appendUint32(b, uint32(int32(math.Round(s.Location.Latitude*1e7))))
		return appendUint32(b, s.Location.Timestamp)
	case FieldBatteryLevel:
		return append(b, s.BatteryLevel)
	case FieldBatteryVoltage:
		return append(b, byte(s.BatteryVoltage), byte(s.BatteryVoltage>>8))
	case FieldLastCellularConnection:
		return appendUint32(b, s.LastCellularConnection)
	case FieldLastSatelliteTx:
		return appendUint32(b, s.LastSatelliteTx)
	case FieldNextSatelliteTx:
		return appendUint32(b, s.NextSatelliteTx)
	case FieldConfigVersion:
		return appendUint32(b, s.ConfigVersion)
	case FieldFirmwareVersion:
		return appendUint32(b, s.FirmwareVersion)
	}
	return b
}

// DecodeSatellite parses a packet built by EncodeSatellite, trailing padding
// is ignored.
func DecodeSatellite(b []byte) (DeviceStatus, error) {
	var s DeviceStatus
	if len(b) < headerLen || b[0] != PacketTypeStatus {
		return s, ErrShortPacket
	}
	present := Field(binary.LittleEndian.Uint32(b[1:]))
	p := b[headerLen:]

	for _, f := range packingOrder {
		if present&f.field == 0 {
			continue
		}
		if len(p) < f.size {
			return s, ErrShortPacket
		}
		v := p[:f.size]
		switch f.field {
		case FieldLogPosition:
			s.LogPosition = binary.LittleEndian.Uint32(v)
		case FieldLocation:
			s.Location.Longitude = float64(int32(binary.LittleEndian.Uint32(v[0:]))) / 1e7
			s.Location.Latitude = float64(int32(binary.LittleEndian.Uint32(v[4:]))) / 1e7
			s.Location.Timestamp = binary.LittleEndian.Uint32(v[8:])
		case FieldBatteryLevel:
			s.BatteryLevel = v[0]
		case FieldBatteryVoltage:
			s.BatteryVoltage = binary.LittleEndian.Uint16(v)
		case FieldLastCellularConnection:
			s.LastCellularConnection = binary.LittleEndian.Uint32(v)
		case FieldLastSatelliteTx:
			s.LastSatelliteTx = binary.LittleEndian.Uint32(v)
		case FieldNextSatelliteTx:
			s.NextSatelliteTx = binary.LittleEndian.Uint32(v)
		case FieldConfigVersion:
			s.ConfigVersion = binary.LittleEndian.Uint32(v)
		case FieldFirmwareVersion:
			s.FirmwareVersion = binary.LittleEndian.Uint32(v)
		}
		s.Set(f.field)
		p = p[f.size:]
	}
	return s, nil
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
