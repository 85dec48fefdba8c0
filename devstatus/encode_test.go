package devstatus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func fullStatus() DeviceStatus {
	s := DeviceStatus{
		LogPosition:            1234,
		Location:               Location{Longitude: -1.5536, Latitude: 43.4832, Timestamp: 1580068400},
		BatteryLevel:           87,
		BatteryVoltage:         3912,
		LastCellularConnection: 1580060000,
		LastSatelliteTx:        1580061000,
		NextSatelliteTx:        1580070000,
		ConfigVersion:          7,
		FirmwareVersion:        3,
	}
	for _, f := range packingOrder {
		s.Set(f.field)
	}
	return s
}

func TestEncodeSatelliteBudget(t *testing.T) {
	b := EncodeSatellite(fullStatus(), 31)
	require.Len(t, b, 28)
	require.Equal(t, PacketTypeStatus, b[0])

	got, err := DecodeSatellite(b)
	require.NoError(t, err)
	require.True(t, got.Has(FieldLogPosition))
	require.True(t, got.Has(FieldLocation))
	require.True(t, got.Has(FieldBatteryLevel))
	require.True(t, got.Has(FieldBatteryVoltage))
	require.True(t, got.Has(FieldLastCellularConnection))
	// the next field would overflow, packing stops there
	require.False(t, got.Has(FieldLastSatelliteTx))
	require.False(t, got.Has(FieldNextSatelliteTx))
	require.False(t, got.Has(FieldFirmwareVersion))

	require.Equal(t, uint32(1234), got.LogPosition)
	require.InDelta(t, -1.5536, got.Location.Longitude, 1e-7)
	require.InDelta(t, 43.4832, got.Location.Latitude, 1e-7)
	require.Equal(t, uint32(1580068400), got.Location.Timestamp)
	require.Equal(t, uint8(87), got.BatteryLevel)
	require.Equal(t, uint16(3912), got.BatteryVoltage)
	require.Equal(t, uint32(1580060000), got.LastCellularConnection)
}

func TestEncodeSatelliteStopsAtFirstOverflow(t *testing.T) {
	s := fullStatus()
	s.Present &^= FieldLocation

	// 5 + 4 + 1 + 2 + 4 + 4 + 4 + 4 = 28, the firmware version would reach 32
	b := EncodeSatellite(s, 31)
	require.Len(t, b, 28)
	got, err := DecodeSatellite(b)
	require.NoError(t, err)
	require.True(t, got.Has(FieldConfigVersion))
	require.False(t, got.Has(FieldFirmwareVersion))
	require.Equal(t, uint32(7), got.ConfigVersion)
}

func TestEncodeSatelliteSkipsMissing(t *testing.T) {
	var s DeviceStatus
	s.FirmwareVersion = 9
	s.Set(FieldFirmwareVersion)

	b := EncodeSatellite(s, 31)
	require.Len(t, b, 9)
	got, err := DecodeSatellite(b)
	require.NoError(t, err)
	require.Equal(t, FieldFirmwareVersion, got.Present)
	require.Equal(t, uint32(9), got.FirmwareVersion)

	require.Nil(t, EncodeSatellite(s, 4))
}

func TestDecodeSatelliteErrors(t *testing.T) {
	_, err := DecodeSatellite([]byte{PacketTypeStatus, 0})
	require.ErrorIs(t, err, ErrShortPacket)

	_, err = DecodeSatellite([]byte{PacketTypeStatus, 0x01, 0, 0, 0, 0xAA})
	require.ErrorIs(t, err, ErrShortPacket)

	// zero padded by the ARGOS framer
	b := EncodeSatellite(fullStatus(), 31)
	padded := append(b, 0, 0, 0)
	_, err = DecodeSatellite(padded)
	require.NoError(t, err)
}
