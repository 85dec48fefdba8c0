package logship

// Tag identifies a log record, the tag byte is followed by a fixed size body.
type Tag uint8

const (
	TagLogStart           Tag = 0x01
	TagLogEnd             Tag = 0x02
	TagDateTime           Tag = 0x03
	TagGPSPosition        Tag = 0x04
	TagGPSTimeToFirstFix  Tag = 0x05
	TagBatteryLevel       Tag = 0x06
	TagBatteryVoltage     Tag = 0x07
	TagPressure           Tag = 0x08
	TagAccelerometer      Tag = 0x09
	TagTemperature        Tag = 0x0A
	TagCellularConnection Tag = 0x0B
	TagSatelliteTx        Tag = 0x0C
	TagTimestamp          Tag = 0x0D
)

// record sizes, tag byte included
var recordSizes = map[Tag]int{
	TagLogStart:           1,
	TagLogEnd:             1,
	TagDateTime:           1 + 7,  // year u16, month, day, hours, minutes, seconds
	TagGPSPosition:        1 + 16, // iTOW, lon, lat, height
	TagGPSTimeToFirstFix:  1 + 4,
	TagBatteryLevel:       1 + 1,
	TagBatteryVoltage:     1 + 2,
	TagPressure:           1 + 4,
	TagAccelerometer:      1 + 6,
	TagTemperature:        1 + 2,
	TagCellularConnection: 1 + 4,
	TagSatelliteTx:        1 + 4,
	TagTimestamp:          1 + 4,
}

// MaxRecordSize is the size of the largest record.
var MaxRecordSize = func() int {
	m := 0
	for _, s := range recordSizes {
		if s > m {
			m = s
		}
	}
	return m
}()

// RecordSize returns the full size of a record starting with tag.
func RecordSize(tag byte) (int, bool) {
	s, ok := recordSizes[Tag(tag)]
	return s, ok
}
