package logship

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Writer appends tagged records to the log.
type Writer struct {
	w   io.Writer
	rec [32]byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write appends one record, body must match the tag record size.
func (lw *Writer) Write(tag Tag, body []byte) error {
	sz, ok := RecordSize(byte(tag))
	if !ok {
		return fmt.Errorf("tag %#x: %w", byte(tag), ErrCorrupt)
	}
	if len(body) != sz-1 {
		return fmt.Errorf("tag %#x expects %d bytes got %d", byte(tag), sz-1, len(body))
	}
	lw.rec[0] = byte(tag)
	copy(lw.rec[1:], body)
	_, err := lw.w.Write(lw.rec[:sz])
	return err
}

// Timestamp logs a Unix time.
func (lw *Writer) Timestamp(t uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], t)
	return lw.Write(TagTimestamp, b[:])
}

// GPSPosition logs a fix, coordinates in degrees stored as 1e-7 degrees,
// height in mm.
func (lw *Writer) GPSPosition(iTOW uint32, lon, lat float64, heightMM int32) error {
	var b [16]byte
	binary.LittleEndian.PutUint32(b[0:], iTOW)
	binary.LittleEndian.PutUint32(b[4:], uint32(int32(math.Round(lon*1e7))))
	binary.LittleEndian.PutUint32(b[8:], uint32(int32(math.Round(lat*1e7))))
	binary.LittleEndian.PutUint32(b[12:], uint32(heightMM))
	return lw.Write(TagGPSPosition, b[:])
}

// BatteryLevel logs the charge in percent.
func (lw *Writer) BatteryLevel(level uint8) error {
	return lw.Write(TagBatteryLevel, []byte{level})
}

// BatteryVoltage logs the voltage in mV.
func (lw *Writer) BatteryVoltage(mv uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], mv)
	return lw.Write(TagBatteryVoltage, b[:])
}

// Event logs a tag only record such as TagLogStart.
func (lw *Writer) Event(tag Tag) error {
	return lw.Write(tag, nil)
}
