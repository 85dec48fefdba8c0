package storage

import (
	"encoding/binary"
	"math"
	"time"
)

const earthCircumferenceMeter = 40075017

var (
	// MaxTime helper to query into the future
	MaxTime = time.Unix(0, math.MaxInt64)

	// MinTime helper to query into the past
	MinTime = time.Unix(0, 0)
)

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func int64tob(v int64) []byte {
	return itob(uint64(v))
}

func uint32tob(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// Uint32 decodes a value written by PutUint32.
func Uint32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// PutUint32 encodes v as a value.
func PutUint32(v uint32) []byte {
	return uint32tob(v)
}

// S2RadialAreaMeters returns the area on the unit sphere of a cap of radius meters.
func S2RadialAreaMeters(radius float64) float64 {
	r := (radius / earthCircumferenceMeter) * math.Pi * 2
	return math.Pi * r * r
}
