package storage

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"time"

	"github.com/golang/geo/s2"
)

// Prefix starts every key of the database.
const Prefix = "TL"

// key families
const (
	historyFamily  = 'H'
	pointFamily    = 'G'
	deviceFamily   = 'L'
	documentFamily = 'S'
	logSizeFamily  = 'Z'
	logChunkFamily = 'C'
	fileFamily     = 'F'

	sep = '#'
)

// ValidName reports if a device or file name can be used in a key.
func ValidName(name string) bool {
	return name != "" && !strings.ContainsRune(name, sep)
}

func familyKey(f byte, size int) []byte {
	k := make([]byte, len(Prefix)+1, len(Prefix)+1+size)
	copy(k, Prefix)
	k[len(Prefix)] = f
	return k
}

// FamilyPrefix returns the prefix shared by all the keys of family f.
func FamilyPrefix(f byte) []byte {
	return familyKey(f, 0)
}

// HistoryKey returns the key of a status of device reported at t:
// Prefix+"H"+device+#+reverse ts+s2 cell, the most recent first.
func HistoryKey(device string, t time.Time, lat, lng float64) []byte {
	k := familyKey(historyFamily, len(device)+1+8+8)
	k = append(k, device...)
	k = append(k, sep)
	k = append(k, int64tob(math.MaxInt64-t.UnixNano())...)
	c := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng))
	return append(k, itob(uint64(c))...)
}

// HistoryPrefix returns the prefix of all the history keys of device.
func HistoryPrefix(device string) []byte {
	k := familyKey(historyFamily, len(device)+1)
	k = append(k, device...)
	return append(k, sep)
}

// ReadHistoryKey returns device, time, lat, lng.
// lat lng have a small delta compared to the stored values, induced by the s2 cell.
func ReadHistoryKey(hk []byte) (string, time.Time, float64, float64, error) {
	var t time.Time
	if len(hk) < len(Prefix)+1+1+8+8 {
		return "", t, 0, 0, ErrInvalidKey
	}
	buf := bytes.NewBuffer(hk[len(hk)-8-8:])

	var ts int64
	if err := binary.Read(buf, binary.BigEndian, &ts); err != nil {
		return "", t, 0, 0, err
	}
	t = time.Unix(0, math.MaxInt64-ts).UTC()

	var c s2.CellID
	if err := binary.Read(buf, binary.BigEndian, &c); err != nil {
		return "", t, 0, 0, err
	}

	device := string(hk[len(Prefix)+1 : len(hk)-1-8-8])
	ll := c.LatLng()
	return device, t, ll.Lat.Degrees(), ll.Lng.Degrees(), nil
}

// PointKey returns the geo index key of device at t:
// Prefix+"G"+cellid+reverse ts+device.
func PointKey(lat, lng float64, t time.Time, device string) []byte {
	k := familyKey(pointFamily, 8+8+len(device))
	c := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng))
	k = append(k, itob(uint64(c))...)
	k = append(k, int64tob(math.MaxInt64-t.UnixNano())...)
	return append(k, device...)
}

// CellKey returns the geo index key of the first or last point in cell c.
func CellKey(c s2.CellID) []byte {
	k := familyKey(pointFamily, 8)
	return append(k, itob(uint64(c))...)
}

// ReadPointKey returns cell, time, device.
func ReadPointKey(pk []byte) (s2.CellID, time.Time, string, error) {
	var c s2.CellID
	var t time.Time
	if len(pk) < len(Prefix)+1+8+8 {
		return c, t, "", ErrInvalidKey
	}
	buf := bytes.NewBuffer(pk[len(Prefix)+1:])

	if err := binary.Read(buf, binary.BigEndian, &c); err != nil {
		return c, t, "", err
	}

	var ts int64
	if err := binary.Read(buf, binary.BigEndian, &ts); err != nil {
		return c, t, "", err
	}
	t = time.Unix(0, math.MaxInt64-ts).UTC()

	return c, t, string(pk[len(Prefix)+1+8+8:]), nil
}

// DeviceKey returns the key listing device: Prefix+"L"+device.
func DeviceKey(device string) []byte {
	return append(familyKey(deviceFamily, len(device)), device...)
}

// DocumentKey returns the key of the shadow document of device.
func DocumentKey(device string) []byte {
	return append(familyKey(documentFamily, len(device)), device...)
}

// LogSizeKey returns the key holding the log size of device.
func LogSizeKey(device string) []byte {
	return append(familyKey(logSizeFamily, len(device)), device...)
}

// LogChunkKey returns the key of the log chunk of device starting at offset:
// Prefix+"C"+device+#+offset, chunks sort by offset.
func LogChunkKey(device string, offset uint32) []byte {
	k := LogChunkPrefix(device)
	return append(k, uint32tob(offset)...)
}

// LogChunkPrefix returns the prefix of all the log chunks of device.
func LogChunkPrefix(device string) []byte {
	k := familyKey(logChunkFamily, len(device)+1+4)
	k = append(k, device...)
	return append(k, sep)
}

// ReadLogChunkKey returns the offset of a chunk key.
func ReadLogChunkKey(ck []byte) (uint32, error) {
	if len(ck) < len(Prefix)+1+1+4 {
		return 0, ErrInvalidKey
	}
	return binary.BigEndian.Uint32(ck[len(ck)-4:]), nil
}

// FileKey returns the key of an update file.
func FileKey(name string) []byte {
	return append(familyKey(fileFamily, len(name)), name...)
}
