// Package storage defines the persistence of the shadow service: the geo
// index of reported statuses and the store of documents, logs and files.
package storage

import (
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidKey  = errors.New("invalid key")
	ErrInvalidName = errors.New("invalid name")
	// ErrLogOffset is returned when a chunk does not start inside the stored log.
	ErrLogOffset = errors.New("log offset beyond stored size")
)

// Indexer keeps the status history of each device, and the last known
// position of each device in a geo index.
type Indexer interface {
	Index(device string, v []byte, lat, lng float64, t time.Time) error
	Latest(device string) (*Point, error)
	History(device string, count int) ([]Point, error)
	Devices() ([]string, error)
	RadiusSearch(lat, lng, radius float64) ([]Point, error)
	RectSearch(urlat, urlng, bllat, bllng float64) ([]Point, error)
}

// Store keeps the shadow documents, the shipped logs and the update files.
// Documents are opaque to the store.
type Store interface {
	Document(device string) ([]byte, error)
	// UpdateDocument atomically replaces the document of device by fn's result,
	// cur is nil when the document does not exist.
	UpdateDocument(device string, fn func(cur []byte) ([]byte, error)) ([]byte, error)

	// WriteLog stores chunk at offset, dropping anything stored after offset,
	// and returns the new log size.
	WriteLog(device string, offset uint32, chunk []byte) (uint32, error)
	LogSize(device string) (uint32, error)
	ReadLog(device string) ([]byte, error)

	PutFile(name string, data []byte) error
	File(name string) ([]byte, error)
}

// Point is a status indexed at a position.
type Point struct {
	Lat, Lng float64
	Device   string
	Value    []byte
	Time     time.Time
}
