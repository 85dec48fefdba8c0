// Package badger implements the storage interfaces on a badger database.
package badger

import (
	"bytes"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/golang/geo/s2"

	"github.com/akhenakh/tracklink/storage"
)

// Indexer is the badger status history and geo index.
type Indexer struct {
	*badger.DB
}

// Index stores the status v of device, and moves the device to lat lng in the
// geo index when t is its most recent status.
func (idx *Indexer) Index(device string, v []byte, lat, lng float64, t time.Time) error {
	if !storage.ValidName(device) {
		return storage.ErrInvalidName
	}
	return idx.Update(func(tx *badger.Txn) error {
		hk := storage.HistoryKey(device, t, lat, lng)
		prefix := storage.HistoryPrefix(device)

		// the first key is the most recent status
		newest := firstKey(tx, prefix)
		if bytes.Equal(newest, hk) {
			return nil
		}
		exist := newest != nil
		latest := !exist || bytes.Compare(newest, hk) > 0
		if exist && latest {
			// one entry per device in the geo index
			_, et, elat, elng, err := storage.ReadHistoryKey(newest)
			if err != nil {
				return err
			}
			if err := tx.Delete(storage.PointKey(elat, elng, et, device)); err != nil {
				return err
			}
		}

		if latest {
			if err := tx.SetEntry(badger.NewEntry(storage.PointKey(lat, lng, t, device), v)); err != nil {
				return err
			}
		}
		if err := tx.SetEntry(badger.NewEntry(hk, v)); err != nil {
			return err
		}
		if !exist {
			return tx.SetEntry(badger.NewEntry(storage.DeviceKey(device), nil))
		}
		return nil
	})
}

func firstKey(tx *badger.Txn, prefix []byte) []byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := tx.NewIterator(opts)
	defer it.Close()

	it.Seek(prefix)
	if !it.ValidForPrefix(prefix) {
		return nil
	}
	return it.Item().KeyCopy(nil)
}

// History returns the statuses of device, most recent first, up to count.
func (idx *Indexer) History(device string, count int) ([]storage.Point, error) {
	var res []storage.Point
	err := idx.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = count
		if opts.PrefetchSize <= 0 {
			opts.PrefetchSize = 10
		}
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := storage.HistoryPrefix(device)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if count > 0 && len(res) >= count {
				break
			}

			item := it.Item()
			_, t, lat, lng, err := storage.ReadHistoryKey(item.KeyCopy(nil))
			if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			res = append(res, storage.Point{
				Time:   t,
				Value:  v,
				Lat:    lat,
				Lng:    lng,
				Device: device,
			})
		}
		return nil
	})

	return res, err
}

// Latest returns the most recent status of device, nil when none.
func (idx *Indexer) Latest(device string) (*storage.Point, error) {
	res, err := idx.History(device, 1)
	if err != nil {
		return nil, err
	}
	if len(res) != 1 {
		return nil, nil
	}
	return &res[0], nil
}

// Devices lists the devices having reported a status.
func (idx *Indexer) Devices() ([]string, error) {
	var res []string
	err := idx.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := storage.DeviceKey("")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().Key()
			res = append(res, string(k[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// RectSearch returns the devices last seen in the rect.
func (idx *Indexer) RectSearch(urlat, urlng, bllat, bllng float64) ([]storage.Point, error) {
	rect := s2.RectFromLatLng(s2.LatLngFromDegrees(bllat, bllng))
	rect = rect.AddPoint(s2.LatLngFromDegrees(urlat, urlng))
	return idx.search(rect, rect.ContainsPoint)
}

// RadiusSearch returns the devices last seen within radius meters.
func (idx *Indexer) RadiusSearch(lat, lng, radius float64) ([]storage.Point, error) {
	center := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lng))
	acap := s2.CapFromCenterArea(center, storage.S2RadialAreaMeters(radius))
	return idx.search(acap, acap.ContainsPoint)
}

func (idx *Indexer) search(region s2.Region, contains func(s2.Point) bool) ([]storage.Point, error) {
	coverer := &s2.RegionCoverer{MaxCells: 8}
	var res []storage.Point

	for _, c := range coverer.Covering(region) {
		start := storage.CellKey(c.RangeMin())
		stop := storage.CellKey(c.RangeMax())

		err := idx.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = true
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Seek(start); it.Valid(); it.Next() {
				item := it.Item()
				k := item.Key()
				if len(k) > len(stop) {
					k = k[:len(stop)]
				}
				if bytes.Compare(k, stop) > 0 {
					break
				}
				c, t, device, err := storage.ReadPointKey(item.KeyCopy(nil))
				if err != nil {
					return err
				}
				if !contains(c.Point()) {
					continue
				}
				v, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				ll := c.LatLng()
				res = append(res, storage.Point{
					Lat:    ll.Lat.Degrees(),
					Lng:    ll.Lng.Degrees(),
					Time:   t,
					Device: device,
					Value:  v,
				})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}
