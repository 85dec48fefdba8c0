package badger

import (
	"errors"

	"github.com/dgraph-io/badger/v2"

	"github.com/akhenakh/tracklink/storage"
)

// conflictRetries bounds the retries of a read-modify-write transaction.
const conflictRetries = 3

// Store is the badger document, log and file store.
type Store struct {
	*badger.DB
}

// Document returns the document of device or storage.ErrNotFound.
func (s *Store) Document(device string) ([]byte, error) {
	return s.get(storage.DocumentKey(device))
}

// UpdateDocument replaces the document of device with the result of fn.
func (s *Store) UpdateDocument(device string, fn func(cur []byte) ([]byte, error)) ([]byte, error) {
	if !storage.ValidName(device) {
		return nil, storage.ErrInvalidName
	}
	k := storage.DocumentKey(device)

	var res []byte
	err := s.retry(func(tx *badger.Txn) error {
		cur, err := value(tx, k)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		res, err = fn(cur)
		if err != nil {
			return err
		}
		return tx.Set(k, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// WriteLog stores chunk at offset, a rewind truncates the log first.
func (s *Store) WriteLog(device string, offset uint32, chunk []byte) (uint32, error) {
	if !storage.ValidName(device) {
		return 0, storage.ErrInvalidName
	}

	var size uint32
	err := s.retry(func(tx *badger.Txn) error {
		cur, err := logSize(tx, device)
		if err != nil {
			return err
		}
		if offset > cur {
			return storage.ErrLogOffset
		}
		if offset < cur {
			if err := truncateLog(tx, device, offset); err != nil {
				return err
			}
		}
		if len(chunk) > 0 {
			if err := tx.Set(storage.LogChunkKey(device, offset), chunk); err != nil {
				return err
			}
		}
		size = offset + uint32(len(chunk))
		return tx.Set(storage.LogSizeKey(device), storage.PutUint32(size))
	})
	if err != nil {
		return 0, err
	}
	return size, nil
}

// LogSize returns the stored log size of device, 0 when none.
func (s *Store) LogSize(device string) (uint32, error) {
	var size uint32
	err := s.View(func(tx *badger.Txn) error {
		var err error
		size, err = logSize(tx, device)
		return err
	})
	return size, err
}

// ReadLog returns the whole stored log of device.
func (s *Store) ReadLog(device string) ([]byte, error) {
	var res []byte
	err := s.View(func(tx *badger.Txn) error {
		it := tx.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := storage.LogChunkPrefix(device)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				res = append(res, v...)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return res, err
}

// PutFile stores an update file.
func (s *Store) PutFile(name string, data []byte) error {
	if !storage.ValidName(name) {
		return storage.ErrInvalidName
	}
	return s.Update(func(tx *badger.Txn) error {
		return tx.Set(storage.FileKey(name), data)
	})
}

// File returns an update file or storage.ErrNotFound.
func (s *Store) File(name string) ([]byte, error) {
	return s.get(storage.FileKey(name))
}

func (s *Store) get(k []byte) ([]byte, error) {
	var res []byte
	err := s.View(func(tx *badger.Txn) error {
		var err error
		res, err = value(tx, k)
		return err
	})
	return res, err
}

func (s *Store) retry(fn func(tx *badger.Txn) error) error {
	var err error
	for i := 0; i < conflictRetries; i++ {
		err = s.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func value(tx *badger.Txn, k []byte) ([]byte, error) {
	item, err := tx.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func logSize(tx *badger.Txn, device string) (uint32, error) {
	v, err := value(tx, storage.LogSizeKey(device))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return storage.Uint32(v), nil
}

// truncateLog drops the log of device after offset, cutting the chunk
// spanning it.
func truncateLog(tx *badger.Txn, device string, offset uint32) error {
	type cut struct {
		key []byte
		val []byte
	}
	var drop [][]byte
	var keep *cut

	it := tx.NewIterator(badger.DefaultIteratorOptions)
	prefix := storage.LogChunkPrefix(device)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		k := item.KeyCopy(nil)
		off, err := storage.ReadLogChunkKey(k)
		if err != nil {
			it.Close()
			return err
		}
		if off >= offset {
			drop = append(drop, k)
			continue
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			it.Close()
			return err
		}
		if uint64(off)+uint64(len(v)) > uint64(offset) {
			keep = &cut{key: k, val: v[:offset-off]}
		}
	}
	it.Close()

	for _, k := range drop {
		if err := tx.Delete(k); err != nil {
			return err
		}
	}
	if keep != nil {
		return tx.Set(keep.key, keep.val)
	}
	return nil
}
