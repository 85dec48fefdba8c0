package badger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akhenakh/tracklink/storage"
)

func TestDocument(t *testing.T) {
	bdb, clean := openStore(t)
	defer clean()

	s := &Store{DB: bdb}

	_, err := s.Document("tracker-1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	res, err := s.UpdateDocument("tracker-1", func(cur []byte) ([]byte, error) {
		require.Nil(t, cur)
		return []byte(`{"v":1}`), nil
	})
	require.NoError(t, err)
	require.Equal(t, []byte(`{"v":1}`), res)

	_, err = s.UpdateDocument("tracker-1", func(cur []byte) ([]byte, error) {
		require.Equal(t, []byte(`{"v":1}`), cur)
		return []byte(`{"v":2}`), nil
	})
	require.NoError(t, err)

	doc, err := s.Document("tracker-1")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"v":2}`), doc)
}

func TestWriteLog(t *testing.T) {
	bdb, clean := openStore(t)
	defer clean()

	s := &Store{DB: bdb}
	dev := "tracker-1"

	size, err := s.WriteLog(dev, 0, []byte("abcdef"))
	require.NoError(t, err)
	require.Equal(t, uint32(6), size)

	size, err = s.WriteLog(dev, 6, []byte("ghij"))
	require.NoError(t, err)
	require.Equal(t, uint32(10), size)

	// beyond the stored size
	_, err = s.WriteLog(dev, 11, []byte("x"))
	require.ErrorIs(t, err, storage.ErrLogOffset)

	// a rewind truncates inside the first chunk
	size, err = s.WriteLog(dev, 4, []byte("XY"))
	require.NoError(t, err)
	require.Equal(t, uint32(6), size)

	b, err := s.ReadLog(dev)
	require.NoError(t, err)
	require.Equal(t, []byte("abcdXY"), b)

	size, err = s.LogSize(dev)
	require.NoError(t, err)
	require.Equal(t, uint32(6), size)

	size, err = s.LogSize("unknown")
	require.NoError(t, err)
	require.Equal(t, uint32(0), size)
}

func TestFiles(t *testing.T) {
	bdb, clean := openStore(t)
	defer clean()

	s := &Store{DB: bdb}

	_, err := s.File("fw4.bin")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.PutFile("fw4.bin", []byte{1, 2, 3}))
	b, err := s.File("fw4.bin")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, b)

	require.ErrorIs(t, s.PutFile("", nil), storage.ErrInvalidName)
}
