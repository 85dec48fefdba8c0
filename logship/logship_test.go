package logship

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type chunk struct {
	offset uint32
	data   []byte
}

type recorder struct {
	chunks []chunk
	err    error
}

func (r *recorder) Upload(ctx context.Context, offset uint32, b []byte) error {
	if r.err != nil {
		return r.err
	}
	r.chunks = append(r.chunks, chunk{offset: offset, data: append([]byte(nil), b...)})
	return nil
}

func (r *recorder) joined() []byte {
	var buf bytes.Buffer
	for _, c := range r.chunks {
		buf.Write(c.data)
	}
	return buf.Bytes()
}

// sampleLog returns a log and the offsets of its record boundaries
func sampleLog(t *testing.T, fixes int) ([]byte, []int) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	var bounds []int
	mark := func() { bounds = append(bounds, buf.Len()) }

	mark()
	require.NoError(t, w.Event(TagLogStart))
	for i := 0; i < fixes; i++ {
		mark()
		require.NoError(t, w.Timestamp(uint32(1580068417+i*60)))
		mark()
		require.NoError(t, w.GPSPosition(uint32(i), 2.2+float64(i)*0.001, 48.8, 35000))
		mark()
		require.NoError(t, w.BatteryLevel(uint8(100-i%100)))
		mark()
		require.NoError(t, w.BatteryVoltage(3700))
	}
	return buf.Bytes(), bounds
}

func requireWholeRecords(t *testing.T, b []byte) {
	r := bytes.NewReader(b)
	end, err := walk(r, 0, r.Size(), nil)
	require.NoError(t, err)
	require.Equal(t, int64(len(b)), end)
}

func TestShipFromStart(t *testing.T) {
	log, _ := sampleLog(t, 20)
	rec := &recorder{}
	s, err := NewShipper(rec, 32)
	require.NoError(t, err)

	pos, err := s.Ship(context.Background(), bytes.NewReader(log), 0)
	require.NoError(t, err)
	require.Equal(t, uint32(len(log)), pos)
	require.Greater(t, len(rec.chunks), 1)

	next := uint32(0)
	for _, c := range rec.chunks {
		require.Equal(t, next, c.offset)
		require.LessOrEqual(t, len(c.data), 32)
		requireWholeRecords(t, c.data)
		next += uint32(len(c.data))
	}
	require.Equal(t, log, rec.joined())
}

func TestShipResume(t *testing.T) {
	log, bounds := sampleLog(t, 10)
	start := bounds[17]

	rec := &recorder{}
	s, err := NewShipper(rec, DefaultBufferSize)
	require.NoError(t, err)

	pos, err := s.Ship(context.Background(), bytes.NewReader(log), uint32(start))
	require.NoError(t, err)
	require.Equal(t, uint32(len(log)), pos)
	require.Len(t, rec.chunks, 1)
	require.Equal(t, uint32(start), rec.chunks[0].offset)
	require.Equal(t, log[start:], rec.joined())
}

func TestShipStaleStart(t *testing.T) {
	log, bounds := sampleLog(t, 10)
	// inside the GPS record starting at bounds[6]
	stale := bounds[6] + 5

	rec := &recorder{}
	s, err := NewShipper(rec, 40)
	require.NoError(t, err)

	pos, err := s.Ship(context.Background(), bytes.NewReader(log), uint32(stale))
	require.NoError(t, err)
	require.Equal(t, uint32(len(log)), pos)
	require.Equal(t, uint32(bounds[6]), rec.chunks[0].offset)
	require.Equal(t, log[bounds[6]:], rec.joined())
}

func TestShipNothingToSend(t *testing.T) {
	log, _ := sampleLog(t, 3)
	rec := &recorder{}
	s, err := NewShipper(rec, DefaultBufferSize)
	require.NoError(t, err)

	pos, err := s.Ship(context.Background(), bytes.NewReader(log), uint32(len(log)))
	require.NoError(t, err)
	require.Equal(t, uint32(len(log)), pos)
	require.Empty(t, rec.chunks)

	// the log shrank under a stale position
	pos, err = s.Ship(context.Background(), bytes.NewReader(log), uint32(len(log)+100))
	require.NoError(t, err)
	require.Equal(t, uint32(len(log)), pos)
	require.Empty(t, rec.chunks)
}

func TestShipCorrupt(t *testing.T) {
	log, bounds := sampleLog(t, 5)
	rec := &recorder{}
	s, err := NewShipper(rec, DefaultBufferSize)
	require.NoError(t, err)

	// invalid from the first record
	bad := append([]byte{0xFF}, log...)
	pos, err := s.Ship(context.Background(), bytes.NewReader(bad), 0)
	require.ErrorIs(t, err, ErrCorrupt)
	require.Equal(t, uint32(0), pos)
	require.Empty(t, rec.chunks)

	// the prefix before a stale start is unreadable
	bad = append([]byte{}, log...)
	bad[bounds[3]] = 0xEE
	start := uint32(bounds[3] + 1)
	pos, err = s.Ship(context.Background(), bytes.NewReader(bad), start)
	require.ErrorIs(t, err, ErrCorrupt)
	require.Equal(t, start, pos)
	require.Empty(t, rec.chunks)

	// a record truncated by the end of the file
	truncated := log[:len(log)-1]
	require.ErrorIs(t, Validate(bytes.NewReader(truncated), 0), ErrCorrupt)
}

func TestShipStopsAtCorruption(t *testing.T) {
	log, bounds := sampleLog(t, 20)
	bad := append([]byte{}, log...)
	bad[bounds[60]] = 0xEE

	tests := []struct {
		name   string
		start  int
		resume int
	}{
		{"from a boundary", bounds[10], bounds[10]},
		{"from a stale offset", bounds[10] + 1, bounds[10]},
		{"from the beginning", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			s, err := NewShipper(rec, 32)
			require.NoError(t, err)

			pos, err := s.Ship(context.Background(), bytes.NewReader(bad), uint32(tt.start))
			require.NoError(t, err)
			require.Equal(t, uint32(bounds[60]), pos)
			require.NotEmpty(t, rec.chunks)
			require.Equal(t, uint32(tt.resume), rec.chunks[0].offset)
			require.Equal(t, bad[tt.resume:bounds[60]], rec.joined())

			// the next attempt has nothing more to send
			rec.chunks = nil
			pos, err = s.Ship(context.Background(), bytes.NewReader(bad), pos)
			require.NoError(t, err)
			require.Equal(t, uint32(bounds[60]), pos)
			require.Empty(t, rec.chunks)
		})
	}
}

func TestShipTruncatedTail(t *testing.T) {
	log, bounds := sampleLog(t, 5)
	last := bounds[len(bounds)-1]
	truncated := log[:len(log)-1]

	rec := &recorder{}
	s, err := NewShipper(rec, DefaultBufferSize)
	require.NoError(t, err)

	pos, err := s.Ship(context.Background(), bytes.NewReader(truncated), uint32(bounds[2]))
	require.NoError(t, err)
	require.Equal(t, uint32(last), pos)
	require.Equal(t, truncated[bounds[2]:last], rec.joined())
}

func TestShipUploadError(t *testing.T) {
	log, bounds := sampleLog(t, 5)
	boom := errors.New("boom")
	rec := &recorder{err: boom}
	s, err := NewShipper(rec, 32)
	require.NoError(t, err)

	start := uint32(bounds[2])
	pos, err := s.Ship(context.Background(), bytes.NewReader(log), start)
	require.ErrorIs(t, err, boom)
	require.Equal(t, start, pos)
}

func TestShipExactBuffer(t *testing.T) {
	log, _ := sampleLog(t, 1)
	rec := &recorder{}
	s, err := NewShipper(rec, len(log))
	require.NoError(t, err)

	pos, err := s.Ship(context.Background(), bytes.NewReader(log), 0)
	require.NoError(t, err)
	require.Equal(t, uint32(len(log)), pos)
	require.Len(t, rec.chunks, 1)
}

func TestNewShipperBuffer(t *testing.T) {
	_, err := NewShipper(&recorder{}, MaxRecordSize-1)
	require.ErrorIs(t, err, ErrBufferTooSmall)
}

func TestWriterRejectsBadBody(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.Error(t, w.Write(TagTimestamp, []byte{1, 2}))
	require.ErrorIs(t, w.Write(Tag(0xFE), nil), ErrCorrupt)
	require.Zero(t, buf.Len())
}
