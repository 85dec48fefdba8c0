// Package logship sends the device tagged log file to the cloud in chunks
// made of whole records, resuming from the last acknowledged offset.
package logship

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	ErrCorrupt        = errors.New("corrupted log file")
	ErrBufferTooSmall = errors.New("buffer smaller than the largest record")

	errOverrun = fmt.Errorf("record overruns the range: %w", ErrCorrupt)
)

// File is the readable log.
type File interface {
	io.ReaderAt
	Size() int64
}

// Uploader sends one chunk located at offset in the log file.
type Uploader interface {
	Upload(ctx context.Context, offset uint32, chunk []byte) error
}

// UploaderFunc adapts a function to an Uploader.
type UploaderFunc func(ctx context.Context, offset uint32, chunk []byte) error

func (f UploaderFunc) Upload(ctx context.Context, offset uint32, chunk []byte) error {
	return f(ctx, offset, chunk)
}

// DefaultBufferSize is the working buffer used by the cellular session.
const DefaultBufferSize = 512

// Shipper reuses one working buffer across transfers.
type Shipper struct {
	up  Uploader
	buf []byte
}

func NewShipper(up Uploader, bufSize int) (*Shipper, error) {
	if bufSize < MaxRecordSize {
		return nil, fmt.Errorf("%d bytes: %w", bufSize, ErrBufferTooSmall)
	}
	return &Shipper{up: up, buf: make([]byte, bufSize)}, nil
}

// Ship sends f from start and returns the new acknowledged offset.
//
// When the records from start do not parse, start is assumed stale: the
// prefix [0, start) is walked and the transfer resumes at its last record
// boundary. Whole records are then sent up to the end of the file or up to
// the first corrupt record, whichever comes first, and the offset reached is
// returned. A log invalid from its first record, a corrupt prefix or a failed
// upload returns start unchanged.
func (s *Shipper) Ship(ctx context.Context, f File, start uint32) (uint32, error) {
	size := f.Size()
	pos := int64(start)

	if pos == size {
		return start, nil
	}

	end, err := walk(f, pos, size, nil)
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return start, err
		}
		resume, err := resumePoint(f, pos)
		if err != nil {
			return start, err
		}
		pos = resume
		// nothing past a corrupt record is sent
		end, err = walk(f, pos, size, nil)
		if err != nil && !errors.Is(err, ErrCorrupt) {
			return start, err
		}
		if end == 0 && err != nil {
			return start, err
		}
	}

	sent, err := s.transfer(ctx, f, pos, end)
	if err != nil {
		return start, err
	}
	return uint32(sent), nil
}

func (s *Shipper) transfer(ctx context.Context, f File, pos, size int64) (int64, error) {
	carried := 0
	for pos < size {
		if err := ctx.Err(); err != nil {
			return pos, err
		}
		remaining := size - pos
		filled := len(s.buf)
		if int64(filled) > remaining {
			filled = int(remaining)
		}

		n, err := f.ReadAt(s.buf[carried:filled], pos+int64(carried))
		if n < filled-carried {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return pos, err
		}

		// the rest of the file fits, send it all
		if int64(filled) == remaining {
			if err := s.up.Upload(ctx, uint32(pos), s.buf[:filled]); err != nil {
				return pos, err
			}
			return pos + int64(filled), nil
		}

		boundary, err := lastBoundary(s.buf[:filled])
		if err != nil {
			return pos, err
		}
		if err := s.up.Upload(ctx, uint32(pos), s.buf[:boundary]); err != nil {
			return pos, err
		}

		carried = copy(s.buf, s.buf[boundary:filled])
		pos += int64(boundary)
	}
	return pos, nil
}

// lastBoundary returns the end of the last whole record in b.
func lastBoundary(b []byte) (int, error) {
	p := 0
	for p < len(b) {
		sz, ok := RecordSize(b[p])
		if !ok {
			return 0, fmt.Errorf("tag %#x at %d: %w", b[p], p, ErrCorrupt)
		}
		if p+sz > len(b) {
			break
		}
		p += sz
	}
	if p == 0 {
		return 0, ErrBufferTooSmall
	}
	return p, nil
}

// Validate checks every record from offset from parses up to the end of f.
func Validate(f File, from int64) error {
	_, err := walk(f, from, f.Size(), nil)
	return err
}

// resumePoint walks [0, pos) and returns its last record boundary.
// A record straddling pos is expected when pos is stale.
func resumePoint(f File, pos int64) (int64, error) {
	end := pos
	if size := f.Size(); end > size {
		end = size
	}

	var resume int64
	_, err := walk(f, 0, end, func(boundary int64) {
		resume = boundary
	})
	if err != nil && !errors.Is(err, errOverrun) {
		return 0, fmt.Errorf("recovery scan: %w", err)
	}
	return resume, nil
}

// walk steps over records in [from, end), calling fn on every record
// boundary, end included, and returns the offset reached.
func walk(f File, from, end int64, fn func(int64)) (int64, error) {
	if from > end {
		return from, ErrCorrupt
	}

	r := bufio.NewReader(io.NewSectionReader(f, from, end-from))
	pos := from
	for pos < end {
		if fn != nil {
			fn(pos)
		}
		tag, err := r.ReadByte()
		if err != nil {
			return pos, err
		}
		sz, ok := RecordSize(tag)
		if !ok {
			return pos, fmt.Errorf("tag %#x at %d: %w", tag, pos, ErrCorrupt)
		}
		if pos+int64(sz) > end {
			return pos, fmt.Errorf("record at %d: %w", pos, errOverrun)
		}
		if _, err := r.Discard(sz - 1); err != nil {
			return pos, err
		}
		pos += int64(sz)
	}
	if fn != nil {
		fn(pos)
	}
	return pos, nil
}
