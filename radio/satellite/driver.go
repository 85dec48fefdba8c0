package satellite

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/akhenakh/tracklink/radio"
)

// Driver is the ARGOS modem driver.
type Driver interface {
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
	// Transmit sends one framed message.
	Transmit(ctx context.Context, frame []byte) error
}

// HAL codes returned by the drivers.
const (
	HALNotPowered int32 = iota + 1
	HALTxFailed
)

var ErrTxFailed = errors.New("transmission failed")

// StubDriver records the transmitted frames for host side testing.
type StubDriver struct {
	// Fail makes the transmissions fail.
	Fail bool

	mu  sync.Mutex
	on  bool
	log ringBuffer
}

func (d *StubDriver) PowerOn(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.on = true
	return nil
}

func (d *StubDriver) PowerOff(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.on = false
	return nil
}

func (d *StubDriver) Transmit(ctx context.Context, frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.on {
		return radio.NewHALError(HALNotPowered, 0, radio.ErrNotPowered)
	}
	if d.Fail {
		return radio.NewHALError(HALTxFailed, 0, ErrTxFailed)
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.log.push(cp)
	return nil
}

// TxLog returns the last transmitted frames, oldest first.
func (d *StubDriver) TxLog() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.log.snapshot()
}

// UDPDriver relays the frames to a ground station over UDP.
type UDPDriver struct {
	Addr string

	mu   sync.Mutex
	conn net.Conn
}

func (d *UDPDriver) PowerOn(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return nil
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", d.Addr)
	if err != nil {
		return radio.NewHALError(HALTxFailed, 0, err)
	}
	d.conn = conn
	return nil
}

func (d *UDPDriver) PowerOff(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

func (d *UDPDriver) Transmit(ctx context.Context, frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return radio.NewHALError(HALNotPowered, 0, radio.ErrNotPowered)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := d.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	if _, err := d.conn.Write(frame); err != nil {
		return radio.NewHALError(HALTxFailed, 0, err)
	}
	return nil
}

const ringCapacity = 64

type ringBuffer struct {
	data       [ringCapacity][]byte
	head, tail int
	count      int
}

func (rb *ringBuffer) push(frame []byte) {
	if rb.count == ringCapacity {
		// the oldest frame is dropped
		rb.data[rb.tail] = nil
		rb.head = (rb.head + 1) % ringCapacity
		rb.count--
	}
	rb.data[rb.tail] = frame
	rb.tail = (rb.tail + 1) % ringCapacity
	rb.count++
}

func (rb *ringBuffer) snapshot() [][]byte {
	out := make([][]byte, 0, rb.count)
	for c, i := 0, rb.head; c < rb.count; c, i = c+1, (i+1)%ringCapacity {
		cp := make([]byte, len(rb.data[i]))
		copy(cp, rb.data[i])
		out = append(out, cp)
	}
	return out
}
