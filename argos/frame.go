package argos

import (
	"encoding/binary"
	"fmt"
)

// Frame is a decoded ARGOS A3 frame.
type Frame struct {
	Class    Class
	DeviceID uint32
	// Payload holds the full class capacity, zero padded.
	Payload []byte
}

// SelectClass returns the smallest class able to carry n payload bytes.
func SelectClass(n int) (Class, error) {
	if n < 0 || n > MaxPayload {
		return ClassZTE, ErrPayloadTooLarge
	}
	for c := ClassZTE; c.valid(); c++ {
		if n <= c.UserBytes() {
			return c, nil
		}
	}
	return ClassZTE, ErrPayloadTooLarge
}

// Encode builds the wire frame for payload sent by deviceID.
// Only the low 28 bits of deviceID are transmitted.
//
//	bytes 0-2  total bit length, big endian
//	byte  3    length code (high nibble), device id bits 27-24 (low nibble)
//	bytes 4-6  device id bits 23-0
//	bytes 7-   payload, zero padded to the class length
//
// A ZTE frame carries the 28 bits device id left aligned in bytes 3-6.
func Encode(deviceID uint32, payload []byte) ([]byte, error) {
	c, err := SelectClass(len(payload))
	if err != nil {
		return nil, fmt.Errorf("%d bytes: %w", len(payload), err)
	}

	frame := make([]byte, c.WireLen())
	putUint24(frame, uint32(c.TotalBits()))

	id := deviceID & DeviceIDMask
	if c == ClassZTE {
		binary.BigEndian.PutUint32(frame[headerLen:], id<<4)
		return frame, nil
	}

	frame[3] = c.LengthCode()<<4 | byte(id>>24)
	frame[4] = byte(id >> 16)
	frame[5] = byte(id >> 8)
	frame[6] = byte(id)
	copy(frame[payloadOffset:], payload)

	return frame, nil
}

// Decode parses a frame produced by Encode.
func Decode(frame []byte) (Frame, error) {
	var f Frame
	if len(frame) < headerLen+4 {
		return f, ErrShortFrame
	}

	total := int(uint24(frame))
	c, ok := classFromTotalBits(total)
	if !ok {
		return f, fmt.Errorf("total bits %d: %w", total, ErrUnknownClass)
	}
	if len(frame) < c.WireLen() {
		return f, fmt.Errorf("%s got %d bytes: %w", c, len(frame), ErrShortFrame)
	}
	f.Class = c

	if c == ClassZTE {
		f.DeviceID = binary.BigEndian.Uint32(frame[headerLen:]) >> 4
		return f, nil
	}

	if code := frame[3] >> 4; code != c.LengthCode() {
		return f, fmt.Errorf("length code %#x for %s: %w", code, c, ErrUnknownClass)
	}
	f.DeviceID = uint32(frame[3]&0x0F)<<24 | uint32(frame[4])<<16 | uint32(frame[5])<<8 | uint32(frame[6])
	f.Payload = make([]byte, c.UserBytes())
	copy(f.Payload, frame[payloadOffset:])

	return f, nil
}

func classFromTotalBits(total int) (Class, bool) {
	for c := ClassZTE; c.valid(); c++ {
		if c.TotalBits() == total {
			return c, true
		}
	}
	return ClassZTE, false
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
