package argos

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectClass(t *testing.T) {
	tests := []struct {
		n    int
		want Class
	}{
		{0, ClassZTE},
		{1, Class24},
		{3, Class24},
		{4, Class56},
		{7, Class56},
		{8, Class88},
		{11, Class88},
		{15, Class120},
		{19, Class152},
		{20, Class184},
		{23, Class184},
		{27, Class216},
		{28, Class248},
		{31, Class248},
	}
	for _, tt := range tests {
		c, err := SelectClass(tt.n)
		require.NoError(t, err)
		require.Equal(t, tt.want, c, "payload of %d bytes", tt.n)
	}

	_, err := SelectClass(32)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestClassTable(t *testing.T) {
	wantBits := map[Class]int{
		ClassZTE: 36,
		Class24:  63,
		Class56:  96,
		Class88:  129,
		Class120: 159,
		Class152: 192,
		Class184: 225,
		Class216: 255,
		Class248: 288,
	}
	for c, bits := range wantBits {
		require.Equal(t, bits, c.TotalBits(), c.String())
		// header plus every transmitted bit must fit in the frame
		require.LessOrEqual(t, headerLen+(bits+7)/8, c.WireLen(), c.String())
		if c != ClassZTE {
			require.LessOrEqual(t, payloadOffset+c.UserBytes(), c.WireLen(), c.String())
		}
	}
}

func TestEncodeLayout(t *testing.T) {
	frame, err := Encode(0x01234567, []byte{0xAA, 0xBB, 0xCC})
	require.NoError(t, err)
	require.Len(t, frame, 12)
	require.Equal(t, []byte{
		0x00, 0x00, 0x3F,
		0x01, 0x23, 0x45, 0x67,
		0xAA, 0xBB, 0xCC,
		0x00, 0x00,
	}, frame)

	// only 28 bits of the id are sent
	frame, err = Encode(0xF1234567, []byte{0x01})
	require.NoError(t, err)
	require.Equal(t, byte(0x01), frame[3])

	frame, err = Encode(0x0ABCDEF1, make([]byte, 31))
	require.NoError(t, err)
	require.Len(t, frame, 39)
	require.Equal(t, byte(0xFA), frame[3])
}

func TestEncodeZTE(t *testing.T) {
	frame, err := Encode(0x0ABCDEF1, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x00, 0x24, 0xAB, 0xCD, 0xEF, 0x10, 0x00, 0x00}, frame)

	f, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, ClassZTE, f.Class)
	require.Equal(t, uint32(0x0ABCDEF1), f.DeviceID)
	require.Empty(t, f.Payload)
}

func TestRoundTrip(t *testing.T) {
	const id = 0x0123456
	for _, n := range []int{0, 3, 7, 11, 15, 19, 23, 27, 31} {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(0xA5 ^ i)
		}

		frame, err := Encode(id, payload)
		require.NoError(t, err)

		c, err := SelectClass(n)
		require.NoError(t, err)
		require.Len(t, frame, c.WireLen())

		f, err := Decode(frame)
		require.NoError(t, err)
		require.Equal(t, c, f.Class)
		require.Equal(t, uint32(id), f.DeviceID)
		require.True(t, bytes.Equal(payload, f.Payload[:n]), "payload of %d bytes", n)
		for _, b := range f.Payload[n:] {
			require.Zero(t, b)
		}
	}
}

func TestEncodeTooLarge(t *testing.T) {
	_, err := Encode(1, make([]byte, MaxPayload+1))
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x00})
	require.ErrorIs(t, err, ErrShortFrame)

	_, err = Decode([]byte{0x00, 0x00, 0x99, 0, 0, 0, 0, 0, 0})
	require.ErrorIs(t, err, ErrUnknownClass)

	frame, err := Encode(1, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	_, err = Decode(frame[:10])
	require.ErrorIs(t, err, ErrShortFrame)

	frame[3] = 0x70
	_, err = Decode(frame)
	require.ErrorIs(t, err, ErrUnknownClass)
}
