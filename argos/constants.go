package argos

// Class is an ARGOS A3 message class, ordered by payload capacity.
type Class uint8

const (
	ClassZTE Class = iota
	Class24
	Class56
	Class88
	Class120
	Class152
	Class184
	Class216
	Class248
)

const (
	// MaxPayload is the largest user payload in bytes (A3-248).
	MaxPayload = 31

	// DeviceIDBits is the width of the device identifier on the wire.
	DeviceIDBits = 28
	DeviceIDMask = 1<<DeviceIDBits - 1

	headerLen     = 3
	lengthCodeLen = 4
	zteTotalBits  = DeviceIDBits + 8
	payloadOffset = 7
)

type classInfo struct {
	name       string
	userBits   int
	tailBits   int
	lengthCode uint8
	wireLen    int
}

var classes = [...]classInfo{
	ClassZTE: {name: "ZTE", userBits: 0, tailBits: 8, wireLen: 9},
	Class24:  {name: "A3-24", userBits: 24, tailBits: 7, lengthCode: 0x0, wireLen: 12},
	Class56:  {name: "A3-56", userBits: 56, tailBits: 8, lengthCode: 0x3, wireLen: 15},
	Class88:  {name: "A3-88", userBits: 88, tailBits: 9, lengthCode: 0x5, wireLen: 21},
	Class120: {name: "A3-120", userBits: 120, tailBits: 7, lengthCode: 0x6, wireLen: 24},
	Class152: {name: "A3-152", userBits: 152, tailBits: 8, lengthCode: 0x9, wireLen: 27},
	Class184: {name: "A3-184", userBits: 184, tailBits: 9, lengthCode: 0xA, wireLen: 33},
	Class216: {name: "A3-216", userBits: 216, tailBits: 7, lengthCode: 0xC, wireLen: 36},
	Class248: {name: "A3-248", userBits: 248, tailBits: 8, lengthCode: 0xF, wireLen: 39},
}

func (c Class) valid() bool { return int(c) < len(classes) }

func (c Class) String() string {
	if !c.valid() {
		return "unknown"
	}
	return classes[c].name
}

// UserBits returns the payload capacity in bits.
func (c Class) UserBits() int { return classes[c].userBits }

// UserBytes returns the payload capacity in bytes, rounded down.
func (c Class) UserBytes() int { return classes[c].userBits / 8 }

// TailBits returns the number of tail bits appended by the modem.
func (c Class) TailBits() int { return classes[c].tailBits }

// LengthCode returns the 4 bits code sent after the length field, ZTE has none.
func (c Class) LengthCode() uint8 { return classes[c].lengthCode }

// WireLen returns the full frame length in bytes.
func (c Class) WireLen() int { return classes[c].wireLen }

// TotalBits is the value written in the 24 bits length field.
func (c Class) TotalBits() int {
	if c == ClassZTE {
		return zteTotalBits
	}
	info := classes[c]
	return lengthCodeLen + DeviceIDBits + info.userBits + info.tailBits
}
