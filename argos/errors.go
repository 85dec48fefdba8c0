package argos

import "errors"

var (
	ErrPayloadTooLarge = errors.New("payload exceeds the A3-248 capacity")
	ErrShortFrame      = errors.New("frame shorter than its class")
	ErrUnknownClass    = errors.New("unknown message class")
)
