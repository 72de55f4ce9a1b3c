package frame

import "errors"

var (
	// ErrShortBuffer is returned when a destination or source buffer is too
	// small for the frame or record being encoded or decoded.
	ErrShortBuffer = errors.New("frame: short buffer")
	// ErrUnknownKind is returned for a kind tag that is not one of the four
	// frame kinds.
	ErrUnknownKind = errors.New("frame: unknown kind")
)
