package pdc

import "errors"

var (
	// ErrTimeout is returned when the channel stays busy past the ready
	// bound. No descriptor was written.
	ErrTimeout = errors.New("pdc: transmitter busy")
	// ErrTooLong is returned for buffers the 16-bit counters cannot describe.
	ErrTooLong = errors.New("pdc: buffer exceeds transfer counter")
)
