package eeprom

import "errors"

var (
	// ErrInsufficientSpace is returned by Append when the data does not fit
	// without overwriting unread bytes. Nothing was written.
	ErrInsufficientSpace = errors.New("eeprom: insufficient space")
	// ErrChipTimeout indicates the chip did not become ready within the
	// configured bound and is treated as unavailable.
	ErrChipTimeout = errors.New("eeprom: chip not ready")
)
