package eeprom

// Command is an AT25M02 instruction opcode. All commands are sent MSB first.
type Command byte

const (
	CmdWrite       Command = 0x02 // byte or page write
	CmdRead        Command = 0x03
	CmdReadStatus  Command = 0x05
	CmdWriteEnable Command = 0x06
)

const (
	// StatusBusy is set in the status register while a write cycle is in progress.
	StatusBusy = 0x01

	// DefaultPageSize is the AT25M02 page size in bytes.
	DefaultPageSize = 256
	// DefaultCapacity is the AT25M02 size in bytes (2 Mbit).
	DefaultCapacity = 1 << 18
)

// Chip is the synchronous transfer primitive the Log is built on.
type Chip interface {
	// Ready reports whether the chip accepts a new command.
	Ready() (bool, error)
	// WritePage writes p (at most one page) starting at the page-aligned addr.
	WritePage(addr uint32, p []byte) error
	// Read fills p starting at addr.
	Read(addr uint32, p []byte) error
}

// addr24 encodes addr as the 3-byte big-endian address the chip expects.
func addr24(cmd Command, addr uint32) [4]byte {
	return [4]byte{byte(cmd), byte(addr >> 16), byte(addr >> 8), byte(addr)}
}
