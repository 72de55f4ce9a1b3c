package eeprom

import (
	"errors"
	"sync"
)

// errBusy is returned by MemChip when a command arrives during a write cycle.
var errBusy = errors.New("eeprom: command while busy")

// Ensure MemChip implements Chip.
var _ Chip = (*MemChip)(nil)

// MemChip is an in-memory EEPROM with the AT25M02 page-write behaviour.
// It is used by tests and the simulator.
type MemChip struct {
	// WriteCycle is the number of Ready polls a page write keeps the chip busy.
	WriteCycle int

	mu       sync.Mutex
	data     []byte
	pageSize int
	busy     int
	stalled  bool

	pageWrites int
	reads      int
	written    int
}

// NewMemChip creates a chip of size bytes with the given page size.
func NewMemChip(size, pageSize int) *MemChip {
	return &MemChip{
		data:     make([]byte, size),
		pageSize: pageSize,
	}
}

// Ready implements Chip. A stalled chip never becomes ready.
func (c *MemChip) Ready() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stalled {
		return false, nil
	}
	if c.busy > 0 {
		c.busy--
		return false, nil
	}
	return true, nil
}

// WritePage implements Chip. Bytes past the page boundary wrap to the start
// of the same page, as on the real device.
func (c *MemChip) WritePage(addr uint32, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stalled || c.busy > 0 {
		return errBusy
	}
	size := uint32(len(c.data))
	page := uint32(c.pageSize)
	base := (addr % size) &^ (page - 1)
	off := addr % page
	for i, b := range p {
		c.data[base+(off+uint32(i))%page] = b
	}
	c.busy = c.WriteCycle
	c.pageWrites++
	c.written += len(p)
	return nil
}

// Read implements Chip. Sequential reads roll over at the end of memory.
func (c *MemChip) Read(addr uint32, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stalled || c.busy > 0 {
		return errBusy
	}
	size := uint32(len(c.data))
	for i := range p {
		p[i] = c.data[(addr+uint32(i))%size]
	}
	c.reads++
	return nil
}

// Stall makes the chip stop responding (stalled=true) or recover.
func (c *MemChip) Stall(stalled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stalled = stalled
}

// PageWrites returns the number of page writes and the bytes they carried.
func (c *MemChip) PageWrites() (count, bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pageWrites, c.written
}

// Reads returns the number of read commands served.
func (c *MemChip) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}
