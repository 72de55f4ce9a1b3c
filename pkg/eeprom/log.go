// Package eeprom turns a page-oriented SPI EEPROM into a never-overwriting
// FIFO byte queue.
//
// Writes are staged in a one-page buffer and committed to the chip a full
// page at a time; reads are byte granular and drain the chip region first,
// then the staged bytes, so FIFO order holds across the chip/stage boundary.
// The chip carries no header: record boundaries are agreed on by the
// producer and the consumer.
package eeprom

import (
	"fmt"

	"github.com/itohio/pipshield/pkg/clock"
)

// Options configures a Log.
type Options struct {
	Capacity     uint32 // bytes, power of two and a multiple of PageSize
	PageSize     uint32 // bytes, power of two
	ReadyTimeout uint32 // microseconds to wait for the chip before giving up
}

// DefaultOptions returns the AT25M02 geometry with a 20 ms ready bound.
func DefaultOptions() Options {
	return Options{
		Capacity:     DefaultCapacity,
		PageSize:     DefaultPageSize,
		ReadyTimeout: 20000,
	}
}

// Log is a circular queue on an EEPROM chip. It has exactly one producer
// (Append) and one consumer (Pop) and is not safe for concurrent use.
type Log struct {
	chip Chip
	clk  clock.Clock

	capacity uint32
	pageSize uint32
	timeout  uint32

	// Committed unread bytes live in [start, end) modulo capacity.
	// start == end is disambiguated by full.
	start uint32
	end   uint32
	full  bool

	stage    []byte
	stageLen uint32
	undo     []byte
}

// New creates an empty Log on chip.
func New(chip Chip, clk clock.Clock, opts Options) (*Log, error) {
	if !isPow2(opts.PageSize) {
		return nil, fmt.Errorf("eeprom: page size %d is not a power of two", opts.PageSize)
	}
	if !isPow2(opts.Capacity) || opts.Capacity < opts.PageSize {
		return nil, fmt.Errorf("eeprom: capacity %d is not a power of two of at least one page", opts.Capacity)
	}
	if opts.Capacity > 1<<24 {
		return nil, fmt.Errorf("eeprom: capacity %d exceeds 24-bit addressing", opts.Capacity)
	}

	return &Log{
		chip:     chip,
		clk:      clk,
		capacity: opts.Capacity,
		pageSize: opts.PageSize,
		timeout:  opts.ReadyTimeout,
		stage:    make([]byte, opts.PageSize),
		undo:     make([]byte, opts.PageSize),
	}, nil
}

// Reset forgets all queued data. The chip contents are left untouched.
func (l *Log) Reset() {
	l.start, l.end, l.full = 0, 0, false
	l.stageLen = 0
}

// Capacity returns the total capacity in bytes.
func (l *Log) Capacity() uint32 { return l.capacity }

// Full reports whether the committed region covers the whole chip.
func (l *Log) Full() bool { return l.full }

// ChipBytes returns the number of committed, unread bytes on the chip.
func (l *Log) ChipBytes() uint32 {
	switch {
	case l.full:
		return l.capacity
	case l.end >= l.start:
		return l.end - l.start
	default:
		return l.capacity - l.start + l.end
	}
}

// StagedBytes returns the number of bytes waiting in the page buffer.
func (l *Log) StagedBytes() uint32 { return l.stageLen }

// UsedBytes returns the number of queued bytes.
func (l *Log) UsedBytes() uint32 { return l.ChipBytes() + l.stageLen }

// FreeBytes returns the number of bytes that can be appended.
func (l *Log) FreeBytes() uint32 { return l.capacity - l.UsedBytes() }

// Append queues p. It fails with ErrInsufficientSpace when p does not fit
// and with ErrChipTimeout when the chip stops responding during a page
// flush; in both cases the queue is left exactly as it was.
//
// Append busy-waits on the chip before every page it flushes.
func (l *Log) Append(p []byte) error {
	if uint32(len(p)) > l.FreeBytes() {
		return ErrInsufficientSpace
	}

	end, full, staged := l.end, l.full, l.stageLen
	copy(l.undo, l.stage[:staged])

	for {
		n := copy(l.stage[l.stageLen:], p)
		l.stageLen += uint32(n)
		p = p[n:]
		if l.stageLen < l.pageSize {
			return nil
		}
		if err := l.flush(); err != nil {
			l.end, l.full, l.stageLen = end, full, staged
			copy(l.stage, l.undo[:staged])
			return err
		}
	}
}

// Pop moves up to len(dst) of the oldest bytes into dst and returns how
// many were moved; 0 means the queue is empty. An error is returned only
// if the chip stops responding; the queue is then left unchanged.
func (l *Log) Pop(dst []byte) (int, error) {
	n, err := l.popChip(dst)
	if err != nil {
		return n, err
	}
	return n + l.popStage(dst[n:]), nil
}

func (l *Log) flush() error {
	if err := l.waitReady(); err != nil {
		return err
	}
	if err := l.chip.WritePage(l.end, l.stage); err != nil {
		return fmt.Errorf("%w: %w", ErrChipTimeout, err)
	}
	l.end = (l.end + l.pageSize) & (l.capacity - 1)
	l.stageLen = 0
	if l.end == l.start {
		l.full = true
	}
	return nil
}

func (l *Log) popChip(dst []byte) (int, error) {
	n := min(uint32(len(dst)), l.ChipBytes())
	if n == 0 {
		return 0, nil
	}
	if err := l.waitReady(); err != nil {
		return 0, err
	}

	// Split at the end of the address space. Nothing is consumed unless
	// both halves were read.
	first := min(n, l.capacity-l.start)
	if err := l.chip.Read(l.start, dst[:first]); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrChipTimeout, err)
	}
	if first < n {
		if err := l.chip.Read(0, dst[first:n]); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrChipTimeout, err)
		}
	}
	l.advance(n)
	return int(n), nil
}

func (l *Log) advance(n uint32) {
	l.start = (l.start + n) & (l.capacity - 1)
	l.full = false
}

func (l *Log) popStage(dst []byte) int {
	n := copy(dst, l.stage[:l.stageLen])
	copy(l.stage, l.stage[n:l.stageLen])
	l.stageLen -= uint32(n)
	return n
}

func (l *Log) waitReady() error {
	var err error
	ready := clock.Wait(l.clk, l.timeout, func() bool {
		var ok bool
		ok, err = l.chip.Ready()
		return ok || err != nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrChipTimeout, err)
	}
	if !ready {
		return ErrChipTimeout
	}
	return nil
}

func isPow2(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}
