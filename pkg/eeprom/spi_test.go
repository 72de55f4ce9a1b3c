package eeprom

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus records every byte clocked out while chip select is low, one
// entry per select window.
type fakeBus struct {
	selected bool
	frames   [][]byte
	status   byte
	readData []byte
	err      error
}

func (b *fakeBus) Low() {
	b.selected = true
	b.frames = append(b.frames, nil)
}

func (b *fakeBus) High() { b.selected = false }

func (b *fakeBus) Tx(w, r []byte) error {
	if b.err != nil {
		return b.err
	}
	if !b.selected {
		return errors.New("transfer without chip select")
	}
	last := len(b.frames) - 1
	b.frames[last] = append(b.frames[last], w...)
	if len(w) == 2 && w[0] == byte(CmdReadStatus) && len(r) == 2 {
		r[1] = b.status
	}
	if w == nil {
		copy(r, b.readData)
	}
	return nil
}

func TestSPIChipReady(t *testing.T) {
	bus := &fakeBus{status: StatusBusy}
	chip := NewSPIChip(bus, bus)

	ready, err := chip.Ready()
	require.NoError(t, err)
	assert.False(t, ready)

	bus.status = 0x02 // write-enable latch only
	ready, err = chip.Ready()
	require.NoError(t, err)
	assert.True(t, ready)

	require.Len(t, bus.frames, 2)
	assert.Equal(t, []byte{0x05, 0x00}, bus.frames[0])
	assert.False(t, bus.selected)
}

func TestSPIChipWritePage(t *testing.T) {
	bus := &fakeBus{}
	chip := NewSPIChip(bus, bus)

	require.NoError(t, chip.WritePage(0x03FF00, []byte{1, 2, 3}))
	require.Len(t, bus.frames, 2)
	assert.Equal(t, []byte{0x06}, bus.frames[0])
	assert.Equal(t, []byte{0x02, 0x03, 0xFF, 0x00, 1, 2, 3}, bus.frames[1])
	assert.False(t, bus.selected)
}

func TestSPIChipRead(t *testing.T) {
	bus := &fakeBus{readData: []byte{9, 8, 7, 6}}
	chip := NewSPIChip(bus, bus)

	p := make([]byte, 4)
	require.NoError(t, chip.Read(0x000102, p))
	require.Len(t, bus.frames, 1)
	assert.Equal(t, []byte{0x03, 0x00, 0x01, 0x02}, bus.frames[0])
	assert.Equal(t, []byte{9, 8, 7, 6}, p)
}

func TestSPIChipBusError(t *testing.T) {
	bus := &fakeBus{err: errors.New("bus fault")}
	chip := NewSPIChip(bus, bus)

	_, err := chip.Ready()
	assert.ErrorContains(t, err, "bus fault")
	assert.Error(t, chip.WritePage(0, []byte{1}))
	assert.Error(t, chip.Read(0, make([]byte, 1)))
	assert.False(t, bus.selected)
}
