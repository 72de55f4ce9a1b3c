package eeprom

import "fmt"

// SPI is a full-duplex SPI bus. It matches machine.SPI on TinyGo and the
// drivers.SPI interface of tinygo.org/x/drivers.
type SPI interface {
	Tx(w, r []byte) error
}

// Pin is the chip-select output.
type Pin interface {
	High()
	Low()
}

// Ensure SPIChip implements Chip.
var _ Chip = (*SPIChip)(nil)

// SPIChip drives an AT25M02 EEPROM over SPI.
type SPIChip struct {
	bus SPI
	cs  Pin

	status [2]byte
	rx     [2]byte
}

// NewSPIChip creates a chip on bus selected by cs. The chip is deselected.
func NewSPIChip(bus SPI, cs Pin) *SPIChip {
	cs.High()
	return &SPIChip{bus: bus, cs: cs}
}

// Ready implements Chip. Bit 0 of the status register is clear when the
// device is ready.
func (c *SPIChip) Ready() (bool, error) {
	status, err := c.ReadStatus()
	if err != nil {
		return false, err
	}
	return status&StatusBusy == 0, nil
}

// ReadStatus returns the status register.
func (c *SPIChip) ReadStatus() (byte, error) {
	c.status = [2]byte{byte(CmdReadStatus), 0}
	c.cs.Low()
	err := c.bus.Tx(c.status[:], c.rx[:])
	c.cs.High()
	if err != nil {
		return 0, fmt.Errorf("eeprom: read status: %w", err)
	}
	return c.rx[1], nil
}

// WritePage implements Chip. It latches write-enable before the page write.
func (c *SPIChip) WritePage(addr uint32, p []byte) error {
	if err := c.command(CmdWriteEnable); err != nil {
		return err
	}
	head := addr24(CmdWrite, addr)
	c.cs.Low()
	defer c.cs.High()
	if err := c.bus.Tx(head[:], nil); err != nil {
		return fmt.Errorf("eeprom: write page at %#06x: %w", addr, err)
	}
	if err := c.bus.Tx(p, nil); err != nil {
		return fmt.Errorf("eeprom: write page at %#06x: %w", addr, err)
	}
	return nil
}

// Read implements Chip.
func (c *SPIChip) Read(addr uint32, p []byte) error {
	head := addr24(CmdRead, addr)
	c.cs.Low()
	defer c.cs.High()
	if err := c.bus.Tx(head[:], nil); err != nil {
		return fmt.Errorf("eeprom: read at %#06x: %w", addr, err)
	}
	if err := c.bus.Tx(nil, p); err != nil {
		return fmt.Errorf("eeprom: read at %#06x: %w", addr, err)
	}
	return nil
}

func (c *SPIChip) command(cmd Command) error {
	b := [1]byte{byte(cmd)}
	c.cs.Low()
	err := c.bus.Tx(b[:], nil)
	c.cs.High()
	if err != nil {
		return fmt.Errorf("eeprom: command %#02x: %w", byte(cmd), err)
	}
	return nil
}
