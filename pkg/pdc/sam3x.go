//go:build tinygo

package pdc

import (
	"unsafe"

	"github.com/itohio/pipshield/pkg/register"
)

const uartBase = 0x400E0800

// SAM3XUART returns the PDC registers of the SAM3X8E UART (the Arduino Due
// programming port).
func SAM3XUART() Registers {
	return Registers{
		TPR:  register.At(uartBase + 0x108),
		TCR:  register.At(uartBase + 0x10C),
		TNPR: register.At(uartBase + 0x118),
		TNCR: register.At(uartBase + 0x11C),
		PTCR: register.At(uartBase + 0x120),
	}
}

// DirectAddresser uses the CPU address of the buffer; SRAM is flat on the SAM3X.
type DirectAddresser struct{}

// Address implements Addresser.
func (DirectAddresser) Address(p []byte) uint32 {
	return uint32(uintptr(unsafe.Pointer(unsafe.SliceData(p))))
}
