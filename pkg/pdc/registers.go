// Package pdc streams byte buffers over a peripheral DMA controller
// (PDC) transmit channel without copying them.
//
// A PDC channel has two descriptors, each an address/length register pair.
// The primary one is being transmitted; the secondary (next) one is loaded
// by the hardware into the primary as soon as the primary count reaches
// zero, so two segments go out back to back without software involvement.
package pdc

import "github.com/itohio/pipshield/pkg/register"

// PTCR bits.
const (
	RXTEN  = 1 << 0
	RXTDIS = 1 << 1
	TXTEN  = 1 << 8
	TXTDIS = 1 << 9
)

// MaxLength is the largest transfer one descriptor can hold.
const MaxLength = 0xFFFF

// Registers is the transmit half of a PDC channel.
type Registers struct {
	TPR  register.Register // transmit pointer
	TCR  register.Register // transmit counter
	TNPR register.Register // transmit next pointer
	TNCR register.Register // transmit next counter
	PTCR register.Register // transfer control
}

// Addresser resolves the bus address the DMA engine reads p from.
type Addresser interface {
	Address(p []byte) uint32
}
