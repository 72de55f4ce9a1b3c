package pdc

import (
	"github.com/itohio/pipshield/pkg/clock"
)

// Options configures a Transmitter.
type Options struct {
	// ReadyTimeout bounds every wait for the channel, in microseconds.
	ReadyTimeout uint32
}

// Transmitter queues buffers on a PDC channel. It never copies: a buffer
// passed to Send or SendNext belongs to the hardware until the returned
// Transfer reports Done.
type Transmitter struct {
	regs    Registers
	addr    Addresser
	clk     clock.Clock
	timeout uint32
}

// New creates a Transmitter. Call Enable before the first transfer.
func New(regs Registers, addr Addresser, clk clock.Clock, opts Options) *Transmitter {
	return &Transmitter{
		regs:    regs,
		addr:    addr,
		clk:     clk,
		timeout: opts.ReadyTimeout,
	}
}

// Enable turns the transmit channel on.
func (t *Transmitter) Enable() {
	t.regs.PTCR.Set(TXTEN)
}

// Ready reports whether both descriptors are empty.
func (t *Transmitter) Ready() bool {
	// The next counter is read first: the hardware clears it only after
	// loading it into the primary counter.
	return t.regs.TNCR.Get() == 0 && t.regs.TCR.Get() == 0
}

// NextReady reports whether the secondary descriptor is free.
func (t *Transmitter) NextReady() bool {
	return t.regs.TNCR.Get() == 0
}

// Send programs the primary descriptor with p once the channel is idle.
func (t *Transmitter) Send(p []byte) (Transfer, error) {
	if len(p) == 0 {
		return Transfer{}, nil
	}
	if len(p) > MaxLength {
		return Transfer{}, ErrTooLong
	}
	if !clock.Wait(t.clk, t.timeout, t.Ready) {
		return Transfer{}, ErrTimeout
	}
	a := t.addr.Address(p)
	t.regs.TPR.Set(a)
	t.regs.TCR.Set(uint32(len(p)))
	return Transfer{t: t, start: a, end: a + uint32(len(p))}, nil
}

// SendNext programs the secondary descriptor with p once it is free. The
// hardware continues with p as soon as the primary segment completes.
func (t *Transmitter) SendNext(p []byte) (Transfer, error) {
	if len(p) == 0 {
		return Transfer{}, nil
	}
	if len(p) > MaxLength {
		return Transfer{}, ErrTooLong
	}
	if !clock.Wait(t.clk, t.timeout, t.NextReady) {
		return Transfer{}, ErrTimeout
	}
	a := t.addr.Address(p)
	t.regs.TNPR.Set(a)
	t.regs.TNCR.Set(uint32(len(p)))
	return Transfer{t: t, start: a, end: a + uint32(len(p))}, nil
}

// Flush waits until everything queued has been handed to the peripheral.
func (t *Transmitter) Flush() error {
	if !clock.Wait(t.clk, t.timeout, t.Ready) {
		return ErrTimeout
	}
	return nil
}

// Transfer tracks one buffer handed to the hardware. The zero Transfer is done.
type Transfer struct {
	t          *Transmitter
	start, end uint32
}

// Done reports whether the hardware no longer reads from the buffer.
func (x Transfer) Done() bool {
	if x.t == nil {
		return true
	}
	r := x.t.regs
	if n := r.TNCR.Get(); n != 0 && r.TNPR.Get() == x.start {
		return false
	}
	if n := r.TCR.Get(); n != 0 {
		p := r.TPR.Get()
		if p >= x.start && p < x.end {
			return false
		}
	}
	return true
}

// Wait spins until the transfer is done or the ready bound elapses.
func (x Transfer) Wait() error {
	if x.t == nil {
		return nil
	}
	if !clock.Wait(x.t.clk, x.t.timeout, x.Done) {
		return ErrTimeout
	}
	return nil
}
