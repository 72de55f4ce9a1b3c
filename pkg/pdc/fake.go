package pdc

import (
	"io"
	"sync"

	"github.com/itohio/pipshield/pkg/register"
)

// Ensure FakeUART implements Addresser.
var _ Addresser = (*FakeUART)(nil)

// fakeBase is where FakeUART starts handing out buffer addresses (SAM3X SRAM).
const fakeBase = 0x20070000

// DescriptorWrite is one register write observed by FakeUART.
type DescriptorWrite struct {
	Reg   string
	Value uint32
}

type region struct {
	addr uint32
	buf  []byte
}

// FakeUART emulates a PDC transmit channel on in-memory registers. Buffers
// are mapped to fake bus addresses by Address; Step moves bytes from the
// mapped buffers to the output writer the way the DMA engine would.
type FakeUART struct {
	regs struct {
		tpr, tcr, tnpr, tncr, ptcr register.Mem
	}

	mu      sync.Mutex
	out     io.Writer
	regions map[*byte]region
	next    uint32
	enabled bool
	writes  []DescriptorWrite
	sent    int
}

// NewFakeUART creates a fake channel that writes transmitted bytes to out.
// out may be nil.
func NewFakeUART(out io.Writer) *FakeUART {
	f := &FakeUART{
		out:     out,
		regions: make(map[*byte]region),
		next:    fakeBase,
	}
	f.regs.tpr.OnSet = f.record("TPR")
	f.regs.tcr.OnSet = f.record("TCR")
	f.regs.tnpr.OnSet = f.record("TNPR")
	f.regs.tncr.OnSet = f.record("TNCR")
	f.regs.ptcr.OnSet = func(v uint32) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if v&TXTEN != 0 {
			f.enabled = true
		}
		if v&TXTDIS != 0 {
			f.enabled = false
		}
	}
	return f
}

func (f *FakeUART) record(name string) func(uint32) {
	return func(v uint32) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.writes = append(f.writes, DescriptorWrite{Reg: name, Value: v})
	}
}

// Registers returns the register set to hand to New.
func (f *FakeUART) Registers() Registers {
	return Registers{
		TPR:  &f.regs.tpr,
		TCR:  &f.regs.tcr,
		TNPR: &f.regs.tnpr,
		TNCR: &f.regs.tncr,
		PTCR: &f.regs.ptcr,
	}
}

// Address implements Addresser. The same backing position always maps to
// the same address.
func (f *FakeUART) Address(p []byte) uint32 {
	if cap(p) == 0 {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	key := &p[:1][0]
	if r, ok := f.regions[key]; ok && cap(r.buf) >= cap(p) {
		return r.addr
	}
	r := region{addr: f.next, buf: p[:cap(p)]}
	f.regions[key] = r
	f.next += (uint32(cap(p)) + 3) &^ 3
	return r.addr
}

// Step transmits up to n bytes and returns how many went out.
func (f *FakeUART) Step(n int) int {
	f.mu.Lock()
	var out []byte
	for len(out) < n && f.enabled {
		if f.regs.tcr.Get() == 0 && !f.promote() {
			break
		}
		addr := f.regs.tpr.Get()
		b, ok := f.byteAt(addr)
		if !ok {
			// Unmapped memory: the channel stops as on a bus fault.
			f.regs.tcr.Store(0)
			break
		}
		out = append(out, b)
		f.regs.tpr.Store(addr + 1)
		f.regs.tcr.Store(f.regs.tcr.Get() - 1)
	}
	if f.regs.tcr.Get() == 0 {
		f.promote()
	}
	f.sent += len(out)
	w := f.out
	f.mu.Unlock()

	if w != nil && len(out) > 0 {
		w.Write(out)
	}
	return len(out)
}

// Drain transmits until both descriptors are empty and returns the byte count.
func (f *FakeUART) Drain() int {
	total := 0
	for {
		n := f.Step(256)
		total += n
		if n == 0 {
			return total
		}
	}
}

// promote loads the next descriptor into the primary one. The next counter
// is cleared last, as the hardware does.
func (f *FakeUART) promote() bool {
	n := f.regs.tncr.Get()
	if n == 0 {
		return false
	}
	f.regs.tpr.Store(f.regs.tnpr.Get())
	f.regs.tcr.Store(n)
	f.regs.tncr.Store(0)
	return true
}

func (f *FakeUART) byteAt(addr uint32) (byte, bool) {
	for _, r := range f.regions {
		if addr >= r.addr && addr < r.addr+uint32(len(r.buf)) {
			return r.buf[addr-r.addr], true
		}
	}
	return 0, false
}

// Busy reports whether a descriptor still holds bytes.
func (f *FakeUART) Busy() bool {
	return f.regs.tcr.Get() != 0 || f.regs.tncr.Get() != 0
}

// Writes returns a copy of the descriptor writes seen so far.
func (f *FakeUART) Writes() []DescriptorWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DescriptorWrite(nil), f.writes...)
}

// ResetWrites forgets recorded descriptor writes.
func (f *FakeUART) ResetWrites() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = nil
}

// Sent returns the total number of bytes transmitted.
func (f *FakeUART) Sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}
