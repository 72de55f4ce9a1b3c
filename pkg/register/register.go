// Package register provides typed access to 32-bit memory-mapped registers.
//
// Drivers program hardware through the Register interface only, so the same
// driver code runs against real peripherals (At, TinyGo builds) and against
// the in-memory Mem registers used by tests and the simulator.
package register

import "sync/atomic"

// Register is a single 32-bit hardware register.
type Register interface {
	Get() uint32
	Set(value uint32)
}

// Ensure Mem implements Register.
var _ Register = (*Mem)(nil)

// Mem is an in-memory register. The zero value reads as 0.
type Mem struct {
	v atomic.Uint32

	// OnSet, if not nil, is called after every Set with the written value.
	OnSet func(value uint32)
}

// Get returns the current register value.
func (r *Mem) Get() uint32 {
	return r.v.Load()
}

// Set stores value and notifies OnSet.
func (r *Mem) Set(value uint32) {
	r.v.Store(value)
	if r.OnSet != nil {
		r.OnSet(value)
	}
}

// Store updates the value without notifying OnSet. Fakes use it to model
// hardware-side updates that software did not initiate.
func (r *Mem) Store(value uint32) {
	r.v.Store(value)
}

// SetBits sets the bits in mask.
func SetBits(r Register, mask uint32) {
	r.Set(r.Get() | mask)
}

// ClearBits clears the bits in mask.
func ClearBits(r Register, mask uint32) {
	r.Set(r.Get() &^ mask)
}

// HasBits reports whether all bits in mask are set.
func HasBits(r Register, mask uint32) bool {
	return r.Get()&mask == mask
}
