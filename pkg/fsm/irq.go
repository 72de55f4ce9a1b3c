//go:build tinygo

package fsm

import "runtime/interrupt"

// IRQLock is a sync.Locker that masks interrupts.
type IRQLock struct {
	state interrupt.State
}

// Lock disables interrupts.
func (l *IRQLock) Lock() {
	l.state = interrupt.Disable()
}

// Unlock restores the interrupt mask saved by Lock.
func (l *IRQLock) Unlock() {
	interrupt.Restore(l.state)
}
