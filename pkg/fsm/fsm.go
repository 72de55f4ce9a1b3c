// Package fsm sequences one measurement cycle per timer period and yields
// to the external sync pulse whenever it arrives.
//
// The scheduler has two interrupt-side entry points, Tick (fixed-rate
// timer) and Sync (external pulse), and a mainline loop of Update followed
// by Action. Each flag has a single writer on the interrupt side and a
// single reader on the mainline; the cycle timer read-modify-write
// sequences run under a sync.Locker, which disables interrupts on the
// payload MCU.
package fsm

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/itohio/pipshield/pkg/clock"
)

// State is a scheduler state.
type State int

const (
	Idle State = iota
	StartSweep
	TakeSample
	ReadBack
	Store
	WaitForNewCycle
	Interrupted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case StartSweep:
		return "StartSweep"
	case TakeSample:
		return "TakeSample"
	case ReadBack:
		return "ReadBack"
	case Store:
		return "Store"
	case WaitForNewCycle:
		return "WaitForNewCycle"
	case Interrupted:
		return "Interrupted"
	}
	return "Unknown"
}

// Actions is the work done on entering each active state.
type Actions interface {
	StartSweep()
	TakeSample()
	ReadBack()
	Store()
	Interrupted()
}

// Options configures the cycle timing, in microseconds.
type Options struct {
	// Period is the nominal cycle length enforced by Tick.
	Period uint32
	// Offset is how long Idle waits after the last tick or sync pulse
	// before starting the sweep.
	Offset uint32
}

// Scheduler is the cycle state machine.
type Scheduler struct {
	actions Actions
	clk     clock.Clock
	lock    sync.Locker
	period  uint32
	offset  uint32

	state State
	first bool

	timer     atomic.Uint32
	syncPulse atomic.Bool
	newCycle  atomic.Bool

	cycles      atomic.Uint32
	interrupted atomic.Uint32

	onTransition func(from, to State)
}

// New creates a Scheduler in Idle. A nil lock defaults to a mutex.
func New(actions Actions, clk clock.Clock, lock sync.Locker, opts Options) *Scheduler {
	if lock == nil {
		lock = &sync.Mutex{}
	}
	s := &Scheduler{
		actions: actions,
		clk:     clk,
		lock:    lock,
		period:  opts.Period,
		offset:  opts.Offset,
		state:   Idle,
		first:   true,
	}
	s.timer.Store(clk.Micros())
	return s
}

// OnTransition registers fn to be called on every state change. It runs
// on the mainline, from Update.
func (s *Scheduler) OnTransition(fn func(from, to State)) {
	s.onTransition = fn
}

// State returns the current state.
func (s *Scheduler) State() State { return s.state }

// Cycles returns the number of cycles started.
func (s *Scheduler) Cycles() uint32 { return s.cycles.Load() }

// Interruptions returns the number of cycles cut short by a sync pulse.
func (s *Scheduler) Interruptions() uint32 { return s.interrupted.Load() }

// Tick is the timer interrupt handler. It marks a new cycle once a full
// period has elapsed since the last tick or sync pulse.
func (s *Scheduler) Tick() {
	s.lock.Lock()
	now := s.clk.Micros()
	if now-s.timer.Load() >= s.period {
		s.newCycle.Store(true)
		s.timer.Store(now)
	}
	s.lock.Unlock()
}

// Sync is the external pulse interrupt handler. It restarts the cycle
// timer and preempts whatever the mainline is doing.
func (s *Scheduler) Sync() {
	s.lock.Lock()
	s.timer.Store(s.clk.Micros())
	s.syncPulse.Store(true)
	s.lock.Unlock()
}

// Update computes the next state.
func (s *Scheduler) Update() {
	next := s.state
	switch s.state {
	case Idle:
		if s.syncPulse.Swap(false) {
			// Stray pulse before the cycle started.
			return
		}
		s.lock.Lock()
		now := s.clk.Micros()
		if now-s.timer.Load() > s.offset {
			if s.first {
				s.first = false
				s.timer.Store(now)
				s.newCycle.Store(false)
			}
			next = StartSweep
		}
		s.lock.Unlock()
	case StartSweep, TakeSample, ReadBack, Store:
		if s.syncPulse.Swap(false) {
			next = Interrupted
		} else {
			next = s.state + 1
		}
	case Interrupted:
		next = WaitForNewCycle
	case WaitForNewCycle:
		// Both flags are cleared whichever one fired.
		nc := s.newCycle.Swap(false)
		sp := s.syncPulse.Swap(false)
		if nc || sp {
			next = Idle
		}
	default:
		next = Idle
	}
	s.transition(next)
}

func (s *Scheduler) transition(next State) {
	if next == s.state {
		return
	}
	prev := s.state
	s.state = next
	switch next {
	case StartSweep:
		s.cycles.Add(1)
	case Interrupted:
		s.interrupted.Add(1)
	}
	if s.onTransition != nil {
		s.onTransition(prev, next)
	}
}

// Action performs the work of the current state.
func (s *Scheduler) Action() {
	switch s.state {
	case StartSweep:
		s.actions.StartSweep()
	case TakeSample:
		s.actions.TakeSample()
	case ReadBack:
		s.actions.ReadBack()
	case Store:
		s.actions.Store()
	case Interrupted:
		s.actions.Interrupted()
	}
}

// Step runs one Update and one Action.
func (s *Scheduler) Step() {
	s.Update()
	s.Action()
}

// Run steps the scheduler until ctx is done, yielding while it waits.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.Step()
		if s.state == Idle || s.state == WaitForNewCycle {
			runtime.Gosched()
		}
	}
}
