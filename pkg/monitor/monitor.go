// Package monitor watches the downlink on the ground: it keeps a time
// window of received sweeps, measures the payload-side interval between
// consecutive live sweeps and flags cycles that were skipped or cut short.
package monitor

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/itohio/pipshield/pkg/config"
	"github.com/itohio/pipshield/pkg/sweep"
)

var _ LinkMonitor = (*Monitor)(nil)

// Gap is a pair of consecutive live sweeps whose payload timestamps are
// not one sample period apart.
type Gap struct {
	Index    int           // Index of the later sweep in the buffer
	Time     time.Time     // Ground arrival of the later sweep
	Interval time.Duration // Payload time between the two sweeps
	Missed   int           // Cycles missing in between; 0 for a short cycle
}

// Early reports whether the cycle was cut short, typically by a sync pulse.
func (g Gap) Early() bool { return g.Missed == 0 }

// Counters summarizes everything the monitor has seen since creation.
type Counters struct {
	Live   int // live sweeps
	Replay int // replayed sweeps
	Gaps   int // intervals longer than a period
	Missed int // cycles lost in those gaps
	Early  int // intervals shorter than a period
	Resets int // payload clock went backwards (reboot)
}

// LinkMonitor processes sweeps, maintains the window and detects gaps.
type LinkMonitor interface {
	ProcessSweeps(input <-chan sweep.Sweep)
	Process(s sweep.Sweep)
	Counters() Counters
	Sweeps() []sweep.Sweep          // Live sweeps in the window, oldest first
	Intervals() []time.Duration     // Payload time between consecutive live sweeps (n-1 for n sweeps)
	Gaps() []Gap                    // Gaps within the window
	LatestReplay() (sweep.Sweep, bool)
	OnUpdate(func(sweeps []sweep.Sweep, intervals []time.Duration, gaps []Gap))
}

// Monitor implements LinkMonitor.
type Monitor struct {
	window    time.Duration
	period    time.Duration
	tolerance time.Duration
	maxPoints int

	mu        sync.RWMutex
	sweeps    []sweep.Sweep
	intervals []time.Duration
	gaps      []Gap
	replay    sweep.Sweep
	hasReplay bool
	counters  Counters
	shutdown  bool

	callbacks []func(sweeps []sweep.Sweep, intervals []time.Duration, gaps []Gap)
	cbMu      sync.RWMutex
}

// New creates a new Monitor.
func New(cfg *config.Config) *Monitor {
	return &Monitor{
		window:    time.Duration(cfg.Display.WindowSeconds * float64(time.Second)),
		period:    cfg.Payload.SamplePeriod,
		tolerance: cfg.Display.GapTolerance,
		maxPoints: cfg.Display.MaxPoints,
	}
}

// ProcessSweeps consumes sweeps until input is closed. After that no more
// callbacks are sent until ResetShutdown.
func (m *Monitor) ProcessSweeps(input <-chan sweep.Sweep) {
	for s := range input {
		m.Process(s)
	}
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
}

// Process records one sweep and notifies callbacks.
func (m *Monitor) Process(s sweep.Sweep) {
	if m.processSweep(s) {
		m.notifyCallbacks()
	}
}

// processSweep records s and reports whether callbacks should run.
func (m *Monitor) processSweep(s sweep.Sweep) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Replay {
		m.counters.Replay++
		m.replay = s
		m.hasReplay = true
		return !m.shutdown
	}

	m.counters.Live++
	if n := len(m.sweeps); n > 0 {
		prev := m.sweeps[n-1]
		delta := s.Timestamp - prev.Timestamp
		if int32(delta) <= 0 {
			// The payload restarted: start a fresh series.
			m.counters.Resets++
			m.sweeps = m.sweeps[:0]
			m.intervals = m.intervals[:0]
			m.gaps = m.gaps[:0]
		} else {
			interval := time.Duration(delta) * time.Microsecond
			m.intervals = append(m.intervals, interval)
			m.classify(interval, n, s.Received)
		}
	}
	m.sweeps = append(m.sweeps, s)
	m.trim(s.Received)

	return !m.shutdown
}

// classify records a gap if interval is outside period ± tolerance.
func (m *Monitor) classify(interval time.Duration, index int, at time.Time) {
	if m.period <= 0 {
		return
	}
	switch {
	case interval > m.period+m.tolerance:
		missed := int(math.Round(float64(interval)/float64(m.period))) - 1
		if missed < 1 {
			missed = 1
		}
		m.gaps = append(m.gaps, Gap{Index: index, Time: at, Interval: interval, Missed: missed})
		m.counters.Gaps++
		m.counters.Missed += missed
	case interval < m.period-m.tolerance:
		m.gaps = append(m.gaps, Gap{Index: index, Time: at, Interval: interval})
		m.counters.Early++
	}
}

// trim drops sweeps received more than the window before now, keeping
// intervals and gap indices aligned with the sweeps.
func (m *Monitor) trim(now time.Time) {
	cutoff := now.Add(-m.window)
	n := 0
	for n < len(m.sweeps)-1 && !m.sweeps[n].Received.After(cutoff) {
		n++
	}
	if n == 0 {
		return
	}

	m.sweeps = append(m.sweeps[:0], m.sweeps[n:]...)
	if n <= len(m.intervals) {
		m.intervals = append(m.intervals[:0], m.intervals[n:]...)
	} else {
		m.intervals = m.intervals[:0]
	}

	kept := m.gaps[:0]
	for _, g := range m.gaps {
		g.Index -= n
		if g.Index >= 1 {
			kept = append(kept, g)
		}
	}
	m.gaps = kept
}

// Sweeps returns a copy of the live sweeps in the window.
func (m *Monitor) Sweeps() []sweep.Sweep {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]sweep.Sweep(nil), m.sweeps...)
}

// Intervals returns a copy of the intervals between the sweeps.
func (m *Monitor) Intervals() []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Duration(nil), m.intervals...)
}

// Gaps returns a copy of the gaps in the window.
func (m *Monitor) Gaps() []Gap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Gap(nil), m.gaps...)
}

// LatestReplay returns the most recent replayed sweep.
func (m *Monitor) LatestReplay() (sweep.Sweep, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.replay, m.hasReplay
}

// Counters returns totals since the monitor was created.
func (m *Monitor) Counters() Counters {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters
}

// History returns the mean output of channel ch for every live sweep in
// the window, decimated to the configured number of points.
func (m *Monitor) History(dst []sweep.Point, ch int) []sweep.Point {
	m.mu.RLock()
	points := make([]sweep.Point, len(m.sweeps))
	for i := range m.sweeps {
		points[i] = sweep.Point{Time: m.sweeps[i].Received, Value: m.sweeps[i].Mean(ch)}
	}
	m.mu.RUnlock()

	return sweep.Downsample(dst, points, m.maxPoints)
}

// OnUpdate registers a callback invoked after every processed sweep.
// The callback receives copies and should return quickly.
func (m *Monitor) OnUpdate(callback func(sweeps []sweep.Sweep, intervals []time.Duration, gaps []Gap)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// ResetShutdown allows callbacks again after the input channel was closed.
// Call it before starting a new processing chain.
func (m *Monitor) ResetShutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = false
}

func (m *Monitor) notifyCallbacks() {
	sweeps, intervals, gaps := m.Sweeps(), m.Intervals(), m.Gaps()

	m.cbMu.RLock()
	callbacks := slices.Clone(m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(sweeps, intervals, gaps)
		}
	}
}
