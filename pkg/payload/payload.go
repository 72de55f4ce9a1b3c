// Package payload is the flight application: it implements the scheduler
// actions by driving the analog front-end, the IMU, the EEPROM log and the
// telemetry transmitter.
//
// Each cycle the previous cycle's result is transmitted first (with one
// replayed record from storage when available), then a new sweep and IMU
// sample are taken, an old record is read back and the new one is stored.
package payload

import (
	"errors"
	"io"
	"log"
	"sync/atomic"

	"github.com/itohio/pipshield/pkg/clock"
	"github.com/itohio/pipshield/pkg/eeprom"
	"github.com/itohio/pipshield/pkg/frame"
	"github.com/itohio/pipshield/pkg/fsm"
	"github.com/itohio/pipshield/pkg/pdc"
)

// Sweeper runs one DAC sweep and returns both probe channels.
type Sweeper interface {
	Sweep(s *frame.Sweep)
}

// IMU returns one magnetometer, accelerometer and gyroscope sample.
type IMU interface {
	Sample(m *frame.IMU)
}

// Indicator is a digital output such as machine.Pin.
type Indicator interface {
	Set(high bool)
}

// Options configures a Payload.
type Options struct {
	ShieldID byte
	// ReplayDelay is the warm-up, in microseconds, before stored records
	// are read back.
	ReplayDelay uint32
	// MaxChipFailures consecutive chip timeouts disable storage for the
	// rest of the session. Zero keeps retrying forever.
	MaxChipFailures int
	// GapThreshold, in microseconds, drives GapIndicator high when two
	// sweeps start closer together than this.
	GapThreshold uint32
	GapIndicator Indicator
	// Logger receives diagnostics. Defaults to discarding them: on the
	// MCU the console is the telemetry link.
	Logger *log.Logger
}

// Ensure Payload implements fsm.Actions.
var _ fsm.Actions = (*Payload)(nil)

// Payload owns all per-cycle state of the application.
type Payload struct {
	clk     clock.Clock
	sweeper Sweeper
	imu     IMU
	store   *eeprom.Log
	tx      *pdc.Transmitter
	framer  *frame.Framer
	opts    Options
	logger  *log.Logger

	start      uint32
	lastSweep  uint32
	rec        frame.Record
	replay     frame.Record
	pending    bool // replay holds a record not yet transmitted
	savedSweep bool
	warm       bool
	failures   int
	storageOff atomic.Bool

	recBuf [frame.RecordSize]byte
	bufs   [2][2 * frame.SegmentSize]byte
	guards [2][2]pdc.Transfer
	cur    int

	counters counters
}

// New creates a Payload. store may be nil to run without storage.
func New(clk clock.Clock, sweeper Sweeper, imu IMU, store *eeprom.Log, tx *pdc.Transmitter, opts Options) *Payload {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	p := &Payload{
		clk:     clk,
		sweeper: sweeper,
		imu:     imu,
		store:   store,
		tx:      tx,
		framer:  frame.NewFramer(opts.ShieldID),
		opts:    opts,
		logger:  logger,
		start:   clk.Micros(),
	}
	p.storageOff.Store(store == nil)
	return p
}

// StartSweep transmits the previous result and runs a new sweep.
func (p *Payload) StartSweep() {
	p.counters.cycles.Add(1)
	p.send()

	now := p.clk.Micros()
	ts := now - p.start
	if p.opts.GapIndicator != nil && p.counters.cycles.Load() > 1 {
		p.opts.GapIndicator.Set(ts-p.lastSweep < p.opts.GapThreshold)
	}
	p.lastSweep = ts
	p.rec.SweepTime = ts
	p.sweeper.Sweep(&p.rec.Sweep)
	p.savedSweep = true
}

// TakeSample timestamps and samples the IMU.
func (p *Payload) TakeSample() {
	p.rec.IMUTime = p.clk.Micros() - p.start
	p.imu.Sample(&p.rec.IMU)
}

// ReadBack pops the oldest stored record for replay once the warm-up has
// passed and no earlier replay is still waiting to be sent.
func (p *Payload) ReadBack() {
	if p.storageOff.Load() || p.pending {
		return
	}
	if !p.warm {
		if clock.Since(p.clk, p.start) <= p.opts.ReplayDelay {
			return
		}
		p.warm = true
		p.logger.Printf("payload: replay enabled")
	}
	if p.store.UsedBytes() < frame.RecordSize {
		return
	}

	n, err := p.store.Pop(p.recBuf[:])
	if err != nil {
		p.chipFailure(err)
		return
	}
	p.failures = 0
	if n < frame.RecordSize {
		p.counters.partialReads.Add(1)
		return
	}
	// The buffer is exactly RecordSize long.
	_ = p.replay.Unmarshal(p.recBuf[:])
	p.pending = true
	p.counters.replayed.Add(1)
}

// Store appends this cycle's record to the log. A full log drops the record.
func (p *Payload) Store() {
	if p.storageOff.Load() {
		return
	}
	n, _ := p.rec.MarshalTo(p.recBuf[:])
	err := p.store.Append(p.recBuf[:n])
	switch {
	case err == nil:
		p.failures = 0
		p.counters.stored.Add(1)
	case errors.Is(err, eeprom.ErrInsufficientSpace):
		p.counters.dropped.Add(1)
	default:
		p.chipFailure(err)
	}
}

// Interrupted discards the sweep of the cycle cut short by a sync pulse.
func (p *Payload) Interrupted() {
	if p.savedSweep {
		p.counters.stale.Add(1)
	}
	p.savedSweep = false
	p.counters.interrupted.Add(1)
}

// send transmits the saved result from the next free frame buffer: the
// live segment on the primary descriptor, the replay segment chained on
// the secondary one.
func (p *Payload) send() {
	if !p.savedSweep {
		return
	}
	p.savedSweep = false

	g := &p.guards[p.cur]
	for _, x := range g {
		if err := x.Wait(); err != nil {
			p.counters.txTimeouts.Add(1)
			p.logger.Printf("payload: frame buffer %d still in flight: %v", p.cur, err)
			return
		}
	}

	buf := p.bufs[p.cur][:]
	n, err := p.framer.Live(buf[:frame.SegmentSize], &p.rec)
	if err != nil {
		p.logger.Printf("payload: frame live segment: %v", err)
		return
	}
	if g[0], err = p.tx.Send(buf[:n]); err != nil {
		p.counters.txTimeouts.Add(1)
		p.logger.Printf("payload: send live segment: %v", err)
		return
	}
	p.counters.liveSent.Add(1)

	if p.pending {
		n, err = p.framer.Replay(buf[frame.SegmentSize:], &p.replay)
		if err == nil {
			g[1], err = p.tx.SendNext(buf[frame.SegmentSize : frame.SegmentSize+n])
		}
		if err != nil {
			p.counters.txTimeouts.Add(1)
			p.logger.Printf("payload: send replay segment: %v", err)
		} else {
			p.pending = false
			p.counters.replaySent.Add(1)
		}
	}
	p.cur ^= 1
}

func (p *Payload) chipFailure(err error) {
	p.failures++
	p.counters.chipFailures.Add(1)
	p.logger.Printf("payload: storage: %v (%d in a row)", err, p.failures)
	if p.opts.MaxChipFailures > 0 && p.failures >= p.opts.MaxChipFailures {
		p.storageOff.Store(true)
		p.logger.Printf("payload: storage disabled")
	}
}

// StorageEnabled reports whether records are still being stored.
func (p *Payload) StorageEnabled() bool {
	return !p.storageOff.Load()
}
