package payload

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/pipshield/pkg/clock"
	"github.com/itohio/pipshield/pkg/eeprom"
	"github.com/itohio/pipshield/pkg/frame"
	"github.com/itohio/pipshield/pkg/fsm"
	"github.com/itohio/pipshield/pkg/pdc"
)

const (
	period = 25000
	offset = 500
)

type counterSweeper struct{ n uint16 }

func (s *counterSweeper) Sweep(out *frame.Sweep) {
	s.n++
	for i := range out {
		out[i] = s.n*100 + uint16(i)
	}
}

type counterIMU struct{ n int16 }

func (m *counterIMU) Sample(out *frame.IMU) {
	m.n++
	for i := range out {
		out[i] = m.n*10 + int16(i)
	}
}

type pin struct{ high []bool }

func (p *pin) Set(high bool) { p.high = append(p.high, high) }

type rig struct {
	clk     *clock.Manual
	chip    *eeprom.MemChip
	store   *eeprom.Log
	uart    *pdc.FakeUART
	out     *bytes.Buffer
	payload *Payload
	sched   *fsm.Scheduler
	drain   bool
}

func newRig(t *testing.T, capacity uint32, opts Options) *rig {
	t.Helper()
	r := &rig{clk: clock.NewManual(0, 1), out: &bytes.Buffer{}, drain: true}
	r.chip = eeprom.NewMemChip(int(capacity), 256)
	store, err := eeprom.New(r.chip, r.clk, eeprom.Options{Capacity: capacity, PageSize: 256, ReadyTimeout: 1000})
	require.NoError(t, err)
	r.store = store
	r.uart = pdc.NewFakeUART(r.out)
	tx := pdc.New(r.uart.Registers(), r.uart, r.clk, pdc.Options{ReadyTimeout: 1000})
	tx.Enable()

	if opts.ShieldID == 0 {
		opts.ShieldID = 60
	}
	r.payload = New(r.clk, &counterSweeper{}, &counterIMU{}, store, tx, opts)
	r.sched = fsm.New(r.payload, r.clk, nil, fsm.Options{Period: period, Offset: offset})
	return r
}

// cycle runs one full scheduler cycle. inject, if set, is called when the
// scheduler reaches that state.
func (r *rig) cycle(t *testing.T, inject fsm.State, hook func()) {
	t.Helper()
	r.clk.Advance(offset + 1)
	r.sched.Step()
	require.Equal(t, fsm.StartSweep, r.sched.State())
	for i := 0; r.sched.State() != fsm.WaitForNewCycle; i++ {
		require.Less(t, i, 10)
		if hook != nil && r.sched.State() == inject {
			hook()
		}
		r.sched.Step()
	}
	if r.drain {
		r.uart.Drain()
	}
	r.clk.Advance(period)
	r.sched.Tick()
	r.sched.Step()
	require.Equal(t, fsm.Idle, r.sched.State())
}

func (r *rig) frames() []frame.Frame {
	var out []frame.Frame
	var p frame.Parser
	p.ParseAll(r.out.Bytes(), func(f frame.Frame) { out = append(out, f) })
	return out
}

func kinds(frames []frame.Frame) []frame.Kind {
	k := make([]frame.Kind, len(frames))
	for i, f := range frames {
		k[i] = f.Kind
	}
	return k
}

func TestLiveTelemetry(t *testing.T) {
	r := newRig(t, 1<<14, Options{ReplayDelay: 1 << 30, MaxChipFailures: 3})

	for i := 0; i < 4; i++ {
		r.cycle(t, 0, nil)
	}

	// The first cycle has nothing to send yet.
	got := r.frames()
	require.Equal(t, []frame.Kind{
		frame.KindSweep, frame.KindIMU,
		frame.KindSweep, frame.KindIMU,
		frame.KindSweep, frame.KindIMU,
	}, kinds(got))

	for i := 0; i < 3; i++ {
		s, ok := got[2*i].Sweep()
		require.True(t, ok)
		assert.Equal(t, uint16(i+1)*100, s[0], "sweep %d", i)
		assert.Equal(t, byte(60), got[2*i].ID)

		m, ok := got[2*i+1].IMU()
		require.True(t, ok)
		assert.Equal(t, int16(i+1)*10, m[0], "imu %d", i)
		assert.Greater(t, got[2*i+1].Timestamp, got[2*i].Timestamp)
	}

	st := r.payload.Stats()
	assert.Equal(t, uint32(4), st.Cycles)
	assert.Equal(t, uint32(3), st.LiveSent)
	assert.Equal(t, uint32(4), st.RecordsStored)
	assert.Zero(t, st.ReplaySent)
	assert.Equal(t, uint32(4*frame.RecordSize), r.store.UsedBytes())
}

func TestReplayFollowsLiveSegment(t *testing.T) {
	r := newRig(t, 1<<14, Options{MaxChipFailures: 3})

	r.cycle(t, 0, nil) // stores record 1
	r.cycle(t, 0, nil) // sends live 1, reads back record 1, stores record 2
	r.cycle(t, 0, nil) // sends live 2 + replay 1

	got := r.frames()
	require.Equal(t, []frame.Kind{
		frame.KindSweep, frame.KindIMU,
		frame.KindSweep, frame.KindIMU, frame.KindIMUReplay, frame.KindSweepReplay,
	}, kinds(got))

	live1, _ := got[0].Sweep()
	replay1, ok := got[5].Sweep()
	require.True(t, ok)
	assert.Equal(t, live1, replay1)
	assert.Equal(t, got[0].Timestamp, got[5].Timestamp)
	assert.Equal(t, got[1].Timestamp, got[4].Timestamp)

	st := r.payload.Stats()
	assert.Equal(t, uint32(2), st.RecordsReplayed)
	assert.Equal(t, uint32(1), st.ReplaySent)
}

func TestReplayWaitsForWarmUp(t *testing.T) {
	r := newRig(t, 1<<14, Options{ReplayDelay: 3 * period, MaxChipFailures: 3})

	for i := 0; i < 3; i++ {
		r.cycle(t, 0, nil)
	}
	assert.Zero(t, r.payload.Stats().RecordsReplayed)

	r.cycle(t, 0, nil)
	assert.Equal(t, uint32(1), r.payload.Stats().RecordsReplayed)
}

func TestInterruptedCycleIsNotSent(t *testing.T) {
	r := newRig(t, 1<<14, Options{ReplayDelay: 1 << 30, MaxChipFailures: 3})

	r.cycle(t, fsm.TakeSample, r.sched.Sync)
	r.cycle(t, 0, nil)
	r.cycle(t, 0, nil)

	// Only the second cycle's sweep is sent, by the third cycle.
	got := r.frames()
	require.Equal(t, []frame.Kind{frame.KindSweep, frame.KindIMU}, kinds(got))
	s, _ := got[0].Sweep()
	assert.Equal(t, uint16(200), s[0])

	st := r.payload.Stats()
	assert.Equal(t, uint32(1), st.Interrupted)
	assert.Equal(t, uint32(1), st.StaleSweeps)
	assert.Equal(t, uint32(2), st.RecordsStored, "interrupted cycle is not stored")
}

func TestPendingReplaySurvivesInterruption(t *testing.T) {
	r := newRig(t, 1<<14, Options{MaxChipFailures: 3})

	r.cycle(t, 0, nil)                     // store 1
	r.cycle(t, fsm.ReadBack, r.sched.Sync) // read back 1, interrupted before storing
	r.cycle(t, 0, nil)                     // nothing saved to send; replay 1 stays pending
	r.cycle(t, 0, nil)                     // sends live 3 + replay 1

	got := r.frames()
	require.Equal(t, []frame.Kind{
		frame.KindSweep, frame.KindIMU,
		frame.KindSweep, frame.KindIMU, frame.KindIMUReplay, frame.KindSweepReplay,
	}, kinds(got))
	live, _ := got[2].Sweep()
	assert.Equal(t, uint16(300), live[0])
	replay, _ := got[5].Sweep()
	assert.Equal(t, uint16(100), replay[0])
	assert.Equal(t, uint32(1), r.payload.Stats().ReplaySent)
}

func TestFullLogDropsRecords(t *testing.T) {
	r := newRig(t, 1024, Options{ReplayDelay: 1 << 30, MaxChipFailures: 3})

	for i := 0; i < 10; i++ {
		r.cycle(t, 0, nil)
	}
	st := r.payload.Stats()
	assert.Equal(t, uint32(1024/frame.RecordSize), st.RecordsStored)
	assert.Equal(t, uint32(10-1024/frame.RecordSize), st.RecordsDropped)
	assert.True(t, st.StorageEnabled)
	assert.Equal(t, uint32(9), st.LiveSent, "telemetry continues")
}

// nearlyFullStage leaves the log stage a few bytes short of a page so the
// next record append has to flush.
func (r *rig) nearlyFullStage(t *testing.T) {
	t.Helper()
	require.NoError(t, r.store.Append(make([]byte, 250)))
}

func TestChipFailuresDisableStorage(t *testing.T) {
	r := newRig(t, 1<<14, Options{ReplayDelay: 1 << 30, MaxChipFailures: 2})

	r.nearlyFullStage(t)
	r.chip.Stall(true)
	for i := 0; i < 6; i++ {
		r.cycle(t, 0, nil)
	}

	st := r.payload.Stats()
	assert.False(t, st.StorageEnabled)
	assert.False(t, r.payload.StorageEnabled())
	assert.Equal(t, uint32(2), st.ChipFailures)
	assert.Zero(t, st.RecordsStored)
	assert.Equal(t, uint32(5), st.LiveSent)
}

func TestChipRecoversBeforeLimit(t *testing.T) {
	r := newRig(t, 1<<14, Options{ReplayDelay: 1 << 30, MaxChipFailures: 2})

	r.nearlyFullStage(t)
	r.chip.Stall(true)
	r.cycle(t, 0, nil)
	r.chip.Stall(false)
	r.cycle(t, 0, nil)
	r.chip.Stall(true)
	r.cycle(t, 0, nil)

	st := r.payload.Stats()
	assert.True(t, st.StorageEnabled)
	assert.Equal(t, uint32(2), st.ChipFailures)
	assert.Equal(t, uint32(1), st.RecordsStored)
}

func TestNoStorage(t *testing.T) {
	r := newRig(t, 1<<14, Options{})
	r.payload = New(r.clk, &counterSweeper{}, &counterIMU{}, nil, pdc.New(r.uart.Registers(), r.uart, r.clk, pdc.Options{ReadyTimeout: 1000}), Options{ShieldID: 1})
	r.sched = fsm.New(r.payload, r.clk, nil, fsm.Options{Period: period, Offset: offset})

	r.cycle(t, 0, nil)
	r.cycle(t, 0, nil)
	st := r.payload.Stats()
	assert.False(t, st.StorageEnabled)
	assert.Equal(t, uint32(1), st.LiveSent)
	assert.Zero(t, st.RecordsStored)
}

func TestBusyLinkCountsTimeouts(t *testing.T) {
	r := newRig(t, 1<<14, Options{ReplayDelay: 1 << 30, MaxChipFailures: 3})
	r.drain = false

	for i := 0; i < 3; i++ {
		r.cycle(t, 0, nil)
	}
	st := r.payload.Stats()
	assert.Equal(t, uint32(1), st.LiveSent)
	assert.Equal(t, uint32(1), st.TransmitTimeouts)

	// Once the link drains, the first frame arrives intact.
	r.uart.Drain()
	assert.Equal(t, []frame.Kind{frame.KindSweep, frame.KindIMU}, kinds(r.frames()))
}

func TestGapIndicator(t *testing.T) {
	gap := &pin{}
	r := newRig(t, 1<<14, Options{ReplayDelay: 1 << 30, GapThreshold: 22000, GapIndicator: gap})

	r.cycle(t, 0, nil)
	r.cycle(t, 0, nil)

	// A sync pulse ends the third cycle early, so the fourth sweep follows
	// closely.
	r.clk.Advance(offset + 1)
	for r.sched.State() != fsm.WaitForNewCycle {
		r.sched.Step()
	}
	r.uart.Drain()
	r.clk.Advance(1000)
	r.sched.Sync()
	r.sched.Step()
	require.Equal(t, fsm.Idle, r.sched.State())
	r.cycle(t, 0, nil)

	assert.Equal(t, []bool{false, false, true}, gap.high)
}
