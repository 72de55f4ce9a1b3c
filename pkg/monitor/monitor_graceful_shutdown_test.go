package monitor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/itohio/pipshield/pkg/sweep"
)

// TestMonitor_GracefulShutdown_NoCallbacksAfterClose tests that the monitor
// stops sending callbacks after the input channel is closed.
func TestMonitor_GracefulShutdown_NoCallbacksAfterClose(t *testing.T) {
	m := New(testConfig())

	var calls atomic.Int32
	m.OnUpdate(func(sweeps []sweep.Sweep, intervals []time.Duration, gaps []Gap) {
		calls.Add(1)
	})

	input := make(chan sweep.Sweep, 10)
	done := make(chan struct{})
	go func() {
		m.ProcessSweeps(input)
		close(done)
	}()

	for i := uint32(1); i <= 3; i++ {
		input <- live(i*25000, 1)
	}
	close(input)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ProcessSweeps did not return after input closed")
	}
	assert.Equal(t, int32(3), calls.Load())

	// A straggler fed directly is recorded but not announced.
	m.processSweep(live(100000, 1))
	assert.Len(t, m.Sweeps(), 4)

	input2 := make(chan sweep.Sweep, 1)
	input2 <- live(125000, 1)
	close(input2)
	m.ProcessSweeps(input2)
	assert.Equal(t, int32(3), calls.Load(), "no callbacks after shutdown")
}

// TestMonitor_ResetShutdown tests that callbacks resume for a new chain.
func TestMonitor_ResetShutdown(t *testing.T) {
	m := New(testConfig())

	var calls atomic.Int32
	m.OnUpdate(func([]sweep.Sweep, []time.Duration, []Gap) { calls.Add(1) })

	first := make(chan sweep.Sweep)
	close(first)
	m.ProcessSweeps(first)

	m.ResetShutdown()
	second := make(chan sweep.Sweep, 2)
	second <- live(25000, 1)
	second <- live(50000, 1)
	close(second)
	m.ProcessSweeps(second)

	assert.Equal(t, int32(2), calls.Load())
}
