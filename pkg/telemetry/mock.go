package telemetry

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/itohio/pipshield/pkg/config"
	"github.com/itohio/pipshield/pkg/frame"
	"github.com/itohio/pipshield/pkg/payload"
	"github.com/itohio/pipshield/pkg/sim"
)

// Mock receives telemetry from a simulated payload running in-process.
// The simulated downlink goes through the same byte-level decoder as a
// serial port.
type Mock struct {
	cfg *config.Config

	mu        sync.RWMutex
	frames    chan frame.Frame
	sim       *sim.Payload
	pipe      *io.PipeReader
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
	counters  counters
}

// NewMock creates a new mocked receiver. A nil cfg uses config.Default().
func NewMock(cfg *config.Config) *Mock {
	if cfg == nil {
		cfg = config.Default()
	}

	return &Mock{
		cfg:    cfg,
		frames: make(chan frame.Frame, DefaultBufferSize),
	}
}

// Connect starts the simulated payload.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	pr, pw := io.Pipe()
	p, err := sim.NewPayload(m.cfg, pw, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to start simulated payload: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.sim = p
	m.pipe = pr
	m.cancel = cancel
	m.done = make(chan struct{})
	m.connected = true

	p.Start(ctx)
	go func(done chan struct{}) {
		defer close(done)
		pump(ctx, pr, m.frames, &m.counters)
	}(m.done)

	return nil
}

// Close stops the simulated payload and closes the frames channel.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.cancel()
	// Unblocks a UART write stuck on the pipe.
	m.pipe.Close()
	m.sim.Wait()
	<-m.done

	m.connected = false
	close(m.frames)

	return nil
}

// Frames returns the channel for reading decoded frames.
func (m *Mock) Frames() <-chan frame.Frame {
	return m.frames
}

// IsConnected returns whether the simulation is running.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Counters returns stream statistics.
func (m *Mock) Counters() Counters {
	return m.counters.snapshot()
}

// Stats returns the simulated flight software counters.
func (m *Mock) Stats() payload.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sim == nil {
		return payload.Stats{}
	}
	return m.sim.Stats()
}
