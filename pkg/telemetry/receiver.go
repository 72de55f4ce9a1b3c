// Package telemetry receives the payload's downlink on the ground, either
// from a serial port or from a simulated payload.
package telemetry

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/itohio/pipshield/pkg/frame"
)

const (
	// DefaultBaudRate is the telemetry UART rate.
	DefaultBaudRate = 230400
	// DefaultBufferSize is the default size for the frames channel buffer.
	DefaultBufferSize = 100
)

// Receiver defines the interface for telemetry sources (real or mocked).
type Receiver interface {
	Connect() error
	Close() error
	Frames() <-chan frame.Frame
	IsConnected() bool
}

// Ensure Serial implements Receiver.
var _ Receiver = (*Serial)(nil)

// Ensure Mock implements Receiver.
var _ Receiver = (*Mock)(nil)

// Counters describes the health of the byte stream seen by a receiver.
type Counters struct {
	Frames  uint64 // frames decoded
	Dropped uint64 // frames lost because the consumer fell behind
	Skipped uint64 // bytes discarded while hunting for a marker
	Unknown uint64 // headers with an unknown kind tag
}

type counters struct {
	frames, dropped, skipped, unknown atomic.Uint64
}

func (c *counters) snapshot() Counters {
	return Counters{
		Frames:  c.frames.Load(),
		Dropped: c.dropped.Load(),
		Skipped: c.skipped.Load(),
		Unknown: c.unknown.Load(),
	}
}

// pump decodes frames from r into out until r fails or ctx is done. It
// never blocks on a full channel: frames the consumer cannot take are
// dropped and counted.
func pump(ctx context.Context, r io.Reader, out chan<- frame.Frame, c *counters) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in telemetry reader: %v", r)
		}
	}()

	fr := frame.NewReader(r)
	var lastDrop time.Time
	for {
		f, err := fr.Next()
		c.skipped.Store(uint64(fr.Skipped))
		c.unknown.Store(uint64(fr.Unknown))
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				log.Printf("Error reading telemetry: %v", err)
			}
			return
		}
		c.frames.Add(1)

		select {
		case out <- f:
		case <-ctx.Done():
			return
		default:
			c.dropped.Add(1)
			if time.Since(lastDrop) > time.Second {
				log.Printf("Frames channel full, dropping frames")
				lastDrop = time.Now()
			}
		}
	}
}
