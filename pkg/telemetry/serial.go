package telemetry

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/itohio/pipshield/pkg/frame"
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
	USB         bool
}

// Serial receives telemetry from the payload over a serial port.
type Serial struct {
	port     string
	baudRate int
	bufSize  int

	mu        sync.RWMutex
	conn      serial.Port
	capture   io.Writer
	frames    chan frame.Frame
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
	counters  counters
}

// New creates a new Serial receiver with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	return &Serial{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		frames:   make(chan frame.Frame, bufSize),
	}
}

// Ports returns a list of available serial ports. USB ports carry their
// product string and VID:PID in the description.
func Ports() ([]Port, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, p := range ports {
		desc := p.Name
		if p.IsUSB {
			desc = fmt.Sprintf("%s (%s:%s %s)", p.Name, p.VID, p.PID, p.Product)
		}
		result = append(result, Port{
			Name:        p.Name,
			Description: desc,
			USB:         p.IsUSB,
		})
	}

	return result, nil
}

// Capture tees every raw byte read from the port to w. It must be called
// before Connect.
func (d *Serial) Capture(w io.Writer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.capture = w
}

// Connect opens the serial port and starts decoding frames.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(d.port, &serial.Mode{
		BaudRate: d.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	var r io.Reader = port
	if d.capture != nil {
		r = io.TeeReader(port, d.capture)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.conn = port
	d.cancel = cancel
	d.done = make(chan struct{})
	d.connected = true

	go func(done chan struct{}) {
		defer close(done)
		pump(ctx, r, d.frames, &d.counters)
	}(d.done)

	return nil
}

// Close closes the port, waits for the reader to stop and closes the
// frames channel.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()
	if err := d.conn.Close(); err != nil {
		log.Printf("Error closing serial port: %v", err)
	}
	<-d.done

	d.conn = nil
	d.connected = false
	close(d.frames)

	return nil
}

// Frames returns the channel for reading decoded frames.
func (d *Serial) Frames() <-chan frame.Frame {
	return d.frames
}

// IsConnected returns whether the port is currently open.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Counters returns stream statistics.
func (d *Serial) Counters() Counters {
	return d.counters.snapshot()
}
