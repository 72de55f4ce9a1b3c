// Package relay forwards decoded downlink frames to other consumers: an
// MQTT broker and websocket clients, as JSON messages.
package relay

import (
	"encoding/json"
	"log"
	"time"

	"github.com/itohio/pipshield/pkg/frame"
)

// Sink receives frames.
type Sink interface {
	Publish(f frame.Frame) error
	Close() error
}

// Message is the JSON form of a frame.
type Message struct {
	Kind      string   `json:"kind"`
	Replay    bool     `json:"replay"`
	ID        *uint8   `json:"id,omitempty"`
	Timestamp uint32   `json:"timestamp_us"`
	Sweep     []uint16 `json:"sweep,omitempty"`
	IMU       []int16  `json:"imu,omitempty"`
}

// NewMessage converts f to its JSON form.
func NewMessage(f frame.Frame) Message {
	m := Message{
		Kind:      f.Kind.String(),
		Replay:    f.Kind.IsReplay(),
		Timestamp: f.Timestamp,
	}
	if f.Kind.HasID() {
		id := f.ID
		m.ID = &id
	}
	if s, ok := f.Sweep(); ok {
		m.Sweep = s[:]
	}
	if v, ok := f.IMU(); ok {
		m.IMU = v[:]
	}
	return m
}

// Encode returns the JSON encoding of f.
func Encode(f frame.Frame) ([]byte, error) {
	return json.Marshal(NewMessage(f))
}

// Forward publishes every frame from frames to all sinks until frames is
// closed. Publish errors are logged at most once a second per sink.
func Forward(frames <-chan frame.Frame, sinks ...Sink) {
	lastErr := make([]time.Time, len(sinks))
	for f := range frames {
		for i, s := range sinks {
			if err := s.Publish(f); err != nil && time.Since(lastErr[i]) > time.Second {
				log.Printf("Relay publish failed: %v", err)
				lastErr[i] = time.Now()
			}
		}
	}
}
