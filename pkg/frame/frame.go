// Package frame defines the telemetry wire format, the record layout kept
// in the payload's EEPROM log, and the encoder and decoder for both.
//
// Every frame is
//
//	"##" kind [id] timestamp payload
//
// where kind is one byte, id is the shield id (sweep frames only),
// timestamp is a little-endian uint32 in microseconds since power-up and
// the payload length is fixed by the kind. All multi-byte fields are
// little-endian.
package frame

import (
	"encoding/binary"
	"fmt"
)

// Marker starts every frame.
const Marker = "##"

// Kind is the one-byte frame type tag.
type Kind byte

const (
	KindSweep       Kind = 'S'
	KindSweepReplay Kind = 'T'
	KindIMU         Kind = 'I'
	KindIMUReplay   Kind = 'J'
)

// Sweep and IMU geometry.
const (
	Steps        = 28 // DAC steps per sweep
	Channels     = 2  // probes read per step
	SweepSamples = Steps * Channels
	IMUSamples   = 9 // magnetometer, accelerometer, gyroscope; x y z each

	SweepPayloadSize = SweepSamples * 2
	IMUPayloadSize   = IMUSamples * 2

	headerSize     = len(Marker) + 1
	timestampSize  = 4
	SweepFrameSize = headerSize + 1 + timestampSize + SweepPayloadSize
	IMUFrameSize   = headerSize + timestampSize + IMUPayloadSize

	// SegmentSize is the length of the live or the replay half of a cycle's
	// telemetry: one sweep frame and one IMU frame.
	SegmentSize = SweepFrameSize + IMUFrameSize
	// MaxFrameSize is the largest frame of any kind.
	MaxFrameSize = SweepFrameSize
)

// Sweep holds one sweep, channel-major: all steps of the first probe,
// then all steps of the second.
type Sweep [SweepSamples]uint16

// IMU holds one IMU sample: magnetometer xyz, accelerometer xyz, gyro xyz.
type IMU [IMUSamples]int16

func (k Kind) String() string {
	switch k {
	case KindSweep:
		return "sweep"
	case KindSweepReplay:
		return "sweep-replay"
	case KindIMU:
		return "imu"
	case KindIMUReplay:
		return "imu-replay"
	}
	return fmt.Sprintf("kind(%#02x)", byte(k))
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSweep, KindSweepReplay, KindIMU, KindIMUReplay:
		return true
	}
	return false
}

// IsSweep reports whether frames of this kind carry a sweep.
func (k Kind) IsSweep() bool { return k == KindSweep || k == KindSweepReplay }

// IsReplay reports whether frames of this kind were read back from storage.
func (k Kind) IsReplay() bool { return k == KindSweepReplay || k == KindIMUReplay }

// HasID reports whether the source id byte follows the kind tag.
func (k Kind) HasID() bool { return k.IsSweep() }

// PayloadSize returns the payload length, or 0 for an invalid kind.
func (k Kind) PayloadSize() int {
	switch {
	case !k.Valid():
		return 0
	case k.IsSweep():
		return SweepPayloadSize
	}
	return IMUPayloadSize
}

// Size returns the whole frame length, or 0 for an invalid kind.
func (k Kind) Size() int {
	switch {
	case !k.Valid():
		return 0
	case k.IsSweep():
		return SweepFrameSize
	}
	return IMUFrameSize
}

// PutSweep encodes a sweep frame into dst and returns its length.
func PutSweep(dst []byte, kind Kind, id byte, ts uint32, s *Sweep) (int, error) {
	if !kind.IsSweep() {
		return 0, fmt.Errorf("%w: %v is not a sweep kind", ErrUnknownKind, kind)
	}
	if len(dst) < SweepFrameSize {
		return 0, ErrShortBuffer
	}
	n := copy(dst, Marker)
	dst[n] = byte(kind)
	dst[n+1] = id
	n += 2
	binary.LittleEndian.PutUint32(dst[n:], ts)
	n += timestampSize
	for _, v := range s {
		binary.LittleEndian.PutUint16(dst[n:], v)
		n += 2
	}
	return n, nil
}

// PutIMU encodes an IMU frame into dst and returns its length.
func PutIMU(dst []byte, kind Kind, ts uint32, m *IMU) (int, error) {
	if kind != KindIMU && kind != KindIMUReplay {
		return 0, fmt.Errorf("%w: %v is not an IMU kind", ErrUnknownKind, kind)
	}
	if len(dst) < IMUFrameSize {
		return 0, ErrShortBuffer
	}
	n := copy(dst, Marker)
	dst[n] = byte(kind)
	n++
	binary.LittleEndian.PutUint32(dst[n:], ts)
	n += timestampSize
	for _, v := range m {
		binary.LittleEndian.PutUint16(dst[n:], uint16(v))
		n += 2
	}
	return n, nil
}

// Frame is a decoded telemetry frame.
type Frame struct {
	Kind      Kind
	ID        byte // zero for kinds without an id
	Timestamp uint32
	Payload   []byte
}

// Sweep decodes the payload of a sweep frame.
func (f *Frame) Sweep() (s Sweep, ok bool) {
	if !f.Kind.IsSweep() || len(f.Payload) != SweepPayloadSize {
		return s, false
	}
	for i := range s {
		s[i] = binary.LittleEndian.Uint16(f.Payload[2*i:])
	}
	return s, true
}

// IMU decodes the payload of an IMU frame.
func (f *Frame) IMU() (m IMU, ok bool) {
	if f.Kind.IsSweep() || !f.Kind.Valid() || len(f.Payload) != IMUPayloadSize {
		return m, false
	}
	for i := range m {
		m[i] = int16(binary.LittleEndian.Uint16(f.Payload[2*i:]))
	}
	return m, true
}

// AppendBinary appends the wire encoding of f to b.
func (f *Frame) AppendBinary(b []byte) ([]byte, error) {
	if !f.Kind.Valid() {
		return b, ErrUnknownKind
	}
	if len(f.Payload) != f.Kind.PayloadSize() {
		return b, ErrShortBuffer
	}
	b = append(b, Marker...)
	b = append(b, byte(f.Kind))
	if f.Kind.HasID() {
		b = append(b, f.ID)
	}
	b = binary.LittleEndian.AppendUint32(b, f.Timestamp)
	return append(b, f.Payload...), nil
}
