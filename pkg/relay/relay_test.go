package relay

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/pipshield/pkg/frame"
)

func sweepFrame(t *testing.T, kind frame.Kind, ts uint32) frame.Frame {
	t.Helper()
	var s frame.Sweep
	for i := range s {
		s[i] = uint16(i * 10)
	}
	buf := make([]byte, frame.SweepFrameSize)
	_, err := frame.PutSweep(buf, kind, 60, ts, &s)
	require.NoError(t, err)
	return parse(t, buf)
}

func imuFrame(t *testing.T, kind frame.Kind, ts uint32) frame.Frame {
	t.Helper()
	m := frame.IMU{1, -2, 3, 4, -5, 6, 7, 8, -9}
	buf := make([]byte, frame.IMUFrameSize)
	_, err := frame.PutIMU(buf, kind, ts, &m)
	require.NoError(t, err)
	return parse(t, buf)
}

func parse(t *testing.T, buf []byte) frame.Frame {
	t.Helper()
	var p frame.Parser
	var out []frame.Frame
	p.ParseAll(buf, func(f frame.Frame) { out = append(out, f) })
	require.Len(t, out, 1)
	return out[0]
}

func TestNewMessage(t *testing.T) {
	m := NewMessage(sweepFrame(t, frame.KindSweepReplay, 1234))
	assert.Equal(t, "sweep-replay", m.Kind)
	assert.True(t, m.Replay)
	require.NotNil(t, m.ID)
	assert.Equal(t, uint8(60), *m.ID)
	assert.Equal(t, uint32(1234), m.Timestamp)
	assert.Len(t, m.Sweep, frame.SweepSamples)
	assert.Equal(t, uint16(550), m.Sweep[55])
	assert.Nil(t, m.IMU)

	m = NewMessage(imuFrame(t, frame.KindIMU, 99))
	assert.Equal(t, "imu", m.Kind)
	assert.False(t, m.Replay)
	assert.Nil(t, m.ID)
	assert.Equal(t, []int16{1, -2, 3, 4, -5, 6, 7, 8, -9}, m.IMU)
	assert.Nil(t, m.Sweep)
}

func TestEncode(t *testing.T) {
	b, err := Encode(imuFrame(t, frame.KindIMUReplay, 7))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "imu-replay", raw["kind"])
	assert.Equal(t, 7.0, raw["timestamp_us"])
	assert.NotContains(t, raw, "id")
	assert.NotContains(t, raw, "sweep")
}

type recordingSink struct {
	frames []frame.Frame
	err    error
	closed bool
}

func (s *recordingSink) Publish(f frame.Frame) error {
	s.frames = append(s.frames, f)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestForward(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("down")}

	in := make(chan frame.Frame, 3)
	in <- sweepFrame(t, frame.KindSweep, 1)
	in <- imuFrame(t, frame.KindIMU, 2)
	in <- imuFrame(t, frame.KindIMU, 3)
	close(in)

	Forward(in, a, b)
	assert.Len(t, a.frames, 3)
	assert.Len(t, b.frames, 3, "a failing sink keeps receiving")
	assert.False(t, a.closed)
}
