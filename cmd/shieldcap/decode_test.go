package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/pipshield/pkg/frame"
)

// capture builds a raw stream of live segments with payload times ts (µs).
func capture(t *testing.T, ts ...uint32) []byte {
	t.Helper()
	framer := frame.NewFramer(60)
	var out bytes.Buffer
	for _, v := range ts {
		rec := frame.Record{IMUTime: v + 50, SweepTime: v}
		rec.Sweep[0] = uint16(v / 1000)
		buf := make([]byte, frame.SegmentSize)
		_, err := framer.Live(buf, &rec)
		require.NoError(t, err)
		out.Write(buf)
	}
	return out.Bytes()
}

func opts() decodeOptions {
	return decodeOptions{period: 25 * time.Millisecond, tol: 5 * time.Millisecond}
}

func TestDecodeText(t *testing.T) {
	data := append([]byte("xx"), capture(t, 25000, 50000)...)

	var out bytes.Buffer
	s, err := decode(bytes.NewReader(data), &out, opts())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "sweep")
	assert.Contains(t, lines[0], "id=60")
	assert.Contains(t, lines[1], "imu")
	assert.Equal(t, 2, s.Counts[frame.KindSweep])
	assert.Equal(t, 2, s.Counts[frame.KindIMU])
	assert.Equal(t, 2, s.Skipped)
	assert.Zero(t, s.Link.Gaps)
}

func TestDecodeFindsGaps(t *testing.T) {
	data := capture(t, 25000, 50000, 125000, 135000)

	s, err := decode(bytes.NewReader(data), &bytes.Buffer{}, decodeOptions{quiet: true, period: 25 * time.Millisecond, tol: 5 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Link.Gaps)
	assert.Equal(t, 2, s.Link.Missed)
	assert.Equal(t, 1, s.Link.Early)
	assert.Contains(t, s.String(), "gaps 1 (missed 2)")
}

func TestDecodeJSONFiltered(t *testing.T) {
	o := opts()
	o.json = true
	o.kind = frame.KindIMU

	var out bytes.Buffer
	_, err := decode(bytes.NewReader(capture(t, 1000, 26000)), &out, o)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &m))
	assert.Equal(t, "imu", m["kind"])
	assert.Equal(t, 26050.0, m["timestamp_us"])
}

func TestDecodeEmpty(t *testing.T) {
	s, err := decode(bytes.NewReader(nil), &bytes.Buffer{}, opts())
	require.NoError(t, err)
	assert.Empty(t, s.Counts)
}
