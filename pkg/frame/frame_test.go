package frame

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(seed uint16) *Record {
	r := &Record{IMUTime: 1000 + uint32(seed), SweepTime: 2000 + uint32(seed)}
	for i := range r.Sweep {
		r.Sweep[i] = seed*100 + uint16(i)
	}
	for i := range r.IMU {
		r.IMU[i] = int16(i) - 4 - int16(seed)
	}
	return r
}

func TestSizes(t *testing.T) {
	assert.Equal(t, 120, SweepFrameSize)
	assert.Equal(t, 25, IMUFrameSize)
	assert.Equal(t, 145, SegmentSize)
	assert.Equal(t, 138, RecordSize)

	tests := []struct {
		kind    Kind
		size    int
		payload int
		id      bool
		replay  bool
	}{
		{KindSweep, 120, 112, true, false},
		{KindSweepReplay, 120, 112, true, true},
		{KindIMU, 25, 18, false, false},
		{KindIMUReplay, 25, 18, false, true},
		{Kind('x'), 0, 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.size, tt.kind.Size())
			assert.Equal(t, tt.payload, tt.kind.PayloadSize())
			assert.Equal(t, tt.id, tt.kind.HasID())
			assert.Equal(t, tt.replay, tt.kind.IsReplay())
		})
	}
}

func TestPutSweepLayout(t *testing.T) {
	var s Sweep
	s[0] = 0x0102
	s[SweepSamples-1] = 0xA0B0

	buf := make([]byte, SweepFrameSize)
	n, err := PutSweep(buf, KindSweep, 60, 0x11223344, &s)
	require.NoError(t, err)
	assert.Equal(t, SweepFrameSize, n)

	assert.Equal(t, []byte{'#', '#', 'S', 60, 0x44, 0x33, 0x22, 0x11, 0x02, 0x01}, buf[:10])
	assert.Equal(t, []byte{0xB0, 0xA0}, buf[n-2:])

	_, err = PutSweep(buf[:10], KindSweep, 60, 0, &s)
	assert.ErrorIs(t, err, ErrShortBuffer)
	_, err = PutSweep(buf, KindIMU, 60, 0, &s)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestPutIMULayout(t *testing.T) {
	m := IMU{-1, 2}
	buf := make([]byte, IMUFrameSize)
	n, err := PutIMU(buf, KindIMUReplay, 7, &m)
	require.NoError(t, err)
	assert.Equal(t, IMUFrameSize, n)
	assert.Equal(t, []byte{'#', '#', 'J', 7, 0, 0, 0, 0xFF, 0xFF, 0x02, 0x00}, buf[:11])

	_, err = PutIMU(buf, KindSweep, 0, &m)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRecordRoundTrip(t *testing.T) {
	in := testRecord(3)
	buf := make([]byte, RecordSize)
	n, err := in.MarshalTo(buf)
	require.NoError(t, err)
	assert.Equal(t, RecordSize, n)
	assert.Equal(t, in.IMUTime, binary.LittleEndian.Uint32(buf))
	assert.Equal(t, in.SweepTime, binary.LittleEndian.Uint32(buf[4+IMUPayloadSize:]))

	var out Record
	require.NoError(t, out.Unmarshal(buf))
	assert.Equal(t, *in, out)

	assert.ErrorIs(t, out.Unmarshal(buf[:RecordSize-1]), ErrShortBuffer)
	_, err = in.MarshalTo(buf[:10])
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestFramerSegments(t *testing.T) {
	f := NewFramer(60)
	rec := testRecord(1)

	live := make([]byte, SegmentSize)
	n, err := f.Live(live, rec)
	require.NoError(t, err)
	assert.Equal(t, SegmentSize, n)

	replay := make([]byte, SegmentSize)
	n, err = f.Replay(replay, rec)
	require.NoError(t, err)
	assert.Equal(t, SegmentSize, n)

	var got []Frame
	var p Parser
	p.ParseAll(append(live, replay...), func(fr Frame) { got = append(got, fr) })
	require.Len(t, got, 4)

	assert.Equal(t, []Kind{KindSweep, KindIMU, KindIMUReplay, KindSweepReplay},
		[]Kind{got[0].Kind, got[1].Kind, got[2].Kind, got[3].Kind})
	for _, fr := range got {
		if fr.Kind.IsSweep() {
			assert.Equal(t, byte(60), fr.ID)
			assert.Equal(t, rec.SweepTime, fr.Timestamp)
			s, ok := fr.Sweep()
			require.True(t, ok)
			assert.Equal(t, rec.Sweep, s)
		} else {
			assert.Zero(t, fr.ID)
			assert.Equal(t, rec.IMUTime, fr.Timestamp)
			m, ok := fr.IMU()
			require.True(t, ok)
			assert.Equal(t, rec.IMU, m)
		}
	}

	_, err = f.Live(live[:100], rec)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestParserResyncs(t *testing.T) {
	f := NewFramer(9)
	seg := make([]byte, SegmentSize)
	_, err := f.Live(seg, testRecord(2))
	require.NoError(t, err)

	var stream []byte
	stream = append(stream, "noise#x"...)
	stream = append(stream, "##Q"...) // unknown kind
	stream = append(stream, '#')      // stray marker byte before a real frame
	stream = append(stream, seg...)

	var p Parser
	var kinds []Kind
	p.ParseAll(stream, func(fr Frame) { kinds = append(kinds, fr.Kind) })
	assert.Equal(t, []Kind{KindSweep, KindIMU}, kinds)
	assert.Equal(t, 1, p.Unknown)
	assert.Positive(t, p.Skipped)
}

func TestReader(t *testing.T) {
	f := NewFramer(1)
	var buf bytes.Buffer
	seg := make([]byte, SegmentSize)
	for i := uint16(0); i < 3; i++ {
		_, err := f.Replay(seg, testRecord(i))
		require.NoError(t, err)
		buf.Write(seg)
	}
	buf.Write(seg[:10]) // truncated tail

	r := NewReader(&buf)
	for i := 0; i < 6; i++ {
		fr, err := r.Next()
		require.NoError(t, err)
		assert.True(t, fr.Kind.IsReplay())
	}
	_, err := r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestAppendBinary(t *testing.T) {
	f := NewFramer(4)
	seg := make([]byte, SegmentSize)
	_, err := f.Live(seg, testRecord(5))
	require.NoError(t, err)

	var p Parser
	var out []byte
	p.ParseAll(seg, func(fr Frame) {
		out, err = fr.AppendBinary(out)
		require.NoError(t, err)
	})
	assert.Equal(t, seg, out)

	bad := Frame{Kind: 'x'}
	_, err = bad.AppendBinary(nil)
	assert.ErrorIs(t, err, ErrUnknownKind)

	wrong := Frame{Kind: KindIMU, Payload: []byte{1}}
	_, err = wrong.AppendBinary(nil)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestAccessorsRejectWrongKind(t *testing.T) {
	fr := Frame{Kind: KindIMU, Payload: make([]byte, IMUPayloadSize)}
	_, ok := fr.Sweep()
	assert.False(t, ok)
	_, ok = fr.IMU()
	assert.True(t, ok)

	fr = Frame{Kind: KindSweep, Payload: make([]byte, 3)}
	_, ok = fr.Sweep()
	assert.False(t, ok)
}
