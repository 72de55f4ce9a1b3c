package scope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFitAxis(t *testing.T) {
	tests := []struct {
		name   string
		series [][]float64
		want   axis
	}{
		{name: "empty", want: axis{0, 1}},
		{name: "range with margin", series: [][]float64{{1, 2}, {3}}, want: axis{0.8, 3.2}},
		{name: "flat", series: [][]float64{{2, 2}}, want: axis{1.8, 2.2}},
		{name: "flat zero", series: [][]float64{{0}}, want: axis{-0.1, 0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fitAxis(tt.series...)
			assert.InDelta(t, tt.want.min, got.min, 1e-9)
			assert.InDelta(t, tt.want.max, got.max, 1e-9)
		})
	}
}

func TestAxisMapping(t *testing.T) {
	a := axis{-1, 3}
	assert.Equal(t, float32(0), a.frac(-1))
	assert.Equal(t, float32(0.5), a.frac(1))
	assert.Equal(t, float32(1), a.frac(3))
	assert.Equal(t, 2.0, a.at(0.75))
	assert.Equal(t, float32(0), axis{1, 1}.frac(5))
}

func TestTimeFrac(t *testing.T) {
	t0 := time.Unix(100, 0)
	assert.Equal(t, float32(0.25), timeFrac(t0.Add(time.Second), t0, t0.Add(4*time.Second)))
	assert.Equal(t, float32(0), timeFrac(t0, t0, t0))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.235V", formatVoltage(1.2346))
	assert.Equal(t, "0.000V", formatVoltage(-0.0001))
	assert.Equal(t, "-0.250V", formatVoltage(-0.25))
	assert.Equal(t, "0.25s", formatTime(250*time.Millisecond))
	assert.Equal(t, "2.5s", formatTime(2500*time.Millisecond))
}
