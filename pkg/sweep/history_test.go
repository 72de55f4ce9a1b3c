package sweep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(n int, t0 time.Time) []Point {
	pts := make([]Point, n)
	for i := range pts {
		pts[i] = Point{Time: t0.Add(time.Duration(i) * 25 * time.Millisecond), Value: float64(i)}
	}
	return pts
}

func TestDownsample_ShortSeriesIsCopied(t *testing.T) {
	pts := series(3, time.Now())

	result := Downsample(nil, pts, 10)
	require.Equal(t, pts, result)

	dst := make([]Point, 0, 10)
	result = Downsample(dst, pts, 10)
	require.Equal(t, pts, result)
	assert.Equal(t, cap(dst), cap(result))

	result[0].Value = 42
	assert.Equal(t, 0.0, pts[0].Value, "input must not alias the result")
}

func TestDownsample_Decimates(t *testing.T) {
	pts := series(100, time.Now())

	result := Downsample(make([]Point, 0, 20), pts, 10)
	require.Len(t, result, 10)
	assert.Equal(t, pts[0], result[0])
	assert.GreaterOrEqual(t, result[9].Value, 80.0)
	for i := 1; i < len(result); i++ {
		assert.True(t, result[i].Time.After(result[i-1].Time))
	}
}

func TestDownsample_Unlimited(t *testing.T) {
	pts := series(50, time.Now())
	assert.Len(t, Downsample(nil, pts, 0), 50)
}

func TestDownsample_ReusesDestination(t *testing.T) {
	t0 := time.Now()
	dst := make([]Point, 0, 10)

	first := Downsample(dst, series(2, t0), 10)
	require.Len(t, first, 2)

	second := Downsample(first, series(3, t0.Add(time.Second)), 10)
	require.Len(t, second, 3)
	assert.Equal(t, t0.Add(time.Second), second[0].Time)
}
