package scope

import (
	"math"
	"strconv"
	"time"
)

// axis is a value range mapped onto a plot dimension.
type axis struct {
	min, max float64
}

// fitAxis returns a range covering all values with a 10% margin. Empty
// input yields [0, 1].
func fitAxis(series ...[]float64) axis {
	a := axis{math.Inf(1), math.Inf(-1)}
	for _, vs := range series {
		for _, v := range vs {
			a.min = math.Min(a.min, v)
			a.max = math.Max(a.max, v)
		}
	}
	if math.IsInf(a.min, 1) {
		return axis{0, 1}
	}

	span := a.max - a.min
	if span == 0 {
		span = math.Max(math.Abs(a.max), 1)
	}
	margin := span * 0.1
	return axis{a.min - margin, a.max + margin}
}

// frac returns where v lies within the axis, 0 at min and 1 at max.
func (a axis) frac(v float64) float32 {
	if a.max == a.min {
		return 0
	}
	return float32((v - a.min) / (a.max - a.min))
}

// at returns the value a fraction f along the axis.
func (a axis) at(f float64) float64 {
	return a.min + f*(a.max-a.min)
}

func timeFrac(t, from, to time.Time) float32 {
	span := to.Sub(from)
	if span <= 0 {
		return 0
	}
	return float32(t.Sub(from).Seconds() / span.Seconds())
}

func formatVoltage(v float64) string {
	if math.Abs(v) < 0.0005 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', 3, 64) + "V"
}

func formatTime(d time.Duration) string {
	if d < time.Second && d > -time.Second {
		return strconv.FormatFloat(d.Seconds(), 'f', 2, 64) + "s"
	}
	return strconv.FormatFloat(d.Seconds(), 'f', 1, 64) + "s"
}
