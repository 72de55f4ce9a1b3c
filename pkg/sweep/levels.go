package sweep

import (
	"github.com/chewxy/math32"

	"github.com/itohio/pipshield/pkg/frame"
)

// Levels holds the DAC codes of one sweep.
type Levels [frame.Steps]uint16

// NewLevels spreads frame.Steps DAC codes linearly from lo to hi. Each
// level is truncated, matching the integer DAC write on the payload.
func NewLevels(lo, hi float32) Levels {
	var l Levels
	step := (hi - lo) / float32(frame.Steps-1)
	v := lo
	for i := range l {
		l[i] = uint16(math32.Floor(math32.Max(v, 0)))
		v += step
	}
	return l
}
