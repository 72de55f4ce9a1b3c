package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual(t *testing.T) {
	c := NewManual(100, 0)
	assert.Equal(t, uint32(100), c.Micros())
	assert.Equal(t, uint32(100), c.Micros())

	c.Advance(50)
	assert.Equal(t, uint32(150), c.Micros())

	c.SetStep(10)
	assert.Equal(t, uint32(150), c.Micros())
	assert.Equal(t, uint32(160), c.Micros())

	c.Set(0)
	assert.Equal(t, uint32(0), c.Micros())
}

func TestSince_Wraps(t *testing.T) {
	c := NewManual(^uint32(0)-9, 0)
	start := c.Micros()
	c.Advance(20)
	assert.Equal(t, uint32(20), Since(c, start))
}

func TestWait(t *testing.T) {
	tests := []struct {
		name    string
		readyAt int // number of polls before ready, -1 = never
		want    bool
	}{
		{name: "ready immediately", readyAt: 0, want: true},
		{name: "ready after a few polls", readyAt: 5, want: true},
		{name: "never ready", readyAt: -1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewManual(0, 1)
			polls := 0
			ok := Wait(c, 100, func() bool {
				defer func() { polls++ }()
				return tt.readyAt >= 0 && polls >= tt.readyAt
			})
			assert.Equal(t, tt.want, ok)
			if !tt.want {
				assert.LessOrEqual(t, polls, 101, "wait must be bounded by the timeout")
			}
		})
	}
}

func TestSystem(t *testing.T) {
	c := NewSystem()
	t0 := c.Micros()
	time.Sleep(2 * time.Millisecond)
	assert.GreaterOrEqual(t, Since(c, t0), uint32(2000))
}

func TestToMicros(t *testing.T) {
	assert.Equal(t, uint32(500), ToMicros(500*time.Microsecond))
	assert.Equal(t, uint32(25000), ToMicros(25*time.Millisecond))
	assert.Equal(t, uint32(0), ToMicros(-time.Second))
	assert.Equal(t, ^uint32(0), ToMicros(100*time.Hour))
}
