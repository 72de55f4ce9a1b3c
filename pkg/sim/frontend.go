// Package sim simulates the payload hardware: a probe front-end that
// sweeps a plasma I-V curve, a spinning IMU, and a complete payload that
// runs the flight scheduler in real time against in-memory peripherals.
package sim

import (
	"math/rand"
	"sync"

	"github.com/chewxy/math32"

	"github.com/itohio/pipshield/pkg/clock"
	"github.com/itohio/pipshield/pkg/config"
	"github.com/itohio/pipshield/pkg/frame"
	"github.com/itohio/pipshield/pkg/payload"
	"github.com/itohio/pipshield/pkg/sweep"
)

// Ensure Probes implements payload.Sweeper.
var _ payload.Sweeper = (*Probes)(nil)

// Probes models two probes in a plasma: the collected current rises
// exponentially with bias up to the floating potential and saturates
// above it. The ADC code is proportional to the probe output voltage.
type Probes struct {
	levels   sweep.Levels
	dacVolts float32
	gain     float32
	adcVolts float32
	adcMax   float32
	te       float32
	vf       float32
	noise    float32

	mu  sync.Mutex
	rng *rand.Rand
}

// NewProbes creates a probe front-end from the sweep and mock settings.
func NewProbes(cfg *config.Config, seed int64) *Probes {
	return &Probes{
		levels:   sweep.NewLevels(float32(cfg.Sweep.Min), float32(cfg.Sweep.Max)),
		dacVolts: float32(cfg.Sweep.DACVRef),
		gain:     float32(cfg.Sweep.BiasGain),
		adcVolts: float32(cfg.Sweep.ADCVRef),
		adcMax:   float32(uint32(1)<<cfg.Sweep.ADCBits - 1),
		te:       float32(cfg.Mock.ElectronTemp),
		vf:       float32(cfg.Mock.FloatingBias),
		noise:    float32(cfg.Mock.NoiseLevel),
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Sweep implements payload.Sweeper.
func (p *Probes) Sweep(s *frame.Sweep) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, code := range p.levels {
		bias := float32(code) / 4095 * p.dacVolts * p.gain
		for ch := 0; ch < frame.Channels; ch++ {
			// The second probe has a smaller collecting area.
			area := 1 - 0.2*float32(ch)
			v := area*p.output(bias) + p.noise*float32(p.rng.NormFloat64())
			s[ch*frame.Steps+i] = p.code(v)
		}
	}
}

// output returns the probe output in volts for the given bias.
func (p *Probes) output(bias float32) float32 {
	full := 0.8 * p.adcVolts
	if bias >= p.vf {
		return full
	}
	return full * math32.Exp((bias-p.vf)/p.te)
}

func (p *Probes) code(v float32) uint16 {
	c := math32.Round(v / p.adcVolts * p.adcMax)
	return uint16(math32.Max(0, math32.Min(c, p.adcMax)))
}

// Ensure SpinningIMU implements payload.IMU.
var _ payload.IMU = (*SpinningIMU)(nil)

// SpinningIMU models a payload spinning about its long axis at a constant
// rate in a fixed magnetic field.
type SpinningIMU struct {
	clk  clock.Clock
	rate float32 // rad/s
}

// NewSpinningIMU creates an IMU spinning at hz revolutions per second.
func NewSpinningIMU(clk clock.Clock, hz float32) *SpinningIMU {
	return &SpinningIMU{clk: clk, rate: 2 * math32.Pi * hz}
}

// Sample implements payload.IMU. Units are raw sensor counts.
func (m *SpinningIMU) Sample(out *frame.IMU) {
	t := float32(m.clk.Micros()) / 1e6
	phase := m.rate * t
	const magField = 3000 // counts
	out[0] = int16(magField * math32.Cos(phase))
	out[1] = int16(magField * math32.Sin(phase))
	out[2] = 1200
	out[3] = 0
	out[4] = 0
	out[5] = 16384 // 1 g along the spin axis
	out[6] = 0
	out[7] = 0
	out[8] = int16(m.rate * 180 / math32.Pi * 16.4) // 2000 dps range
}
