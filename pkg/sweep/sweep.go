// Package sweep converts raw probe sweeps into physical values and
// provides the DAC step levels the payload sweeps through.
package sweep

import (
	"log"
	"time"

	"github.com/itohio/pipshield/pkg/config"
	"github.com/itohio/pipshield/pkg/frame"
)

// Sweep represents a processed probe sweep with physical values.
type Sweep struct {
	Received  time.Time // Ground arrival time
	Timestamp uint32    // Payload time (µs since power-up)
	Replay    bool      // Read back from payload storage
	ID        byte
	Bias      [frame.Steps]float64                 // Screen bias per step (V)
	Probe     [frame.Channels][frame.Steps]float64 // Probe output per step (V)
}

// Mean returns the average probe output of channel ch.
func (s *Sweep) Mean(ch int) float64 {
	var sum float64
	for _, v := range s.Probe[ch] {
		sum += v
	}
	return sum / frame.Steps
}

// Converter is a function type that converts a frame channel to a Sweep channel.
type Converter func(in <-chan frame.Frame) <-chan Sweep

// NewConverter creates a converter function that transforms sweep frames
// to Sweeps. IMU frames are skipped.
func NewConverter(cfg *config.Config, bufSize int) Converter {
	if bufSize <= 0 {
		bufSize = 100
	}
	bias := biasVolts(cfg)

	return func(in <-chan frame.Frame) <-chan Sweep {
		out := make(chan Sweep, bufSize)

		go func() {
			defer close(out)

			for f := range in {
				if !f.Kind.IsSweep() {
					continue
				}
				s, ok := convertFrame(f, &bias, cfg)
				if !ok {
					log.Printf("Failed to convert %v frame: bad payload length %d", f.Kind, len(f.Payload))
					continue
				}

				select {
				case out <- s:
				case <-time.After(time.Second):
					log.Printf("Converter output channel full, dropping sweep")
				}
			}
		}()

		return out
	}
}

// convertFrame converts a sweep frame to a Sweep using configuration.
func convertFrame(f frame.Frame, bias *[frame.Steps]float64, cfg *config.Config) (Sweep, bool) {
	raw, ok := f.Sweep()
	if !ok {
		return Sweep{}, false
	}
	s := Sweep{
		Received:  time.Now(),
		Timestamp: f.Timestamp,
		Replay:    f.Kind.IsReplay(),
		ID:        f.ID,
		Bias:      *bias,
	}
	for ch := range s.Probe {
		for i := range s.Probe[ch] {
			s.Probe[ch][i] = adcToVoltage(raw[ch*frame.Steps+i], cfg.Sweep.ADCVRef, cfg.Sweep.ADCBits)
		}
	}
	return s, true
}

// biasVolts returns the screen bias of every sweep step.
func biasVolts(cfg *config.Config) [frame.Steps]float64 {
	var out [frame.Steps]float64
	levels := NewLevels(float32(cfg.Sweep.Min), float32(cfg.Sweep.Max))
	for i, code := range levels {
		out[i] = dacToVoltage(code, cfg.Sweep.DACVRef) * cfg.Sweep.BiasGain
	}
	return out
}

// adcToVoltage converts an ADC reading of the given resolution to voltage.
func adcToVoltage(adc uint16, vref float64, bits int) float64 {
	full := float64(uint32(1)<<bits - 1)
	return (float64(adc) / full) * vref
}

// dacToVoltage converts a 12-bit DAC code to voltage.
func dacToVoltage(code uint16, vref float64) float64 {
	return (float64(code) / 4095.0) * vref
}
