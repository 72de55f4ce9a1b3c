package sweep

import (
	"log"
	"time"

	"github.com/itohio/pipshield/pkg/config"
	"github.com/itohio/pipshield/pkg/frame"
)

// NewAveragingConverter creates a converter that averages the last
// windowSize live sweeps and converts them to Sweeps. Replayed sweeps are
// passed through unchanged. Averaged sweeps are emitted every 100 ms.
func NewAveragingConverter(cfg *config.Config, windowSize int, bufSize int) Converter {
	if windowSize <= 0 {
		windowSize = 1 // No averaging if invalid
	}
	if bufSize <= 0 {
		bufSize = 100
	}
	convert := NewConverter(cfg, bufSize)

	return func(in <-chan frame.Frame) <-chan Sweep {
		sweeps := convert(in)
		out := make(chan Sweep, bufSize)

		go func() {
			defer close(out)

			var buffer []Sweep
			ticker := time.NewTicker(100 * time.Millisecond) // Output rate
			defer ticker.Stop()

			for {
				select {
				case s, ok := <-sweeps:
					if !ok {
						// Input closed, output the remaining average
						if len(buffer) > 0 {
							select {
							case out <- averageSweeps(buffer):
							default:
							}
						}
						return
					}

					if s.Replay {
						select {
						case out <- s:
						default:
							log.Printf("Averaging converter output channel full")
						}
						continue
					}

					buffer = append(buffer, s)
					if len(buffer) > windowSize {
						buffer = buffer[1:] // Remove oldest
					}

				case <-ticker.C:
					if len(buffer) > 0 {
						select {
						case out <- averageSweeps(buffer):
						default:
							log.Printf("Averaging converter output channel full")
						}
					}
				}
			}
		}()

		return out
	}
}

// averageSweeps averages probe outputs step by step. Metadata comes from
// the most recent sweep.
func averageSweeps(sweeps []Sweep) Sweep {
	if len(sweeps) == 0 {
		return Sweep{}
	}

	avg := sweeps[len(sweeps)-1]
	for ch := range avg.Probe {
		for i := range avg.Probe[ch] {
			var sum float64
			for _, s := range sweeps {
				sum += s.Probe[ch][i]
			}
			avg.Probe[ch][i] = sum / float64(len(sweeps))
		}
	}
	return avg
}
