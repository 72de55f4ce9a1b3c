package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/itohio/pipshield/pkg/config"
	"github.com/itohio/pipshield/pkg/frame"
	"github.com/itohio/pipshield/pkg/telemetry"
)

// runCapture records the raw downlink to a file until interrupted and
// prints a one-line summary every few seconds.
func runCapture(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	var src sourceFlags
	src.register(fs)
	out := fs.String("o", "", "Output file (default capture-<time>.bin)")
	every := fs.Duration("stats", 5*time.Second, "Summary interval (0 = off)")
	fs.Parse(args)

	cfg, err := src.load()
	if err != nil {
		return err
	}

	name := *out
	if name == "" {
		name = fmt.Sprintf("capture-%s.bin", time.Now().Format("20060102-150405"))
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	rx, err := connect(cfg, src.mock, f)
	if err != nil {
		return err
	}
	defer rx.Close()
	log.Printf("Capturing to %s", name)

	var ticks <-chan time.Time
	if *every > 0 {
		t := time.NewTicker(*every)
		defer t.Stop()
		ticks = t.C
	}

	counts := map[frame.Kind]int{}
	for {
		select {
		case <-ctx.Done():
			log.Printf("Stopped: %s", formatCounts(counts))
			return nil
		case fr, ok := <-rx.Frames():
			if !ok {
				return fmt.Errorf("link closed")
			}
			counts[fr.Kind]++
		case <-ticks:
			log.Print(formatCounts(counts))
		}
	}
}

// connect opens the live link. Raw bytes are teed to capture, if not nil.
// The simulated payload writes its downlink straight into the decoder, so
// capture also receives the encoded frames in that case.
func connect(cfg *config.Config, mock bool, capture io.Writer) (telemetry.Receiver, error) {
	var rx telemetry.Receiver
	if mock {
		rx = telemetry.NewMock(cfg)
	} else {
		s := telemetry.New(cfg.Serial.Port, cfg.Serial.BaudRate, telemetry.DefaultBufferSize)
		if capture != nil {
			s.Capture(capture)
		}
		rx = s
	}
	if err := rx.Connect(); err != nil {
		return nil, err
	}
	if mock && capture != nil {
		return &teeReceiver{Receiver: rx, out: teeFrames(rx.Frames(), capture)}, nil
	}
	return rx, nil
}

// teeReceiver re-encodes frames of a receiver to a writer.
type teeReceiver struct {
	telemetry.Receiver
	out <-chan frame.Frame
}

func (t *teeReceiver) Frames() <-chan frame.Frame { return t.out }

func teeFrames(in <-chan frame.Frame, w io.Writer) <-chan frame.Frame {
	out := make(chan frame.Frame, telemetry.DefaultBufferSize)
	go func() {
		defer close(out)
		var buf []byte
		for f := range in {
			var err error
			if buf, err = f.AppendBinary(buf[:0]); err == nil {
				w.Write(buf)
			}
			out <- f
		}
	}()
	return out
}

func formatCounts(counts map[frame.Kind]int) string {
	return fmt.Sprintf("sweep %d  imu %d  sweep-replay %d  imu-replay %d",
		counts[frame.KindSweep], counts[frame.KindIMU], counts[frame.KindSweepReplay], counts[frame.KindIMUReplay])
}
