package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/itohio/pipshield/pkg/config"
	"github.com/itohio/pipshield/pkg/frame"
	"github.com/itohio/pipshield/pkg/monitor"
	"github.com/itohio/pipshield/pkg/relay"
	"github.com/itohio/pipshield/pkg/sweep"
)

type decodeOptions struct {
	json   bool
	quiet  bool
	period time.Duration
	tol    time.Duration
	kind   frame.Kind
}

// summary describes a decoded capture.
type summary struct {
	Counts  map[frame.Kind]int
	Skipped int
	Unknown int
	Link    monitor.Counters
}

func runDecode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	configFlag := fs.String("config", "config.yaml", "Configuration file path")
	jsonFlag := fs.Bool("json", false, "Print frames as JSON lines")
	quietFlag := fs.Bool("q", false, "Print the summary only")
	kindFlag := fs.String("kind", "", "Only print frames of this kind tag (S, T, I or J)")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("no capture files given")
	}
	cfg, err := config.Load(*configFlag)
	if err != nil {
		return err
	}

	opts := decodeOptions{
		json:   *jsonFlag,
		quiet:  *quietFlag,
		period: cfg.Payload.SamplePeriod,
		tol:    cfg.Display.GapTolerance,
	}
	if *kindFlag != "" {
		opts.kind = frame.Kind((*kindFlag)[0])
		if !opts.kind.Valid() {
			return fmt.Errorf("%w: %q", frame.ErrUnknownKind, *kindFlag)
		}
	}

	for _, name := range fs.Args() {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		s, err := decode(f, os.Stdout, opts)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Fprintf(os.Stderr, "%s: %s\n", name, s)
	}
	return nil
}

// decode prints every frame of a raw capture to w and returns totals. Sweep
// cadence is checked on payload timestamps, so it works offline.
func decode(r io.Reader, w io.Writer, opts decodeOptions) (summary, error) {
	cfg := config.Default()
	cfg.Payload.SamplePeriod = opts.period
	cfg.Display.GapTolerance = opts.tol
	mon := monitor.New(cfg)

	s := summary{Counts: map[frame.Kind]int{}}
	fr := frame.NewReader(r)
	// Sweeps are placed on a timeline by payload time.
	base := time.Unix(0, 0)
	for {
		f, err := fr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s, err
		}
		s.Counts[f.Kind]++

		if f.Kind.IsSweep() {
			mon.Process(sweep.Sweep{
				Received:  base.Add(time.Duration(f.Timestamp) * time.Microsecond),
				Timestamp: f.Timestamp,
				Replay:    f.Kind.IsReplay(),
				ID:        f.ID,
			})
		}

		if opts.quiet || (opts.kind != 0 && f.Kind != opts.kind) {
			continue
		}
		if opts.json {
			b, err := relay.Encode(f)
			if err != nil {
				return s, err
			}
			fmt.Fprintf(w, "%s\n", b)
			continue
		}
		fmt.Fprintln(w, formatFrame(f))
	}

	s.Skipped, s.Unknown = fr.Skipped, fr.Unknown
	s.Link = mon.Counters()
	return s, nil
}

func formatFrame(f frame.Frame) string {
	ts := float64(f.Timestamp) / 1e6
	if s, ok := f.Sweep(); ok {
		return fmt.Sprintf("%12.6f %-12s id=%d ch0=%v ch1=%v", ts, f.Kind, f.ID, s[:frame.Steps], s[frame.Steps:])
	}
	if m, ok := f.IMU(); ok {
		return fmt.Sprintf("%12.6f %-12s mag=%v acc=%v gyro=%v", ts, f.Kind, m[0:3], m[3:6], m[6:9])
	}
	return fmt.Sprintf("%12.6f %-12s %d bytes", ts, f.Kind, len(f.Payload))
}

func (s summary) String() string {
	return fmt.Sprintf("%s  skipped %d bytes  unknown %d  gaps %d (missed %d)  short %d  resets %d",
		formatCounts(s.Counts), s.Skipped, s.Unknown, s.Link.Gaps, s.Link.Missed, s.Link.Early, s.Link.Resets)
}
