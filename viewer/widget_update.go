package main

import (
	"github.com/itohio/pipshield/pkg/frame"
	"github.com/itohio/pipshield/pkg/monitor"
	"github.com/itohio/pipshield/pkg/scope"
	"github.com/itohio/pipshield/pkg/sweep"
)

// scopeData builds a scope snapshot from a monitor update. It runs in the
// monitor goroutine, so the widget update itself only swaps data.
func scopeData(mon *monitor.Monitor, sweeps []sweep.Sweep, gaps []monitor.Gap) scope.Data {
	d := scope.Data{Gaps: gaps}
	if n := len(sweeps); n > 0 {
		d.Live = sweeps[n-1]
		d.HasLive = true
	}
	d.Replay, d.HasReplay = mon.LatestReplay()
	for ch := 0; ch < frame.Channels; ch++ {
		d.History[ch] = mon.History(nil, ch)
	}
	return d
}
