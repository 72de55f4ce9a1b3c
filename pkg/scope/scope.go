// Package scope provides a Fyne widget that plots probe sweeps: the latest
// live and replayed I-V curves on top and the mean probe output over time,
// with link gaps marked, underneath.
package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/pipshield/pkg/config"
	"github.com/itohio/pipshield/pkg/frame"
	"github.com/itohio/pipshield/pkg/monitor"
	"github.com/itohio/pipshield/pkg/sweep"
)

// Data is everything the scope draws in one refresh.
type Data struct {
	Live      sweep.Sweep
	HasLive   bool
	Replay    sweep.Sweep
	HasReplay bool
	History   [frame.Channels][]sweep.Point
	Gaps      []monitor.Gap
}

// ScopeWidget is a custom Fyne widget that displays probe sweeps.
type ScopeWidget struct {
	widget.BaseWidget

	window time.Duration

	mu   sync.RWMutex
	data Data

	// Auto-scaling
	curve   axis // probe output of the I-V plot
	bias    axis
	history axis
	xMin    time.Time
	xMax    time.Time
}

// New creates a new ScopeWidget instance.
func New(cfg *config.Config) *ScopeWidget {
	s := &ScopeWidget{
		window: time.Duration(cfg.Display.WindowSeconds * float64(time.Second)),
	}
	s.ExtendBaseWidget(s)
	s.mu.Lock()
	s.updateAutoScale()
	s.mu.Unlock()
	s.Refresh()
	return s
}

// UpdateData replaces the plotted data.
// This should be called from the monitor callback using fyne.Do().
func (s *ScopeWidget) UpdateData(d Data) {
	s.mu.Lock()
	s.data = d
	s.updateAutoScale()
	s.mu.Unlock()

	s.Refresh()
}

func (s *ScopeWidget) updateAutoScale() {
	d := &s.data

	var curves [][]float64
	if d.HasLive {
		curves = append(curves, d.Live.Probe[0][:], d.Live.Probe[1][:])
	}
	if d.HasReplay {
		curves = append(curves, d.Replay.Probe[0][:], d.Replay.Probe[1][:])
	}
	s.curve = fitAxis(curves...)

	switch {
	case d.HasLive:
		s.bias = fitAxis(d.Live.Bias[:])
	case d.HasReplay:
		s.bias = fitAxis(d.Replay.Bias[:])
	default:
		s.bias = axis{0, 1}
	}

	var values [][]float64
	s.xMin, s.xMax = time.Time{}, time.Time{}
	for _, h := range d.History {
		if len(h) == 0 {
			continue
		}
		v := make([]float64, len(h))
		for i, p := range h {
			v[i] = p.Value
		}
		values = append(values, v)
		if s.xMin.IsZero() || h[0].Time.Before(s.xMin) {
			s.xMin = h[0].Time
		}
		if last := h[len(h)-1].Time; last.After(s.xMax) {
			s.xMax = last
		}
	}
	s.history = fitAxis(values...)

	if s.xMin.IsZero() {
		s.xMin = time.Now()
		s.xMax = s.xMin
	}
	// Ensure minimum window
	if s.xMax.Sub(s.xMin) < s.window {
		s.xMin = s.xMax.Add(-s.window)
	}
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:   s,
		bg:      bg,
		objects: []fyne.CanvasObject{bg},
	}
}
