package scope

import (
	"fmt"
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"github.com/itohio/pipshield/pkg/frame"
	"github.com/itohio/pipshield/pkg/monitor"
	"github.com/itohio/pipshield/pkg/sweep"
)

var (
	gridColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	// Per channel; replayed curves use the dim variants.
	liveColors   = [frame.Channels]color.Color{color.RGBA{R: 255, G: 165, B: 0, A: 255}, color.RGBA{R: 100, G: 200, B: 255, A: 255}}
	replayColors = [frame.Channels]color.Color{color.RGBA{R: 128, G: 83, B: 0, A: 255}, color.RGBA{R: 50, G: 100, B: 128, A: 255}}
	missedColor  = color.RGBA{R: 220, G: 40, B: 40, A: 255}
	earlyColor   = color.RGBA{R: 0, G: 100, B: 200, A: 255}
)

// rect is a plot area in widget coordinates.
type rect struct {
	x, y, w, h float32
}

func (r rect) point(fx, fy float32) fyne.Position {
	return fyne.NewPos(r.x+fx*r.w, r.y+r.h-fy*r.h)
}

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	bg      *canvas.Rectangle
	objects []fyne.CanvasObject

	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 400)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh rebuilds all canvas objects from the current data.
func (r *scopeRenderer) Refresh() {
	s := r.scope
	s.mu.RLock()
	d := s.data
	curve, bias, history := s.curve, s.bias, s.history
	xMin, xMax := s.xMin, s.xMax
	s.mu.RUnlock()

	size := s.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}
	r.objects = []fyne.CanvasObject{r.bg}

	const (
		marginLeft   = 60
		marginRight  = 20
		marginTop    = 20
		marginBottom = 30
		spacing      = 30
	)
	w := size.Width - marginLeft - marginRight
	h := size.Height - marginTop - marginBottom - spacing
	top := rect{x: marginLeft, y: marginTop, w: w, h: h * 0.6}
	bottom := rect{x: marginLeft, y: marginTop + top.h + spacing, w: w, h: h * 0.4}

	r.drawGrid(top, curve, 6, func(i, n int) string { return formatVoltage(bias.at(float64(i) / float64(n))) })
	r.drawGrid(bottom, history, 4, func(i, n int) string {
		return formatTime(time.Duration(float64(i) / float64(n) * float64(xMax.Sub(xMin))))
	})

	if d.HasReplay {
		for ch := range d.Replay.Probe {
			r.drawCurve(top, &d.Replay, ch, bias, curve, replayColors[ch])
		}
	}
	if d.HasLive {
		for ch := range d.Live.Probe {
			r.drawCurve(top, &d.Live, ch, bias, curve, liveColors[ch])
		}
	}
	r.drawLegend(top, d)

	r.drawGaps(bottom, d.Gaps, xMin, xMax)
	for ch, points := range d.History {
		r.drawHistory(bottom, points, history, xMin, xMax, liveColors[ch])
	}
}

// drawGrid draws an oscilloscope-style grid with value labels on the left
// and xLabel labels along the bottom edge.
func (r *scopeRenderer) drawGrid(area rect, y axis, vLines int, xLabel func(i, n int) string) {
	const hLines = 4
	for i := 0; i < hLines+1; i++ {
		f := float32(i) / hLines
		r.line(area.point(0, f), area.point(1, f), gridColor, 1)

		text := canvas.NewText(formatVoltage(y.at(float64(f))), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		p := area.point(0, f)
		text.Move(fyne.NewPos(p.X-5, p.Y-6))
		r.objects = append(r.objects, text)
	}

	for i := 0; i < vLines+1; i++ {
		f := float32(i) / float32(vLines)
		r.line(area.point(f, 0), area.point(f, 1), gridColor, 1)

		text := canvas.NewText(xLabel(i, vLines), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		p := area.point(f, 0)
		text.Move(fyne.NewPos(p.X-20, p.Y+3))
		r.objects = append(r.objects, text)
	}
}

// drawCurve draws one channel of a sweep against the bias axis.
func (r *scopeRenderer) drawCurve(area rect, s *sweep.Sweep, ch int, x, y axis, c color.Color) {
	var prev fyne.Position
	for i, v := range s.Probe[ch] {
		p := area.point(x.frac(s.Bias[i]), y.frac(v))
		if i > 0 {
			r.line(prev, p, c, 1.5)
		}
		prev = p
	}
}

func (r *scopeRenderer) drawHistory(area rect, points []sweep.Point, y axis, xMin, xMax time.Time, c color.Color) {
	var prev fyne.Position
	for i, pt := range points {
		p := area.point(timeFrac(pt.Time, xMin, xMax), y.frac(pt.Value))
		if i > 0 {
			r.line(prev, p, c, 1.5)
		}
		prev = p
	}
}

// drawGaps marks missed cycles in red and short cycles in blue.
func (r *scopeRenderer) drawGaps(area rect, gaps []monitor.Gap, xMin, xMax time.Time) {
	for _, g := range gaps {
		f := timeFrac(g.Time, xMin, xMax)
		if f < 0 || f > 1 {
			continue
		}
		c := color.Color(missedColor)
		if g.Early() {
			c = earlyColor
		}
		r.line(area.point(f, 0), area.point(f, 1), c, 1)
	}
}

func (r *scopeRenderer) drawLegend(area rect, d Data) {
	y := area.y + 5
	if d.HasLive {
		r.label(fmt.Sprintf("live  t=%.3fs", float64(d.Live.Timestamp)/1e6), liveColors[0], area.x+10, y)
		y += 14
	}
	if d.HasReplay {
		r.label(fmt.Sprintf("replay  t=%.3fs", float64(d.Replay.Timestamp)/1e6), replayColors[0], area.x+10, y)
	}
}

func (r *scopeRenderer) line(p1, p2 fyne.Position, c color.Color, width float32) {
	l := canvas.NewLine(c)
	l.Position1 = p1
	l.Position2 = p2
	l.StrokeWidth = width
	r.objects = append(r.objects, l)
}

func (r *scopeRenderer) label(s string, c color.Color, x, y float32) {
	text := canvas.NewText(s, c)
	text.TextSize = 11
	text.Move(fyne.NewPos(x, y))
	r.objects = append(r.objects, text)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}
