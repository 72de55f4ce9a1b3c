package main

import (
	"fmt"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/pipshield/pkg/frame"
	"github.com/itohio/pipshield/pkg/monitor"
)

// statusBar shows link health and the latest IMU sample.
type statusBar struct {
	container *fyne.Container
	link      *widget.Label
	imu       *widget.Label

	mu         sync.Mutex
	imuFrames  int
	replayIMU  int
	lastIMU    frame.IMU
	lastUpdate time.Time
}

func newStatusBar() *statusBar {
	s := &statusBar{
		link: widget.NewLabel("Disconnected"),
		imu:  widget.NewLabel(""),
	}
	s.container = container.NewHBox(s.link, s.imu)
	return s
}

// observe records an incoming frame. Called from the status goroutine;
// label updates are posted to the main thread at most 10 times a second.
func (s *statusBar) observe(f frame.Frame) {
	if f.Kind.IsSweep() {
		return
	}
	m, ok := f.IMU()
	if !ok {
		return
	}

	s.mu.Lock()
	if f.Kind.IsReplay() {
		s.replayIMU++
		s.mu.Unlock()
		return
	}
	s.imuFrames++
	s.lastIMU = m
	now := time.Now()
	if now.Sub(s.lastUpdate) < 100*time.Millisecond {
		s.mu.Unlock()
		return
	}
	s.lastUpdate = now
	text := formatIMU(s.lastIMU, s.imuFrames, s.replayIMU)
	s.mu.Unlock()

	fyne.Do(func() {
		s.imu.SetText(text)
	})
}

// updateLink shows the monitor counters. Must run on the main thread.
func (s *statusBar) updateLink(c monitor.Counters) {
	s.link.SetText(formatLink(c))
}

func formatLink(c monitor.Counters) string {
	return fmt.Sprintf("live %d  replay %d  gaps %d (missed %d)  short %d  resets %d",
		c.Live, c.Replay, c.Gaps, c.Missed, c.Early, c.Resets)
}

func formatIMU(m frame.IMU, live, replay int) string {
	return fmt.Sprintf("IMU %d/%d  mag %d,%d,%d  acc %d,%d,%d  gyro %d,%d,%d",
		live, replay, m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8])
}
