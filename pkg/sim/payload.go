package sim

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/itohio/pipshield/pkg/clock"
	"github.com/itohio/pipshield/pkg/config"
	"github.com/itohio/pipshield/pkg/eeprom"
	"github.com/itohio/pipshield/pkg/fsm"
	"github.com/itohio/pipshield/pkg/payload"
	"github.com/itohio/pipshield/pkg/pdc"
)

// tickInterval is the simulated timer interrupt rate.
const tickInterval = time.Millisecond

// Payload runs the flight software in real time on simulated hardware.
// Telemetry bytes are written to the output at the configured baud rate.
type Payload struct {
	cfg   *config.Config
	clk   *clock.System
	chip  *eeprom.MemChip
	uart  *pdc.FakeUART
	app   *payload.Payload
	sched *fsm.Scheduler
	rng   *rand.Rand

	wg sync.WaitGroup
}

// NewPayload wires a simulated payload that writes its telemetry to out.
func NewPayload(cfg *config.Config, out io.Writer, seed int64) (*Payload, error) {
	clk := clock.NewSystem()
	p := &Payload{
		cfg:  cfg,
		clk:  clk,
		chip: eeprom.NewMemChip(int(cfg.Storage.Capacity), int(cfg.Storage.PageSize)),
		uart: pdc.NewFakeUART(out),
		rng:  rand.New(rand.NewSource(seed)),
	}
	p.chip.WriteCycle = 2

	var store *eeprom.Log
	if !cfg.Payload.DisableStorage {
		var err error
		store, err = eeprom.New(p.chip, clk, eeprom.Options{
			Capacity:     cfg.Storage.Capacity,
			PageSize:     cfg.Storage.PageSize,
			ReadyTimeout: clock.ToMicros(cfg.Storage.ReadyTimeout),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	tx := pdc.New(p.uart.Registers(), p.uart, clk, pdc.Options{
		ReadyTimeout: clock.ToMicros(cfg.Transmit.ReadyTimeout),
	})
	tx.Enable()

	p.app = payload.New(clk, NewProbes(cfg, seed), NewSpinningIMU(clk, 2), store, tx, payload.Options{
		ShieldID:        cfg.Payload.ShieldID,
		ReplayDelay:     clock.ToMicros(cfg.Payload.ReplayDelay),
		MaxChipFailures: cfg.Payload.MaxChipFailures,
		GapThreshold:    clock.ToMicros(cfg.Payload.GapThreshold),
		Logger:          log.Default(),
	})
	p.sched = fsm.New(p.app, clk, nil, fsm.Options{
		Period: clock.ToMicros(cfg.Payload.SamplePeriod),
		Offset: clock.ToMicros(cfg.Payload.SweepOffset),
	})
	return p, nil
}

// Start launches the scheduler, the timer, the sync source and the UART.
// It returns immediately; the goroutines stop when ctx is done.
func (p *Payload) Start(ctx context.Context) {
	p.wg.Add(3)
	go func() {
		defer p.wg.Done()
		p.sched.Run(ctx)
	}()
	go p.runTimer(ctx)
	go p.runUART(ctx)

	if p.cfg.Mock.SyncPeriod > 0 {
		p.wg.Add(1)
		go p.runSync(ctx)
	}
	if d := p.cfg.Mock.ChipStallAfter; d > 0 {
		t := time.AfterFunc(d, func() {
			log.Printf("Simulated EEPROM stopped responding")
			p.chip.Stall(true)
		})
		context.AfterFunc(ctx, func() { t.Stop() })
	}
}

// Wait blocks until all goroutines started by Start have returned.
func (p *Payload) Wait() {
	p.wg.Wait()
}

// Stats returns the flight software counters.
func (p *Payload) Stats() payload.Stats {
	return p.app.Stats()
}

// Scheduler returns the flight scheduler.
func (p *Payload) Scheduler() *fsm.Scheduler {
	return p.sched
}

func (p *Payload) runTimer(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sched.Tick()
		}
	}
}

func (p *Payload) runSync(ctx context.Context) {
	defer p.wg.Done()
	for {
		d := p.cfg.Mock.SyncPeriod
		if j := p.cfg.Mock.SyncJitter; j > 0 {
			d += time.Duration(p.rng.Int63n(int64(2*j))) - j
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
			p.sched.Sync()
		}
	}
}

// runUART moves bytes out of the fake DMA channel at the line rate:
// 10 bit times per byte (8N1).
func (p *Payload) runUART(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	perTick := p.cfg.Serial.BaudRate / 10 / int(time.Second/tickInterval)
	if perTick < 1 {
		perTick = 1
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.uart.Step(perTick)
		}
	}
}
