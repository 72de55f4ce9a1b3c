//go:build tinygo

package main

import (
	"context"
	"machine"
	"time"

	"github.com/itohio/pipshield/pkg/clock"
	"github.com/itohio/pipshield/pkg/config"
	"github.com/itohio/pipshield/pkg/eeprom"
	"github.com/itohio/pipshield/pkg/frame"
	"github.com/itohio/pipshield/pkg/fsm"
	"github.com/itohio/pipshield/pkg/payload"
	"github.com/itohio/pipshield/pkg/pdc"
	"github.com/itohio/pipshield/pkg/sweep"
)

var (
	uart = machine.UART0
	spi  = machine.SPI0
	i2c  = machine.I2C0

	sched *fsm.Scheduler
)

func main() {
	cfg := config.Default()
	clk := clock.NewSystem()

	// Let the rails settle before talking to the peripherals.
	time.Sleep(200 * time.Millisecond)

	uart.Configure(machine.UARTConfig{BaudRate: UART_BAUD_RATE})
	spi.Configure(machine.SPIConfig{Frequency: SPI_FREQUENCY, Mode: SPI_MODE})
	i2c.Configure(machine.I2CConfig{})

	PIN_GAP.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_INTERRUPTED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	var store *eeprom.Log
	if !cfg.Payload.DisableStorage {
		PIN_RAM_CS.Configure(machine.PinConfig{Mode: machine.PinOutput})
		var err error
		store, err = eeprom.New(eeprom.NewSPIChip(spi, PIN_RAM_CS), clk, eeprom.Options{
			Capacity:     cfg.Storage.Capacity,
			PageSize:     cfg.Storage.PageSize,
			ReadyTimeout: clock.ToMicros(cfg.Storage.ReadyTimeout),
		})
		if err != nil {
			// Fly without storage; live telemetry is unaffected.
			store = nil
		}
	}

	var sensor payload.IMU = zeroIMU{}
	if imu, err := newAltIMU(i2c); err == nil {
		sensor = imu
	}

	levels := sweep.NewLevels(float32(cfg.Sweep.Min), float32(cfg.Sweep.Max))
	front := newProbes(levels, cfg.Sweep.Averages,
		newMAX1148(spi, PIN_ADC0_CS),
		newMAX1148(spi, PIN_ADC1_CS),
	)

	// The PDC must take over the UART after it is configured.
	tx := pdc.New(pdc.SAM3XUART(), pdc.DirectAddresser{}, clk, pdc.Options{
		ReadyTimeout: clock.ToMicros(cfg.Transmit.ReadyTimeout),
	})
	tx.Enable()

	app := payload.New(clk, front, sensor, store, tx, payload.Options{
		ShieldID:        cfg.Payload.ShieldID,
		ReplayDelay:     clock.ToMicros(cfg.Payload.ReplayDelay),
		MaxChipFailures: cfg.Payload.MaxChipFailures,
		GapThreshold:    clock.ToMicros(cfg.Payload.GapThreshold),
		GapIndicator:    pin(PIN_GAP),
	})

	sched = fsm.New(app, clk, &fsm.IRQLock{}, fsm.Options{
		Period: clock.ToMicros(cfg.Payload.SamplePeriod),
		Offset: clock.ToMicros(cfg.Payload.SweepOffset),
	})
	sched.OnTransition(func(from, to fsm.State) {
		if to == fsm.Interrupted {
			PIN_INTERRUPTED.Set(!PIN_INTERRUPTED.Get())
		}
	})

	PIN_SYNC.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	PIN_SYNC.SetInterrupt(machine.PinFalling, func(machine.Pin) {
		sched.Sync()
	})

	go tick()
	sched.Run(context.Background())
}

// tick drives the scheduler timer. The mainline yields while it waits
// for a new cycle, so the late tick is caught by the elapsed-time check.
func tick() {
	for {
		time.Sleep(TICK_INTERVAL_US * time.Microsecond)
		sched.Tick()
	}
}

// zeroIMU stands in when the IMU did not answer at startup.
type zeroIMU struct{}

func (zeroIMU) Sample(out *frame.IMU) { *out = frame.IMU{} }
