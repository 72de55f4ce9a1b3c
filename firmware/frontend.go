//go:build tinygo

package main

import (
	"errors"
	"machine"
	"time"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/lis3mdl"
	"tinygo.org/x/drivers/lsm6ds3"

	"github.com/itohio/pipshield/pkg/frame"
	"github.com/itohio/pipshield/pkg/payload"
	"github.com/itohio/pipshield/pkg/register"
	"github.com/itohio/pipshield/pkg/sweep"
)

var (
	_ payload.Sweeper   = (*probes)(nil)
	_ payload.IMU       = (*altIMU)(nil)
	_ payload.Indicator = pin(0)
)

// pin adapts machine.Pin to payload.Indicator.
type pin machine.Pin

func (p pin) Set(high bool) { machine.Pin(p).Set(high) }

// max1148 is one channel of a MAX1148 14-bit ADC.
type max1148 struct {
	bus drivers.SPI
	cs  machine.Pin
	tx  [3]byte
	rx  [3]byte
}

func newMAX1148(bus drivers.SPI, cs machine.Pin) *max1148 {
	cs.Configure(machine.PinConfig{Mode: machine.PinOutput})
	cs.High()
	return &max1148{bus: bus, cs: cs}
}

// read returns the mean of n conversions. Results are left justified.
func (a *max1148) read(n int) uint16 {
	var total uint32
	a.cs.Low()
	a.tx = [3]byte{ADC_CONTROL, 0, 0}
	for i := 0; i < n; i++ {
		if err := a.bus.Tx(a.tx[:], a.rx[:]); err != nil {
			continue
		}
		total += uint32(uint16(a.rx[1])<<8|uint16(a.rx[2])) >> 2
	}
	a.cs.High()
	if n == 0 {
		return 0
	}
	return uint16(total / uint32(n))
}

// probes steps both DAC channels through the sweep and reads each probe's
// ADC after every step.
type probes struct {
	levels   sweep.Levels
	adc      [frame.Channels]*max1148
	averages int
	settle   time.Duration

	cdr register.Register
	isr register.Register
}

func newProbes(levels sweep.Levels, averages int, adc0, adc1 *max1148) *probes {
	register.At(PMC_PCER1).Set(PMC_DACC)
	register.At(DACC_CR).Set(1) // software reset
	register.At(DACC_MR).Set(DACC_MR_TAG | DACC_MR_REFR | DACC_MR_STUP)
	register.At(DACC_CHER).Set(0b11)
	return &probes{
		levels:   levels,
		adc:      [frame.Channels]*max1148{adc0, adc1},
		averages: averages,
		settle:   ADC_SETTLE_US * time.Microsecond,
		cdr:      register.At(DACC_CDR),
		isr:      register.At(DACC_ISR),
	}
}

func (p *probes) write(ch int, code uint16) {
	for !register.HasBits(p.isr, DACC_TXRDY) {
	}
	p.cdr.Set(uint32(ch)<<12 | uint32(code&0xFFF))
}

// Sweep implements payload.Sweeper.
func (p *probes) Sweep(s *frame.Sweep) {
	for i, code := range p.levels {
		for ch := range p.adc {
			p.write(ch, code)
		}
		time.Sleep(p.settle)
		for ch, adc := range p.adc {
			s[ch*frame.Steps+i] = adc.read(p.averages)
		}
	}
	for ch := range p.adc {
		p.write(ch, p.levels[0])
	}
}

// altIMU reads raw counts from the magnetometer and the combined
// accelerometer/gyroscope.
type altIMU struct {
	bus  drivers.I2C
	gyro *lsm6ds3.Device
	mag  lis3mdl.Device
	reg  [1]byte
	buf  [12]byte
}

func newAltIMU(bus drivers.I2C) (*altIMU, error) {
	m := &altIMU{
		bus:  bus,
		gyro: lsm6ds3.New(bus),
		mag:  lis3mdl.New(bus),
	}
	m.gyro.Address = IMU_GYRO_ADDRESS
	m.mag.Address = IMU_MAG_ADDRESS

	if !m.gyro.Connected() || !m.mag.Connected() {
		return nil, errors.New("IMU not found")
	}
	if err := m.gyro.Configure(lsm6ds3.Configuration{
		AccelRange:      lsm6ds3.ACCEL_4G,
		AccelSampleRate: lsm6ds3.ACCEL_SR_104,
		GyroRange:       lsm6ds3.GYRO_2000DPS,
		GyroSampleRate:  lsm6ds3.GYRO_SR_104,
	}); err != nil {
		return nil, err
	}
	m.mag.Configure(lis3mdl.Configuration{})

	// Ultra-high performance on all axes, 155 Hz, +/-4 gauss, continuous.
	for _, w := range [][2]byte{
		{LIS3MDL_CTRL1, 0xFE},
		{LIS3MDL_CTRL1 + 1, 0x00},
		{LIS3MDL_CTRL1 + 2, 0x00},
		{LIS3MDL_CTRL1 + 3, 0x0C},
	} {
		if err := bus.Tx(IMU_MAG_ADDRESS, w[:], nil); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *altIMU) readInto(addr uint16, reg byte, dst []int16) {
	n := 2 * len(dst)
	m.reg[0] = reg
	if err := m.bus.Tx(addr, m.reg[:], m.buf[:n]); err != nil {
		return
	}
	for i := range dst {
		dst[i] = int16(uint16(m.buf[2*i]) | uint16(m.buf[2*i+1])<<8)
	}
}

// Sample implements payload.IMU. Order is magnetometer, accelerometer,
// gyroscope.
func (m *altIMU) Sample(out *frame.IMU) {
	m.readInto(IMU_MAG_ADDRESS, LIS3MDL_OUT_X_L|LIS3MDL_AUTO_INC, out[0:3])
	m.readInto(IMU_GYRO_ADDRESS, LSM6_OUTX_L_XL, out[3:6])
	m.readInto(IMU_GYRO_ADDRESS, LSM6_OUTX_L_G, out[6:9])
}
