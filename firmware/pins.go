//go:build tinygo

package main

import "machine"

const (
	// Telemetry runs on the programming port UART. The PDC owns its
	// transmitter after startup.
	UART_BAUD_RATE = 230400

	// Shared SPI bus: two MAX1148 ADCs and the AT25M02 EEPROM
	SPI_FREQUENCY = 4000000
	SPI_MODE      = 0
	PIN_ADC0_CS   = machine.D52
	PIN_ADC1_CS   = machine.D10
	PIN_RAM_CS    = machine.D4

	// MAX1148 control byte: start, channel 0 single-ended, unipolar,
	// external clock.
	ADC_CONTROL = 0x8F
	// Settling time per DAC step before the ADCs are read
	ADC_SETTLE_US = 50

	// SAM3X DACC, both channels in tagged mode
	DACC_BASE    = 0x400C8000
	DACC_CR      = DACC_BASE + 0x00
	DACC_MR      = DACC_BASE + 0x04
	DACC_CHER    = DACC_BASE + 0x10
	DACC_CDR     = DACC_BASE + 0x20
	DACC_ISR     = DACC_BASE + 0x30
	DACC_MR_TAG  = 1 << 20
	DACC_MR_REFR = 0x08 << 8
	DACC_MR_STUP = 0x10 << 24
	DACC_TXRDY   = 1 << 0
	PMC_PCER1    = 0x400E0700 + 0x100
	PMC_DACC     = 1 << (38 - 32)

	// Sync pulse from the rocket, active low
	PIN_SYNC = machine.D2
	// High while two sweeps started closer together than the gap threshold
	PIN_GAP = machine.D6
	// Toggled on every interrupted cycle
	PIN_INTERRUPTED = machine.D7

	// Pololu AltIMU: LSM6DS33 accelerometer/gyroscope and LIS3MDL magnetometer
	IMU_GYRO_ADDRESS = 0x6B
	IMU_MAG_ADDRESS  = 0x1E
	LSM6_OUTX_L_G    = 0x22
	LSM6_OUTX_L_XL   = 0x28
	LIS3MDL_CTRL1    = 0x20
	LIS3MDL_OUT_X_L  = 0x28
	// Register auto-increment on the magnetometer
	LIS3MDL_AUTO_INC = 0x80

	// Scheduler timer tick
	TICK_INTERVAL_US = 100
)
