package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the payload and ground station configuration.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Payload  PayloadConfig  `yaml:"payload"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Storage  StorageConfig  `yaml:"storage"`
	Transmit TransmitConfig `yaml:"transmit"`
	Display  DisplayConfig  `yaml:"display"`
	Relay    RelayConfig    `yaml:"relay"`
	Mock     MockConfig     `yaml:"mock"`
}

// SerialConfig contains the telemetry link configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// PayloadConfig contains the cycle timing and storage policy.
type PayloadConfig struct {
	ShieldID        uint8         `yaml:"shield_id"`
	SamplePeriod    time.Duration `yaml:"sample_period"`     // Nominal cycle length
	SweepOffset     time.Duration `yaml:"sweep_offset"`      // Delay from tick/sync to sweep start
	ReplayDelay     time.Duration `yaml:"replay_delay"`      // Warm-up before stored records are replayed
	MaxChipFailures int           `yaml:"max_chip_failures"` // Consecutive chip timeouts before storage is disabled
	DisableStorage  bool          `yaml:"disable_storage"`
	GapThreshold    time.Duration `yaml:"gap_threshold"` // Sweeps closer than this raise the gap pin
}

// SweepConfig contains the DAC sweep and ADC conversion parameters.
type SweepConfig struct {
	Min       float64       `yaml:"min"` // First DAC code
	Max       float64       `yaml:"max"` // Last DAC code
	StepDelay time.Duration `yaml:"step_delay"`
	Averages  int           `yaml:"averages"` // ADC conversions averaged per step
	DACVRef   float64       `yaml:"dac_vref"`
	ADCVRef   float64       `yaml:"adc_vref"`
	ADCBits   int           `yaml:"adc_bits"`
	BiasGain  float64       `yaml:"bias_gain"` // Screen bias per DAC volt
}

// StorageConfig describes the EEPROM.
type StorageConfig struct {
	Capacity     uint32        `yaml:"capacity"`
	PageSize     uint32        `yaml:"page_size"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

// TransmitConfig contains the telemetry transmitter parameters.
type TransmitConfig struct {
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

// DisplayConfig contains ground station display parameters.
type DisplayConfig struct {
	WindowSeconds float64       `yaml:"window_seconds"`
	AverageSweeps int           `yaml:"average_sweeps"` // Number of sweeps to average (0 = disabled, default)
	GapTolerance  time.Duration `yaml:"gap_tolerance"`  // Allowed deviation from the sample period
	MaxPoints     int           `yaml:"max_points"`     // History points kept for plotting
}

// RelayConfig contains the frame relay endpoints. Empty disables an endpoint.
type RelayConfig struct {
	MQTTURL       string `yaml:"mqtt_url"`
	Topic         string `yaml:"topic"`
	WebsocketAddr string `yaml:"websocket_addr"`
}

// MockConfig contains simulated payload configuration.
type MockConfig struct {
	SyncPeriod     time.Duration `yaml:"sync_period"`      // External sync pulse period (0 = none)
	SyncJitter     time.Duration `yaml:"sync_jitter"`      // Random offset added to each sync pulse
	NoiseLevel     float64       `yaml:"noise_level"`      // ADC noise (V)
	ElectronTemp   float64       `yaml:"electron_temp"`    // Simulated plasma electron temperature (eV)
	FloatingBias   float64       `yaml:"floating_bias"`    // Bias where the probe current crosses zero (V)
	ChipStallAfter time.Duration `yaml:"chip_stall_after"` // Simulated EEPROM failure (0 = never)
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 230400,
		},
		Payload: PayloadConfig{
			ShieldID:        60,
			SamplePeriod:    25 * time.Millisecond,
			SweepOffset:     500 * time.Microsecond,
			ReplayDelay:     10 * time.Second,
			MaxChipFailures: 3,
			GapThreshold:    22 * time.Millisecond,
		},
		Sweep: SweepConfig{
			Min:       339,
			Max:       3752,
			StepDelay: 47 * time.Microsecond, // 46.875 µs on the old 32 MHz board
			Averages:  8,
			DACVRef:   3.3,
			ADCVRef:   4.096,
			ADCBits:   14,
			BiasGain:  1.0,
		},
		Storage: StorageConfig{
			Capacity:     1 << 18, // AT25M02
			PageSize:     256,
			ReadyTimeout: 20 * time.Millisecond,
		},
		Transmit: TransmitConfig{
			ReadyTimeout: 50 * time.Millisecond,
		},
		Display: DisplayConfig{
			WindowSeconds: 10,
			AverageSweeps: 0,
			GapTolerance:  5 * time.Millisecond,
			MaxPoints:     1000,
		},
		Relay: RelayConfig{
			Topic: "pipshield/frames",
		},
		Mock: MockConfig{
			NoiseLevel:   0.002,
			ElectronTemp: 0.5,
			FloatingBias: 1.2,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values the payload cannot run with.
func (c *Config) Validate() error {
	pow2 := func(v uint32) bool { return v != 0 && v&(v-1) == 0 }
	if !pow2(c.Storage.PageSize) || !pow2(c.Storage.Capacity) || c.Storage.Capacity < c.Storage.PageSize {
		return fmt.Errorf("invalid storage geometry: capacity %d, page size %d", c.Storage.Capacity, c.Storage.PageSize)
	}
	if c.Sweep.Max < c.Sweep.Min {
		return fmt.Errorf("invalid sweep range: %v..%v", c.Sweep.Min, c.Sweep.Max)
	}
	if c.Payload.SweepOffset >= c.Payload.SamplePeriod {
		return fmt.Errorf("sweep offset %v must be shorter than the sample period %v", c.Payload.SweepOffset, c.Payload.SamplePeriod)
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Payload.ShieldID == 0 {
		c.Payload.ShieldID = def.Payload.ShieldID
	}
	if c.Payload.SamplePeriod == 0 {
		c.Payload.SamplePeriod = def.Payload.SamplePeriod
	}
	if c.Payload.SweepOffset == 0 {
		c.Payload.SweepOffset = def.Payload.SweepOffset
	}
	if c.Payload.MaxChipFailures == 0 {
		c.Payload.MaxChipFailures = def.Payload.MaxChipFailures
	}
	if c.Payload.GapThreshold == 0 {
		c.Payload.GapThreshold = def.Payload.GapThreshold
	}

	if c.Sweep.Max == 0 {
		c.Sweep.Min = def.Sweep.Min
		c.Sweep.Max = def.Sweep.Max
	}
	if c.Sweep.Averages == 0 {
		c.Sweep.Averages = def.Sweep.Averages
	}
	if c.Sweep.DACVRef == 0 {
		c.Sweep.DACVRef = def.Sweep.DACVRef
	}
	if c.Sweep.ADCVRef == 0 {
		c.Sweep.ADCVRef = def.Sweep.ADCVRef
	}
	if c.Sweep.ADCBits == 0 {
		c.Sweep.ADCBits = def.Sweep.ADCBits
	}
	if c.Sweep.BiasGain == 0 {
		c.Sweep.BiasGain = def.Sweep.BiasGain
	}

	if c.Storage.Capacity == 0 {
		c.Storage.Capacity = def.Storage.Capacity
	}
	if c.Storage.PageSize == 0 {
		c.Storage.PageSize = def.Storage.PageSize
	}
	if c.Storage.ReadyTimeout == 0 {
		c.Storage.ReadyTimeout = def.Storage.ReadyTimeout
	}
	if c.Transmit.ReadyTimeout == 0 {
		c.Transmit.ReadyTimeout = def.Transmit.ReadyTimeout
	}

	if c.Display.WindowSeconds == 0 {
		c.Display.WindowSeconds = def.Display.WindowSeconds
	}
	if c.Display.GapTolerance == 0 {
		c.Display.GapTolerance = def.Display.GapTolerance
	}
	if c.Display.MaxPoints == 0 {
		c.Display.MaxPoints = def.Display.MaxPoints
	}

	if c.Relay.Topic == "" {
		c.Relay.Topic = def.Relay.Topic
	}

	if c.Mock.ElectronTemp == 0 {
		c.Mock.ElectronTemp = def.Mock.ElectronTemp
	}
}
