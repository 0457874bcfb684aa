package app

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// GainAuto selects the tuner's automatic gain control.
const GainAuto Gain = -1

// defaultReferenceOffset lines the full-scale-relative power scale up with
// typical RTL dongle readings in dBm.
const defaultReferenceOffset = -50.0

// Gain is a tuner gain in dB, or "auto" in YAML for AGC.
type Gain float64

func (g *Gain) UnmarshalYAML(value *yaml.Node) error {
	if value.Value == "" || value.Value == "auto" {
		*g = GainAuto
		return nil
	}

	v, err := strconv.ParseFloat(value.Value, 64)
	if err != nil {
		return fmt.Errorf("app.Gain: expected a number or 'auto': %q given", value.Value)
	}

	*g = Gain(v)
	return nil
}

func (g Gain) MarshalYAML() (interface{}, error) {
	if g == GainAuto {
		return "auto", nil
	}
	return float64(g), nil
}

// Duration wraps time.Duration with Go duration syntax in YAML ("500ms").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the main application configuration.
type Config struct {
	Settings    Settings          `yaml:"settings"`
	Devices     []DeviceConfig    `yaml:"devices"`
	Detection   DetectionConfig   `yaml:"detection"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Display     DisplayConfig     `yaml:"display"`
	Storage     StorageConfig     `yaml:"storage"`
}

// Settings holds global application settings.
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// DeviceConfig describes one receiver. It is immutable after load. The
// json tags cover the copy recorded with each storage session.
type DeviceConfig struct {
	Index           int     `yaml:"index" json:"index"`
	Name            string  `yaml:"name" json:"name"`
	CenterFrequency float64 `yaml:"centerFrequency" json:"centerFrequency"` // Hz
	SampleRate      float64 `yaml:"sampleRate" json:"sampleRate"`           // Hz
	Gain            Gain    `yaml:"gain" json:"gain"`
	PPMCorrection   float64 `yaml:"ppmCorrection" json:"ppmCorrection"`
	Threshold       float64 `yaml:"threshold" json:"threshold"` // detection threshold, dBm
}

// DetectionConfig holds the parameters shared by all detecting devices.
type DetectionConfig struct {
	// BlockSize is the number of complex samples per power estimate.
	BlockSize int `yaml:"blockSize"`

	// Debounce is the number of consecutive above-threshold readings
	// required to confirm a detection. Required; there is no sane
	// universal default for a site's noise behavior.
	Debounce int `yaml:"debounce"`

	// ReferenceOffset shifts the full-scale-relative power estimate
	// towards calibrated dBm. A pointer so an explicit zero survives;
	// omitted selects the default.
	ReferenceOffset *float64 `yaml:"referenceOffset"`
}

// CalibrationConfig describes the sweep used in calibration mode.
type CalibrationConfig struct {
	ReferenceFrequency float64 `yaml:"referenceFrequency"` // Hz, known carrier
	BinWidth           float64 `yaml:"binWidth"`           // Hz per sweep bin
	Bins               int     `yaml:"bins"`
	Window             int     `yaml:"window"` // sweeps averaged
}

// DisplayConfig shapes the terminal status line.
type DisplayConfig struct {
	RefreshInterval Duration `yaml:"refreshInterval"`
	BarWidth        int      `yaml:"barWidth"`
	PowerRangeMin   float64  `yaml:"powerRangeMin"` // dBm mapped to 0%
	PowerRangeMax   float64  `yaml:"powerRangeMax"` // dBm mapped to 100%
	Monochrome      bool     `yaml:"monochrome"`
}

// StorageConfig enables the detection/reading log.
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
}

// LoadConfig reads, fills in defaults and validates a configuration file.
// Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	var config Config
	dec := yaml.NewDecoder(bytes.NewReader(p))
	dec.KnownFields(true)
	if err = dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	config.applyDefaults()
	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = "info"
	}
	if c.Detection.BlockSize == 0 {
		c.Detection.BlockSize = 262_144
	}
	if c.Detection.ReferenceOffset == nil {
		offset := defaultReferenceOffset
		c.Detection.ReferenceOffset = &offset
	}
	if c.Calibration.BinWidth == 0 {
		c.Calibration.BinWidth = 500
	}
	if c.Calibration.Bins == 0 {
		c.Calibration.Bins = 33
	}
	if c.Calibration.Window == 0 {
		c.Calibration.Window = 5
	}
	if c.Display.RefreshInterval == 0 {
		c.Display.RefreshInterval = Duration(500 * time.Millisecond)
	}
	if c.Display.BarWidth == 0 {
		c.Display.BarWidth = 30
	}
	if c.Display.PowerRangeMin == 0 && c.Display.PowerRangeMax == 0 {
		c.Display.PowerRangeMin = -80
		c.Display.PowerRangeMax = -20
	}
	for i := range c.Devices {
		if c.Devices[i].Gain == 0 {
			c.Devices[i].Gain = GainAuto
		}
	}
}

// Validate rejects a configuration before any device starts.
func (c *Config) Validate() error {
	if len(c.Devices) == 0 {
		return fmt.Errorf("no devices configured")
	}

	seen := make(map[int]struct{}, len(c.Devices))
	for i, d := range c.Devices {
		if d.Index < 0 {
			return fmt.Errorf("device %d: index must not be negative: %d", i, d.Index)
		}
		if _, ok := seen[d.Index]; ok {
			return fmt.Errorf("device %d: duplicate index %d", i, d.Index)
		}
		seen[d.Index] = struct{}{}

		if d.Name == "" {
			return fmt.Errorf("device %d: name is required", i)
		}
		if d.CenterFrequency <= 0 {
			return fmt.Errorf("device %q: center frequency must be positive: %0.0f", d.Name, d.CenterFrequency)
		}
		if d.SampleRate <= 0 {
			return fmt.Errorf("device %q: sample rate must be positive: %0.0f", d.Name, d.SampleRate)
		}
		if d.Threshold >= 0 || d.Threshold < -150 {
			return fmt.Errorf("device %q: threshold must be between -150 and 0 dBm: %0.1f given", d.Name, d.Threshold)
		}
	}

	if c.Detection.BlockSize <= 0 {
		return fmt.Errorf("detection.blockSize must be positive: %d", c.Detection.BlockSize)
	}
	if c.Detection.Debounce < 1 {
		return fmt.Errorf("detection.debounce is required and must be at least 1: %d given", c.Detection.Debounce)
	}

	if time.Duration(c.Display.RefreshInterval) <= 0 {
		return fmt.Errorf("display.refreshInterval must be positive")
	}
	if c.Display.BarWidth <= 0 {
		return fmt.Errorf("display.barWidth must be positive: %d", c.Display.BarWidth)
	}
	if c.Display.PowerRangeMin >= c.Display.PowerRangeMax {
		return fmt.Errorf("display.powerRange is empty: %0.1f >= %0.1f", c.Display.PowerRangeMin, c.Display.PowerRangeMax)
	}

	if c.Storage.Enabled && c.Storage.DataDirectory == "" {
		return fmt.Errorf("storage.dataDirectory is required when storage is enabled")
	}

	return nil
}

// ValidateCalibration checks the sweep parameters. Only called when the
// process runs in calibration mode.
func (c *Config) ValidateCalibration() error {
	if c.Calibration.ReferenceFrequency <= 0 {
		return fmt.Errorf("calibration.referenceFrequency is required")
	}
	if c.Calibration.BinWidth <= 0 {
		return fmt.Errorf("calibration.binWidth must be positive: %0.0f", c.Calibration.BinWidth)
	}
	if c.Calibration.Bins < 3 {
		return fmt.Errorf("calibration.bins must be at least 3: %d", c.Calibration.Bins)
	}
	if c.Calibration.Window < 1 {
		return fmt.Errorf("calibration.window must be at least 1: %d", c.Calibration.Window)
	}
	return nil
}
