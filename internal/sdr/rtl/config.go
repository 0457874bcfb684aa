package rtl

import (
	"fmt"
	"strconv"
	"strings"

	"rfsentry/internal/sdr"
)

const (
	// Tuner limits for the RTL2832U family.
	SampleRateMin = 225_001
	SampleRateMax = 3_200_000

	FrequencyMin = 24_000_000
	FrequencyMax = 1_766_000_000
)

// Args returns the command line arguments for the `rtl_sdr` capture tool.
// The tool streams raw unsigned 8-bit I/Q pairs to stdout until killed.
// See `man rtl_sdr` for more information.
func Args(c *sdr.Config) ([]string, error) {
	if err := Validate(c); err != nil {
		return nil, err
	}

	args := []string{
		"-d", strconv.Itoa(c.Index),
		"-f", strconv.FormatFloat(c.TunedFrequency(), 'f', 0, 64),
		"-s", strconv.FormatFloat(c.SampleRateHz, 'f', 0, 64),
	}

	if c.Gain > 0 {
		args = append(args, "-g", strconv.FormatFloat(c.Gain, 'f', 1, 64))
	}

	args = append(args, "-") // always dump to stdout

	return args, nil
}

// Validate checks the device configuration against the tuner limits.
func Validate(c *sdr.Config) error {
	if c.Index < 0 {
		return fmt.Errorf("rtl: device index must not be negative: %d", c.Index)
	}
	if c.CenterFreqHz < FrequencyMin || c.CenterFreqHz > FrequencyMax {
		return fmt.Errorf("rtl: center frequency out of tuner range: %0.0f Hz, must be between %d and %d Hz",
			c.CenterFreqHz, FrequencyMin, FrequencyMax)
	}
	if c.SampleRateHz < SampleRateMin || c.SampleRateHz > SampleRateMax {
		return fmt.Errorf("rtl: sample rate out of range: %0.0f Hz, must be between %d and %d Hz",
			c.SampleRateHz, SampleRateMin, SampleRateMax)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("rtl: block size must be positive: %d", c.BlockSize)
	}
	return nil
}

// String renders the full capture command for logging.
func String(c *sdr.Config) string {
	args, err := Args(c)
	if err != nil {
		return fmt.Sprintf("rtl: failed to build args: %s", err)
	}
	return fmt.Sprintf("%s %s", Runtime, strings.Join(args, " "))
}
