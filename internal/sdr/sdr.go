package sdr

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable is returned when a receiver cannot be opened. The device
	// is excluded from monitoring; other devices are unaffected.
	ErrUnavailable = errors.New("sdr: device unavailable")

	// ErrIO is returned when a block read fails transiently. The current
	// cycle is skipped and the acquisition loop continues.
	ErrIO = errors.New("sdr: read failed")
)

// Block is one contiguous capture of complex baseband samples from a single
// receiver. Blocks are consumed exactly once by the power estimator and are
// not retained afterwards.
type Block struct {
	DeviceIndex int
	Timestamp   time.Time
	Samples     []complex64
}

// Config holds the per-receiver tuning parameters. It is immutable after
// configuration load.
type Config struct {
	Index         int     // hardware selector
	Name          string  // display label
	CenterFreqHz  float64 // Hz
	SampleRateHz  float64 // Hz
	Gain          float64 // tenths ignored; <= 0 selects automatic gain
	CorrectionPPM float64 // tuner frequency correction, parts per million
	BlockSize     int     // samples per ReadBlock
}

// TunedFrequency returns the center frequency with the PPM correction
// applied. A negative PPM means the tuner runs low, so we tune higher.
func (c *Config) TunedFrequency() float64 {
	return c.CenterFreqHz * (1 + c.CorrectionPPM/1e6)
}

// Source abstracts one physical receiver. A Source handle is owned
// exclusively by its device acquisition loop for the process lifetime.
//
// ReadBlock blocks until a full block has been captured; the hardware gives
// no natural yield point mid-read, so cancellation is observed by callers
// between reads.
type Source interface {
	Open(ctx context.Context) error
	ReadBlock() (Block, error)
	Retune(freqHz float64) error
	Close() error
}
