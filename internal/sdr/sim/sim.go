// Package sim provides a synthetic sample source. It backs the demo mode,
// where no hardware is attached, and the package tests.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"rfsentry/internal/sdr"
)

// Options shape the synthetic signal. Power levels are expressed on the
// same scale the estimator reports before the reference offset is applied:
// a block of amplitude A measures 20*log10(A).
type Options struct {
	// NoiseFloorDb is the baseline block power.
	NoiseFloorDb float64

	// NoiseJitterDb adds a uniform ±jitter to the baseline per block.
	NoiseJitterDb float64

	// CarrierFreqHz places a carrier in the spectrum. When the source is
	// tuned near it the block power rises towards CarrierPowerDb with a
	// Gaussian rolloff of width CarrierWidthHz. Zero disables the carrier.
	CarrierFreqHz  float64
	CarrierPowerDb float64
	CarrierWidthHz float64

	// BurstProbability emits occasional blocks at BurstPowerDb, emulating
	// intermittent transmissions.
	BurstProbability float64
	BurstPowerDb     float64

	// BlockDelay paces ReadBlock to emulate a blocking hardware capture.
	BlockDelay time.Duration

	// Seed makes the jitter and burst sequence reproducible.
	Seed int64
}

// WithOpenError makes Open fail, emulating a missing or claimed dongle.
func WithOpenError(err error) func(s *Source) {
	return func(s *Source) {
		s.openErr = err
	}
}

// Source is a synthetic sdr.Source.
type Source struct {
	config  sdr.Config
	opts    Options
	openErr error

	mu      sync.Mutex
	rng     *rand.Rand
	tunedHz float64
	opened  bool
	closed  bool
}

func New(config sdr.Config, opts Options, options ...func(s *Source)) *Source {
	s := Source{
		config:  config,
		opts:    opts,
		rng:     rand.New(rand.NewSource(opts.Seed)),
		tunedHz: config.TunedFrequency(),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

func (s *Source) Open(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openErr != nil {
		return fmt.Errorf("%w: %w", sdr.ErrUnavailable, s.openErr)
	}
	if s.opened {
		return fmt.Errorf("sim: device %d already open", s.config.Index)
	}

	s.opened = true
	s.closed = false
	return nil
}

func (s *Source) ReadBlock() (sdr.Block, error) {
	if s.opts.BlockDelay > 0 {
		time.Sleep(s.opts.BlockDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened || s.closed {
		return sdr.Block{}, fmt.Errorf("%w: device %d not open", sdr.ErrIO, s.config.Index)
	}

	powerDb := s.opts.NoiseFloorDb
	if s.opts.NoiseJitterDb > 0 {
		powerDb += (s.rng.Float64()*2 - 1) * s.opts.NoiseJitterDb
	}
	if s.opts.BurstProbability > 0 && s.rng.Float64() < s.opts.BurstProbability {
		powerDb = s.opts.BurstPowerDb
	}

	// Linear powers add; the carrier contribution falls off with tuning
	// distance.
	linear := math.Pow(10, powerDb/10)
	if s.opts.CarrierFreqHz > 0 && s.opts.CarrierWidthHz > 0 {
		df := (s.tunedHz - s.opts.CarrierFreqHz) / s.opts.CarrierWidthHz
		linear += math.Pow(10, s.opts.CarrierPowerDb/10) * math.Exp(-df*df)
	}
	amplitude := float32(math.Sqrt(linear))

	samples := make([]complex64, s.config.BlockSize)
	for i := range samples {
		phase := 2 * math.Pi * float64(i) / float64(len(samples))
		samples[i] = complex(amplitude*float32(math.Cos(phase)), amplitude*float32(math.Sin(phase)))
	}

	return sdr.Block{
		DeviceIndex: s.config.Index,
		Timestamp:   time.Now(),
		Samples:     samples,
	}, nil
}

func (s *Source) Retune(freqHz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened || s.closed {
		return fmt.Errorf("%w: device %d not open", sdr.ErrIO, s.config.Index)
	}

	s.tunedHz = freqHz * (1 + s.config.CorrectionPPM/1e6)
	return nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.opened = false
	return nil
}

// Closed reports whether Close has been called. Used by tests to verify an
// orderly shutdown.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
