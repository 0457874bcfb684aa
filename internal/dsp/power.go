// Package dsp converts raw sample blocks into scalar power estimates.
package dsp

import (
	"fmt"
	"math"
	"time"

	"rfsentry/internal/sdr"
)

// FloorDb is the minimum representable power. It stands in for the
// logarithm of zero energy so readings never go infinite.
const FloorDb = -120.0

// Reading is the power estimate for one sample block. It is transient and
// replaced every acquisition cycle.
type Reading struct {
	DeviceIndex int
	Timestamp   time.Time
	PowerDb     float64 // mean power over the block, dBm-equivalent
	PeakDb      float64 // strongest single sample in the block
}

// Estimate computes the block's mean and peak power in a logarithmic unit.
// offsetDb shifts the normalized scale towards calibrated dBm (RTL dongles
// report full-scale-relative values; around -50 dB lines the scale up with
// reality).
//
// Estimate is a pure function and safe to call concurrently across devices.
// An empty block is an error; callers skip the cycle and keep their prior
// reading.
func Estimate(b sdr.Block, offsetDb float64) (Reading, error) {
	if len(b.Samples) == 0 {
		return Reading{}, fmt.Errorf("dsp: empty sample block from device %d", b.DeviceIndex)
	}

	var sum, peak float64
	for _, s := range b.Samples {
		re := float64(real(s))
		im := float64(imag(s))
		sq := re*re + im*im

		sum += sq
		if sq > peak {
			peak = sq
		}
	}

	mean := sum / float64(len(b.Samples))

	return Reading{
		DeviceIndex: b.DeviceIndex,
		Timestamp:   b.Timestamp,
		PowerDb:     toDb(mean, offsetDb),
		PeakDb:      toDb(peak, offsetDb),
	}, nil
}

func toDb(squareMagnitude, offsetDb float64) float64 {
	if squareMagnitude <= 0 {
		return FloorDb
	}
	db := 10*math.Log10(squareMagnitude) + offsetDb
	return math.Max(db, FloorDb)
}
