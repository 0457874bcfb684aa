// Package calib estimates a receiver's frequency offset against a known
// reference carrier. It is the alternate per-device consumer: a device runs
// either a detector or an analyzer, chosen once at startup.
package calib

import (
	"fmt"
	"time"
)

// Result is the current offset estimate. It is recomputed after every
// completed sweep; the operator reads the final value, nothing persists it.
type Result struct {
	DeviceIndex int
	Timestamp   time.Time
	OffsetHz    float64 // peak position minus reference
	OffsetPPM   float64 // OffsetHz expressed against the reference
	Confidence  float64 // 0..1, prominence of the peak over the window
	Sweeps      int     // completed sweeps contributing to the estimate
}

// Analyzer accumulates per-bin power over a sweep window centered on the
// reference frequency. The acquisition loop retunes the receiver across the
// bins and records one power reading per bin; the offset estimate is the
// bin where the windowed mean power peaks.
type Analyzer struct {
	deviceIndex int
	referenceHz float64
	binWidthHz  float64
	bins        int

	window  int         // sweeps retained
	history [][]float64 // ring buffer of completed sweeps
	next    int         // ring write position
	sweeps  int         // total completed sweeps

	current []float64 // sweep being filled
	filled  int
}

// New creates an analyzer sweeping `bins` frequency bins of binWidthHz
// around referenceHz, averaging over a rolling window of `window` sweeps.
// An even bin count is rounded up so the reference sits on the center bin.
func New(deviceIndex int, referenceHz, binWidthHz float64, bins, window int) (*Analyzer, error) {
	if referenceHz <= 0 {
		return nil, fmt.Errorf("calib: reference frequency must be positive: %0.0f", referenceHz)
	}
	if binWidthHz <= 0 {
		return nil, fmt.Errorf("calib: bin width must be positive: %0.0f", binWidthHz)
	}
	if bins < 3 {
		return nil, fmt.Errorf("calib: need at least 3 bins: %d given", bins)
	}
	if window < 1 {
		return nil, fmt.Errorf("calib: window must be at least 1 sweep: %d given", window)
	}
	if bins%2 == 0 {
		bins++
	}

	return &Analyzer{
		deviceIndex: deviceIndex,
		referenceHz: referenceHz,
		binWidthHz:  binWidthHz,
		bins:        bins,
		window:      window,
		history:     make([][]float64, 0, window),
		current:     make([]float64, bins),
	}, nil
}

// Bins returns the number of frequency bins in one sweep.
func (a *Analyzer) Bins() int {
	return a.bins
}

// BinFrequency returns the tuning frequency for bin i. The center bin sits
// exactly on the reference.
func (a *Analyzer) BinFrequency(i int) float64 {
	return a.referenceHz + float64(i-a.bins/2)*a.binWidthHz
}

// Record stores the measured power for bin i of the sweep in progress.
// Completing the last bin commits the sweep to the rolling window.
func (a *Analyzer) Record(i int, powerDb float64) {
	if i < 0 || i >= a.bins {
		return
	}

	a.current[i] = powerDb
	a.filled++

	if a.filled < a.bins {
		return
	}

	sweep := make([]float64, a.bins)
	copy(sweep, a.current)

	if len(a.history) < a.window {
		a.history = append(a.history, sweep)
	} else {
		a.history[a.next] = sweep
	}
	a.next = (a.next + 1) % a.window
	a.sweeps++
	a.filled = 0
}

// Discard drops the sweep in progress. The acquisition loop calls it when
// a bin could not be measured, so a committed sweep never mixes bins from
// different passes.
func (a *Analyzer) Discard() {
	a.filled = 0
}

// Estimate returns the current offset estimate. It reports false until at
// least one full sweep has been recorded.
func (a *Analyzer) Estimate() (Result, bool) {
	if len(a.history) == 0 {
		return Result{}, false
	}

	mean := make([]float64, a.bins)
	for _, sweep := range a.history {
		for i, p := range sweep {
			mean[i] += p
		}
	}
	for i := range mean {
		mean[i] /= float64(len(a.history))
	}

	peakBin, sum := 0, 0.0
	minP, maxP := mean[0], mean[0]
	for i, p := range mean {
		sum += p
		if p > maxP {
			maxP = p
			peakBin = i
		}
		if p < minP {
			minP = p
		}
	}

	offsetHz := float64(peakBin-a.bins/2) * a.binWidthHz

	// Peak prominence over the window mean, normalized by the spread.
	// A flat sweep (no reference carrier visible) scores zero.
	confidence := 0.0
	if spread := maxP - minP; spread > 0 {
		confidence = (maxP - sum/float64(a.bins)) / spread
	}

	return Result{
		DeviceIndex: a.deviceIndex,
		Timestamp:   time.Now(),
		OffsetHz:    offsetHz,
		OffsetPPM:   offsetHz / a.referenceHz * 1e6,
		Confidence:  confidence,
		Sweeps:      a.sweeps,
	}, true
}
