package dsp

import (
	"math"
	"testing"
	"time"

	"rfsentry/internal/sdr"
)

func uniformBlock(amplitude float32, n int) sdr.Block {
	samples := make([]complex64, n)
	for i := range samples {
		samples[i] = complex(amplitude, 0)
	}
	return sdr.Block{
		DeviceIndex: 0,
		Timestamp:   time.Now(),
		Samples:     samples,
	}
}

func TestEstimate_MonotonicInAmplitude(t *testing.T) {
	amplitudes := []float32{0.001, 0.01, 0.1, 0.25, 0.5, 0.9, 1.0}

	prev := math.Inf(-1)
	for _, a := range amplitudes {
		r, err := Estimate(uniformBlock(a, 1024), 0)
		if err != nil {
			t.Fatalf("Estimate failed for amplitude %f: %v", a, err)
		}
		if r.PowerDb <= prev {
			t.Errorf("power not monotonic: amplitude %f gave %.2f dB, previous %.2f dB", a, r.PowerDb, prev)
		}
		prev = r.PowerDb
	}
}

func TestEstimate_KnownValue(t *testing.T) {
	// A block of unit-magnitude samples has mean square magnitude 1,
	// which is 0 dB before the offset.
	r, err := Estimate(uniformBlock(1, 512), -50)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	if math.Abs(r.PowerDb-(-50)) > 1e-6 {
		t.Errorf("expected -50 dB, got %.6f", r.PowerDb)
	}
	if math.Abs(r.PeakDb-(-50)) > 1e-6 {
		t.Errorf("expected peak -50 dB, got %.6f", r.PeakDb)
	}
}

func TestEstimate_ZeroInputReturnsFloor(t *testing.T) {
	r, err := Estimate(uniformBlock(0, 256), 0)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	if r.PowerDb != FloorDb {
		t.Errorf("expected floor %v for zero input, got %v", FloorDb, r.PowerDb)
	}
	if r.PeakDb != FloorDb {
		t.Errorf("expected peak floor %v for zero input, got %v", FloorDb, r.PeakDb)
	}
	if math.IsInf(r.PowerDb, 0) || math.IsNaN(r.PowerDb) {
		t.Errorf("zero input must not produce inf/NaN, got %v", r.PowerDb)
	}
}

func TestEstimate_EmptyBlock(t *testing.T) {
	if _, err := Estimate(sdr.Block{DeviceIndex: 3}, 0); err == nil {
		t.Error("expected error for empty block")
	}
}

func TestEstimate_PeakAboveMean(t *testing.T) {
	block := uniformBlock(0.1, 128)
	block.Samples[64] = complex(0.9, 0) // single strong sample

	r, err := Estimate(block, 0)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	if r.PeakDb <= r.PowerDb {
		t.Errorf("peak %.2f dB should exceed mean %.2f dB", r.PeakDb, r.PowerDb)
	}
}
