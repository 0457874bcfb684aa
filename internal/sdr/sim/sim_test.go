package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"rfsentry/internal/dsp"
	"rfsentry/internal/sdr"
)

func testConfig() sdr.Config {
	return sdr.Config{
		Index:        0,
		Name:         "sim",
		CenterFreqHz: 100e6,
		SampleRateHz: 2.048e6,
		BlockSize:    512,
	}
}

func measure(t *testing.T, s *Source) float64 {
	t.Helper()

	block, err := s.ReadBlock()
	if err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}
	r, err := dsp.Estimate(block, 0)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	return r.PowerDb
}

func TestSource_NoiseFloorIsExact(t *testing.T) {
	s := New(testConfig(), Options{NoiseFloorDb: -62})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if got := measure(t, s); math.Abs(got-(-62)) > 0.1 {
		t.Errorf("expected -62 dB, got %.2f dB", got)
	}
}

func TestSource_CarrierRollsOffWithTuningDistance(t *testing.T) {
	config := testConfig()
	s := New(config, Options{
		NoiseFloorDb:   -90,
		CarrierFreqHz:  config.CenterFreqHz,
		CarrierPowerDb: -30,
		CarrierWidthHz: 500,
	})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	onCarrier := measure(t, s)
	if math.Abs(onCarrier-(-30)) > 0.5 {
		t.Errorf("on the carrier: expected -30 dB, got %.2f dB", onCarrier)
	}

	if err := s.Retune(config.CenterFreqHz + 500); err != nil {
		t.Fatalf("Retune failed: %v", err)
	}
	oneWidthOff := measure(t, s)
	if oneWidthOff >= onCarrier {
		t.Errorf("power must fall off the carrier: %.2f dB vs %.2f dB", oneWidthOff, onCarrier)
	}

	if err := s.Retune(config.CenterFreqHz + 50_000); err != nil {
		t.Fatalf("Retune failed: %v", err)
	}
	farOff := measure(t, s)
	if math.Abs(farOff-(-90)) > 0.5 {
		t.Errorf("far from the carrier only the floor remains: got %.2f dB", farOff)
	}
}

func TestSource_OpenError(t *testing.T) {
	s := New(testConfig(), Options{}, WithOpenError(errors.New("device claimed")))

	err := s.Open(context.Background())
	if !errors.Is(err, sdr.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got: %v", err)
	}
}

func TestSource_ReadAfterClose(t *testing.T) {
	s := New(testConfig(), Options{})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := s.ReadBlock(); !errors.Is(err, sdr.ErrIO) {
		t.Errorf("expected ErrIO after close, got: %v", err)
	}
	if !s.Closed() {
		t.Error("Closed must report true")
	}
}
