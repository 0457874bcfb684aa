package detect

import (
	"testing"
	"time"

	"rfsentry/internal/dsp"
)

type recordingSink struct {
	events []Event
}

func (s *recordingSink) Detection(ev Event) {
	s.events = append(s.events, ev)
}

func reading(powerDb float64) dsp.Reading {
	return dsp.Reading{
		DeviceIndex: 0,
		Timestamp:   time.Now(),
		PowerDb:     powerDb,
		PeakDb:      powerDb,
	}
}

func feed(d *Detector, powerDb float64, n int) {
	for i := 0; i < n; i++ {
		d.Observe(reading(powerDb))
	}
}

func TestDetector_SingleEventPerSustainedStretch(t *testing.T) {
	sink := &recordingSink{}
	d := New(0, 382_500_000, -50, 3, WithSink(sink))

	feed(d, -40, 50)

	if len(sink.events) != 1 {
		t.Fatalf("expected exactly 1 event for a sustained stretch, got %d", len(sink.events))
	}
	if d.State().Detections != 1 {
		t.Errorf("expected detection count 1, got %d", d.State().Detections)
	}
	if !d.State().AboveThreshold {
		t.Error("expected detector to be above threshold")
	}

	ev := sink.events[0]
	if ev.FrequencyHz != 382_500_000 {
		t.Errorf("event frequency: expected 382.5 MHz, got %.0f", ev.FrequencyHz)
	}
	if ev.PowerDb != -40 {
		t.Errorf("event power: expected -40 dBm, got %.1f", ev.PowerDb)
	}
}

func TestDetector_DebounceSuppressesShortSpikes(t *testing.T) {
	const debounce = 4

	sink := &recordingSink{}
	d := New(0, 100e6, -50, debounce, WithSink(sink))

	// One reading short of confirmation, then the spike ends.
	feed(d, -30, debounce-1)
	feed(d, -70, 1)

	if len(sink.events) != 0 {
		t.Fatalf("expected 0 events for a spike shorter than the debounce, got %d", len(sink.events))
	}
	if d.State().Detections != 0 {
		t.Errorf("expected detection count 0, got %d", d.State().Detections)
	}
}

func TestDetector_RearmsAfterFallingEdge(t *testing.T) {
	sink := &recordingSink{}
	d := New(0, 100e6, -50, 2, WithSink(sink))

	feed(d, -40, 10) // first stretch, one event
	feed(d, -80, 3)  // falling edge, silent
	feed(d, -35, 10) // second stretch, one event

	if len(sink.events) != 2 {
		t.Fatalf("expected 2 events across 2 stretches, got %d", len(sink.events))
	}
	if d.State().Detections != 2 {
		t.Errorf("expected detection count 2, got %d", d.State().Detections)
	}
}

func TestDetector_FallingEdgeEmitsNothing(t *testing.T) {
	sink := &recordingSink{}
	d := New(0, 100e6, -50, 1, WithSink(sink))

	feed(d, -40, 5)
	before := len(sink.events)
	feed(d, -90, 1)

	if len(sink.events) != before {
		t.Error("falling edge must not emit an event")
	}
	if d.State().AboveThreshold {
		t.Error("expected detector below threshold after falling edge")
	}
}

func TestDetector_ThresholdIsInclusive(t *testing.T) {
	d := New(0, 100e6, -50, 1)

	if _, fired := d.Observe(reading(-50)); !fired {
		t.Error("a reading exactly at the threshold must count as above")
	}
}

func TestDetector_TracksPeakAndCurrent(t *testing.T) {
	d := New(0, 100e6, -10, 1)

	levels := []float64{-80, -45, -60, -72}
	for _, p := range levels {
		d.Observe(reading(p))
	}

	state := d.State()
	if state.CurrentPowerDb != -72 {
		t.Errorf("current power: expected -72, got %.1f", state.CurrentPowerDb)
	}
	if state.PeakPowerDb != -45 {
		t.Errorf("peak power: expected -45, got %.1f", state.PeakPowerDb)
	}
	if state.Detections != 0 {
		t.Errorf("no reading crossed the threshold, got %d detections", state.Detections)
	}
}

func TestDetector_InvalidDebounceTreatedAsOne(t *testing.T) {
	sink := &recordingSink{}
	d := New(0, 100e6, -50, 0, WithSink(sink))

	feed(d, -40, 1)

	if len(sink.events) != 1 {
		t.Fatalf("debounce 0 should behave like 1, got %d events", len(sink.events))
	}
}
