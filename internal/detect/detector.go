// Package detect implements the per-device threshold detector. Each
// configured device owns exactly one Detector instance for the process
// lifetime; it is driven only by that device's acquisition loop.
package detect

import (
	"math"
	"time"

	"rfsentry/internal/dsp"
)

// Event records one confirmed rising-edge threshold crossing. Events are
// immutable once created.
type Event struct {
	DeviceIndex int
	Timestamp   time.Time
	FrequencyHz float64
	PowerDb     float64
}

// Sink receives detection events after detector state has been committed.
// Implementations must not block; the acquisition loop calls them inline.
type Sink interface {
	Detection(Event)
}

// State is the externally visible detector state, copied into the
// coordinator snapshot each cycle.
type State struct {
	CurrentPowerDb float64
	PeakPowerDb    float64 // highest power ever observed
	AboveThreshold bool
	Detections     uint64 // monotonic confirmed-event count
	LastEvent      time.Time
}

// WithSink registers a sink notified on each confirmed event.
func WithSink(sink Sink) func(*Detector) {
	return func(d *Detector) {
		d.sink = sink
	}
}

// Detector is a two-state machine (below / above threshold) with debounce:
// a rising edge is confirmed only after the threshold holds for a minimum
// number of consecutive readings, suppressing single-block noise spikes.
// Exactly one event fires per sustained above-threshold stretch.
type Detector struct {
	deviceIndex int
	frequencyHz float64
	thresholdDb float64
	debounce    int

	streak int
	state  State
	sink   Sink
}

// New creates a detector. debounce is the number of consecutive readings
// at or above thresholdDb required to confirm a detection; values below 1
// are treated as 1.
func New(deviceIndex int, frequencyHz, thresholdDb float64, debounce int, options ...func(*Detector)) *Detector {
	if debounce < 1 {
		debounce = 1
	}

	d := Detector{
		deviceIndex: deviceIndex,
		frequencyHz: frequencyHz,
		thresholdDb: thresholdDb,
		debounce:    debounce,
		state: State{
			CurrentPowerDb: dsp.FloorDb,
			PeakPowerDb:    math.Inf(-1),
		},
	}

	for _, option := range options {
		option(&d)
	}

	return &d
}

// Observe feeds one power reading through the state machine. It returns
// the emitted event and true when this reading confirmed a rising edge.
//
// Falling edges are silent: a sustained signal produces one event when
// confirmed and nothing more until power drops below the threshold and
// crosses again.
func (d *Detector) Observe(r dsp.Reading) (Event, bool) {
	d.state.CurrentPowerDb = r.PowerDb
	if r.PowerDb > d.state.PeakPowerDb {
		d.state.PeakPowerDb = r.PowerDb
	}

	if r.PowerDb < d.thresholdDb {
		d.streak = 0
		d.state.AboveThreshold = false
		return Event{}, false
	}

	if d.state.AboveThreshold {
		return Event{}, false // already confirmed, stay silent
	}

	d.streak++
	if d.streak < d.debounce {
		return Event{}, false
	}

	d.state.AboveThreshold = true
	d.state.Detections++
	d.state.LastEvent = r.Timestamp

	ev := Event{
		DeviceIndex: d.deviceIndex,
		Timestamp:   r.Timestamp,
		FrequencyHz: d.frequencyHz,
		PowerDb:     r.PowerDb,
	}
	if d.sink != nil {
		d.sink.Detection(ev)
	}
	return ev, true
}

// State returns a copy of the current detector state.
func (d *Detector) State() State {
	return d.state
}
