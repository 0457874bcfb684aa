package monitor

import (
	"time"

	"rfsentry/internal/calib"
	"rfsentry/internal/detect"
	"rfsentry/internal/dsp"
)

// Status tells the presentation layer apart "no signal" from "no device".
type Status string

const (
	// StatusActive means the device loop is cycling.
	StatusActive Status = "active"

	// StatusUnavailable means the receiver failed to open at startup. The
	// slot never carries a power reading, so it can't be mistaken for a
	// quiet band.
	StatusUnavailable Status = "unavailable"

	// StatusStopped means the loop exited during shutdown.
	StatusStopped Status = "stopped"
)

// Mode selects the per-device consumer, fixed at startup.
type Mode string

const (
	ModeDetect    Mode = "detect"
	ModeCalibrate Mode = "calibrate"
)

// DeviceState is one device's slot of the snapshot. Only that device's
// acquisition loop writes it; readers get copies.
type DeviceState struct {
	Index       int
	Name        string
	FrequencyHz float64
	Mode        Mode
	Status      Status

	// Last successful power reading. HasReading stays false for a device
	// that never produced one (e.g. unavailable).
	Reading    dsp.Reading
	HasReading bool

	// Cycles counts successful acquisition cycles; ReadErrors counts
	// transiently failed ones.
	Cycles     uint64
	ReadErrors uint64

	// Detector is meaningful in ModeDetect, Calibration in ModeCalibrate
	// (nil until the first full sweep).
	Detector    detect.State
	Calibration *calib.Result
}

// Snapshot is the most recently published consistent view across all
// devices. It is a best-effort simultaneous view, not a synchronized
// barrier: per-device readings are ordered, cross-device ones are not.
type Snapshot struct {
	Timestamp time.Time
	Devices   []DeviceState
}

func copyState(s DeviceState) DeviceState {
	out := s
	if s.Calibration != nil {
		c := *s.Calibration
		out.Calibration = &c
	}
	return out
}
