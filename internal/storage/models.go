package storage

import "time"

// Session is one device's monitoring run. A session is created per device
// at startup; readings and detections hang off it.
type Session struct {
	ID          int64
	StartTime   time.Time
	DeviceName  string
	DeviceIndex int
	Mode        string
	Config      *string // device configuration as JSON, if recorded
}

// Reading is a persisted power reading row.
type Reading struct {
	ID        int64
	SessionID int64
	Timestamp time.Time
	PowerDb   float64
	PeakDb    float64
}

// Detection is a persisted detection event row.
type Detection struct {
	ID          int64
	SessionID   int64
	Timestamp   time.Time
	FrequencyHz float64
	PowerDb     float64
}
