package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"rfsentry/internal/detect"
	"rfsentry/internal/dsp"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	store := New(filepath.Join(t.TempDir(), "test.sqlite"))
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("closing store: %v", err)
		}
	})
	return store
}

func closeEnough(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < time.Millisecond
}

func TestStore_SessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	type deviceConfig struct {
		Frequency float64 `json:"frequency"`
	}

	id, err := store.CreateSession(ctx, "RTL-SDR v3", 2, "detect", deviceConfig{Frequency: 382.5e6})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero session ID")
	}

	session, err := store.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if session.DeviceName != "RTL-SDR v3" {
		t.Errorf("device name: got %q", session.DeviceName)
	}
	if session.DeviceIndex != 2 {
		t.Errorf("device index: got %d", session.DeviceIndex)
	}
	if session.Mode != "detect" {
		t.Errorf("mode: got %q", session.Mode)
	}
	if session.Config == nil || *session.Config != `{"frequency":382500000}` {
		t.Errorf("config: got %v", session.Config)
	}

	sessions, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != id {
		t.Errorf("expected the one created session, got %d", len(sessions))
	}
}

func TestStore_ReadingsIterator(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	sessionID, err := store.CreateSession(ctx, "test", 0, "detect", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	const count = 5
	for i := 0; i < count; i++ {
		r := dsp.Reading{
			DeviceIndex: 0,
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			PowerDb:     -70 + float64(i),
			PeakDb:      -60 + float64(i),
		}
		if err = store.StoreReading(ctx, sessionID, r); err != nil {
			t.Fatalf("StoreReading %d failed: %v", i, err)
		}
	}

	// A batch size smaller than the row count exercises the paging.
	iter, err := store.Readings(ctx, sessionID, WithBatchSize(2))
	if err != nil {
		t.Fatalf("Readings failed: %v", err)
	}
	defer iter.Close()

	var got []Reading
	for iter.Next(ctx) {
		got = append(got, iter.Current())
	}
	if err = iter.Err(); err != nil {
		t.Fatalf("iterator failed: %v", err)
	}

	if len(got) != count {
		t.Fatalf("expected %d readings, got %d", count, len(got))
	}
	for i, r := range got {
		if !closeEnough(r.Timestamp, base.Add(time.Duration(i)*time.Second)) {
			t.Errorf("reading %d out of order: timestamp %s", i, r.Timestamp)
		}
		if r.PowerDb != -70+float64(i) {
			t.Errorf("reading %d: power %.1f", i, r.PowerDb)
		}
		if r.SessionID != sessionID {
			t.Errorf("reading %d: session %d", i, r.SessionID)
		}
	}
}

func TestStore_Detections(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	sessionID, err := store.CreateSession(ctx, "test", 0, "detect", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	ev := detect.Event{
		DeviceIndex: 0,
		Timestamp:   time.Now().UTC(),
		FrequencyHz: 382.5e6,
		PowerDb:     -42.5,
	}
	if err = store.StoreDetection(ctx, sessionID, ev); err != nil {
		t.Fatalf("StoreDetection failed: %v", err)
	}

	detections, err := store.Detections(ctx, sessionID)
	if err != nil {
		t.Fatalf("Detections failed: %v", err)
	}
	if len(detections) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(detections))
	}
	if detections[0].FrequencyHz != ev.FrequencyHz {
		t.Errorf("frequency: got %.0f", detections[0].FrequencyHz)
	}
	if detections[0].PowerDb != ev.PowerDb {
		t.Errorf("power: got %.2f", detections[0].PowerDb)
	}
	if !closeEnough(detections[0].Timestamp, ev.Timestamp) {
		t.Errorf("timestamp: got %s, want %s", detections[0].Timestamp, ev.Timestamp)
	}
}

func TestStore_CloseIdempotent(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "test.sqlite"))

	if _, err := store.CreateSession(context.Background(), "test", 0, "detect", nil); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestAsyncSink_PersistsRecords(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	sessionID, err := store.CreateSession(ctx, "test", 3, "detect", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	sink := NewAsyncSink(store, map[int]int64{3: sessionID})

	sink.Reading(dsp.Reading{DeviceIndex: 3, Timestamp: time.Now().UTC(), PowerDb: -55, PeakDb: -48})
	sink.Detection(detect.Event{DeviceIndex: 3, Timestamp: time.Now().UTC(), FrequencyHz: 100e6, PowerDb: -40})
	sink.Close() // drains the buffer

	if sink.Dropped() != 0 {
		t.Errorf("expected no drops, got %d", sink.Dropped())
	}

	iter, err := store.Readings(ctx, sessionID)
	if err != nil {
		t.Fatalf("Readings failed: %v", err)
	}
	defer iter.Close()

	readings := 0
	for iter.Next(ctx) {
		readings++
	}
	if err = iter.Err(); err != nil {
		t.Fatalf("iterator failed: %v", err)
	}
	if readings != 1 {
		t.Errorf("expected 1 persisted reading, got %d", readings)
	}

	detections, err := store.Detections(ctx, sessionID)
	if err != nil {
		t.Fatalf("Detections failed: %v", err)
	}
	if len(detections) != 1 {
		t.Errorf("expected 1 persisted detection, got %d", len(detections))
	}
}

func TestAsyncSink_DropsUnknownDevice(t *testing.T) {
	store := testStore(t)

	sink := NewAsyncSink(store, map[int]int64{})
	sink.Reading(dsp.Reading{DeviceIndex: 9, Timestamp: time.Now().UTC(), PowerDb: -55})
	sink.Close()

	if sink.Dropped() != 1 {
		t.Errorf("a record from an unmapped device must be dropped and counted, got %d", sink.Dropped())
	}
}

func TestStore_SessionConfigVariants(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	tests := []struct {
		name   string
		config any
		want   string
		isNil  bool
	}{
		{"nil", nil, "", true},
		{"string", `{"a":1}`, `{"a":1}`, false},
		{"bytes", []byte(`{"b":2}`), `{"b":2}`, false},
		{"struct", struct {
			C int `json:"c"`
		}{C: 3}, `{"c":3}`, false},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := store.CreateSession(ctx, fmt.Sprintf("dev-%d", i), i, "detect", tt.config)
			if err != nil {
				t.Fatalf("CreateSession failed: %v", err)
			}

			session, err := store.Session(ctx, id)
			if err != nil {
				t.Fatalf("Session failed: %v", err)
			}
			if tt.isNil {
				if session.Config != nil {
					t.Errorf("expected nil config, got %q", *session.Config)
				}
				return
			}
			if session.Config == nil || *session.Config != tt.want {
				t.Errorf("config: got %v, want %q", session.Config, tt.want)
			}
		})
	}
}
