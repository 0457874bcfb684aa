package storage

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"rfsentry/internal/detect"
	"rfsentry/internal/dsp"
)

const defaultSinkBuffer = 256

type record struct {
	detection *detect.Event
	reading   *dsp.Reading
}

// WithSinkLogger sets the logger for the sink's writer goroutine.
func WithSinkLogger(logger *slog.Logger) func(*AsyncSink) {
	return func(s *AsyncSink) {
		s.logger = logger
	}
}

// WithSinkBuffer sets the channel depth between the acquisition loops and
// the database writer.
func WithSinkBuffer(n int) func(*AsyncSink) {
	return func(s *AsyncSink) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// AsyncSink decouples the acquisition loops from database writes. Events
// and readings go through a buffered channel into a single writer
// goroutine; when the buffer is full the record is dropped and counted,
// never blocking the caller. Detection state itself is unaffected by a
// drop, only the persisted log line is lost.
type AsyncSink struct {
	store    *Store
	sessions map[int]int64 // device index -> session ID
	buffer   int

	ch      chan record
	done    chan struct{}
	dropped atomic.Uint64

	logger *slog.Logger
}

// NewAsyncSink creates the sink and starts its writer goroutine. sessions
// maps each device index to the session its records belong to; records
// from unknown devices are dropped.
func NewAsyncSink(store *Store, sessions map[int]int64, options ...func(*AsyncSink)) *AsyncSink {
	s := AsyncSink{
		store:    store,
		sessions: sessions,
		buffer:   defaultSinkBuffer,
		done:     make(chan struct{}),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	s.ch = make(chan record, s.buffer)
	go s.write()

	return &s
}

// Detection implements detect.Sink. It never blocks.
func (s *AsyncSink) Detection(ev detect.Event) {
	select {
	case s.ch <- record{detection: &ev}:
	default:
		s.dropped.Add(1)
	}
}

// Reading implements monitor.ReadingSink. It never blocks.
func (s *AsyncSink) Reading(r dsp.Reading) {
	select {
	case s.ch <- record{reading: &r}:
	default:
		s.dropped.Add(1)
	}
}

// Dropped reports how many records were discarded because the writer fell
// behind.
func (s *AsyncSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close drains the buffer and stops the writer. The sink must not be used
// afterwards.
func (s *AsyncSink) Close() {
	close(s.ch)
	<-s.done
}

func (s *AsyncSink) write() {
	defer close(s.done)

	ctx := context.Background()
	for rec := range s.ch {
		switch {
		case rec.detection != nil:
			sessionID, ok := s.sessions[rec.detection.DeviceIndex]
			if !ok {
				s.dropped.Add(1)
				continue
			}
			if err := s.store.StoreDetection(ctx, sessionID, *rec.detection); err != nil {
				s.logger.Error("storing detection", slog.String("error", err.Error()))
			}

		case rec.reading != nil:
			sessionID, ok := s.sessions[rec.reading.DeviceIndex]
			if !ok {
				s.dropped.Add(1)
				continue
			}
			if err := s.store.StoreReading(ctx, sessionID, *rec.reading); err != nil {
				s.logger.Error("storing reading", slog.String("error", err.Error()))
			}
		}
	}
}
