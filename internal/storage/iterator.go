package storage

import (
	"context"
	"database/sql"
	"fmt"
)

const defaultBatchSize = 1000

// WithBatchSize sets how many rows the iterator fetches per query.
func WithBatchSize(size int) func(*ReadingIterator) {
	return func(it *ReadingIterator) {
		if size > 0 {
			it.batchSize = size
		}
	}
}

// ReadingIterator pages through a session's power readings in timestamp
// order. Each instance must be used from a single goroutine and closed
// after use.
type ReadingIterator struct {
	db        *sql.DB
	sessionID int64
	batchSize int

	batch   []Reading
	pos     int
	offset  int64
	current Reading
	done    bool
	err     error
}

// Readings creates an iterator over a session's power readings.
func (s *Store) Readings(_ context.Context, sessionID int64, options ...func(*ReadingIterator)) (*ReadingIterator, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	it := ReadingIterator{
		db:        db,
		sessionID: sessionID,
		batchSize: defaultBatchSize,
	}

	for _, option := range options {
		option(&it)
	}

	return &it, nil
}

// Next advances to the next reading, fetching the next batch from the
// database when the current one is exhausted. It returns false at the end
// of the session or on error.
func (it *ReadingIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}

	if it.pos >= len(it.batch) {
		if it.done {
			return false
		}
		if it.err = it.fetch(ctx); it.err != nil {
			return false
		}
		if len(it.batch) == 0 {
			return false
		}
	}

	it.current = it.batch[it.pos]
	it.pos++
	return true
}

func (it *ReadingIterator) fetch(ctx context.Context) (err error) {
	rows, err := it.db.QueryContext(ctx, selectReadingsSQL, it.sessionID, it.batchSize, it.offset)
	if err != nil {
		return fmt.Errorf("querying readings: %w", err)
	}
	defer closeWithError(rows, &err)

	it.batch = it.batch[:0]
	it.pos = 0

	for rows.Next() {
		var r Reading
		if err = rows.Scan(&r.ID, &r.SessionID, &r.Timestamp, &r.PowerDb, &r.PeakDb); err != nil {
			return fmt.Errorf("scanning reading: %w", err)
		}
		it.batch = append(it.batch, r)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("iterating readings: %w", err)
	}

	it.offset += int64(len(it.batch))
	if len(it.batch) < it.batchSize {
		it.done = true
	}
	return nil
}

// Current returns the reading Next advanced to.
func (it *ReadingIterator) Current() Reading {
	return it.current
}

// Err returns the first error encountered while iterating.
func (it *ReadingIterator) Err() error {
	return it.err
}

// Close releases the iterator. The underlying connection belongs to the
// store and stays open.
func (it *ReadingIterator) Close() error {
	it.batch = nil
	it.done = true
	return nil
}
