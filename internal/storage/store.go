// Package storage persists sessions, power readings and detection events
// to a SQLite database. It also provides the asynchronous sink that keeps
// the acquisition loops free of I/O.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"rfsentry/internal/detect"
	"rfsentry/internal/dsp"
)

// Store handles database operations. Connections are opened lazily: a
// write connection with WAL journaling for the hot insert path and a
// separate read-only connection for queries.
type Store struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// New creates a store backed by the SQLite database at dbPath. The schema
// is initialized on first write.
func New(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func (s *Store) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *Store) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// CreateSession records the start of one device's monitoring run and
// returns its identifier. config can be a string, []byte or any
// JSON-serializable value.
func (s *Store) CreateSession(ctx context.Context, deviceName string, deviceIndex int, mode string, config any) (sessionID int64, err error) {
	var configData sql.NullString

	switch v := config.(type) {
	case nil:
	case string:
		configData = sql.NullString{String: v, Valid: true}
	case []byte:
		configData = sql.NullString{String: string(v), Valid: true}
	default:
		var p []byte
		if p, err = json.Marshal(config); err != nil {
			err = fmt.Errorf("marshaling config: %w", err)
			return
		}
		configData = sql.NullString{String: string(p), Valid: true}
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, deviceName, deviceIndex, mode, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

// Session retrieves one session by ID.
func (s *Store) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var sess Session
	var config sql.NullString
	if err = stmt.QueryRowContext(ctx, id).Scan(&sess.ID, &sess.StartTime, &sess.DeviceName, &sess.DeviceIndex, &sess.Mode, &config); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
		return
	}
	if config.Valid {
		sess.Config = &config.String
	}

	return &sess, nil
}

// Sessions returns all sessions ordered by start time.
func (s *Store) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess Session
		var config sql.NullString
		if err = rows.Scan(&sess.ID, &sess.StartTime, &sess.DeviceName, &sess.DeviceIndex, &sess.Mode, &config); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		if config.Valid {
			sess.Config = &config.String
		}
		sessions = append(sessions, &sess)
	}
	return
}

// StoreReading appends one power reading to a session.
func (s *Store) StoreReading(ctx context.Context, sessionID int64, r dsp.Reading) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertReadingSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, sessionID, r.Timestamp.UTC(), r.PowerDb, r.PeakDb); err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

// StoreDetection appends one detection event to a session.
func (s *Store) StoreDetection(ctx context.Context, sessionID int64, ev detect.Event) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertDetectionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, sessionID, ev.Timestamp.UTC(), ev.FrequencyHz, ev.PowerDb); err != nil {
		return fmt.Errorf("inserting detection: %w", err)
	}
	return nil
}

// Detections returns a session's detection events ordered by time.
func (s *Store) Detections(ctx context.Context, sessionID int64) (detections []Detection, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectDetectionsSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying detections: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var d Detection
		if err = rows.Scan(&d.ID, &d.SessionID, &d.Timestamp, &d.FrequencyHz, &d.PowerDb); err != nil {
			err = fmt.Errorf("scanning detection: %w", err)
			return
		}
		detections = append(detections, d)
	}
	return
}

// Close releases both connections. Indexes are built just before closing
// the write connection so steady-state inserts stay cheap. Safe to call
// multiple times.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
