package storage

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    start_time   DATETIME NOT NULL,
    device_name  TEXT NOT NULL,
    device_index INTEGER NOT NULL,
    mode         TEXT NOT NULL,
    config       TEXT
);

CREATE TABLE IF NOT EXISTS readings (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL REFERENCES sessions (id),
    timestamp  DATETIME NOT NULL,
    power      REAL NOT NULL,
    peak       REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS detections (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL REFERENCES sessions (id),
    timestamp  DATETIME NOT NULL,
    frequency  REAL NOT NULL,
    power      REAL NOT NULL
);`

// Indexes are created on Close so steady-state inserts stay cheap.
const initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_readings_session_time ON readings (session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_detections_session_time ON detections (session_id, timestamp);`

const (
	insertSessionSQL = `
INSERT INTO sessions (start_time,
                      device_name,
                      device_index,
                      mode,
                      config)
VALUES (CURRENT_TIMESTAMP, ?, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    device_name,
    device_index,
    mode,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    device_name,
    device_index,
    mode,
    config
FROM sessions
ORDER BY start_time`

	insertReadingSQL = `
INSERT INTO readings (session_id,
                      timestamp,
                      power,
                      peak)
VALUES (?, ?, ?, ?)`

	insertDetectionSQL = `
INSERT INTO detections (session_id,
                        timestamp,
                        frequency,
                        power)
VALUES (?, ?, ?, ?)`

	selectDetectionsSQL = `
SELECT
    id,
    session_id,
    timestamp,
    frequency,
    power
FROM detections
WHERE
    session_id = ?
ORDER BY timestamp`

	selectReadingsSQL = `
SELECT
    id,
    session_id,
    timestamp,
    power,
    peak
FROM readings
WHERE
    session_id = ?
ORDER BY timestamp
LIMIT ? OFFSET ?`
)
