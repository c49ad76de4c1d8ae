package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS battery_observations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	elapsed_ms INTEGER NOT NULL,
	percentage REAL NOT NULL,
	screen_on INTEGER NOT NULL,
	charging INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_ts ON battery_observations(timestamp);

CREATE TABLE IF NOT EXISTS discharge_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	action TEXT NOT NULL,
	rate INTEGER NOT NULL,
	interval_secs INTEGER NOT NULL,
	drop_pct REAL NOT NULL,
	prior_screen_on INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_discharge_ts ON discharge_events(timestamp);

CREATE TABLE IF NOT EXISTS outbox (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at INTEGER NOT NULL,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	sent_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at, id);

CREATE TABLE IF NOT EXISTS prefs (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS hardware_info (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Observation is one accepted battery reading as fed to the estimator.
type Observation struct {
	Timestamp  int64   `json:"timestamp"`
	ElapsedMs  int64   `json:"elapsed_ms"`
	Percentage float64 `json:"percentage"`
	ScreenOn   bool    `json:"screen_on"`
	Charging   bool    `json:"charging"`
}

// DischargeRecord is an emitted discharge rate.
type DischargeRecord struct {
	Timestamp     int64   `json:"timestamp"`
	Action        string  `json:"action"`
	Rate          int64   `json:"rate"`
	IntervalSecs  int64   `json:"interval_secs"`
	Drop          float64 `json:"drop"`
	PriorScreenOn bool    `json:"prior_screen_on"`
}

// OutboxEntry is a serialized analytics hit waiting for upload.
type OutboxEntry struct {
	ID        int64
	CreatedAt int64
	Kind      string
	Payload   []byte
	Attempts  int
}

// HardwareRecord is the last reported value of a hardware fact.
type HardwareRecord struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt int64  `json:"updated_at"`
}

// DB wraps a SQLite database for telemetry state.
type DB struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// InsertObservation inserts a battery observation.
func (d *DB) InsertObservation(o Observation) error {
	_, err := d.db.Exec(
		"INSERT INTO battery_observations (timestamp, elapsed_ms, percentage, screen_on, charging) VALUES (?, ?, ?, ?, ?)",
		o.Timestamp, o.ElapsedMs, o.Percentage, boolToInt(o.ScreenOn), boolToInt(o.Charging),
	)
	return err
}

// LatestObservation returns the most recent observation, or nil if there is none.
func (d *DB) LatestObservation() (*Observation, error) {
	row := d.db.QueryRow("SELECT timestamp, elapsed_ms, percentage, screen_on, charging FROM battery_observations ORDER BY id DESC LIMIT 1")
	var o Observation
	err := row.Scan(&o.Timestamp, &o.ElapsedMs, &o.Percentage, &o.ScreenOn, &o.Charging)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ObservationsInRange returns observations within the given time range.
func (d *DB) ObservationsInRange(from, to int64) ([]Observation, error) {
	rows, err := d.db.Query(
		"SELECT timestamp, elapsed_ms, percentage, screen_on, charging FROM battery_observations WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp, id",
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.Timestamp, &o.ElapsedMs, &o.Percentage, &o.ScreenOn, &o.Charging); err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

// InsertDischargeEvent inserts an emitted discharge rate.
func (d *DB) InsertDischargeEvent(r DischargeRecord) error {
	_, err := d.db.Exec(
		"INSERT INTO discharge_events (timestamp, action, rate, interval_secs, drop_pct, prior_screen_on) VALUES (?, ?, ?, ?, ?, ?)",
		r.Timestamp, r.Action, r.Rate, r.IntervalSecs, r.Drop, boolToInt(r.PriorScreenOn),
	)
	return err
}

// DischargeEventsInRange returns discharge events within the given time range.
func (d *DB) DischargeEventsInRange(from, to int64) ([]DischargeRecord, error) {
	rows, err := d.db.Query(
		"SELECT timestamp, action, rate, interval_secs, drop_pct, prior_screen_on FROM discharge_events WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp, id",
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DischargeRecord
	for rows.Next() {
		var r DischargeRecord
		if err := rows.Scan(&r.Timestamp, &r.Action, &r.Rate, &r.IntervalSecs, &r.Drop, &r.PriorScreenOn); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Reset drops every stored row. Prefs such as the analytics client id are
// kept unless includePrefs is set.
func (d *DB) Reset(includePrefs bool) error {
	tables := []string{"battery_observations", "discharge_events", "outbox", "hardware_info"}
	if includePrefs {
		tables = append(tables, "prefs")
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Table names come from the fixed slice above.
	for _, table := range tables {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			tx.Rollback()
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}
