// Package store persists sessions and their emitted estimates to SQLite so
// the HTTP API can serve history and the monitor page can chart recent
// output.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/geofuse/internal/fusion"
)

// DB wraps the SQLite handle with fusion-specific operations.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the estimate database at path. The
// baseline schema is applied inline; MigrateUp handles later revisions.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id           TEXT PRIMARY KEY,
			use_feeds            TEXT,
			emission_interval_ms BIGINT,
			gps_min_interval_ms  BIGINT,
			net_min_interval_ms  BIGINT,
			forward_raw          INTEGER,
			started_unix_nanos   BIGINT,
			stopped_unix_nanos   BIGINT
		);
		CREATE TABLE IF NOT EXISTS estimates (
			estimate_id    INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id     TEXT,
			feed           TEXT,
			latitude       DOUBLE,
			longitude      DOUBLE,
			altitude       DOUBLE,
			accuracy_m     DOUBLE,
			speed          DOUBLE,
			bearing        DOUBLE,
			ts_unix_nanos  BIGINT,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS idx_estimates_session_ts
			ON estimates(session_id, ts_unix_nanos);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// RecordSession inserts a session row when the Manager starts it.
func (db *DB) RecordSession(id string, cfg fusion.SessionConfig, startedAt time.Time) error {
	_, err := db.Exec(`
		INSERT INTO sessions (
			session_id, use_feeds, emission_interval_ms,
			gps_min_interval_ms, net_min_interval_ms,
			forward_raw, started_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		string(cfg.Use),
		cfg.EmissionInterval.Milliseconds(),
		cfg.GPSMinInterval.Milliseconds(),
		cfg.NetMinInterval.Milliseconds(),
		cfg.ForwardRaw,
		startedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// CloseSession stamps the stop time on a session row.
func (db *DB) CloseSession(id string, stoppedAt time.Time) error {
	_, err := db.Exec(
		`UPDATE sessions SET stopped_unix_nanos = ? WHERE session_id = ?`,
		stoppedAt.UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// InsertEstimate records one emitted estimate (or forwarded raw fix).
func (db *DB) InsertEstimate(sessionID string, e fusion.Estimate) error {
	_, err := db.Exec(`
		INSERT INTO estimates (
			session_id, feed, latitude, longitude, altitude,
			accuracy_m, speed, bearing, ts_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID,
		string(e.Feed),
		e.Latitude,
		e.Longitude,
		nullable(e.Altitude),
		e.AccuracyMeters,
		nullable(e.Speed),
		nullable(e.Bearing),
		e.Time.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert estimate: %w", err)
	}
	return nil
}

// RecentEstimates returns up to limit estimates for a session, newest first.
func (db *DB) RecentEstimates(sessionID string, limit int) ([]fusion.Estimate, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT feed, latitude, longitude, altitude, accuracy_m, speed, bearing, ts_unix_nanos
		FROM estimates
		WHERE session_id = ?
		ORDER BY ts_unix_nanos DESC
		LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query estimates: %w", err)
	}
	defer rows.Close()
	return scanEstimates(rows)
}

// EstimatesInRange returns estimates for a session within [startNanos,
// endNanos], oldest first.
func (db *DB) EstimatesInRange(sessionID string, startNanos, endNanos int64, limit int) ([]fusion.Estimate, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := db.Query(`
		SELECT feed, latitude, longitude, altitude, accuracy_m, speed, bearing, ts_unix_nanos
		FROM estimates
		WHERE session_id = ? AND ts_unix_nanos BETWEEN ? AND ?
		ORDER BY ts_unix_nanos ASC
		LIMIT ?`,
		sessionID, startNanos, endNanos, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query estimate range: %w", err)
	}
	defer rows.Close()
	return scanEstimates(rows)
}

// SessionRecord mirrors one row of the sessions table.
type SessionRecord struct {
	SessionID          string
	UseFeeds           string
	EmissionIntervalMs int64
	StartedUnixNanos   int64
	StoppedUnixNanos   *int64
}

// Sessions returns all recorded sessions, newest first.
func (db *DB) Sessions() ([]SessionRecord, error) {
	rows, err := db.Query(`
		SELECT session_id, use_feeds, emission_interval_ms, started_unix_nanos, stopped_unix_nanos
		FROM sessions
		ORDER BY started_unix_nanos DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var stopped sql.NullInt64
		if err := rows.Scan(&rec.SessionID, &rec.UseFeeds, &rec.EmissionIntervalMs, &rec.StartedUnixNanos, &stopped); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if stopped.Valid {
			rec.StoppedUnixNanos = &stopped.Int64
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanEstimates(rows *sql.Rows) ([]fusion.Estimate, error) {
	var out []fusion.Estimate
	for rows.Next() {
		var (
			e                   fusion.Estimate
			feed                string
			alt, speed, bearing sql.NullFloat64
			tsNanos             int64
		)
		if err := rows.Scan(&feed, &e.Latitude, &e.Longitude, &alt, &e.AccuracyMeters, &speed, &bearing, &tsNanos); err != nil {
			return nil, fmt.Errorf("scan estimate: %w", err)
		}
		e.Feed = fusion.FeedKind(feed)
		if alt.Valid {
			e.Altitude = &alt.Float64
		}
		if speed.Valid {
			e.Speed = &speed.Float64
		}
		if bearing.Valid {
			e.Bearing = &bearing.Float64
		}
		e.Time = time.Unix(0, tsNanos)
		out = append(out, e)
	}
	return out, rows.Err()
}

// nullable converts an optional field into a driver-friendly value.
func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
