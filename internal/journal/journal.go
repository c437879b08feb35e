// Package journal keeps a sqlite diagnostics history of session attempts
// and placement events. It is write-mostly; nothing in it is ever read back
// to restore an anchor.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/anchorpoint/internal/monitoring"
	"github.com/banshee-data/anchorpoint/internal/placement"
	"github.com/banshee-data/anchorpoint/internal/session"
	"github.com/banshee-data/anchorpoint/internal/spatial"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Journal is a sqlite-backed diagnostics log. It implements placement.Sink.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

var _ placement.Sink = (*Journal)(nil)

// Open opens (creating if needed) the journal at path and migrates it to
// the latest schema.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	j := &Journal{db: db, now: time.Now}
	if err := j.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// MigrateUp applies all pending embedded migrations.
func (j *Journal) MigrateUp() error {
	m, err := j.newMigrate()
	if err != nil {
		return err
	}
	// Note: m is not closed; closing it would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current schema version, 0 if none applied.
func (j *Journal) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := j.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if err != nil && errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (j *Journal) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(j.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// RecordReport stores the outcome of one session attempt.
func (j *Journal) RecordReport(r session.Report) error {
	var category, stage, message sql.NullString
	if r.Err != nil {
		category = sql.NullString{String: r.Err.Category.String(), Valid: true}
		stage = sql.NullString{String: string(r.Err.Stage), Valid: true}
		message = sql.NullString{String: r.Err.Message(), Valid: true}
	}
	_, err := j.db.Exec(
		`INSERT OR REPLACE INTO sessions (
			session_id, started_at, ended_at, reason, category, stage, message, was_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.StartedAt.UnixNano(), r.EndedAt.UnixNano(), r.Reason.String(),
		category, stage, message, r.WasActive,
	)
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", r.SessionID, err)
	}
	return nil
}

// RecordTransition stores a state change.
func (j *Journal) RecordTransition(t placement.Transition) error {
	return j.insertEvent(t.SessionID, t.Action.String(), t.From.String(), t.To.String(), nil)
}

// RecordAnchor stores a placement with its position and scale.
func (j *Journal) RecordAnchor(a spatial.Anchor) error {
	return j.insertEvent(a.SessionID, "placed", placement.StateConfirmed.String(), placement.StateConfirmed.String(), &a)
}

func (j *Journal) insertEvent(sessionID, action, from, to string, a *spatial.Anchor) error {
	var x, y, z, scale sql.NullFloat64
	if a != nil {
		x = sql.NullFloat64{Float64: a.Pose.Position.X, Valid: true}
		y = sql.NullFloat64{Float64: a.Pose.Position.Y, Valid: true}
		z = sql.NullFloat64{Float64: a.Pose.Position.Z, Valid: true}
		scale = sql.NullFloat64{Float64: a.Scale.X, Valid: true}
	}
	_, err := j.db.Exec(
		`INSERT INTO placement_events (
			event_id, session_id, recorded_at, action, from_state, to_state, pos_x, pos_y, pos_z, scale
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, j.now().UnixNano(), action, from, to, x, y, z, scale,
	)
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", action, err)
	}
	return nil
}

// StateChanged implements placement.Sink.
func (j *Journal) StateChanged(t placement.Transition) {
	if err := j.RecordTransition(t); err != nil {
		monitoring.Logf("[journal] %v", err)
	}
}

// AnchorPlaced implements placement.Sink.
func (j *Journal) AnchorPlaced(a spatial.Anchor) {
	if err := j.RecordAnchor(a); err != nil {
		monitoring.Logf("[journal] %v", err)
	}
}

// SessionEnded implements placement.Sink.
func (j *Journal) SessionEnded(r session.Report) {
	if err := j.RecordReport(r); err != nil {
		monitoring.Logf("[journal] %v", err)
	}
}

// SessionRow is one stored session attempt.
type SessionRow struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Reason    string    `json:"reason"`
	Category  string    `json:"category,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Message   string    `json:"message,omitempty"`
	WasActive bool      `json:"was_active"`
	Events    int       `json:"events"`
}

// RecentSessions returns up to limit sessions, newest first.
func (j *Journal) RecentSessions(ctx context.Context, limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT s.session_id, s.started_at, s.ended_at, s.reason,
		       COALESCE(s.category, ''), COALESCE(s.stage, ''), COALESCE(s.message, ''),
		       s.was_active,
		       (SELECT COUNT(*) FROM placement_events e WHERE e.session_id = s.session_id)
		FROM sessions s
		ORDER BY s.ended_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		var started, ended int64
		if err := rows.Scan(&r.SessionID, &started, &ended, &r.Reason,
			&r.Category, &r.Stage, &r.Message, &r.WasActive, &r.Events); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		r.StartedAt = time.Unix(0, started).UTC()
		r.EndedAt = time.Unix(0, ended).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// FailureCounts returns the number of stored sessions per error category.
// Clean exits and cancellations are not counted.
func (j *Journal) FailureCounts(ctx context.Context) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT category, COUNT(*) FROM sessions
		WHERE category IS NOT NULL
		GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to query failure counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("failed to scan failure count: %w", err)
		}
		out[category] = n
	}
	return out, rows.Err()
}

// Event is one stored placement event.
type Event struct {
	Action     string      `json:"action"`
	From       string      `json:"from"`
	To         string      `json:"to"`
	RecordedAt time.Time   `json:"recorded_at"`
	Position   *[3]float64 `json:"position,omitempty"`
}

// Events returns a session's placement events in order.
func (j *Journal) Events(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT action, from_state, to_state, recorded_at, pos_x, pos_y, pos_z
		FROM placement_events
		WHERE session_id = ?
		ORDER BY recorded_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var at int64
		var x, y, z sql.NullFloat64
		if err := rows.Scan(&e.Action, &e.From, &e.To, &at, &x, &y, &z); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.RecordedAt = time.Unix(0, at).UTC()
		if x.Valid {
			e.Position = &[3]float64{x.Float64, y.Float64, z.Float64}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
