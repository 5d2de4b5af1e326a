package recorder

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"droneswarm/internal/telemetry"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteWriter stores rows in a local SQLite database.
type SQLiteWriter struct{ db *sql.DB }

// NewSQLiteWriter opens (or creates) the database at path and applies the
// schema.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	w := &SQLiteWriter{db: db}
	if err := w.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLiteWriter) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := w.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func ts(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// WriteVehicleEvent inserts one vehicle event.
func (w *SQLiteWriter) WriteVehicleEvent(r telemetry.VehicleEventRow) error {
	return w.WriteVehicleEvents([]telemetry.VehicleEventRow{r})
}

// WriteVehicleEvents inserts vehicle events in one transaction.
func (w *SQLiteWriter) WriteVehicleEvents(rows []telemetry.VehicleEventRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`INSERT INTO vehicle_events (session_id, vehicle_index, field, value_num, value_text, ts) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		var num sql.NullFloat64
		if f, ok := r.NumericValue(); ok {
			num = sql.NullFloat64{Float64: f, Valid: true}
		}
		if _, err := stmt.Exec(r.SessionID, r.Index, r.Field, num, r.TextValue(), ts(r.Timestamp)); err != nil {
			return fmt.Errorf("insert vehicle event: %w", err)
		}
	}
	return tx.Commit()
}

// WriteSwarmEvent inserts a swarm event.
func (w *SQLiteWriter) WriteSwarmEvent(e telemetry.SwarmEventRow) error {
	_, err := w.db.Exec(`INSERT INTO swarm_events (session_id, event_type, leader, followers, detail, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.EventType, e.Leader, joinInts(e.Followers), e.Detail, ts(e.Timestamp))
	if err != nil {
		return fmt.Errorf("insert swarm event: %w", err)
	}
	return nil
}

// WriteCommand inserts a command log row.
func (w *SQLiteWriter) WriteCommand(c telemetry.CommandRow) error {
	_, err := w.db.Exec(`INSERT INTO command_log (session_id, source, command, ts) VALUES (?, ?, ?, ?)`,
		c.SessionID, c.Source, c.Command, ts(c.Timestamp))
	if err != nil {
		return fmt.Errorf("insert command: %w", err)
	}
	return nil
}

// Commands returns the command log of a session in insertion order.
func (w *SQLiteWriter) Commands(ctx context.Context, sessionID string) ([]telemetry.CommandRow, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT session_id, source, command, ts FROM command_log WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []telemetry.CommandRow
	for rows.Next() {
		var r telemetry.CommandRow
		var at string
		if err := rows.Scan(&r.SessionID, &r.Source, &r.Command, &at); err != nil {
			return nil, err
		}
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping checks the database.
func (w *SQLiteWriter) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

// Close closes the database.
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
