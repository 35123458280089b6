package sink

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/go-motion/common"
	"github.com/nvr-ai/go-motion/motion"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id    TEXT PRIMARY KEY,
	frame_index INTEGER NOT NULL,
	captured_at INTEGER NOT NULL,
	cut_level   REAL NOT NULL,
	avg_diff    REAL NOT NULL,
	manual      INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS regions (
	event_id TEXT NOT NULL REFERENCES events(event_id) ON DELETE CASCADE,
	x        INTEGER NOT NULL,
	y        INTEGER NOT NULL,
	width    INTEGER NOT NULL,
	height   INTEGER NOT NULL,
	label    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_captured_at ON events(captured_at);
`

// Event is one stored detection.
type Event struct {
	ID         string
	FrameIndex uint64
	CapturedAt time.Time
	CutLevel   float32
	AvgDiff    float64
	Manual     bool
	Regions    []common.ClassifiedRegion
}

// Store persists detection events in a sqlite database.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the sqlite database at path.
// Use ":memory:" for a private in-memory database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	// Regions are removed with their event by ON DELETE CASCADE.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create schema")
	}
	return &Store{db: db}, nil
}

// Handle records the report as an event.
func (s *Store) Handle(ctx context.Context, report *motion.Report) error {
	_, err := s.Record(ctx, report)
	return err
}

// Record inserts the report and its regions in one transaction and returns the new event ID.
func (s *Store) Record(ctx context.Context, report *motion.Report) (string, error) {
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO events (event_id, frame_index, captured_at, cut_level, avg_diff, manual) VALUES (?, ?, ?, ?, ?, ?)",
		id, int64(report.FrameIndex), report.Timestamp.UnixMilli(), report.CutLevel, report.Stats.DiffMean,
		report.ManualSave && !report.HasDetections())
	if err != nil {
		return "", errors.Wrap(err, "failed to insert event")
	}

	for _, r := range report.Regions {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO regions (event_id, x, y, width, height, label) VALUES (?, ?, ?, ?, ?, ?)",
			id, r.X, r.Y, r.Width, r.Height, r.Label.String())
		if err != nil {
			return "", errors.Wrap(err, "failed to insert region")
		}
	}

	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "failed to commit event")
	}
	return id, nil
}

// Events returns the most recent events captured at or after since, newest first.
func (s *Store) Events(ctx context.Context, since time.Time, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, frame_index, captured_at, cut_level, avg_diff, manual
		 FROM events WHERE captured_at >= ? ORDER BY captured_at DESC, frame_index DESC LIMIT ?`,
		since.UnixMilli(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query events")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e          Event
			frameIndex int64
			capturedAt int64
			cutLevel   float64
		)
		if err := rows.Scan(&e.ID, &frameIndex, &capturedAt, &cutLevel, &e.AvgDiff, &e.Manual); err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}
		e.FrameIndex = uint64(frameIndex)
		e.CapturedAt = time.UnixMilli(capturedAt)
		e.CutLevel = float32(cutLevel)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read events")
	}

	for i := range events {
		regions, err := s.regions(ctx, events[i].ID)
		if err != nil {
			return nil, err
		}
		events[i].Regions = regions
	}
	return events, nil
}

func (s *Store) regions(ctx context.Context, eventID string) ([]common.ClassifiedRegion, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT x, y, width, height, label FROM regions WHERE event_id = ? ORDER BY y, x, width, height", eventID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query regions")
	}
	defer rows.Close()

	var out []common.ClassifiedRegion
	for rows.Next() {
		var (
			r     common.ClassifiedRegion
			label string
		)
		if err := rows.Scan(&r.X, &r.Y, &r.Width, &r.Height, &label); err != nil {
			return nil, errors.Wrap(err, "failed to scan region")
		}
		r.Label = common.ParseLabel(label)
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "failed to read regions")
}

// Prune deletes events captured before cutoff, together with their regions,
// and returns the number of events removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE captured_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune events")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "failed to prune events")
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n)
	return n, errors.Wrap(err, "failed to count events")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
