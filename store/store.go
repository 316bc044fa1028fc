// Package store persists sessions and their reconciled detections to SQLite
// so trails can be rebuilt after the stream has ended.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/swdee/go-nightjar/postprocess/result"
	"github.com/swdee/go-nightjar/tracker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrSessionNotFound is returned when a session ID is not in the store
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded is returned when recording into an ended session
	ErrSessionEnded = errors.New("session already ended")
)

// Session is a stored processing session
type Session struct {
	ID        uuid.UUID
	Source    string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Store is a SQLite backed record of sessions and their detections
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and migrates it to the latest
// schema
func Open(path string) (*Store, error) {

	db, err := sql.Open("sqlite", path)

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// a single connection keeps the pragmas and avoids SQLITE_BUSY between
	// writers of the same process
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", p, err)
		}
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// migrateUp runs the embedded migrations, the migrate instance is not closed
// as that would close the shared database handle
func migrateUp(db *sql.DB) error {

	src, err := iofs.New(migrationsFS, "migrations")

	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})

	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)

	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}

// migrateLogger implements the migrate.Logger interface
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// StartSession records the start of a session reading from source
func (s *Store) StartSession(ctx context.Context, id uuid.UUID,
	source string) error {

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, source, started_at) VALUES (?, ?, ?)`,
		id.String(), source, formatTime(time.Now()))

	if err != nil {
		return fmt.Errorf("failed to start session %s: %w", id, err)
	}

	return nil
}

// EndSession marks the session as ended
func (s *Store) EndSession(ctx context.Context, id uuid.UUID) error {

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		formatTime(time.Now()), id.String())

	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}

	n, err := res.RowsAffected()

	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}

	if n == 0 {
		if _, err := s.GetSession(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrSessionEnded, id)
	}

	return nil
}

// GetSession returns the stored session
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {

	var (
		source, started string
		ended           sql.NullString
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT source, started_at, ended_at FROM sessions WHERE id = ?`,
		id.String()).Scan(&source, &started, &ended)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}

	sess := &Session{ID: id, Source: source}

	if sess.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}

	if ended.Valid {
		t, err := parseTime(ended.String)

		if err != nil {
			return nil, err
		}

		sess.EndedAt = &t
	}

	return sess, nil
}

// RecordFrame stores the reconciled detections of one frame in a single
// transaction
func (s *Store) RecordFrame(ctx context.Context, id uuid.UUID, frameNum int,
	dets []result.Detection) error {

	tx, err := s.db.BeginTx(ctx, nil)

	if err != nil {
		return fmt.Errorf("failed to begin frame %d: %w", frameNum, err)
	}

	defer tx.Rollback()

	var ended sql.NullString

	err = tx.QueryRowContext(ctx, `SELECT ended_at FROM sessions WHERE id = ?`,
		id.String()).Scan(&ended)

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	if err != nil {
		return fmt.Errorf("failed to read session %s: %w", id, err)
	}

	if ended.Valid {
		return fmt.Errorf("%w: %s", ErrSessionEnded, id)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO detections
		(session_id, frame_num, idx, class_id, class_name, confidence,
		 x_min, y_min, x_max, y_max, track_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	if err != nil {
		return fmt.Errorf("failed to prepare frame %d: %w", frameNum, err)
	}

	defer stmt.Close()

	for i, det := range dets {

		var trackID sql.NullInt64

		if tid, ok := det.GetTrackID(); ok {
			trackID = sql.NullInt64{Int64: int64(tid), Valid: true}
		}

		_, err := stmt.ExecContext(ctx, id.String(), frameNum, i,
			det.ClassID, det.ClassName, det.Confidence,
			det.Box.XMin, det.Box.YMin, det.Box.XMax, det.Box.YMax, trackID)

		if err != nil {
			return fmt.Errorf("failed to store detection %d of frame %d: %w",
				i, frameNum, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit frame %d: %w", frameNum, err)
	}

	return nil
}

// FrameDetections returns the stored detections of a frame in their
// original order
func (s *Store) FrameDetections(ctx context.Context, id uuid.UUID,
	frameNum int) ([]result.Detection, error) {

	rows, err := s.db.QueryContext(ctx, `SELECT class_id, class_name,
		confidence, x_min, y_min, x_max, y_max, track_id
		FROM detections WHERE session_id = ? AND frame_num = ?
		ORDER BY idx`, id.String(), frameNum)

	if err != nil {
		return nil, fmt.Errorf("failed to query frame %d: %w", frameNum, err)
	}

	defer rows.Close()

	var dets []result.Detection

	for rows.Next() {

		var (
			det     result.Detection
			conf    float64
			trackID sql.NullInt64
		)

		err := rows.Scan(&det.ClassID, &det.ClassName, &conf,
			&det.Box.XMin, &det.Box.YMin, &det.Box.XMax, &det.Box.YMax, &trackID)

		if err != nil {
			return nil, fmt.Errorf("failed to scan frame %d: %w", frameNum, err)
		}

		det.Confidence = float32(conf)

		if trackID.Valid {
			det = det.WithTrackID(int(trackID.Int64))
		}

		dets = append(dets, det)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read frame %d: %w", frameNum, err)
	}

	return dets, nil
}

// TrackPath returns the box midpoints of a track in frame order, rebuilding
// its full trail without the history capacity limit
func (s *Store) TrackPath(ctx context.Context, id uuid.UUID,
	trackID int) ([]tracker.Point, error) {

	rows, err := s.db.QueryContext(ctx, `SELECT x_min, y_min, x_max, y_max
		FROM detections WHERE session_id = ? AND track_id = ?
		ORDER BY frame_num, idx`, id.String(), trackID)

	if err != nil {
		return nil, fmt.Errorf("failed to query track %d: %w", trackID, err)
	}

	defer rows.Close()

	var path []tracker.Point

	for rows.Next() {

		var box result.BoxRect

		if err := rows.Scan(&box.XMin, &box.YMin, &box.XMax, &box.YMax); err != nil {
			return nil, fmt.Errorf("failed to scan track %d: %w", trackID, err)
		}

		x, y := box.Center()
		path = append(path, tracker.Point{X: x, Y: y})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read track %d: %w", trackID, err)
	}

	return path, nil
}

// TrackIDs returns the distinct track IDs recorded in a session
func (s *Store) TrackIDs(ctx context.Context, id uuid.UUID) ([]int, error) {

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT track_id FROM detections
		WHERE session_id = ? AND track_id IS NOT NULL ORDER BY track_id`,
		id.String())

	if err != nil {
		return nil, fmt.Errorf("failed to query track ids: %w", err)
	}

	defer rows.Close()

	var ids []int

	for rows.Next() {

		var tid int

		if err := rows.Scan(&tid); err != nil {
			return nil, fmt.Errorf("failed to scan track id: %w", err)
		}

		ids = append(ids, tid)
	}

	return ids, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {

	t, err := time.Parse(time.RFC3339Nano, s)

	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", s, err)
	}

	return t, nil
}
