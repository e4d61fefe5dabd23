package store

import (
	"database/sql"
	"time"
)

// SessionRecord is one camera session in the history.
type SessionRecord struct {
	ID          string     `json:"id"`
	LensFacing  string     `json:"lens_facing"`
	PoseEnabled bool       `json:"pose_enabled"`
	MaskEnabled bool       `json:"mask_enabled"`
	StartedAt   time.Time  `json:"started_at"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
}

// SessionRepository records camera session start and stop times.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Begin records a session that just started.
func (r *SessionRepository) Begin(rec SessionRecord) error {
	_, err := r.db.Exec(
		`INSERT INTO camera_sessions (id, lens_facing, pose_enabled, mask_enabled, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.LensFacing, rec.PoseEnabled, rec.MaskEnabled, rec.StartedAt,
	)
	return err
}

// End marks a session as stopped.
func (r *SessionRepository) End(id string, at time.Time) error {
	result, err := r.db.Exec(
		`UPDATE camera_sessions SET stopped_at = ? WHERE id = ? AND stopped_at IS NULL`,
		at, id,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Get retrieves a session by ID.
func (r *SessionRepository) Get(id string) (*SessionRecord, error) {
	row := r.db.QueryRow(
		`SELECT id, lens_facing, pose_enabled, mask_enabled, started_at, stopped_at
		 FROM camera_sessions WHERE id = ?`,
		id,
	)
	rec, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rec, err
}

// List returns the most recent sessions, newest first.
func (r *SessionRepository) List(limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		`SELECT id, lens_facing, pose_enabled, mask_enabled, started_at, stopped_at
		 FROM camera_sessions
		 ORDER BY started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *rec)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*SessionRecord, error) {
	var rec SessionRecord
	var stopped sql.NullTime
	if err := sc.Scan(&rec.ID, &rec.LensFacing, &rec.PoseEnabled, &rec.MaskEnabled, &rec.StartedAt, &stopped); err != nil {
		return nil, err
	}
	if stopped.Valid {
		t := stopped.Time
		rec.StoppedAt = &t
	}
	return &rec, nil
}
