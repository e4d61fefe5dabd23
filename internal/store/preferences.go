package store

import (
	"database/sql"
	"strconv"
)

// Setting keys.
const (
	keyPoseEnabled = "pose_enabled"
	keyMaskEnabled = "mask_enabled"
	keyLensFacing  = "lens_facing"
)

// Preferences are the session settings restored at startup.
type Preferences struct {
	PoseEnabled bool   `json:"pose_enabled"`
	MaskEnabled bool   `json:"mask_enabled"`
	LensFacing  string `json:"lens_facing"`
}

// PreferenceRepository reads and writes Preferences in the settings table.
type PreferenceRepository struct {
	db *sql.DB
}

// Preferences returns the preference repository for this store.
func (s *Store) Preferences() *PreferenceRepository {
	return &PreferenceRepository{db: s.db}
}

// Load returns the saved preferences, or ErrNotFound if none were saved.
func (r *PreferenceRepository) Load() (Preferences, error) {
	rows, err := r.db.Query(
		`SELECT key, value FROM settings WHERE key IN (?, ?, ?)`,
		keyPoseEnabled, keyMaskEnabled, keyLensFacing,
	)
	if err != nil {
		return Preferences{}, err
	}
	defer rows.Close()

	var p Preferences
	found := 0
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Preferences{}, err
		}
		found++

		switch key {
		case keyPoseEnabled:
			p.PoseEnabled, _ = strconv.ParseBool(value)
		case keyMaskEnabled:
			p.MaskEnabled, _ = strconv.ParseBool(value)
		case keyLensFacing:
			p.LensFacing = value
		}
	}
	if err := rows.Err(); err != nil {
		return Preferences{}, err
	}

	if found == 0 {
		return Preferences{}, ErrNotFound
	}
	return p, nil
}

// Save stores p, replacing any previous preferences.
func (r *PreferenceRepository) Save(p Preferences) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	values := map[string]string{
		keyPoseEnabled: strconv.FormatBool(p.PoseEnabled),
		keyMaskEnabled: strconv.FormatBool(p.MaskEnabled),
		keyLensFacing:  p.LensFacing,
	}
	for key, value := range values {
		if _, err := stmt.Exec(key, value); err != nil {
			return err
		}
	}

	return tx.Commit()
}
