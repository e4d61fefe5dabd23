package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Camera sessions table - one row per started camera session
		`CREATE TABLE IF NOT EXISTS camera_sessions (
			id TEXT PRIMARY KEY,
			lens_facing TEXT NOT NULL CHECK(lens_facing IN ('FRONT', 'BACK')),
			pose_enabled INTEGER NOT NULL DEFAULT 0,
			mask_enabled INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			stopped_at DATETIME
		)`,

		`CREATE INDEX IF NOT EXISTS idx_camera_sessions_started_at ON camera_sessions(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
