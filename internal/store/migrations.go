package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Sessions table - one row per live run or replay
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,

		// Pose events table - confirmations and releases per user
		`CREATE TABLE IF NOT EXISTS pose_events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			user_id INTEGER NOT NULL,
			pose TEXT NOT NULL,
			kind TEXT NOT NULL CHECK(kind IN ('confirmed', 'released')),
			frame_index INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,

		// Pose bindings table - image and plugin action per pose
		`CREATE TABLE IF NOT EXISTS pose_bindings (
			pose TEXT PRIMARY KEY,
			image_path TEXT NOT NULL DEFAULT '',
			plugin_name TEXT NOT NULL DEFAULT '',
			action_name TEXT NOT NULL DEFAULT '',
			config TEXT NOT NULL DEFAULT '{}',
			enabled INTEGER NOT NULL DEFAULT 1,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_pose_events_session_id ON pose_events(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_pose_events_created_at ON pose_events(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
