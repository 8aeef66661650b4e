package migrations

func init() {
	Register(Migration{
		Timestamp:   "20261009-141500",
		Description: "Add optimistic version, end reason and updated_at to billing_sessions",
		Up: []string{
			`ALTER TABLE billing_sessions ADD COLUMN version INTEGER NOT NULL DEFAULT 1`,
			`ALTER TABLE billing_sessions ADD COLUMN end_reason TEXT`,
			`ALTER TABLE billing_sessions ADD COLUMN updated_at TEXT NOT NULL DEFAULT ''`,
			`UPDATE billing_sessions SET updated_at = COALESCE(ended_at, started_at) WHERE updated_at = ''`,
			`CREATE INDEX IF NOT EXISTS idx_billing_sessions_live ON billing_sessions(live, updated_at)`,
		},
	})
}
