package migrations

func init() {
	Register(Migration{
		Timestamp:   "20261001-090000",
		Description: "Initial schema",
		Up: []string{
			// Parties - billing view of user profiles (role + provider rate).
			// id is the identity provider's subject, no FK to a users table.
			`CREATE TABLE IF NOT EXISTS parties (
				id TEXT PRIMARY KEY,
				role TEXT NOT NULL,
				display_name TEXT NOT NULL DEFAULT '',
				rate_paise_per_min INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			// Wallets - one per party, created lazily on first money movement
			`CREATE TABLE IF NOT EXISTS wallets (
				user_id TEXT PRIMARY KEY,
				balance_paise INTEGER NOT NULL DEFAULT 0 CHECK (balance_paise >= 0),
				lifetime_added INTEGER NOT NULL DEFAULT 0,
				lifetime_spent INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			// Wallet transactions - append-only history
			`CREATE TABLE IF NOT EXISTS wallet_transactions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				type TEXT NOT NULL,
				amount_paise INTEGER NOT NULL CHECK (amount_paise > 0),
				balance_after INTEGER NOT NULL,
				session_id TEXT,
				description TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_wallet_transactions_user_id ON wallet_transactions(user_id, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_wallet_transactions_session_id ON wallet_transactions(session_id)`,

			// Billing sessions - one metered consultation
			`CREATE TABLE IF NOT EXISTS billing_sessions (
				id TEXT PRIMARY KEY,
				consumer_id TEXT NOT NULL,
				provider_id TEXT NOT NULL,
				session_type TEXT NOT NULL,
				rate_paise_per_min INTEGER NOT NULL CHECK (rate_paise_per_min > 0),
				seconds_elapsed INTEGER NOT NULL DEFAULT 0,
				total_cost_paise INTEGER NOT NULL DEFAULT 0,
				live INTEGER NOT NULL DEFAULT 1,
				started_at TEXT NOT NULL,
				ended_at TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_billing_sessions_consumer ON billing_sessions(consumer_id, live)`,
			`CREATE INDEX IF NOT EXISTS idx_billing_sessions_provider ON billing_sessions(provider_id)`,
		},
	})
}
