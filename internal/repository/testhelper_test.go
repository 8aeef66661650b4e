package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/jmylchreest/consult-billing/internal/database/migrations"
	"github.com/jmylchreest/consult-billing/internal/models"
)

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	// Every new connection to :memory: is a fresh database.
	db.SetMaxOpenConns(1)

	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	return NewRepositories(setupTestDB(t))
}

// InsertTestWallet seeds a wallet with the given balance.
func InsertTestWallet(t *testing.T, repos *Repositories, userID string, balancePaise int64) {
	t.Helper()
	err := repos.InTx(context.Background(), func(tx *Repositories) error {
		_, err := tx.Wallet.Credit(context.Background(), userID, balancePaise, models.LedgerEntry{
			Type:        models.TxTypeRecharge,
			Description: "test seed",
		})
		return err
	})
	if err != nil {
		t.Fatalf("failed to insert test wallet: %v", err)
	}
}

// newTestSession builds a live session starting at the given time.
func newTestSession(id, consumerID, providerID string, startedAt time.Time) *models.BillingSession {
	return &models.BillingSession{
		ID:              id,
		ConsumerID:      consumerID,
		ProviderID:      providerID,
		SessionType:     models.SessionTypeChat,
		RatePaisePerMin: 600,
		Live:            true,
		StartedAt:       startedAt,
	}
}
