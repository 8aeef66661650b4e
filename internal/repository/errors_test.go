package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/jmylchreest/consult-billing/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"nil", nil, false},
		{"busy", errors.New("SQLITE_BUSY: database is locked"), true},
		{"locked", errors.New("database is locked"), true},
		{"table locked", errors.New("SQLITE_LOCKED: database table is locked"), true},
		{"already conflict", ErrWriteConflict, true},
		{"constraint", errors.New("CHECK constraint failed: balance_paise >= 0"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if errors.Is(got, ErrWriteConflict) != tt.conflict {
				t.Errorf("classify(%v) = %v, conflict want %v", tt.err, got, tt.conflict)
			}
			if tt.err == nil && got != nil {
				t.Errorf("classify(nil) = %v, want nil", got)
			}
		})
	}
}

// ========================================
// Driver error mapping (sqlmock)
// ========================================

func TestSessionRepository_UpdateBusyIsWriteConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE billing_sessions SET").
		WillReturnError(errors.New("SQLITE_BUSY: database is locked"))

	repo := NewSQLiteSessionRepository(db)
	s := newTestSession("s1", "c", "p", time.Now())
	s.Version = 3

	err = repo.Update(context.Background(), s)
	if !errors.Is(err, ErrWriteConflict) {
		t.Fatalf("expected ErrWriteConflict, got %v", err)
	}
	if s.Version != 3 {
		t.Errorf("version must not change on failure, got %d", s.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_UpdateZeroRowsIsWriteConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE billing_sessions SET").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "s1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := newTestSession("s1", "c", "p", time.Now())
	s.Version = 3

	if err := NewSQLiteSessionRepository(db).Update(context.Background(), s); !errors.Is(err, ErrWriteConflict) {
		t.Fatalf("expected ErrWriteConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestWalletRepository_DebitLockedIsWriteConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("UPDATE wallets SET").
		WillReturnError(errors.New("database is locked"))

	_, err = NewSQLiteWalletRepository(db).Debit(context.Background(), "c", 150, models.LedgerEntry{Type: models.TxTypeDebit})
	if !errors.Is(err, ErrWriteConflict) {
		t.Fatalf("expected ErrWriteConflict, got %v", err)
	}
	if errors.Is(err, ErrInsufficientFunds) {
		t.Error("a lock error must not look like insufficient funds")
	}
}

func TestRepositories_CommitBusyIsWriteConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("SQLITE_BUSY"))

	err = NewRepositories(db).InTx(context.Background(), func(tx *Repositories) error { return nil })
	if !errors.Is(err, ErrWriteConflict) {
		t.Fatalf("expected ErrWriteConflict, got %v", err)
	}
}
