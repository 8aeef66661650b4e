package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmylchreest/consult-billing/internal/models"
)

// SQLitePartyRepository implements PartyRepository for SQLite.
type SQLitePartyRepository struct {
	db DBTX
}

// NewSQLitePartyRepository creates a new SQLite party repository.
func NewSQLitePartyRepository(db DBTX) *SQLitePartyRepository {
	return &SQLitePartyRepository{db: db}
}

func (r *SQLitePartyRepository) Get(ctx context.Context, id string) (*models.Party, error) {
	query := `SELECT id, role, display_name, rate_paise_per_min, created_at, updated_at FROM parties WHERE id = ?`
	var p models.Party
	var role, createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &role, &p.DisplayName, &p.RatePaisePerMin, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	p.Role = models.Role(role)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func (r *SQLitePartyRepository) Upsert(ctx context.Context, p *models.Party) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := `INSERT INTO parties (id, role, display_name, rate_paise_per_min, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			display_name = excluded.display_name,
			rate_paise_per_min = excluded.rate_paise_per_min,
			updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query, p.ID, string(p.Role), p.DisplayName, p.RatePaisePerMin,
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339))
	return classify(err)
}
