package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmylchreest/consult-billing/internal/models"
)

// ========================================
// Billing Session Repository
// ========================================

// Session timestamps keep sub-second precision because unbilled time at
// stop is measured against started_at. The layout is fixed width so text
// ordering matches time ordering.
const sessionTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteSessionRepository implements SessionRepository for SQLite.
type SQLiteSessionRepository struct {
	db DBTX
}

// NewSQLiteSessionRepository creates a new SQLite billing session repository.
func NewSQLiteSessionRepository(db DBTX) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

const sessionColumns = `id, consumer_id, provider_id, session_type, rate_paise_per_min, seconds_elapsed,
	total_cost_paise, live, started_at, ended_at, end_reason, version, updated_at`

// CreateIfNoLive inserts through INSERT ... SELECT ... WHERE NOT EXISTS so the
// live-session check and the insert are one statement.
func (r *SQLiteSessionRepository) CreateIfNoLive(ctx context.Context, s *models.BillingSession) error {
	if s.Version == 0 {
		s.Version = 1
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.StartedAt
	}

	query := `INSERT INTO billing_sessions (` + sessionColumns + `)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM billing_sessions WHERE consumer_id = ? AND live = 1)`
	result, err := r.db.ExecContext(ctx, query,
		s.ID, s.ConsumerID, s.ProviderID, string(s.SessionType), s.RatePaisePerMin, s.SecondsElapsed,
		s.TotalCostPaise, boolToInt(s.Live), formatTime(s.StartedAt), s.Version, formatTime(s.UpdatedAt),
		s.ConsumerID,
	)
	if err != nil {
		return classify(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLiveSessionExists
	}
	return nil
}

func (r *SQLiteSessionRepository) GetByID(ctx context.Context, id string) (*models.BillingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM billing_sessions WHERE id = ?`
	return r.getOne(ctx, query, id)
}

func (r *SQLiteSessionRepository) GetLiveByConsumer(ctx context.Context, consumerID string) (*models.BillingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM billing_sessions WHERE consumer_id = ? AND live = 1
		ORDER BY started_at DESC LIMIT 1`
	return r.getOne(ctx, query, consumerID)
}

func (r *SQLiteSessionRepository) ListLive(ctx context.Context) ([]*models.BillingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM billing_sessions WHERE live = 1 ORDER BY started_at`
	return r.list(ctx, query)
}

// ListByParty returns sessions where the party is either side, newest first.
func (r *SQLiteSessionRepository) ListByParty(ctx context.Context, partyID string, limit, offset int) ([]*models.BillingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM billing_sessions
		WHERE consumer_id = ? OR provider_id = ?
		ORDER BY started_at DESC LIMIT ? OFFSET ?`
	return r.list(ctx, query, partyID, partyID, limit, offset)
}

func (r *SQLiteSessionRepository) Update(ctx context.Context, s *models.BillingSession) error {
	query := `UPDATE billing_sessions SET
			seconds_elapsed = ?,
			total_cost_paise = ?,
			live = ?,
			ended_at = ?,
			end_reason = ?,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?`

	var endedAt, endReason sql.NullString
	if s.EndedAt != nil {
		endedAt = sql.NullString{String: formatTime(*s.EndedAt), Valid: true}
	}
	if s.EndReason != "" {
		endReason = sql.NullString{String: string(s.EndReason), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		s.SecondsElapsed, s.TotalCostPaise, boolToInt(s.Live), endedAt, endReason, formatTime(s.UpdatedAt),
		s.ID, s.Version,
	)
	if err != nil {
		return classify(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrWriteConflict
	}
	s.Version++
	return nil
}

func (r *SQLiteSessionRepository) getOne(ctx context.Context, query string, args ...any) (*models.BillingSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return s, nil
}

func (r *SQLiteSessionRepository) list(ctx context.Context, query string, args ...any) ([]*models.BillingSession, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var sessions []*models.BillingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.BillingSession, error) {
	var s models.BillingSession
	var sessionType, startedAt, updatedAt string
	var live int
	var endedAt, endReason sql.NullString
	err := row.Scan(&s.ID, &s.ConsumerID, &s.ProviderID, &sessionType, &s.RatePaisePerMin, &s.SecondsElapsed,
		&s.TotalCostPaise, &live, &startedAt, &endedAt, &endReason, &s.Version, &updatedAt)
	if err != nil {
		return nil, err
	}
	s.SessionType = models.SessionType(sessionType)
	s.Live = live == 1
	s.StartedAt = parseTime(startedAt)
	s.UpdatedAt = parseTime(updatedAt)
	if endedAt.Valid {
		t := parseTime(endedAt.String)
		s.EndedAt = &t
	}
	if endReason.Valid {
		s.EndReason = models.EndReason(endReason.String)
	}
	return &s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sessionTimeLayout)
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
