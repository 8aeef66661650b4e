package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/consult-billing/internal/models"
	"github.com/jmylchreest/consult-billing/internal/repository"
)

func TestExponentialBackOff_Sequence(t *testing.T) {
	b := &ExponentialBackOff{Base: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 200*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 400*time.Millisecond, b.NextBackOff())

	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
}

// recordingBackOff wraps ExponentialBackOff and keeps every delay handed out.
type recordingBackOff struct {
	inner  *ExponentialBackOff
	delays *[]time.Duration
}

func (r recordingBackOff) NextBackOff() time.Duration {
	d := r.inner.NextBackOff()
	*r.delays = append(*r.delays, d)
	return d
}

func (r recordingBackOff) Reset() { r.inner.Reset() }

func newMockEngine(t *testing.T, opts ...Option) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	base := []Option{WithClock(NewFakeClock(epoch)), WithMetrics(nil)}
	e := New(repository.NewRepositories(db), &recorder{}, DefaultConfig(), append(base, opts...)...)
	t.Cleanup(e.Close)
	return e, mock
}

func TestProcessTick_RetriesExhaustedLeavesSessionLive(t *testing.T) {
	var delays []time.Duration
	e, mock := newMockEngine(t, WithBackOff(func() backoff.BackOff {
		return recordingBackOff{inner: &ExponentialBackOff{Base: time.Millisecond}, delays: &delays}
	}))

	for i := 0; i < 4; i++ {
		mock.ExpectBegin().WillReturnError(errors.New("SQLITE_BUSY: database is locked"))
	}

	err := e.ProcessTick(context.Background(), "sess-1")
	require.ErrorIs(t, err, ErrWriteConflict)

	// One attempt plus three retries, doubling each time.
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}, delays)
	assert.NoError(t, mock.ExpectationsWereMet())

	// Exhausted conflicts never terminate the session.
	assert.Empty(t, e.bus.(*recorder).stopped())
}

func TestProcessTick_ConflictThenSuccess(t *testing.T) {
	e, mock := newMockEngine(t, WithBackOff(zeroBackOff))

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM billing_sessions WHERE id = ?").
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	require.NoError(t, e.ProcessTick(context.Background(), "sess-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetry_PermanentErrorNotRetried(t *testing.T) {
	e, _ := newMockEngine(t, WithBackOff(zeroBackOff))

	calls := 0
	boom := errors.New("boom")
	err := e.withRetry(context.Background(), "op", func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_ConflictRetried(t *testing.T) {
	e, _ := newMockEngine(t, WithBackOff(zeroBackOff))

	calls := 0
	err := e.withRetry(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return repository.ErrWriteConflict
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestStopSession_FailedStopRearmsOnlyLiveSessions(t *testing.T) {
	locked := errors.New("SQLITE_BUSY: database is locked")

	t.Run("ended elsewhere", func(t *testing.T) {
		e, mock := newMockEngine(t, WithBackOff(zeroBackOff))
		for i := 0; i < 4; i++ {
			mock.ExpectBegin().WillReturnError(locked)
		}
		mock.ExpectQuery("SELECT (.+) FROM billing_sessions WHERE id = ?").
			WithArgs("sess-1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := e.StopSession(context.Background(), "sess-1", models.EndReasonUserEnded)
		require.ErrorIs(t, err, ErrWriteConflict)
		assert.False(t, e.sched.Scheduled("sess-1"), "no ticker for a session that is gone")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lookup fails", func(t *testing.T) {
		e, mock := newMockEngine(t, WithBackOff(zeroBackOff))
		for i := 0; i < 4; i++ {
			mock.ExpectBegin().WillReturnError(locked)
		}
		mock.ExpectQuery("SELECT (.+) FROM billing_sessions WHERE id = ?").
			WithArgs("sess-1").
			WillReturnError(locked)

		_, err := e.StopSession(context.Background(), "sess-1", models.EndReasonUserEnded)
		require.ErrorIs(t, err, ErrWriteConflict)
		assert.True(t, e.sched.Scheduled("sess-1"), "unknown state keeps billing")
	})
}
