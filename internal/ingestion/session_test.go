package ingestion

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexium-ai/lexium/internal/models"
)

func TestSessionTrackerLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("new tracker creates a pending row", func(t *testing.T) {
		db := newMemDB()
		tracker, err := NewSessionTracker(ctx, db, "acct-1")
		require.NoError(t, err)

		session, err := db.GetSessionByID(ctx, tracker.ID())
		require.NoError(t, err)
		require.NotNil(t, session)
		assert.Equal(t, models.SessionStatusPending, session.Status)
	})

	t.Run("recording before start is rejected", func(t *testing.T) {
		db := newMemDB()
		tracker, err := NewSessionTracker(ctx, db, "acct-1")
		require.NoError(t, err)

		assert.ErrorIs(t, tracker.RecordSuccess(ctx), ErrSessionNotStarted)
		_, err = tracker.Finalize(ctx)
		assert.ErrorIs(t, err, ErrSessionNotStarted)
	})

	t.Run("start fixes the total and moves to processing", func(t *testing.T) {
		db := newMemDB()
		tracker, err := NewSessionTracker(ctx, db, "acct-1")
		require.NoError(t, err)
		require.NoError(t, tracker.Start(ctx, 3))

		session, _ := db.GetSessionByID(ctx, tracker.ID())
		assert.Equal(t, models.SessionStatusProcessing, session.Status)
		assert.Equal(t, 3, session.TotalFiles)
		assert.NotNil(t, session.StartedAt)

		// A second start is a no-op, not an error.
		assert.NoError(t, tracker.Start(ctx, 3))
	})

	t.Run("mixed outcomes complete the session", func(t *testing.T) {
		db := newMemDB()
		tracker, err := NewSessionTracker(ctx, db, "acct-1")
		require.NoError(t, err)
		require.NoError(t, tracker.Start(ctx, 3))

		require.NoError(t, tracker.RecordSuccess(ctx))
		require.NoError(t, tracker.RecordError(ctx))
		require.NoError(t, tracker.RecordSuccess(ctx))

		status, err := tracker.Finalize(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCompleted, status)

		session, _ := db.GetSessionByID(ctx, tracker.ID())
		assert.Equal(t, 2, session.ProcessedFiles)
		assert.Equal(t, 1, session.ErrorFiles)
		assert.NotNil(t, session.CompletedAt)
	})

	t.Run("all failures end in error status", func(t *testing.T) {
		db := newMemDB()
		tracker, err := NewSessionTracker(ctx, db, "acct-1")
		require.NoError(t, err)
		require.NoError(t, tracker.Start(ctx, 2))

		require.NoError(t, tracker.RecordError(ctx))
		require.NoError(t, tracker.RecordError(ctx))

		status, err := tracker.Finalize(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusError, status)
	})

	t.Run("one success is enough to complete", func(t *testing.T) {
		db := newMemDB()
		tracker, err := NewSessionTracker(ctx, db, "acct-1")
		require.NoError(t, err)
		require.NoError(t, tracker.Start(ctx, 5))

		require.NoError(t, tracker.RecordSuccess(ctx))
		for i := 0; i < 4; i++ {
			require.NoError(t, tracker.RecordError(ctx))
		}

		status, err := tracker.Finalize(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCompleted, status)
	})

	t.Run("finalize is idempotent and freezes counters", func(t *testing.T) {
		db := newMemDB()
		tracker, err := NewSessionTracker(ctx, db, "acct-1")
		require.NoError(t, err)
		require.NoError(t, tracker.Start(ctx, 2))
		require.NoError(t, tracker.RecordSuccess(ctx))

		first, err := tracker.Finalize(ctx)
		require.NoError(t, err)
		second, err := tracker.Finalize(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		// Late outcomes after the terminal state are swallowed.
		assert.NoError(t, tracker.RecordSuccess(ctx))
		_, processed, _, _ := tracker.Snapshot()
		assert.Equal(t, 1, processed)
	})

	t.Run("rejects more outcomes than files", func(t *testing.T) {
		db := newMemDB()
		tracker, err := NewSessionTracker(ctx, db, "acct-1")
		require.NoError(t, err)
		require.NoError(t, tracker.Start(ctx, 1))
		require.NoError(t, tracker.RecordSuccess(ctx))

		assert.Error(t, tracker.RecordError(ctx))
	})

	t.Run("resume attaches to a pending session only", func(t *testing.T) {
		db := newMemDB()
		created, err := NewSessionTracker(ctx, db, "acct-1")
		require.NoError(t, err)

		resumed, err := ResumeSessionTracker(ctx, db, created.ID())
		require.NoError(t, err)
		assert.Equal(t, created.ID(), resumed.ID())

		require.NoError(t, resumed.Start(ctx, 1))
		require.NoError(t, resumed.RecordSuccess(ctx))
		_, err = resumed.Finalize(ctx)
		require.NoError(t, err)

		_, err = ResumeSessionTracker(ctx, db, created.ID())
		assert.ErrorIs(t, err, ErrSessionTerminal)
	})

	t.Run("unknown session cannot be resumed", func(t *testing.T) {
		_, err := ResumeSessionTracker(ctx, newMemDB(), "nope")
		assert.Error(t, err)
	})
}

func TestSessionTrackerConcurrentRecording(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	tracker, err := NewSessionTracker(ctx, db, "acct-1")
	require.NoError(t, err)

	const total = 40
	require.NoError(t, tracker.Start(ctx, total))

	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				_ = tracker.RecordError(ctx)
			} else {
				_ = tracker.RecordSuccess(ctx)
			}
		}(i)
	}
	wg.Wait()

	totalGot, processed, errored, _ := tracker.Snapshot()
	assert.Equal(t, total, totalGot)
	assert.Equal(t, total, processed+errored)
	assert.Equal(t, 10, errored)

	status, err := tracker.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, status)
}
