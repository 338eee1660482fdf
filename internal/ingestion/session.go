package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexium-ai/lexium/internal/core"
	"github.com/lexium-ai/lexium/internal/models"
)

var (
	// ErrSessionNotStarted is returned when outcomes are recorded on a
	// session that never left PENDING.
	ErrSessionNotStarted = errors.New("processing session not started")
	// ErrSessionTerminal is returned by Start on an already finalized session.
	ErrSessionTerminal = errors.New("processing session already finalized")
)

// SessionTracker owns one ProcessingSession's state machine and counters.
// One orchestrator instance owns one tracker; workers of the same batch may
// record outcomes concurrently and in any order, so the counters live behind
// a mutex and the database increments are atomic.
type SessionTracker struct {
	db core.DbClient

	mu        sync.Mutex
	id        string
	accountID string
	total     int
	processed int
	errored   int
	status    string
}

// NewSessionTracker creates a PENDING session row and a tracker owning it.
func NewSessionTracker(ctx context.Context, db core.DbClient, accountID string) (*SessionTracker, error) {
	session := &models.ProcessingSession{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Status:    models.SessionStatusPending,
		CreatedAt: time.Now(),
	}
	if err := db.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &SessionTracker{
		db:        db,
		id:        session.ID,
		accountID: accountID,
		status:    models.SessionStatusPending,
	}, nil
}

// ResumeSessionTracker attaches to an existing PENDING session, e.g. one
// created ahead of the upload by the API layer.
func ResumeSessionTracker(ctx context.Context, db core.DbClient, sessionID string) (*SessionTracker, error) {
	session, err := db.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	if session.Status != models.SessionStatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrSessionTerminal, sessionID, session.Status)
	}
	return &SessionTracker{
		db:        db,
		id:        session.ID,
		accountID: session.AccountID,
		status:    session.Status,
	}, nil
}

func (t *SessionTracker) ID() string { return t.id }

// Start moves PENDING -> PROCESSING and fixes totalFiles for the batch.
func (t *SessionTracker) Start(ctx context.Context, totalFiles int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.status {
	case models.SessionStatusPending:
		// expected
	case models.SessionStatusProcessing:
		return nil
	default:
		return ErrSessionTerminal
	}

	if err := t.db.StartSession(ctx, t.id, totalFiles); err != nil {
		return err
	}
	t.total = totalFiles
	t.status = models.SessionStatusProcessing
	return nil
}

// RecordSuccess counts one successfully processed file. Safe to call from
// any worker in any order; a no-op once the session is terminal.
func (t *SessionTracker) RecordSuccess(ctx context.Context) error {
	return t.record(ctx, true)
}

// RecordError counts one failed file. Same calling rules as RecordSuccess.
func (t *SessionTracker) RecordError(ctx context.Context) error {
	return t.record(ctx, false)
}

func (t *SessionTracker) record(ctx context.Context, success bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.status {
	case models.SessionStatusPending:
		return ErrSessionNotStarted
	case models.SessionStatusCompleted, models.SessionStatusError:
		return nil
	}

	if t.processed+t.errored >= t.total {
		return fmt.Errorf("more outcomes than files in session %s", t.id)
	}

	if success {
		if err := t.db.IncrementSessionProcessed(ctx, t.id); err != nil {
			return err
		}
		t.processed++
	} else {
		if err := t.db.IncrementSessionError(ctx, t.id); err != nil {
			return err
		}
		t.errored++
	}
	return nil
}

// Finalize moves PROCESSING to its terminal status: COMPLETED when at least
// one file succeeded, ERROR when every file failed. Calling it again is a
// no-op returning the settled status; counters are frozen afterwards.
func (t *SessionTracker) Finalize(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.status {
	case models.SessionStatusCompleted, models.SessionStatusError:
		return t.status, nil
	case models.SessionStatusPending:
		return t.status, ErrSessionNotStarted
	}

	status := models.SessionStatusError
	if t.processed > 0 {
		status = models.SessionStatusCompleted
	}

	if err := t.db.CompleteSession(ctx, t.id, status); err != nil {
		return t.status, err
	}
	t.status = status
	return status, nil
}

// Snapshot returns the tracker's current counters and status.
func (t *SessionTracker) Snapshot() (total, processed, errored int, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total, t.processed, t.errored, t.status
}
