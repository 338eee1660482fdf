package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/lexium-ai/lexium/internal/core"
	objectclient "github.com/lexium-ai/lexium/internal/core/object-client"
	"github.com/lexium-ai/lexium/internal/logger"
	"github.com/lexium-ai/lexium/internal/models"
)

// FileUpload is one member of an ingestion batch.
type FileUpload struct {
	FileName   string
	MimeType   string
	Data       []byte
	SourceMeta *string // opaque origin tag, e.g. a synced email message id
}

// FileResult is the per-file outcome reported to the caller.
type FileResult struct {
	FileID     string `json:"file_id"`
	FileName   string `json:"file_name"`
	Success    bool   `json:"success"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	Error      string `json:"error,omitempty"`
	TextLength int    `json:"text_length,omitempty"`
	PageCount  int    `json:"page_count,omitempty"`
}

// SessionResult summarizes one finished batch.
type SessionResult struct {
	SessionID      string       `json:"session_id"`
	TotalFiles     int          `json:"total_files"`
	ProcessedFiles int          `json:"processed_files"`
	ErrorFiles     int          `json:"error_files"`
	Status         string       `json:"status"`
	Results        []FileResult `json:"results"`
}

// Orchestrator is the ingestion entry point. Per file it validates, dedups,
// extracts, normalizes, persists and uploads; failures are trapped at the
// per-file boundary so one bad file never sinks the batch.
type Orchestrator struct {
	db         core.DbClient
	obj        core.ObjectClient
	checksums  *ChecksumStore
	dispatcher *Dispatcher
	bucket     string
	workers    int
	log        *logger.Logger
}

func NewOrchestrator(db core.DbClient, obj core.ObjectClient, dispatcher *Dispatcher, bucket string, workers int, log *logger.Logger) *Orchestrator {
	if workers <= 0 {
		workers = 3
	}
	return &Orchestrator{
		db:         db,
		obj:        obj,
		checksums:  NewChecksumStore(db),
		dispatcher: dispatcher,
		bucket:     bucket,
		workers:    workers,
		log:        log.With("component", "ingest"),
	}
}

// Ingest processes one batch for an account. sessionID may name an existing
// PENDING session to resume; pass "" to create a fresh one. The returned
// SessionResult is always complete: the session reaches a terminal status
// even when every file fails.
func (o *Orchestrator) Ingest(ctx context.Context, accountID string, files []FileUpload, sessionID string) (*SessionResult, error) {
	account, err := o.db.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("account not found: %s", accountID)
	}
	if len(files) == 0 {
		return nil, errors.New("empty batch")
	}

	var tracker *SessionTracker
	if sessionID == "" {
		tracker, err = NewSessionTracker(ctx, o.db, accountID)
	} else {
		tracker, err = ResumeSessionTracker(ctx, o.db, sessionID)
	}
	if err != nil {
		return nil, err
	}

	if err := tracker.Start(ctx, len(files)); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	// Files within a batch are independent; most of their time is spent
	// blocked on a helper subprocess, so a small worker pool processes them
	// concurrently. Pool size doubles as the helper-process concurrency cap.
	pool, err := ants.NewPool(o.workers)
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()

	results := make([]FileResult, len(files))
	var wg sync.WaitGroup

	for i := range files {
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			res := o.processOne(ctx, account, tracker.ID(), files[i])
			results[i] = res

			// Counter updates may arrive in any order; the tracker's
			// increments are associative so ordering does not matter.
			if res.Success {
				if err := tracker.RecordSuccess(ctx); err != nil {
					o.log.Error("record success failed", "session_id", tracker.ID(), "err", err)
				}
			} else {
				if err := tracker.RecordError(ctx); err != nil {
					o.log.Error("record error failed", "session_id", tracker.ID(), "err", err)
				}
			}
		}
		if err := pool.Submit(task); err != nil {
			// Pool rejected the task (released or overloaded); run inline
			// rather than losing the file.
			task()
		}
	}

	wg.Wait()

	status, err := tracker.Finalize(ctx)
	if err != nil {
		o.log.Error("finalize session failed", "session_id", tracker.ID(), "err", err)
	}

	total, processed, errored, _ := tracker.Snapshot()
	o.log.Info("batch finished",
		"session_id", tracker.ID(), "total", total, "processed", processed, "errors", errored, "status", status)

	return &SessionResult{
		SessionID:      tracker.ID(),
		TotalFiles:     total,
		ProcessedFiles: processed,
		ErrorFiles:     errored,
		Status:         status,
		Results:        results,
	}, nil
}

// processOne runs the strict per-file pipeline:
// validate -> dedup -> extract -> normalize -> persist -> upload.
// Anything thrown inside, panics included, is converted into an ERROR
// outcome for this file only.
func (o *Orchestrator) processOne(ctx context.Context, account *models.Account, sessionID string, up FileUpload) (res FileResult) {
	res = FileResult{FileName: up.FileName}

	defer func() {
		if r := recover(); r != nil {
			o.log.Error("panic while processing file", "file", up.FileName, "panic", r)
			res.Success = false
			res.Error = "internal error while processing file"
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Error = "batch cancelled before this file was processed"
		return res
	}

	if err := ValidateFile(up.Data, up.FileName, up.MimeType, account.Plan); err != nil {
		res.Error = err.Error()
		return res
	}

	// The checksum is computed exactly once, from the raw bytes, before any
	// extraction attempt.
	digest := o.checksums.Checksum(up.Data)

	if dup, err := o.checksums.FindDuplicate(ctx, account.ID, digest); err != nil {
		res.Error = (&StorageError{Op: "dedup lookup", Err: err}).Error()
		return res
	} else if dup != nil {
		res.FileID = dup.ID
		res.Success = true
		res.Duplicate = true
		res.TextLength = dup.TextLength
		return res
	}

	storageKey := objectclient.KnowledgeKey(account.ID, digest, up.FileName)
	now := time.Now()
	file := &models.KnowledgeFile{
		ID:           uuid.NewString(),
		AccountID:    account.ID,
		SessionID:    &sessionID,
		OriginalName: up.FileName,
		MimeType:     up.MimeType,
		FileSize:     int64(len(up.Data)),
		Checksum:     digest,
		StorageKey:   storageKey,
		Status:       models.FileStatusPending,
		SourceMeta:   up.SourceMeta,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := o.db.CreateKnowledgeFile(ctx, file); err != nil {
		if errors.Is(err, core.ErrDuplicateFile) {
			// Lost a concurrent dedup race: the unique index fired. Treat it
			// exactly like a dedup hit.
			if dup, lookupErr := o.checksums.FindDuplicate(ctx, account.ID, digest); lookupErr == nil && dup != nil {
				res.FileID = dup.ID
				res.Success = true
				res.Duplicate = true
				res.TextLength = dup.TextLength
				return res
			}
		}
		res.Error = (&StorageError{Op: "create record", Err: err}).Error()
		return res
	}
	res.FileID = file.ID

	if err := o.db.UpdateFileStatus(ctx, file.ID, models.FileStatusProcessing); err != nil {
		res.Error = (&StorageError{Op: "status update", Err: err}).Error()
		return res
	}

	extraction, err := o.dispatcher.Extract(ctx, up.Data, up.FileName, up.MimeType)
	if err != nil {
		// Signature mismatch or an unsupported type that slipped through:
		// permanent failure for this file, no fallback.
		o.markError(ctx, file.ID, err.Error())
		res.Error = err.Error()
		return res
	}

	text := CleanText(extraction.Text)

	if _, err := o.obj.UploadFile(ctx, o.bucket, storageKey, up.Data, up.MimeType); err != nil {
		msg := (&StorageError{Op: "upload", Err: err}).Error()
		o.markError(ctx, file.ID, msg)
		res.Error = msg
		return res
	}

	if err := o.db.MarkFileProcessed(ctx, file.ID, text, extraction.PageCount); err != nil {
		res.Error = (&StorageError{Op: "finalize record", Err: err}).Error()
		return res
	}

	res.Success = true
	res.TextLength = len(text)
	res.PageCount = extraction.PageCount
	return res
}

func (o *Orchestrator) markError(ctx context.Context, fileID, msg string) {
	if err := o.db.MarkFileError(ctx, fileID, msg); err != nil {
		o.log.Error("mark file error failed", "file_id", fileID, "err", err)
	}
}
