package models

import (
	"time"
)

// Plan tiers determine the per-file upload ceiling.
const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// KnowledgeFile statuses. Transitions are monotonic:
// PENDING -> PROCESSING -> {PROCESSED, ERROR} -> DELETED (soft delete only).
const (
	FileStatusPending    = "PENDING"
	FileStatusProcessing = "PROCESSING"
	FileStatusProcessed  = "PROCESSED"
	FileStatusError      = "ERROR"
	FileStatusDeleted    = "DELETED"
)

// ProcessingSession statuses. COMPLETED means at least one file succeeded;
// ERROR means every file in the batch failed.
const (
	SessionStatusPending    = "PENDING"
	SessionStatusProcessing = "PROCESSING"
	SessionStatusCompleted  = "COMPLETED"
	SessionStatusError      = "ERROR"
)

// Account represents a tenant that owns a knowledge base.
type Account struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Plan      string    `db:"plan" json:"plan"` // free | pro | enterprise
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// KnowledgeFile represents one ingested artifact in an account's knowledge base.
//
// Checksum is the sha256 of the raw uploaded bytes, computed once before any
// extraction attempt and never recomputed. The pair (AccountID, Checksum) is
// unique among non-DELETED files; that index is the dedup invariant.
type KnowledgeFile struct {
	ID              string     `db:"id" json:"id"`
	AccountID       string     `db:"account_id" json:"account_id"`
	SessionID       *string    `db:"session_id" json:"session_id,omitempty"`
	OriginalName    string     `db:"original_name" json:"original_name"`
	MimeType        string     `db:"mime_type" json:"mime_type"`
	FileSize        int64      `db:"file_size" json:"file_size"`
	Checksum        string     `db:"checksum" json:"checksum"`
	StorageKey      string     `db:"storage_key" json:"storage_key"`
	ExtractedText   *string    `db:"extracted_text" json:"-"`
	TextLength      int        `db:"text_length" json:"text_length"`
	PageCount       *int       `db:"page_count" json:"page_count,omitempty"`
	ProcessingError *string    `db:"processing_error" json:"processing_error,omitempty"`
	Status          string     `db:"status" json:"status"`
	SourceMeta      *string    `db:"source_meta" json:"source_meta,omitempty"` // opaque tag, e.g. originating email message id
	IndexRef        *string    `db:"index_ref" json:"index_ref,omitempty"`     // reference returned by the search index
	ProcessedAt     *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// ProcessingSession represents one ingestion batch.
//
// Counters are derived solely from per-file outcomes and always satisfy
// processedFiles + errorFiles <= totalFiles. Once CompletedAt is set the
// counters are frozen.
type ProcessingSession struct {
	ID             string     `db:"id" json:"id"`
	AccountID      string     `db:"account_id" json:"account_id"`
	TotalFiles     int        `db:"total_files" json:"total_files"`
	ProcessedFiles int        `db:"processed_files" json:"processed_files"`
	ErrorFiles     int        `db:"error_files" json:"error_files"`
	Status         string     `db:"status" json:"status"`
	StartedAt      *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// KnowledgeChunk represents one embedded text chunk published to the
// retrieval index for a processed file.
type KnowledgeChunk struct {
	ID         string    `db:"id" json:"id"`
	AccountID  string    `db:"account_id" json:"account_id"`
	FileID     string    `db:"file_id" json:"file_id"`
	Position   int       `db:"position" json:"position"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"embedding"` // pgvector column
	TokenCount int       `db:"token_count" json:"token_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// MaxFileSize returns the per-file upload ceiling in bytes for a plan.
func MaxFileSize(plan string) int64 {
	switch plan {
	case PlanPro:
		return 50 << 20
	case PlanEnterprise:
		return 100 << 20
	default:
		return 10 << 20
	}
}
