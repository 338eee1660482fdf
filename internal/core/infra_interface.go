package core

import (
	"context"
	"errors"

	"github.com/lexium-ai/lexium/internal/models"
)

// ErrDuplicateFile is returned by CreateKnowledgeFile when the partial unique
// index on (account_id, checksum) rejects the insert. The losing writer of a
// concurrent dedup race treats this as "duplicate found", not as a failure.
var ErrDuplicateFile = errors.New("knowledge file with identical checksum already exists")

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)

	CreateKnowledgeFile(ctx context.Context, file *models.KnowledgeFile) error
	GetFileByID(ctx context.Context, id string) (*models.KnowledgeFile, error)
	FindFileByChecksum(ctx context.Context, accountID, checksum string) (*models.KnowledgeFile, error)
	ListFilesByAccount(ctx context.Context, accountID string) ([]models.KnowledgeFile, error)
	ListFilesBySession(ctx context.Context, sessionID string) ([]models.KnowledgeFile, error)
	UpdateFileStatus(ctx context.Context, id string, status string) error
	MarkFileProcessed(ctx context.Context, id string, text string, pageCount int) error
	MarkFileError(ctx context.Context, id string, processingError string) error
	SetFileIndexRef(ctx context.Context, id string, ref string) error
	SoftDeleteFile(ctx context.Context, id string) error

	CreateSession(ctx context.Context, session *models.ProcessingSession) error
	GetSessionByID(ctx context.Context, id string) (*models.ProcessingSession, error)
	StartSession(ctx context.Context, id string, totalFiles int) error
	IncrementSessionProcessed(ctx context.Context, id string) error
	IncrementSessionError(ctx context.Context, id string) error
	CompleteSession(ctx context.Context, id string, status string) error

	InsertKnowledgeChunks(ctx context.Context, chunks []models.KnowledgeChunk) error
	DeleteChunksByFile(ctx context.Context, fileID string) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so AWS can be replaced with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	DeleteFile(ctx context.Context, bucket, key string) error
}

// EmbeddingProvider turns text into vectors for the retrieval index.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string, dim int) ([][]float32, error)
}
