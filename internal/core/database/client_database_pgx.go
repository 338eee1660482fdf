package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lexium-ai/lexium/internal/config"
	"github.com/lexium-ai/lexium/internal/core"
	"github.com/lexium-ai/lexium/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Accounts

func (c *DatabaseClient) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	const q = `
		SELECT id, name, plan, created_at, updated_at
		FROM accounts WHERE id = $1
	`
	var a models.Account
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&a.ID, &a.Name, &a.Plan, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Knowledge files

func (c *DatabaseClient) CreateKnowledgeFile(ctx context.Context, file *models.KnowledgeFile) error {
	if file == nil {
		return errors.New("nil knowledge file")
	}
	const q = `
		INSERT INTO knowledge_files
			(id, account_id, session_id, original_name, mime_type, file_size,
			 checksum, storage_key, status, source_meta, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, now()), COALESCE($12, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		file.ID, file.AccountID, file.SessionID, file.OriginalName, file.MimeType, file.FileSize,
		file.Checksum, file.StorageKey, file.Status, file.SourceMeta, file.CreatedAt, file.UpdatedAt)
	if isUniqueViolation(err) {
		return core.ErrDuplicateFile
	}
	return err
}

const fileColumns = `
	id, account_id, session_id, original_name, mime_type, file_size,
	checksum, storage_key, extracted_text, text_length, page_count,
	processing_error, status, source_meta, index_ref, processed_at,
	created_at, updated_at
`

func scanFile(row interface{ Scan(...any) error }) (*models.KnowledgeFile, error) {
	var f models.KnowledgeFile
	err := row.Scan(
		&f.ID, &f.AccountID, &f.SessionID, &f.OriginalName, &f.MimeType, &f.FileSize,
		&f.Checksum, &f.StorageKey, &f.ExtractedText, &f.TextLength, &f.PageCount,
		&f.ProcessingError, &f.Status, &f.SourceMeta, &f.IndexRef, &f.ProcessedAt,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *DatabaseClient) GetFileByID(ctx context.Context, id string) (*models.KnowledgeFile, error) {
	q := `SELECT ` + fileColumns + ` FROM knowledge_files WHERE id = $1`
	f, err := scanFile(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

func (c *DatabaseClient) FindFileByChecksum(ctx context.Context, accountID, checksum string) (*models.KnowledgeFile, error) {
	q := `
		SELECT ` + fileColumns + `
		FROM knowledge_files
		WHERE account_id = $1 AND checksum = $2 AND status <> 'DELETED'
	`
	f, err := scanFile(c.db.QueryRowContext(ctx, q, accountID, checksum))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

func (c *DatabaseClient) ListFilesByAccount(ctx context.Context, accountID string) ([]models.KnowledgeFile, error) {
	q := `
		SELECT ` + fileColumns + `
		FROM knowledge_files
		WHERE account_id = $1 AND status <> 'DELETED'
		ORDER BY created_at DESC
	`
	return c.listFiles(ctx, q, accountID)
}

func (c *DatabaseClient) ListFilesBySession(ctx context.Context, sessionID string) ([]models.KnowledgeFile, error) {
	q := `
		SELECT ` + fileColumns + `
		FROM knowledge_files
		WHERE session_id = $1
		ORDER BY created_at ASC
	`
	return c.listFiles(ctx, q, sessionID)
}

func (c *DatabaseClient) listFiles(ctx context.Context, q string, arg any) ([]models.KnowledgeFile, error) {
	rows, err := c.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.KnowledgeFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// UpdateFileStatus moves PENDING -> PROCESSING. Terminal statuses are set via
// MarkFileProcessed / MarkFileError so the transition stays monotonic.
func (c *DatabaseClient) UpdateFileStatus(ctx context.Context, id string, status string) error {
	const q = `
		UPDATE knowledge_files
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = 'PENDING'
	`
	res, err := c.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("knowledge file not in PENDING state: %s", id)
	}
	return nil
}

func (c *DatabaseClient) MarkFileProcessed(ctx context.Context, id string, text string, pageCount int) error {
	const q = `
		UPDATE knowledge_files
		SET status = 'PROCESSED', extracted_text = $2, text_length = $3,
		    page_count = $4, processing_error = NULL, processed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'PROCESSING'
	`
	res, err := c.db.ExecContext(ctx, q, id, text, len(text), pageCount)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("knowledge file not in PROCESSING state: %s", id)
	}
	return nil
}

func (c *DatabaseClient) MarkFileError(ctx context.Context, id string, processingError string) error {
	const q = `
		UPDATE knowledge_files
		SET status = 'ERROR', processing_error = $2, processed_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')
	`
	res, err := c.db.ExecContext(ctx, q, id, processingError)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("knowledge file already terminal: %s", id)
	}
	return nil
}

func (c *DatabaseClient) SetFileIndexRef(ctx context.Context, id string, ref string) error {
	const q = `
		UPDATE knowledge_files
		SET index_ref = $2, updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, ref)
	return err
}

func (c *DatabaseClient) SoftDeleteFile(ctx context.Context, id string) error {
	const q = `
		UPDATE knowledge_files
		SET status = 'DELETED', updated_at = now()
		WHERE id = $1 AND status IN ('PROCESSED', 'ERROR')
	`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("knowledge file not deletable: %s", id)
	}
	return nil
}

// Processing sessions

func (c *DatabaseClient) CreateSession(ctx context.Context, session *models.ProcessingSession) error {
	if session == nil {
		return errors.New("nil session")
	}
	const q = `
		INSERT INTO processing_sessions
			(id, account_id, total_files, processed_files, error_files, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		session.ID, session.AccountID, session.TotalFiles, session.ProcessedFiles,
		session.ErrorFiles, session.Status, session.CreatedAt)
	return err
}

func (c *DatabaseClient) GetSessionByID(ctx context.Context, id string) (*models.ProcessingSession, error) {
	const q = `
		SELECT id, account_id, total_files, processed_files, error_files,
		       status, started_at, completed_at, created_at
		FROM processing_sessions WHERE id = $1
	`
	var s models.ProcessingSession
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.AccountID, &s.TotalFiles, &s.ProcessedFiles, &s.ErrorFiles,
		&s.Status, &s.StartedAt, &s.CompletedAt, &s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *DatabaseClient) StartSession(ctx context.Context, id string, totalFiles int) error {
	const q = `
		UPDATE processing_sessions
		SET status = 'PROCESSING', total_files = $2, started_at = now()
		WHERE id = $1 AND status = 'PENDING'
	`
	res, err := c.db.ExecContext(ctx, q, id, totalFiles)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not in PENDING state: %s", id)
	}
	return nil
}

// Counter updates are atomic in-database increments so concurrent workers of
// one batch never lose updates.

func (c *DatabaseClient) IncrementSessionProcessed(ctx context.Context, id string) error {
	const q = `
		UPDATE processing_sessions
		SET processed_files = processed_files + 1
		WHERE id = $1 AND completed_at IS NULL
	`
	_, err := c.db.ExecContext(ctx, q, id)
	return err
}

func (c *DatabaseClient) IncrementSessionError(ctx context.Context, id string) error {
	const q = `
		UPDATE processing_sessions
		SET error_files = error_files + 1
		WHERE id = $1 AND completed_at IS NULL
	`
	_, err := c.db.ExecContext(ctx, q, id)
	return err
}

// CompleteSession freezes the counters. A session already terminal is left
// untouched, so calling this twice is harmless.
func (c *DatabaseClient) CompleteSession(ctx context.Context, id string, status string) error {
	const q = `
		UPDATE processing_sessions
		SET status = $2, completed_at = now()
		WHERE id = $1 AND status = 'PROCESSING'
	`
	_, err := c.db.ExecContext(ctx, q, id, status)
	return err
}

// Knowledge chunks

// InsertKnowledgeChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertKnowledgeChunks(ctx context.Context, chunks []models.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO knowledge_chunks
			(id, account_id, file_id, position, text, embedding, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)

		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.AccountID, ch.FileID, ch.Position, ch.Text, vec, ch.TokenCount, ch.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) DeleteChunksByFile(ctx context.Context, fileID string) error {
	const q = `DELETE FROM knowledge_chunks WHERE file_id = $1`
	_, err := c.db.ExecContext(ctx, q, fileID)
	return err
}
