package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lexium-ai/lexium/internal/core"
	"github.com/lexium-ai/lexium/internal/logger"
	"github.com/lexium-ai/lexium/internal/models"
)

// Config tunes chunking and embedding for index publication.
//
// TargetTokens: approximate tokens per chunk.
// BatchSize:    chunks embedded/written per request.
// EmbedDim:     embedding dimension (0 = model default).
type Config struct {
	TargetTokens int
	BatchSize    int
	EmbedDim     int
}

// Publisher pushes extracted text into the retrieval index: it chunks the
// text, embeds the chunks and persists them with their vectors. Ingestion's
// job ends once text is extracted and durably stored; publication failures
// are the caller's to log and retry.
type Publisher struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
	cfg      Config
	log      *logger.Logger
}

func NewPublisher(db core.DbClient, embedder core.EmbeddingProvider, cfg Config, log *logger.Logger) *Publisher {
	if cfg.TargetTokens <= 0 {
		cfg.TargetTokens = 400
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	return &Publisher{db: db, embedder: embedder, cfg: cfg, log: log.With("component", "index")}
}

// Publish indexes the extracted text of one processed file and returns an
// opaque reference for the retrieval layer. Re-publishing replaces the file's
// previous chunks.
func (p *Publisher) Publish(ctx context.Context, accountID, fileID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("nothing to publish for file %s", fileID)
	}

	if err := p.db.DeleteChunksByFile(ctx, fileID); err != nil {
		return "", fmt.Errorf("clear previous chunks: %w", err)
	}

	pieces := chunkText(text, p.cfg.TargetTokens)

	// Embed and persist batch by batch; batches are independent, so a small
	// errgroup fan-out keeps the embedder busy without unbounded concurrency.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)

	for start := 0; start < len(pieces); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch := pieces[start:end]
		offset := start

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i := range batch {
				texts[i] = batch[i]
			}

			vecs, err := p.embedder.EmbedTexts(gctx, texts, p.cfg.EmbedDim)
			if err != nil {
				return fmt.Errorf("embed: %w", err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(batch))
			}

			rows := make([]models.KnowledgeChunk, len(batch))
			for i := range batch {
				rows[i] = models.KnowledgeChunk{
					ID:         uuid.NewString(),
					AccountID:  accountID,
					FileID:     fileID,
					Position:   offset + i,
					Text:       batch[i],
					Embedding:  vecs[i],
					TokenCount: approxTokens(batch[i]),
					CreatedAt:  time.Now(),
				}
			}
			if err := p.db.InsertKnowledgeChunks(gctx, rows); err != nil {
				return fmt.Errorf("insert chunks: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	ref := fmt.Sprintf("pgvector:%s:%s", accountID, fileID)
	p.log.Info("published file to index", "file_id", fileID, "chunks", len(pieces))
	return ref, nil
}

// chunkText splits text on paragraph boundaries into pieces of roughly
// targetTokens each. Oversized paragraphs are split hard.
func chunkText(text string, targetTokens int) []string {
	paragraphs := strings.Split(text, "\n\n")

	var out []string
	var buf []string
	tokSum := 0

	flush := func() {
		if len(buf) == 0 {
			return
		}
		out = append(out, strings.Join(buf, "\n\n"))
		buf = buf[:0]
		tokSum = 0
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		t := approxTokens(para)
		if t > targetTokens*2 {
			flush()
			for _, piece := range splitHard(para, targetTokens*4) {
				out = append(out, piece)
			}
			continue
		}
		if tokSum+t > targetTokens {
			flush()
		}
		buf = append(buf, para)
		tokSum += t
	}
	flush()
	return out
}

// splitHard cuts a long run of text into maxChars-sized pieces.
func splitHard(s string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = 2000
	}
	var out []string
	for len(s) > maxChars {
		out = append(out, s[:maxChars])
		s = s[maxChars:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// approxTokens estimates token count; ~4 characters per token is close
// enough for batching math.
func approxTokens(s string) int {
	n := (len(s) + 3) / 4
	if n == 0 {
		n = 1
	}
	return n
}
