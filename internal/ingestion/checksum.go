package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/lexium-ai/lexium/internal/core"
	"github.com/lexium-ai/lexium/internal/models"
)

// ChecksumStore computes content hashes and performs dedup lookups. The
// digest is the dedup key, so a cryptographic hash is required; speed is
// secondary.
type ChecksumStore struct {
	db core.DbClient
}

func NewChecksumStore(db core.DbClient) *ChecksumStore {
	return &ChecksumStore{db: db}
}

// Checksum returns the hex sha256 of the raw bytes. It is computed once,
// before any extraction attempt, and never recomputed.
func (s *ChecksumStore) Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FindDuplicate returns the existing non-DELETED file with the same digest
// for this account, or nil. Pure lookup, no side effects.
func (s *ChecksumStore) FindDuplicate(ctx context.Context, accountID, digest string) (*models.KnowledgeFile, error) {
	return s.db.FindFileByChecksum(ctx, accountID, digest)
}
