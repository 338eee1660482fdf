package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexium-ai/lexium/internal/models"
)

func TestChecksum(t *testing.T) {
	store := NewChecksumStore(newMemDB())

	t.Run("deterministic", func(t *testing.T) {
		a := store.Checksum([]byte("same bytes"))
		b := store.Checksum([]byte("same bytes"))
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("content sensitive", func(t *testing.T) {
		assert.NotEqual(t, store.Checksum([]byte("a")), store.Checksum([]byte("b")))
	})

	t.Run("known vector", func(t *testing.T) {
		// sha256 of the empty input.
		assert.Equal(t,
			"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			store.Checksum(nil))
	})
}

func TestFindDuplicate(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	store := NewChecksumStore(db)

	digest := store.Checksum([]byte("content"))

	t.Run("nothing stored yet", func(t *testing.T) {
		dup, err := store.FindDuplicate(ctx, "acct-1", digest)
		require.NoError(t, err)
		assert.Nil(t, dup)
	})

	require.NoError(t, db.CreateKnowledgeFile(ctx, &models.KnowledgeFile{
		ID:        "file-1",
		AccountID: "acct-1",
		Checksum:  digest,
		Status:    models.FileStatusProcessed,
	}))

	t.Run("finds live file in same account", func(t *testing.T) {
		dup, err := store.FindDuplicate(ctx, "acct-1", digest)
		require.NoError(t, err)
		require.NotNil(t, dup)
		assert.Equal(t, "file-1", dup.ID)
	})

	t.Run("scoped per account", func(t *testing.T) {
		dup, err := store.FindDuplicate(ctx, "acct-2", digest)
		require.NoError(t, err)
		assert.Nil(t, dup)
	})

	t.Run("deleted files are invisible", func(t *testing.T) {
		db.mu.Lock()
		db.files["file-1"].Status = models.FileStatusDeleted
		db.mu.Unlock()

		dup, err := store.FindDuplicate(ctx, "acct-1", digest)
		require.NoError(t, err)
		assert.Nil(t, dup)
	})
}
