package objectclient

import (
	"fmt"

	"github.com/lexium-ai/lexium/internal/core"
)

// ObjectClient is re-exported for callers wiring the app.
type ObjectClient = core.ObjectClient

// KnowledgeKey builds the account-namespaced object key for a raw upload.
// Keying by checksum keeps re-uploads of identical bytes at a single object.
func KnowledgeKey(accountID, checksum, fileName string) string {
	return fmt.Sprintf("accounts/%s/knowledge/%s/%s", accountID, checksum, fileName)
}
