package db

import (
	"github.com/lexium-ai/lexium/internal/core"
)

// DbClient is re-exported so callers wiring the app can depend on the db
// package alone.
type DbClient = core.DbClient
