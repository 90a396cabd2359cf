package ledger

import (
	"context"

	"github.com/jkivela/packwatch/internal/errors"
)

// Version is the opaque concurrency token a store hands out with each load.
// An empty version means the backing document does not exist yet.
type Version string

// ErrVersionConflict is returned by Save when the document changed since the
// version the caller loaded. Callers reload, reapply and retry.
var ErrVersionConflict = errors.NewStd("ledger version conflict")

// Store is the persistence contract for the ledger document. Save is
// conditional on the version last loaded, giving the read-apply-write loop
// optimistic concurrency across concurrent writers.
type Store interface {
	Load(ctx context.Context) (Document, Version, error)
	Save(ctx context.Context, doc Document, expected Version) (Version, error)
}
