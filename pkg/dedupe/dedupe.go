// Package dedupe defines the storage ports the deduplication components depend on
package dedupe

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ParticipantStore is the participant store the deduplication core reads from and merges into
type ParticipantStore interface {
	// GetSnapshot returns a NotFound error when the participant does not exist
	GetSnapshot(ctx context.Context, id string) (*models.ParticipantSnapshot, error)
	// GetSnapshots returns the snapshots that exist among ids, in id order
	GetSnapshots(ctx context.Context, ids []string) ([]models.ParticipantSnapshot, error)
	ListIdentifiers(ctx context.Context) ([]string, error)
	// ApplyMerge overwrites the survivor with fields and deletes the superseded participant
	// together with the records it owns. It must run inside the caller's transaction.
	ApplyMerge(ctx context.Context, survivorID string, fields models.ResolvedFields, supersededID string) (*models.ParticipantSnapshot, error)
}

// DuplicateIndex is the persisted table of scored candidate pairs
type DuplicateIndex interface {
	// Upsert writes the row for the pair's canonical key. A row whose scores are unchanged
	// is left untouched.
	Upsert(ctx context.Context, pair models.DuplicatePair) error
	// Get returns nil when no row exists for key
	Get(ctx context.Context, key models.PairKey) (*models.DuplicatePair, error)
	// ListActive lists rows without a resolution, by score descending then key
	ListActive(ctx context.Context, page models.Pagination) ([]models.DuplicatePair, error)
	CountActive(ctx context.Context) (int, error)
	Remove(ctx context.Context, key models.PairKey) error
	RemoveAllReferencing(ctx context.Context, id string) (int, error)
	ListKeys(ctx context.Context) ([]models.PairKey, error)
}

// ResolutionStore records operator decisions. Resolutions are never updated or deleted.
type ResolutionStore interface {
	// Get returns nil when the pair is unresolved
	Get(ctx context.Context, key models.PairKey) (*models.Resolution, error)
	// Create returns a Conflict error when the pair already has a resolution
	Create(ctx context.Context, resolution models.Resolution) error
	ResolvedKeys(ctx context.Context) (map[models.PairKey]models.ResolutionKind, error)
}

// RunStore keeps the history of successful batch comparator runs
type RunStore interface {
	// Latest returns nil when no run has completed yet
	Latest(ctx context.Context) (*models.BatchRun, error)
	Save(ctx context.Context, run models.BatchRun) error
}

// Transactor runs fn inside a single transaction carried by the context passed to fn.
// Every store call made with that context joins the transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker guards work that must not run concurrently across instances. The context
// passed to fn is cancelled if the lock is lost before fn returns.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}
