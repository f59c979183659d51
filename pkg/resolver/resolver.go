// Package resolver applies operator merge and ignore decisions to duplicate pairs
package resolver

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/dedupe"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// EventEmitter publishes resolution events after they commit
type EventEmitter interface {
	EmitParticipantMerged(ctx context.Context, survivor *models.ParticipantSnapshot, supersededID string) error
	EmitDuplicateIgnored(ctx context.Context, key models.PairKey) error
}

// Resolver moves a pair from unresolved to merged or ignored. Both outcomes are final.
type Resolver struct {
	logger       ectologger.Logger
	tx           dedupe.Transactor
	participants dedupe.ParticipantStore
	index        dedupe.DuplicateIndex
	resolutions  dedupe.ResolutionStore
	emitter      EventEmitter
}

// NewResolver creates a new resolver. emitter may be nil.
func NewResolver(
	logger ectologger.Logger,
	tx dedupe.Transactor,
	participants dedupe.ParticipantStore,
	index dedupe.DuplicateIndex,
	resolutions dedupe.ResolutionStore,
	emitter EventEmitter,
) *Resolver {
	return &Resolver{
		logger:       logger,
		tx:           tx,
		participants: participants,
		index:        index,
		resolutions:  resolutions,
		emitter:      emitter,
	}
}

func pairKey(idA, idB string) (models.PairKey, error) {
	idA, idB = strings.TrimSpace(idA), strings.TrimSpace(idB)
	fields := map[string]string{}
	if idA == "" {
		fields["participant_a_id"] = "is required"
	}
	if idB == "" {
		fields["participant_b_id"] = "is required"
	}
	if idA != "" && idA == idB {
		fields["participant_b_id"] = "must differ from participant_a_id"
	}
	if len(fields) > 0 {
		return models.PairKey{}, dedupe.Validation("invalid participant pair", fields)
	}
	return models.NewPairKey(idA, idB), nil
}

// Ignore records that two participants are not duplicates and drops their index row.
// Ignoring an ignored pair succeeds without changes; ignoring a merged pair is a conflict.
func (r *Resolver) Ignore(ctx context.Context, idA, idB string) error {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.Ignore")
	defer span.End()

	key, err := pairKey(idA, idB)
	if err != nil {
		metrics.RecordResolution(string(models.ResolutionIgnore), "invalid")
		return err
	}

	log := r.logger.WithContext(ctx).WithFields(map[string]any{"pair": key.String()})

	created := false
	err = r.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := r.resolutions.Get(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Kind == models.ResolutionIgnore {
				return nil
			}
			return dedupe.Conflict("pair %s is already merged", key.String())
		}

		if _, err := r.participants.GetSnapshot(ctx, key.IDLow); err != nil {
			return err
		}
		if _, err := r.participants.GetSnapshot(ctx, key.IDHigh); err != nil {
			return err
		}

		if err := r.resolutions.Create(ctx, models.Resolution{IDLow: key.IDLow, IDHigh: key.IDHigh, Kind: models.ResolutionIgnore}); err != nil {
			return err
		}
		if err := r.index.Remove(ctx, key); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		metrics.RecordResolution(string(models.ResolutionIgnore), status(err))
		log.WithError(err).Warn("Failed to ignore duplicate pair")
		return err
	}

	metrics.RecordResolution(string(models.ResolutionIgnore), "success")
	if !created {
		log.Debug("Pair already ignored")
		return nil
	}

	log.Info("Ignored duplicate pair")
	if r.emitter != nil {
		if err := r.emitter.EmitDuplicateIgnored(ctx, key); err != nil {
			log.WithError(err).Warn("Failed to emit duplicate ignored event")
		}
	}
	return nil
}

// Merge folds the higher id of the pair into the lower one. The survivor takes exactly
// the resolved fields; the superseded participant and all of its index rows are removed.
// Merging a merged pair returns the survivor without changes; merging an ignored pair is
// a conflict.
func (r *Resolver) Merge(ctx context.Context, idA, idB string, fields models.ResolvedFields) (*models.ParticipantSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.Merge")
	defer span.End()

	key, err := pairKey(idA, idB)
	if err != nil {
		metrics.RecordResolution(string(models.ResolutionMerge), "invalid")
		return nil, err
	}
	if err := dedupe.ValidateStruct("invalid resolved fields", fields); err != nil {
		metrics.RecordResolution(string(models.ResolutionMerge), "invalid")
		return nil, err
	}

	survivorID, supersededID := key.IDLow, key.IDHigh
	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"pair":          key.String(),
		"survivor_id":   survivorID,
		"superseded_id": supersededID,
	})

	var survivor *models.ParticipantSnapshot
	merged := false
	err = r.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := r.resolutions.Get(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Kind == models.ResolutionIgnore {
				return dedupe.Conflict("pair %s is already ignored", key.String())
			}
			survivor, err = r.participants.GetSnapshot(ctx, survivorID)
			return err
		}

		survivor, err = r.participants.ApplyMerge(ctx, survivorID, fields, supersededID)
		if err != nil {
			return err
		}
		if err := r.resolutions.Create(ctx, models.Resolution{IDLow: key.IDLow, IDHigh: key.IDHigh, Kind: models.ResolutionMerge}); err != nil {
			return err
		}

		removed, err := r.index.RemoveAllReferencing(ctx, supersededID)
		if err != nil {
			return err
		}
		if err := r.index.Remove(ctx, key); err != nil {
			return err
		}

		log.WithField("rows_removed", removed).Debug("Removed index rows of superseded participant")
		merged = true
		return nil
	})
	if err != nil {
		metrics.RecordResolution(string(models.ResolutionMerge), status(err))
		log.WithError(err).Warn("Failed to merge participants")
		return nil, err
	}

	metrics.RecordResolution(string(models.ResolutionMerge), "success")
	if !merged {
		log.Debug("Pair already merged")
		return survivor, nil
	}

	log.Info("Merged participants")
	if r.emitter != nil {
		if err := r.emitter.EmitParticipantMerged(ctx, survivor, supersededID); err != nil {
			log.WithError(err).Warn("Failed to emit participant merged event")
		}
	}
	return survivor, nil
}

func status(err error) string {
	switch {
	case dedupe.IsValidation(err):
		return "invalid"
	case dedupe.IsNotFound(err):
		return "not_found"
	case dedupe.IsConflict(err):
		return "conflict"
	}
	return "failure"
}
