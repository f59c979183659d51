// Package checker scores a participant snapshot against the participant store without
// writing anything
package checker

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/dedupe"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Checker finds existing participants that look like a given snapshot
type Checker struct {
	logger       ectologger.Logger
	engine       *matching.Engine
	participants dedupe.ParticipantStore
	resolutions  dedupe.ResolutionStore
	pageSize     int
}

// NewChecker creates a new duplicate checker
func NewChecker(logger ectologger.Logger, engine *matching.Engine, participants dedupe.ParticipantStore, resolutions dedupe.ResolutionStore, pageSize int) *Checker {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Checker{
		logger:       logger,
		engine:       engine,
		participants: participants,
		resolutions:  resolutions,
		pageSize:     pageSize,
	}
}

// Check returns every stored participant scoring at or above the configured minimum
// against partial, by score descending then id. The participant itself and pairs that
// already carry a resolution are left out.
func (c *Checker) Check(ctx context.Context, partial models.ParticipantSnapshot) ([]models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "checker.Checker.Check")
	defer span.End()

	start := time.Now()
	candidates, err := c.check(ctx, partial)
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.RecordCheck(status, time.Since(start).Seconds())
	return candidates, err
}

func (c *Checker) check(ctx context.Context, partial models.ParticipantSnapshot) ([]models.Candidate, error) {
	persisted := strings.TrimSpace(partial.ID) != ""
	if !persisted {
		partial.ID = "transient-" + uuid.NewString()
	}

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"participant_id": partial.ID,
		"persisted":      persisted,
	})

	if err := matching.Validate(partial); err != nil {
		if errors.Is(err, matching.ErrMalformedSnapshot) {
			return nil, dedupe.Validation("invalid participant snapshot", map[string]string{
				string(models.FieldDateOfBirth): "must be a date in YYYY-MM-DD form",
			})
		}
		return nil, err
	}

	var resolved map[models.PairKey]models.ResolutionKind
	if persisted {
		var err error
		resolved, err = c.resolutions.ResolvedKeys(ctx)
		if err != nil {
			return nil, err
		}
	}

	ids, err := c.participants.ListIdentifiers(ctx)
	if err != nil {
		return nil, err
	}

	subject := normalizers.NormalizeParticipant(partial)
	minScore := c.engine.Config().MinScore
	candidates := []models.Candidate{}

	for offset := 0; offset < len(ids); offset += c.pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(offset+c.pageSize, len(ids))

		snapshots, err := c.participants.GetSnapshots(ctx, ids[offset:end])
		if err != nil {
			return nil, err
		}

		for _, other := range snapshots {
			if other.ID == partial.ID {
				continue
			}
			if _, ok := resolved[models.NewPairKey(partial.ID, other.ID)]; ok {
				continue
			}
			if err := matching.Validate(other); err != nil {
				log.WithError(err).WithField("other_id", other.ID).Warn("Skipping malformed participant snapshot")
				continue
			}

			result, err := c.engine.ScoreNormalized(subject, normalizers.NormalizeParticipant(other))
			if err != nil {
				log.WithError(err).WithField("other_id", other.ID).Warn("Skipping pair that failed to score")
				continue
			}
			if !result.Matches(minScore) {
				continue
			}
			candidates = append(candidates, models.Candidate{
				ParticipantID: other.ID,
				WeightedScore: result.WeightedScore,
				FieldScores:   result.FieldScores,
				Breakdown:     result.Breakdown,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].WeightedScore != candidates[j].WeightedScore {
			return candidates[i].WeightedScore > candidates[j].WeightedScore
		}
		return candidates[i].ParticipantID < candidates[j].ParticipantID
	})

	log.WithField("candidates", len(candidates)).Debug("Duplicate check completed")
	return candidates, nil
}
