package batchrun

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/dedupe"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "duplicate_batch_runs"

var columns = []string{
	"id",
	"mode",
	"fingerprint",
	"watermark",
	"started_at",
	"finished_at",
	"participants",
	"pairs_scored",
	"pairs_upserted",
	"pairs_removed",
	"pairs_skipped",
}

// Repository keeps the batch comparator run history
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new batch run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Latest returns the most recently finished run, or nil
func (r *Repository) Latest(ctx context.Context) (*models.BatchRun, error) {
	ctx, span := tracing.StartSpan(ctx, "batchrun.Repository.Latest")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.OrderBy("finished_at DESC", "id")
	sb.Limit(1)

	query, args := sb.Build()
	var run models.BatchRun
	if err := r.db.Querier(ctx).GetContext(ctx, &run, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get latest batch run")
		return nil, dedupe.Storage("failed to get latest batch run")
	}
	return &run, nil
}

// Save records a finished run
func (r *Repository) Save(ctx context.Context, run models.BatchRun) error {
	ctx, span := tracing.StartSpan(ctx, "batchrun.Repository.Save")
	defer span.End()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(
		run.ID,
		string(run.Mode),
		run.Fingerprint,
		run.Watermark,
		run.StartedAt,
		run.FinishedAt,
		run.Participants,
		run.PairsScored,
		run.PairsUpserted,
		run.PairsRemoved,
		run.PairsSkipped,
	)

	query, args := ib.Build()
	if _, err := r.db.Querier(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": run.ID}).Error("Failed to save batch run")
		return dedupe.Storage("failed to save batch run")
	}
	return nil
}
