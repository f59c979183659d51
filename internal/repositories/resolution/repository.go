package resolution

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/dedupe"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "duplicate_resolutions"

// Repository stores operator resolutions in Postgres
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new resolution repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get returns the resolution for key, or nil when the pair is unresolved
func (r *Repository) Get(ctx context.Context, key models.PairKey) (*models.Resolution, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Repository.Get")
	defer span.End()

	key = models.NewPairKey(key.IDLow, key.IDHigh)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id_low", "id_high", "kind", "created_at", "updated_at")
	sb.From(table)
	sb.Where(sb.Equal("id_low", key.IDLow), sb.Equal("id_high", key.IDHigh))

	query, args := sb.Build()
	var res models.Resolution
	if err := r.db.Querier(ctx).GetContext(ctx, &res, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"pair": key.String()}).Error("Failed to get resolution")
		return nil, dedupe.Storage("failed to get resolution")
	}
	return &res, nil
}

// Create records a resolution. A pair can only be resolved once.
func (r *Repository) Create(ctx context.Context, resolution models.Resolution) error {
	ctx, span := tracing.StartSpan(ctx, "resolution.Repository.Create")
	defer span.End()

	key := models.NewPairKey(resolution.IDLow, resolution.IDHigh)
	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"pair": key.String(),
		"kind": resolution.Kind,
	})

	now := time.Now().UTC()
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("id_low", "id_high", "kind", "created_at", "updated_at")
	ib.Values(key.IDLow, key.IDHigh, string(resolution.Kind), now, now)

	query, args := ib.Build()
	if _, err := r.db.Querier(ctx).ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			log.Warn("Pair already resolved")
			return dedupe.Conflict("pair %s is already resolved", key.String())
		}
		log.WithError(err).Error("Failed to create resolution")
		return dedupe.Storage("failed to create resolution")
	}

	log.Debug("Created resolution")
	return nil
}

// ResolvedKeys returns every resolved pair with its decision
func (r *Repository) ResolvedKeys(ctx context.Context) (map[models.PairKey]models.ResolutionKind, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Repository.ResolvedKeys")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id_low", "id_high", "kind", "created_at", "updated_at")
	sb.From(table)

	query, args := sb.Build()
	var rows []models.Resolution
	if err := r.db.Querier(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list resolutions")
		return nil, dedupe.Storage("failed to list resolutions")
	}

	out := make(map[models.PairKey]models.ResolutionKind, len(rows))
	for _, res := range rows {
		out[res.Key()] = res.Kind
	}
	return out, nil
}
