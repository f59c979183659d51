package duplicatepair

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

const (
	table             = "duplicate_pairs"
	resolutionsTable  = "duplicate_resolutions"
	participantsTable = "participants"
)

type row struct {
	IDLow         string                                       `db:"id_low"`
	IDHigh        string                                       `db:"id_high"`
	WeightedScore float64                                      `db:"weighted_score"`
	FieldScores   database.JSONB[map[models.FieldName]float64] `db:"field_scores"`
	CreatedAt     time.Time                                    `db:"created_at"`
	UpdatedAt     time.Time                                    `db:"updated_at"`
}

func (r row) pair() models.DuplicatePair {
	return models.DuplicatePair{
		IDLow:         r.IDLow,
		IDHigh:        r.IDHigh,
		WeightedScore: r.WeightedScore,
		FieldScores:   r.FieldScores.Data,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// Repository is the Postgres duplicate index
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new duplicate pair repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert writes the row for the canonical pair. Rows with unchanged scores keep their
// timestamps so repeated batch runs leave the index byte-identical.
func (r *Repository) Upsert(ctx context.Context, pair models.DuplicatePair) error {
	ctx, span := tracing.StartSpan(ctx, "duplicatepair.Repository.Upsert")
	defer span.End()

	key := models.NewPairKey(pair.IDLow, pair.IDHigh)
	now := time.Now().UTC()

	scores := pair.FieldScores
	if scores == nil {
		scores = map[models.FieldName]float64{}
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("id_low", "id_high", "weighted_score", "field_scores", "created_at", "updated_at")
	ib.Values(key.IDLow, key.IDHigh, pair.WeightedScore, database.NewJSONB(scores), now, now)

	query, args := ib.Build()
	query = database.OnConflictDoUpdate(query, table,
		[]string{"id_low", "id_high"},
		[]string{"weighted_score", "field_scores", "updated_at"},
		[]string{"weighted_score", "field_scores"},
	)

	if _, err := r.db.Querier(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"pair": key.String()}).Error("Failed to upsert duplicate pair")
		return dedupe.Storage("failed to upsert duplicate pair")
	}
	return nil
}

// Get returns the row for key, or nil when there is none
func (r *Repository) Get(ctx context.Context, key models.PairKey) (*models.DuplicatePair, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatepair.Repository.Get")
	defer span.End()

	key = models.NewPairKey(key.IDLow, key.IDHigh)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id_low", "id_high", "weighted_score", "field_scores", "created_at", "updated_at")
	sb.From(table)
	sb.Where(sb.Equal("id_low", key.IDLow), sb.Equal("id_high", key.IDHigh))

	query, args := sb.Build()
	var out row
	if err := r.db.Querier(ctx).GetContext(ctx, &out, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get duplicate pair")
		return nil, dedupe.Storage("failed to get duplicate pair")
	}

	pair := out.pair()
	return &pair, nil
}

// activeFilter keeps pairs that carry no resolution and whose participants both still exist
func activeFilter(sb *sqlbuilder.SelectBuilder) []string {
	resolved := sqlbuilder.PostgreSQL.NewSelectBuilder()
	resolved.Select("1")
	resolved.From(resolutionsTable + " r")
	resolved.Where("r.id_low = d.id_low", "r.id_high = d.id_high")

	return []string{
		database.NotExists(sb, resolved),
		database.Exists(sb, participantExists("d.id_low")),
		database.Exists(sb, participantExists("d.id_high")),
	}
}

func participantExists(column string) *sqlbuilder.SelectBuilder {
	sub := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sub.Select("1")
	sub.From(participantsTable + " p")
	sub.Where("p.id = " + column)
	return sub
}

// ListActive lists unresolved pairs by score descending, then canonical pair
func (r *Repository) ListActive(ctx context.Context, page models.Pagination) ([]models.DuplicatePair, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatepair.Repository.ListActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("d.id_low", "d.id_high", "d.weighted_score", "d.field_scores", "d.created_at", "d.updated_at")
	sb.From(table + " d")
	sb.Where(activeFilter(sb)...)
	sb.OrderBy("d.weighted_score DESC", "d.id_low", "d.id_high")
	if page.Limit > 0 {
		sb.Limit(page.Limit)
	}
	if page.Offset > 0 {
		sb.Offset(page.Offset)
	}

	query, args := sb.Build()
	var rows []row
	if err := r.db.Querier(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list active duplicate pairs")
		return nil, dedupe.Storage("failed to list duplicate pairs")
	}

	out := make([]models.DuplicatePair, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.pair())
	}
	return out, nil
}

// CountActive counts unresolved pairs
func (r *Repository) CountActive(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatepair.Repository.CountActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(table + " d")
	sb.Where(activeFilter(sb)...)

	query, args := sb.Build()
	var count int
	if err := r.db.Querier(ctx).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count active duplicate pairs")
		return 0, dedupe.Storage("failed to count duplicate pairs")
	}
	return count, nil
}

// Remove deletes the row for key
func (r *Repository) Remove(ctx context.Context, key models.PairKey) error {
	ctx, span := tracing.StartSpan(ctx, "duplicatepair.Repository.Remove")
	defer span.End()

	key = models.NewPairKey(key.IDLow, key.IDHigh)

	del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	del.DeleteFrom(table)
	del.Where(del.Equal("id_low", key.IDLow), del.Equal("id_high", key.IDHigh))

	query, args := del.Build()
	if _, err := r.db.Querier(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"pair": key.String()}).Error("Failed to remove duplicate pair")
		return dedupe.Storage("failed to remove duplicate pair")
	}
	return nil
}

// RemoveAllReferencing deletes every row naming id on either side
func (r *Repository) RemoveAllReferencing(ctx context.Context, id string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatepair.Repository.RemoveAllReferencing")
	defer span.End()

	del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	del.DeleteFrom(table)
	del.Where(del.Or(del.Equal("id_low", id), del.Equal("id_high", id)))

	query, args := del.Build()
	result, err := r.db.Querier(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"participant_id": id}).Error("Failed to remove duplicate pairs")
		return 0, dedupe.Storage("failed to remove duplicate pairs")
	}

	removed, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"participant_id": id}).Error("Failed to read removed duplicate pair count")
		return 0, dedupe.Storage("failed to remove duplicate pairs")
	}
	return int(removed), nil
}

// ListKeys returns every stored pair key in canonical order
func (r *Repository) ListKeys(ctx context.Context) ([]models.PairKey, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatepair.Repository.ListKeys")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id_low", "id_high")
	sb.From(table)
	sb.OrderBy("id_low", "id_high")

	query, args := sb.Build()
	var keys []models.PairKey
	if err := r.db.Querier(ctx).SelectContext(ctx, &keys, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list duplicate pair keys")
		return nil, dedupe.Storage("failed to list duplicate pair keys")
	}
	return keys, nil
}
