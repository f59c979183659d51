package participant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/dedupe"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "participants"

var selectColumns = []string{
	"id",
	"first_name",
	"middle_name",
	"last_name",
	"COALESCE(to_char(date_of_birth, 'YYYY-MM-DD'), '') AS date_of_birth",
	"address",
	"identification_numbers",
	"contacts",
	"nationalities",
	"languages",
	"created_at",
	"updated_at",
}

type row struct {
	ID                    string         `db:"id"`
	FirstName             string         `db:"first_name"`
	MiddleName            string         `db:"middle_name"`
	LastName              string         `db:"last_name"`
	DateOfBirth           string         `db:"date_of_birth"`
	Address               string         `db:"address"`
	IdentificationNumbers pq.StringArray `db:"identification_numbers"`
	Contacts              pq.StringArray `db:"contacts"`
	Nationalities         pq.StringArray `db:"nationalities"`
	Languages             pq.StringArray `db:"languages"`
	CreatedAt             time.Time      `db:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at"`
}

func (r row) snapshot() models.ParticipantSnapshot {
	return models.ParticipantSnapshot{
		ID:                    r.ID,
		FirstName:             r.FirstName,
		MiddleName:            r.MiddleName,
		LastName:              r.LastName,
		DateOfBirth:           r.DateOfBirth,
		Address:               r.Address,
		IdentificationNumbers: []string(r.IdentificationNumbers),
		Contacts:              []string(r.Contacts),
		Nationalities:         []string(r.Nationalities),
		Languages:             []string(r.Languages),
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

// Repository is the Postgres participant store
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new participant repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a participant
func (r *Repository) Create(ctx context.Context, p models.ParticipantSnapshot) (*models.ParticipantSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols("id", "first_name", "middle_name", "last_name", "date_of_birth", "address",
		"identification_numbers", "contacts", "nationalities", "languages", "created_at", "updated_at")
	sb.Values(p.ID, p.FirstName, p.MiddleName, p.LastName, nullableDate(p.DateOfBirth), p.Address,
		stringArray(p.IdentificationNumbers), stringArray(p.Contacts), stringArray(p.Nationalities), stringArray(p.Languages), now, now)

	query, args := sb.Build()
	if _, err := r.db.Querier(ctx).ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, dedupe.Conflict("participant %s already exists", p.ID)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create participant")
		return nil, dedupe.Storage("failed to create participant")
	}

	return r.GetSnapshot(ctx, p.ID)
}

// GetSnapshot retrieves a participant by id
func (r *Repository) GetSnapshot(ctx context.Context, id string) (*models.ParticipantSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.GetSnapshot")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(selectColumns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var out row
	if err := r.db.Querier(ctx).GetContext(ctx, &out, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dedupe.NotFound("participant %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"participant_id": id}).Error("Failed to get participant")
		return nil, dedupe.Storage("failed to get participant")
	}

	snapshot := out.snapshot()
	return &snapshot, nil
}

// GetSnapshots retrieves the participants that exist among ids, ordered by id
func (r *Repository) GetSnapshots(ctx context.Context, ids []string) ([]models.ParticipantSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.GetSnapshots")
	defer span.End()

	if len(ids) == 0 {
		return []models.ParticipantSnapshot{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(selectColumns...)
	sb.From(table)
	sb.Where(fmt.Sprintf("id = ANY(%s)", sb.Var(pq.Array(ids))))
	sb.OrderBy("id")

	query, args := sb.Build()
	var rows []row
	if err := r.db.Querier(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(ids)}).Error("Failed to get participants")
		return nil, dedupe.Storage("failed to get participants")
	}

	out := make([]models.ParticipantSnapshot, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.snapshot())
	}
	return out, nil
}

// ListIdentifiers returns every participant id in ascending order
func (r *Repository) ListIdentifiers(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.ListIdentifiers")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id")
	sb.From(table)
	sb.OrderBy("id")

	query, args := sb.Build()
	var ids []string
	if err := r.db.Querier(ctx).SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list participant identifiers")
		return nil, dedupe.Storage("failed to list participant identifiers")
	}
	return ids, nil
}

// ApplyMerge overwrites the survivor with the resolved fields and deletes the superseded
// participant; owned records cascade. Both rows are locked in id order first so
// overlapping merges serialize. Runs in the transaction carried by ctx, or its own.
func (r *Repository) ApplyMerge(ctx context.Context, survivorID string, fields models.ResolvedFields, supersededID string) (*models.ParticipantSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.ApplyMerge")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"survivor_id":   survivorID,
		"superseded_id": supersededID,
	})

	var merged *models.ParticipantSnapshot
	err := r.db.WithinTx(ctx, func(ctx context.Context) error {
		q := r.db.Querier(ctx)

		if err := r.lock(ctx, q, survivorID, supersededID); err != nil {
			return err
		}

		ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		ub.Update(table)
		ub.Set(
			ub.Assign("first_name", fields.FirstName),
			ub.Assign("middle_name", fields.MiddleName),
			ub.Assign("last_name", fields.LastName),
			ub.Assign("date_of_birth", nullableDate(fields.DateOfBirth)),
			ub.Assign("address", fields.Address),
			ub.Assign("identification_numbers", stringArray(fields.IdentificationNumbers)),
			ub.Assign("contacts", stringArray(fields.Contacts)),
			ub.Assign("nationalities", stringArray(fields.Nationalities)),
			ub.Assign("languages", stringArray(fields.Languages)),
			ub.Assign("updated_at", time.Now().UTC()),
		)
		ub.Where(ub.Equal("id", survivorID))

		query, args := ub.Build()
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			log.WithError(err).Error("Failed to update merge survivor")
			return dedupe.Storage("failed to update merge survivor")
		}

		del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
		del.DeleteFrom(table)
		del.Where(del.Equal("id", supersededID))

		query, args = del.Build()
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			log.WithError(err).Error("Failed to delete superseded participant")
			return dedupe.Storage("failed to delete superseded participant")
		}

		snapshot, err := r.GetSnapshot(ctx, survivorID)
		if err != nil {
			return err
		}
		merged = snapshot
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("Applied participant merge")
	return merged, nil
}

func (r *Repository) lock(ctx context.Context, q database.Querier, ids ...string) error {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id")
	sb.From(table)
	sb.Where(fmt.Sprintf("id = ANY(%s)", sb.Var(pq.Array(ids))))
	sb.OrderBy("id")
	sb.ForUpdate()

	query, args := sb.Build()
	var locked []string
	if err := q.SelectContext(ctx, &locked, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to lock participants")
		return dedupe.Storage("failed to lock participants")
	}

	found := make(map[string]struct{}, len(locked))
	for _, id := range locked {
		found[id] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return dedupe.NotFound("participant %s not found", strings.Join(missing, ", "))
	}
	return nil
}

func nullableDate(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func stringArray(values []string) any {
	if values == nil {
		values = []string{}
	}
	return pq.Array(values)
}
