// Package duplicates serves the read side of the duplicate index
package duplicates

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/dedupe"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Service lists active duplicate pairs together with both participants
type Service struct {
	logger       ectologger.Logger
	index        dedupe.DuplicateIndex
	participants dedupe.ParticipantStore
}

// NewService creates a new duplicates service
func NewService(logger ectologger.Logger, index dedupe.DuplicateIndex, participants dedupe.ParticipantStore) *Service {
	return &Service{
		logger:       logger,
		index:        index,
		participants: participants,
	}
}

// Normalize applies the default limit and rejects out of range values
func Normalize(page models.Pagination) (models.Pagination, error) {
	fields := map[string]string{}
	if page.Offset < 0 {
		fields["offset"] = "must be at least 0"
	}
	if page.Limit < 0 || page.Limit > MaxLimit {
		fields["limit"] = "must be between 0 and 500"
	}
	if len(fields) > 0 {
		return page, dedupe.Validation("invalid pagination", fields)
	}
	if page.Limit == 0 {
		page.Limit = DefaultLimit
	}
	return page, nil
}

// ListActive returns a page of unresolved pairs ordered by score descending
func (s *Service) ListActive(ctx context.Context, page models.Pagination) (*models.DuplicatePairPage, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicates.Service.ListActive")
	defer span.End()

	page, err := Normalize(page)
	if err != nil {
		return nil, err
	}

	pairs, err := s.index.ListActive(ctx, page)
	if err != nil {
		return nil, err
	}
	total, err := s.index.CountActive(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(pairs)*2)
	seen := make(map[string]bool, len(pairs)*2)
	for _, p := range pairs {
		for _, id := range []string{p.IDLow, p.IDHigh} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	snapshots, err := s.participants.GetSnapshots(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.ParticipantSnapshot, len(snapshots))
	for i := range snapshots {
		byID[snapshots[i].ID] = &snapshots[i]
	}

	items := make([]models.DuplicatePairView, 0, len(pairs))
	for _, p := range pairs {
		items = append(items, models.DuplicatePairView{DuplicatePair: p, Low: byID[p.IDLow], High: byID[p.IDHigh]})
	}

	return &models.DuplicatePairPage{
		Items:      items,
		TotalCount: total,
		Offset:     page.Offset,
		Limit:      page.Limit,
	}, nil
}

// Count returns the number of unresolved pairs
func (s *Service) Count(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicates.Service.Count")
	defer span.End()

	return s.index.CountActive(ctx)
}
