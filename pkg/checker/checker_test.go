package checker

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/memstore"
	"github.com/Ramsey-B/fern/pkg/dedupe"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newChecker(t *testing.T, store *memstore.Store) *Checker {
	t.Helper()
	engine, err := matching.NewEngine(matching.DefaultConfig())
	require.NoError(t, err)
	return NewChecker(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), engine, store, store.Resolutions(), 2)
}

func seed(ctx context.Context, store *memstore.Store) {
	store.PutParticipant(ctx, models.ParticipantSnapshot{ID: "p1", FirstName: "Anna", LastName: "Smith", DateOfBirth: "1990-01-02"})
	store.PutParticipant(ctx, models.ParticipantSnapshot{ID: "p2", FirstName: "Anna", LastName: "Smith", DateOfBirth: "1990-01-02", Contacts: []string{"555-1234"}})
	store.PutParticipant(ctx, models.ParticipantSnapshot{ID: "p3", FirstName: "Bob", LastName: "Jones", DateOfBirth: "1970-05-05"})
	store.PutParticipant(ctx, models.ParticipantSnapshot{ID: "p4", FirstName: "Ana", LastName: "Smith", DateOfBirth: "1990-01-02"})
}

func ids(candidates []models.Candidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.ParticipantID)
	}
	return out
}

func TestChecker_Check(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seed(ctx, store)
	checker := newChecker(t, store)

	t.Run("transient snapshot", func(t *testing.T) {
		candidates, err := checker.Check(ctx, models.ParticipantSnapshot{FirstName: "Anna", LastName: "Smith", DateOfBirth: "1990-01-02"})
		require.NoError(t, err)

		assert.Equal(t, []string{"p1", "p4", "p2"}, ids(candidates))
		assert.Equal(t, 1.0, candidates[0].WeightedScore)
		assert.InDelta(t, 3.0/3.75, candidates[2].WeightedScore, 1e-9)
		assert.NotEmpty(t, candidates[0].Breakdown)
	})

	t.Run("stored participant skips itself", func(t *testing.T) {
		candidates, err := checker.Check(ctx, models.ParticipantSnapshot{ID: "p1", FirstName: "Anna", LastName: "Smith", DateOfBirth: "1990-01-02"})
		require.NoError(t, err)
		assert.Equal(t, []string{"p4", "p2"}, ids(candidates))
	})

	t.Run("resolved pairs are omitted", func(t *testing.T) {
		require.NoError(t, store.Resolutions().Create(ctx, models.Resolution{IDLow: "p1", IDHigh: "p4", Kind: models.ResolutionIgnore}))

		candidates, err := checker.Check(ctx, models.ParticipantSnapshot{ID: "p1", FirstName: "Anna", LastName: "Smith", DateOfBirth: "1990-01-02"})
		require.NoError(t, err)
		assert.Equal(t, []string{"p2"}, ids(candidates))
	})

	t.Run("no match returns empty list", func(t *testing.T) {
		candidates, err := checker.Check(ctx, models.ParticipantSnapshot{FirstName: "Zed", LastName: "Quill", DateOfBirth: "2001-09-09"})
		require.NoError(t, err)
		assert.NotNil(t, candidates)
		assert.Empty(t, candidates)
	})

	t.Run("bad date of birth is a validation error", func(t *testing.T) {
		_, err := checker.Check(ctx, models.ParticipantSnapshot{LastName: "Smith", DateOfBirth: "31/31/1990"})
		assert.True(t, dedupe.IsValidation(err))
	})
}

func TestChecker_NeverWrites(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seed(ctx, store)

	_, err := newChecker(t, store).Check(ctx, models.ParticipantSnapshot{ID: "p1", FirstName: "Anna", LastName: "Smith"})
	require.NoError(t, err)

	keys, err := store.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}
