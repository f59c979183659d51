package repositories_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/batchrun"
	"github.com/Ramsey-B/fern/internal/repositories/duplicatepair"
	"github.com/Ramsey-B/fern/internal/repositories/participant"
	"github.com/Ramsey-B/fern/internal/repositories/resolution"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/dedupe"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Compile-time checks that the Postgres adapters satisfy the storage ports.
var (
	_ dedupe.ParticipantStore = (*participant.Repository)(nil)
	_ dedupe.DuplicateIndex   = (*duplicatepair.Repository)(nil)
	_ dedupe.ResolutionStore  = (*resolution.Repository)(nil)
	_ dedupe.RunStore         = (*batchrun.Repository)(nil)
	_ dedupe.Transactor       = (database.DB)(nil)
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// openTestDB connects to FERN_TEST_DATABASE_URL, migrates it and empties every table
func openTestDB(t *testing.T) database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping PostgreSQL repository test in short mode")
	}
	url := os.Getenv("FERN_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FERN_TEST_DATABASE_URL not set")
	}

	conn, err := sqlx.Connect("postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	logger := testLogger()
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: filepath.Join("..", "..", "db", "pg"),
	})
	require.NoError(t, migrations.MigratePostgres(conn, ""))

	_, err = conn.Exec(`TRUNCATE participant_case_links, participants, duplicate_pairs, duplicate_resolutions, duplicate_batch_runs`)
	require.NoError(t, err)

	return database.NewDatabaseInstance(conn, logger)
}

func TestParticipantRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := participant.NewRepository(db, testLogger())

	_, err := repo.Create(ctx, models.ParticipantSnapshot{
		ID:          "p-1",
		FirstName:   "Anna",
		LastName:    "Smith",
		DateOfBirth: "1990-01-02",
		Address:     "123 Main St",
		Contacts:    []string{"555-1234"},
	})
	require.NoError(t, err)
	_, err = repo.Create(ctx, models.ParticipantSnapshot{ID: "p-2", FirstName: "Ana", LastName: "Smith"})
	require.NoError(t, err)

	t.Run("duplicate id conflicts", func(t *testing.T) {
		_, err := repo.Create(ctx, models.ParticipantSnapshot{ID: "p-1", LastName: "Other"})
		assert.True(t, dedupe.IsConflict(err))
	})

	t.Run("get snapshot", func(t *testing.T) {
		snapshot, err := repo.GetSnapshot(ctx, "p-1")
		require.NoError(t, err)
		assert.Equal(t, "1990-01-02", snapshot.DateOfBirth)
		assert.Equal(t, []string{"555-1234"}, snapshot.Contacts)

		_, err = repo.GetSnapshot(ctx, "missing")
		assert.True(t, dedupe.IsNotFound(err))
	})

	t.Run("list identifiers and batch get", func(t *testing.T) {
		ids, err := repo.ListIdentifiers(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"p-1", "p-2"}, ids)

		snapshots, err := repo.GetSnapshots(ctx, []string{"p-2", "missing", "p-1"})
		require.NoError(t, err)
		require.Len(t, snapshots, 2)
		assert.Equal(t, "p-1", snapshots[0].ID)
	})

	t.Run("apply merge", func(t *testing.T) {
		merged, err := repo.ApplyMerge(ctx, "p-1", models.ResolvedFields{
			FirstName: "Anna",
			LastName:  "Smith",
			Contacts:  []string{"555-1234", "555-9999"},
		}, "p-2")
		require.NoError(t, err)
		assert.Equal(t, []string{"555-1234", "555-9999"}, merged.Contacts)
		assert.Empty(t, merged.DateOfBirth)

		_, err = repo.GetSnapshot(ctx, "p-2")
		assert.True(t, dedupe.IsNotFound(err))

		_, err = repo.ApplyMerge(ctx, "p-1", models.ResolvedFields{LastName: "Smith"}, "p-2")
		assert.True(t, dedupe.IsNotFound(err))
	})
}

func TestDuplicatePairRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	pairs := duplicatepair.NewRepository(db, testLogger())
	resolutions := resolution.NewRepository(db, testLogger())
	participants := participant.NewRepository(db, testLogger())
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := participants.Create(ctx, models.ParticipantSnapshot{ID: id, LastName: "Smith"})
		require.NoError(t, err)
	}

	ab := models.DuplicatePair{IDLow: "a", IDHigh: "b", WeightedScore: 0.8, FieldScores: map[models.FieldName]float64{models.FieldLastName: 1}}
	ac := models.DuplicatePair{IDLow: "a", IDHigh: "c", WeightedScore: 0.9, FieldScores: map[models.FieldName]float64{models.FieldLastName: 0.9}}
	cd := models.DuplicatePair{IDLow: "c", IDHigh: "d", WeightedScore: 0.8}
	for _, p := range []models.DuplicatePair{ab, ac, cd} {
		require.NoError(t, pairs.Upsert(ctx, p))
	}

	t.Run("upsert with unchanged scores keeps timestamps", func(t *testing.T) {
		before, err := pairs.Get(ctx, ab.Key())
		require.NoError(t, err)
		require.NotNil(t, before)

		time.Sleep(10 * time.Millisecond)
		require.NoError(t, pairs.Upsert(ctx, ab))

		after, err := pairs.Get(ctx, ab.Key())
		require.NoError(t, err)
		assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
		assert.Equal(t, ab.FieldScores, after.FieldScores)
	})

	t.Run("upsert with new scores updates", func(t *testing.T) {
		changed := ab
		changed.WeightedScore = 0.85
		require.NoError(t, pairs.Upsert(ctx, changed))

		got, err := pairs.Get(ctx, models.NewPairKey("b", "a"))
		require.NoError(t, err)
		assert.Equal(t, 0.85, got.WeightedScore)
	})

	t.Run("list active orders by score then key and hides resolved", func(t *testing.T) {
		active, err := pairs.ListActive(ctx, models.Pagination{Limit: 10})
		require.NoError(t, err)
		require.Len(t, active, 3)
		assert.Equal(t, "a:c", active[0].Key().String())
		assert.Equal(t, "a:b", active[1].Key().String())
		assert.Equal(t, "c:d", active[2].Key().String())

		require.NoError(t, resolutions.Create(ctx, models.Resolution{IDLow: "a", IDHigh: "c", Kind: models.ResolutionIgnore}))

		active, err = pairs.ListActive(ctx, models.Pagination{Limit: 10})
		require.NoError(t, err)
		assert.Len(t, active, 2)

		count, err := pairs.CountActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("list active hides pairs with a deleted participant", func(t *testing.T) {
		_, err := db.ExecContext(ctx, `DELETE FROM participants WHERE id = $1`, "d")
		require.NoError(t, err)

		active, err := pairs.ListActive(ctx, models.Pagination{Limit: 1})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "a:b", active[0].Key().String())

		count, err := pairs.CountActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("remove all referencing", func(t *testing.T) {
		removed, err := pairs.RemoveAllReferencing(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		keys, err := pairs.ListKeys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.PairKey{{IDLow: "a", IDHigh: "b"}}, keys)

		require.NoError(t, pairs.Remove(ctx, ab.Key()))
		got, err := pairs.Get(ctx, ab.Key())
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestResolutionRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := resolution.NewRepository(db, testLogger())

	require.NoError(t, repo.Create(ctx, models.Resolution{IDLow: "y", IDHigh: "x", Kind: models.ResolutionMerge}))

	err := repo.Create(ctx, models.Resolution{IDLow: "x", IDHigh: "y", Kind: models.ResolutionIgnore})
	assert.True(t, dedupe.IsConflict(err))

	got, err := repo.Get(ctx, models.NewPairKey("x", "y"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.ResolutionMerge, got.Kind)

	keys, err := repo.ResolvedKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.PairKey]models.ResolutionKind{{IDLow: "x", IDHigh: "y"}: models.ResolutionMerge}, keys)
}

func TestTransactionRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := resolution.NewRepository(db, testLogger())

	err := db.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.Create(ctx, models.Resolution{IDLow: "a", IDHigh: "b", Kind: models.ResolutionIgnore}))
		return dedupe.Conflict("abort")
	})
	assert.True(t, dedupe.IsConflict(err))

	got, err := repo.Get(ctx, models.NewPairKey("a", "b"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBatchRunRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := batchrun.NewRepository(db, testLogger())

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	start := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.Save(ctx, models.BatchRun{Mode: models.BatchRunModeFull, Fingerprint: "f1", Watermark: start, StartedAt: start, FinishedAt: start.Add(time.Second)}))
	require.NoError(t, repo.Save(ctx, models.BatchRun{Mode: models.BatchRunModeIncremental, Fingerprint: "f1", Watermark: start.Add(time.Minute), StartedAt: start.Add(time.Minute), FinishedAt: start.Add(2 * time.Minute), PairsUpserted: 3}))

	latest, err = repo.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.BatchRunModeIncremental, latest.Mode)
	assert.Equal(t, 3, latest.PairsUpserted)
	assert.NotEmpty(t, latest.ID)
}
