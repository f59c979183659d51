package duplicates

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/memstore"
	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/checker"
	"github.com/Ramsey-B/fern/pkg/duplicates"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolver"
)

type stubRunner struct {
	opts batch.RunOptions
	err  error
}

func (r *stubRunner) Run(_ context.Context, opts batch.RunOptions) (*models.BatchRun, error) {
	r.opts = opts
	if r.err != nil {
		return nil, r.err
	}
	mode := models.BatchRunModeIncremental
	if opts.Full {
		mode = models.BatchRunModeFull
	}
	return &models.BatchRun{ID: "run-1", Mode: mode}, nil
}

type fixture struct {
	e      *echo.Echo
	store  *memstore.Store
	runner *stubRunner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	store := memstore.New()
	for _, p := range []models.ParticipantSnapshot{
		{ID: "a", FirstName: "Anna", MiddleName: "Marie", LastName: "Smith", DateOfBirth: "1990-01-02", Nationalities: []string{"US"}, Address: "123 Main St"},
		{ID: "b", FirstName: "Anna", MiddleName: "Marie", LastName: "Smith", DateOfBirth: "1990-01-02", Nationalities: []string{"US"}, Contacts: []string{"555-1234"}},
		{ID: "c", FirstName: "Anna", MiddleName: "Marie", LastName: "Smith", DateOfBirth: "1990-01-02", Nationalities: []string{"US"}, Contacts: []string{"555-1234"}},
		{ID: "d", FirstName: "Omar", LastName: "Haddad", DateOfBirth: "1975-06-30"},
	} {
		store.PutParticipant(ctx, p)
	}

	engine, err := matching.NewEngine(matching.DefaultConfig())
	require.NoError(t, err)
	comparator, err := batch.NewComparator(logger, engine, batch.Stores{
		Participants: store,
		Index:        store,
		Resolutions:  store.Resolutions(),
		Runs:         store.Runs(),
	}, batch.DefaultConfig())
	require.NoError(t, err)
	_, err = comparator.Run(ctx, batch.RunOptions{Full: true})
	require.NoError(t, err)

	runner := &stubRunner{}
	handler := NewHandler(
		logger,
		checker.NewChecker(logger, engine, store, store.Resolutions(), 100),
		duplicates.NewService(logger, store, store),
		resolver.NewResolver(logger, store, store, store, store.Resolutions(), nil),
		runner,
	)

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	handler.Register(e.Group("/api/v1/duplicates"))

	return &fixture{e: e, store: store, runner: runner}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(middleware.HeaderOperatorID, "worker-7")
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestListAndCount(t *testing.T) {
	f := newFixture(t)
	active, err := f.store.CountActive(context.Background())
	require.NoError(t, err)
	require.Greater(t, active, 1)

	rec, body := f.do(t, http.MethodGet, "/api/v1/duplicates/count", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, active, body["count"])

	rec, body = f.do(t, http.MethodGet, "/api/v1/duplicates?limit=1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, active, body["total_count"])
	assert.Len(t, body["items"], 1)

	rec, body = f.do(t, http.MethodGet, "/api/v1/duplicates?offset=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, body["message"])

	rec, _ = f.do(t, http.MethodGet, "/api/v1/duplicates?limit=lots", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheck(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/api/v1/duplicates/check",
		`{"first_name":"anna","last_name":"SMITH","date_of_birth":"1990-01-02","contacts":["555-1234"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	candidates, ok := body["candidates"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, candidates)
	ids := map[string]bool{}
	for _, c := range candidates {
		ids[c.(map[string]any)["participant_id"].(string)] = true
	}
	assert.True(t, ids["b"])
	assert.True(t, ids["c"])
	assert.False(t, ids["d"])

	rec, body = f.do(t, http.MethodPost, "/api/v1/duplicates/check", `{"first_name":"Anna","date_of_birth":"02/01/1990"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["meta"], "date_of_birth")

	rec, _ = f.do(t, http.MethodPost, "/api/v1/duplicates/check", `{"first_name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMerge(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/api/v1/duplicates/merge", `{
		"participant_a_id": "c",
		"participant_b_id": "b",
		"resolved_fields": {"first_name": "Anna", "last_name": "Smith", "date_of_birth": "1990-01-02", "contacts": ["555-1234"]}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, "merge", body["kind"])
	survivor := body["survivor"].(map[string]any)
	assert.Equal(t, "b", survivor["id"])

	_, err := f.store.GetSnapshot(context.Background(), "c")
	assert.Error(t, err)

	// ignoring a merged pair conflicts
	rec, _ = f.do(t, http.MethodPost, "/api/v1/duplicates/ignore", `{"participant_a_id":"b","participant_b_id":"c"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMergeValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{
			name:  "same participant",
			body:  `{"participant_a_id":"b","participant_b_id":"b","resolved_fields":{"last_name":"Smith"}}`,
			field: "participant_b_id",
		},
		{
			name:  "missing participant",
			body:  `{"participant_b_id":"b","resolved_fields":{"last_name":"Smith"}}`,
			field: "participant_a_id",
		},
		{
			name:  "bad resolved date",
			body:  `{"participant_a_id":"b","participant_b_id":"c","resolved_fields":{"last_name":"Smith","date_of_birth":"1990-13-45"}}`,
			field: "resolved_fields.date_of_birth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.do(t, http.MethodPost, "/api/v1/duplicates/merge", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, body["meta"], tt.field)
		})
	}

	// nothing was merged
	_, err := f.store.GetSnapshot(context.Background(), "c")
	assert.NoError(t, err)
}

func TestIgnore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before, err := f.store.CountActive(ctx)
	require.NoError(t, err)

	rec, body := f.do(t, http.MethodPost, "/api/v1/duplicates/ignore", `{"participant_a_id":"c","participant_b_id":"b"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignore", body["kind"])
	assert.Equal(t, map[string]any{"id_low": "b", "id_high": "c"}, body["pair"])

	after, err := f.store.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, before-1, after)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/duplicates/ignore", `{"participant_a_id":"b","participant_b_id":"c"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/duplicates/ignore", `{"participant_a_id":"b","participant_b_id":"zz"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = f.do(t, http.MethodPost, "/api/v1/duplicates/ignore", `{"participant_a_id":"d","participant_b_id":"d"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["meta"], "participant_b_id")
}

func TestRunBatch(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/api/v1/duplicates/batch-runs", `{"full":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.runner.opts.Full)
	assert.Equal(t, "run-1", body["id"])

	rec, _ = f.do(t, http.MethodPost, "/api/v1/duplicates/batch-runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.runner.opts.Full)

	f.runner.err = batch.ErrRunInProgress
	rec, body = f.do(t, http.MethodPost, "/api/v1/duplicates/batch-runs", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, batch.ErrRunInProgress.Error(), body["message"])
}
