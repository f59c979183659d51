package duplicates

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/batch"
	fctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/dedupe"
	"github.com/Ramsey-B/fern/pkg/models"
)

type Checker interface {
	Check(ctx context.Context, partial models.ParticipantSnapshot) ([]models.Candidate, error)
}

type Index interface {
	ListActive(ctx context.Context, page models.Pagination) (*models.DuplicatePairPage, error)
	Count(ctx context.Context) (int, error)
}

type Resolver interface {
	Merge(ctx context.Context, idA, idB string, fields models.ResolvedFields) (*models.ParticipantSnapshot, error)
	Ignore(ctx context.Context, idA, idB string) error
}

type BatchRunner interface {
	Run(ctx context.Context, opts batch.RunOptions) (*models.BatchRun, error)
}

// Handler serves the duplicate review API
type Handler struct {
	logger   ectologger.Logger
	checker  Checker
	index    Index
	resolver Resolver
	batch    BatchRunner
}

func NewHandler(logger ectologger.Logger, checker Checker, index Index, resolver Resolver, runner BatchRunner) *Handler {
	return &Handler{
		logger:   logger,
		checker:  checker,
		index:    index,
		resolver: resolver,
		batch:    runner,
	}
}

// Register registers duplicate routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.ListActive)
	g.GET("/count", h.Count)
	g.POST("/check", h.Check)
	g.POST("/merge", h.Merge)
	g.POST("/ignore", h.Ignore)
	g.POST("/batch-runs", h.RunBatch)
}

type BatchRunRequest struct {
	Full bool `json:"full"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type CheckResponse struct {
	Candidates []models.Candidate `json:"candidates"`
}

type ResolutionResponse struct {
	Kind     models.ResolutionKind       `json:"kind"`
	Pair     models.PairKey              `json:"pair"`
	Survivor *models.ParticipantSnapshot `json:"survivor,omitempty"`
}

func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return dedupe.Validation("invalid request body", map[string]string{"body": "must be valid JSON"})
	}
	return nil
}

// ListActive lists unresolved duplicate pairs, highest score first
func (h *Handler) ListActive(c echo.Context) error {
	ctx := c.Request().Context()

	var page models.Pagination
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &page); err != nil {
		return dedupe.Validation("invalid pagination", map[string]string{"query": "offset and limit must be integers"})
	}

	result, err := h.index.ListActive(ctx, page)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Count(c echo.Context) error {
	count, err := h.index.Count(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CountResponse{Count: count})
}

// Check scores a participant snapshot against every stored participant without writing
func (h *Handler) Check(c echo.Context) error {
	ctx := c.Request().Context()

	var partial models.ParticipantSnapshot
	if err := bind(c, &partial); err != nil {
		return err
	}

	candidates, err := h.checker.Check(ctx, partial)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, CheckResponse{Candidates: candidates})
}

// Merge merges the pair into its lower id using the operator-resolved fields
func (h *Handler) Merge(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.MergeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := dedupe.ValidateStruct("invalid merge request", req); err != nil {
		return err
	}

	survivor, err := h.resolver.Merge(ctx, req.ParticipantAID, req.ParticipantBID, req.ResolvedFields)
	if err != nil {
		return err
	}

	key := models.NewPairKey(req.ParticipantAID, req.ParticipantBID)
	h.logger.WithContext(ctx).WithFields(map[string]any{
		"id_low":      key.IDLow,
		"id_high":     key.IDHigh,
		"operator_id": fctx.GetOperatorID(ctx),
	}).Info("Merged duplicate pair")

	return c.JSON(http.StatusOK, ResolutionResponse{
		Kind:     models.ResolutionMerge,
		Pair:     key,
		Survivor: survivor,
	})
}

// Ignore records that the pair is not a duplicate
func (h *Handler) Ignore(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.IgnoreRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := dedupe.ValidateStruct("invalid ignore request", req); err != nil {
		return err
	}

	if err := h.resolver.Ignore(ctx, req.ParticipantAID, req.ParticipantBID); err != nil {
		return err
	}

	key := models.NewPairKey(req.ParticipantAID, req.ParticipantBID)
	h.logger.WithContext(ctx).WithFields(map[string]any{
		"id_low":      key.IDLow,
		"id_high":     key.IDHigh,
		"operator_id": fctx.GetOperatorID(ctx),
	}).Info("Ignored duplicate pair")

	return c.JSON(http.StatusOK, ResolutionResponse{Kind: models.ResolutionIgnore, Pair: key})
}

// RunBatch runs the batch comparator synchronously
func (h *Handler) RunBatch(c echo.Context) error {
	ctx := c.Request().Context()

	var req BatchRunRequest
	if c.Request().ContentLength > 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}

	run, err := h.batch.Run(ctx, batch.RunOptions{Full: req.Full})
	if errors.Is(err, batch.ErrRunInProgress) {
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}
