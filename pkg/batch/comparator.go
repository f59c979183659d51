// Package batch rescans the participant store and reconciles the duplicate index
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/pkg/dedupe"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// LockKey is the distributed lock held for the duration of a run
const LockKey = "batch-comparator"

// ErrRunInProgress is returned when another run holds the comparator lock
var ErrRunInProgress = errors.New("batch comparator run already in progress")

// Config contains configuration for the batch comparator
type Config struct {
	Workers      int           // Concurrent scoring workers (default: 4)
	PageSize     int           // Snapshots loaded per store call (default: 500)
	BlockingKeys []BlockingKey // Default: DefaultBlockingKeys
	Incremental  bool          // Rescore only changed participants when the fingerprint is unchanged
	LockTTL      time.Duration // Default: 5m
}

// DefaultConfig returns default comparator configuration
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		PageSize:     500,
		BlockingKeys: DefaultBlockingKeys,
		Incremental:  true,
		LockTTL:      5 * time.Minute,
	}
}

// RunOptions controls a single run
type RunOptions struct {
	Full bool // Rescore every candidate pair even when an incremental run is possible
}

// Stores groups the storage ports the comparator reads and writes
type Stores struct {
	Participants dedupe.ParticipantStore
	Index        dedupe.DuplicateIndex
	Resolutions  dedupe.ResolutionStore
	Runs         dedupe.RunStore
}

// Comparator scores blocked candidate pairs and reconciles the duplicate index
type Comparator struct {
	logger  ectologger.Logger
	engine  *matching.Engine
	blocker *Blocker
	stores  Stores
	locker  dedupe.Locker
	config  Config
	now     func() time.Time
	running atomic.Bool
}

// Option configures a Comparator
type Option func(*Comparator)

// WithLocker guards runs with a distributed lock
func WithLocker(locker dedupe.Locker) Option {
	return func(c *Comparator) {
		c.locker = locker
	}
}

// WithClock sets the clock used for run timestamps and the watermark
func WithClock(now func() time.Time) Option {
	return func(c *Comparator) {
		c.now = now
	}
}

// NewComparator creates a new batch comparator
func NewComparator(logger ectologger.Logger, engine *matching.Engine, stores Stores, config Config, opts ...Option) (*Comparator, error) {
	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}

	blocker, err := NewBlocker(config.BlockingKeys)
	if err != nil {
		return nil, err
	}

	c := &Comparator{
		logger:  logger,
		engine:  engine,
		blocker: blocker,
		stores:  stores,
		config:  config,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fingerprint identifies everything that decides which pairs are candidates and how they
// score. A changed fingerprint forces a full run.
func (c *Comparator) Fingerprint() string {
	return fmt.Sprintf("blocking=%s;%s", c.blocker.String(), c.engine.Config().Fingerprint())
}

// Run executes one comparator run and records it. Only one run executes at a time per
// process, and per deployment when a locker is configured.
func (c *Comparator) Run(ctx context.Context, opts RunOptions) (*models.BatchRun, error) {
	ctx, span := tracing.StartSpan(ctx, "batch.Comparator.Run")
	defer span.End()

	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer c.running.Store(false)

	if c.locker == nil {
		return c.run(ctx, opts)
	}

	var run *models.BatchRun
	err := c.locker.WithLock(ctx, LockKey, c.config.LockTTL, func(ctx context.Context) error {
		var err error
		run, err = c.run(ctx, opts)
		return err
	})
	if errors.Is(err, redis.ErrLockNotAcquired) {
		c.logger.WithContext(ctx).Info("Batch comparator run skipped, another instance holds the lock")
		return nil, ErrRunInProgress
	}
	return run, err
}

// loaded is a participant ready for scoring
type loaded struct {
	normalized normalizers.Participant
	updatedAt  time.Time
}

// outcome is the scoring result of one candidate pair
type outcome struct {
	key     models.PairKey
	result  matching.Result
	skipped bool
}

func (c *Comparator) run(ctx context.Context, opts RunOptions) (*models.BatchRun, error) {
	start := c.now()
	run := &models.BatchRun{
		ID:          uuid.NewString(),
		Mode:        models.BatchRunModeFull,
		Fingerprint: c.Fingerprint(),
		StartedAt:   start,
		Watermark:   start,
	}

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":      run.ID,
		"fingerprint": run.Fingerprint,
	})

	previous, err := c.stores.Runs.Latest(ctx)
	if err != nil {
		return nil, c.fail(run, start, err)
	}

	var watermark time.Time
	if c.config.Incremental && !opts.Full && previous != nil && previous.Fingerprint == run.Fingerprint {
		run.Mode = models.BatchRunModeIncremental
		watermark = previous.Watermark
	}
	log = log.WithField("mode", run.Mode)
	log.Info("Starting batch comparator run")

	participants, skippedIDs, err := c.load(ctx, log)
	if err != nil {
		return nil, c.fail(run, start, err)
	}
	run.Participants = len(participants)

	resolved, err := c.stores.Resolutions.ResolvedKeys(ctx)
	if err != nil {
		return nil, c.fail(run, start, err)
	}

	existing, err := c.stores.Index.ListKeys(ctx)
	if err != nil {
		return nil, c.fail(run, start, err)
	}

	changed := func(id string) bool {
		if run.Mode == models.BatchRunModeFull {
			return true
		}
		p, ok := participants[id]
		return !ok || p.updatedAt.After(watermark)
	}

	normalized := make([]normalizers.Participant, 0, len(participants))
	for _, p := range participants {
		normalized = append(normalized, p.normalized)
	}

	candidates := make(map[models.PairKey]struct{})
	var scope []models.PairKey
	for _, key := range c.blocker.Pairs(normalized) {
		if _, ok := resolved[key]; ok {
			continue
		}
		candidates[key] = struct{}{}
		if changed(key.IDLow) || changed(key.IDHigh) {
			scope = append(scope, key)
		}
	}

	outcomes, err := c.score(ctx, log, participants, scope)
	if err != nil {
		return nil, c.fail(run, start, err)
	}

	stored := make(map[models.PairKey]struct{}, len(existing))
	for _, key := range existing {
		stored[key] = struct{}{}
	}

	minScore := c.engine.Config().MinScore
	for _, o := range outcomes {
		if err := ctx.Err(); err != nil {
			return nil, c.fail(run, start, err)
		}
		if o.skipped {
			run.PairsSkipped++
			continue
		}
		run.PairsScored++

		if o.result.Matches(minScore) {
			if err := c.stores.Index.Upsert(ctx, o.result.DuplicatePair()); err != nil {
				return nil, c.fail(run, start, err)
			}
			run.PairsUpserted++
			continue
		}
		if _, ok := stored[o.key]; ok {
			if err := c.stores.Index.Remove(ctx, o.key); err != nil {
				return nil, c.fail(run, start, err)
			}
			run.PairsRemoved++
		}
	}

	for _, key := range existing {
		if _, ok := candidates[key]; ok {
			continue
		}
		if skippedIDs[key.IDLow] || skippedIDs[key.IDHigh] {
			continue
		}
		_, isResolved := resolved[key]
		if !isResolved && !changed(key.IDLow) && !changed(key.IDHigh) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, c.fail(run, start, err)
		}
		if err := c.stores.Index.Remove(ctx, key); err != nil {
			return nil, c.fail(run, start, err)
		}
		run.PairsRemoved++
	}

	run.FinishedAt = c.now()
	if err := c.stores.Runs.Save(ctx, *run); err != nil {
		return nil, c.fail(run, start, err)
	}

	metrics.RecordBatchRun(string(run.Mode), "success", run.FinishedAt.Sub(start).Seconds())
	metrics.RecordBatchPairs("scored", run.PairsScored)
	metrics.RecordBatchPairs("upserted", run.PairsUpserted)
	metrics.RecordBatchPairs("removed", run.PairsRemoved)
	metrics.RecordBatchPairs("skipped", run.PairsSkipped)

	log.WithFields(map[string]any{
		"participants":   run.Participants,
		"pairs_scored":   run.PairsScored,
		"pairs_upserted": run.PairsUpserted,
		"pairs_removed":  run.PairsRemoved,
		"pairs_skipped":  run.PairsSkipped,
	}).Info("Batch comparator run completed")

	return run, nil
}

func (c *Comparator) fail(run *models.BatchRun, start time.Time, err error) error {
	metrics.RecordBatchRun(string(run.Mode), "failure", c.now().Sub(start).Seconds())
	c.logger.WithError(err).WithFields(map[string]any{"run_id": run.ID}).Error("Batch comparator run failed")
	return err
}

// load reads every participant in pages. Malformed snapshots are skipped and reported in
// the returned set so their index rows are left alone.
func (c *Comparator) load(ctx context.Context, log ectologger.Logger) (map[string]loaded, map[string]bool, error) {
	ctx, span := tracing.StartSpan(ctx, "batch.Comparator.load")
	defer span.End()

	ids, err := c.stores.Participants.ListIdentifiers(ctx)
	if err != nil {
		return nil, nil, err
	}

	out := make(map[string]loaded, len(ids))
	skipped := make(map[string]bool)
	for offset := 0; offset < len(ids); offset += c.config.PageSize {
		end := min(offset+c.config.PageSize, len(ids))

		snapshots, err := c.stores.Participants.GetSnapshots(ctx, ids[offset:end])
		if err != nil {
			return nil, nil, err
		}
		for _, s := range snapshots {
			if err := matching.Validate(s); err != nil {
				log.WithError(err).WithField("participant_id", s.ID).Warn("Skipping malformed participant snapshot")
				skipped[s.ID] = true
				continue
			}
			out[s.ID] = loaded{
				normalized: normalizers.NormalizeParticipant(s),
				updatedAt:  s.UpdatedAt,
			}
		}
	}
	return out, skipped, nil
}

// score runs the engine over keys with a bounded worker pool. Outcomes keep the order of
// keys. A pair that errors or panics is marked skipped.
func (c *Comparator) score(ctx context.Context, log ectologger.Logger, participants map[string]loaded, keys []models.PairKey) ([]outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "batch.Comparator.score")
	defer span.End()

	outcomes := make([]outcome, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Workers)

	for i, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = c.scorePair(log, participants, key)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (c *Comparator) scorePair(log ectologger.Logger, participants map[string]loaded, key models.PairKey) (o outcome) {
	o.key = key
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(map[string]any{"pair": key.String(), "panic": fmt.Sprint(r)}).Error("Recovered from panic while scoring pair")
			o = outcome{key: key, skipped: true}
		}
	}()

	result, err := c.engine.ScoreNormalized(participants[key.IDLow].normalized, participants[key.IDHigh].normalized)
	if err != nil {
		log.WithError(err).WithField("pair", key.String()).Warn("Skipping pair that failed to score")
		o.skipped = true
		return o
	}
	o.result = result
	return o
}
