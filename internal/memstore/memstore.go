// Package memstore provides an in-memory transactional implementation of every
// deduplication storage port. It backs unit tests and local runs without Postgres.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Ramsey-B/fern/pkg/dedupe"
	"github.com/Ramsey-B/fern/pkg/models"
)

type txKey struct{}

type state struct {
	participants map[string]models.ParticipantSnapshot
	duplicates   map[models.PairKey]models.DuplicatePair
	resolutions  map[models.PairKey]models.Resolution
	runs         []models.BatchRun
}

func newState() state {
	return state{
		participants: map[string]models.ParticipantSnapshot{},
		duplicates:   map[models.PairKey]models.DuplicatePair{},
		resolutions:  map[models.PairKey]models.Resolution{},
	}
}

func (s state) clone() state {
	c := state{
		participants: make(map[string]models.ParticipantSnapshot, len(s.participants)),
		duplicates:   make(map[models.PairKey]models.DuplicatePair, len(s.duplicates)),
		resolutions:  make(map[models.PairKey]models.Resolution, len(s.resolutions)),
		runs:         append([]models.BatchRun(nil), s.runs...),
	}
	for id, p := range s.participants {
		c.participants[id] = p.Clone()
	}
	for key, pair := range s.duplicates {
		c.duplicates[key] = clonePair(pair)
	}
	for key, r := range s.resolutions {
		c.resolutions[key] = r
	}
	return c
}

// Store is an in-memory participant store, duplicate index, resolution store and run
// store. Transactions are serialized and roll back by restoring a copy of the state
// taken when they began; writes made outside a transaction while one is open are
// discarded by its rollback.
type Store struct {
	mu       sync.RWMutex
	txMu     sync.Mutex
	state    state
	now      func() time.Time
	failures map[string]error
}

// Option configures a Store
type Option func(*Store)

// WithClock sets the clock used for created/updated timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		state:    newState(),
		now:      func() time.Time { return time.Now().UTC() },
		failures: map[string]error{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailOn makes every later call of the named operation return err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) failure(op string) error {
	return s.failures[op]
}

// WithinTx runs fn in a transaction. Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.state = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// ============================================================================
// Participants
// ============================================================================

// PutParticipant creates or replaces a participant, stamping its timestamps
func (s *Store) PutParticipant(_ context.Context, p models.ParticipantSnapshot) models.ParticipantSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.state.participants[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.state.participants[p.ID] = p.Clone()
	return p
}

// DeleteParticipant removes a participant
func (s *Store) DeleteParticipant(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.participants, id)
}

// GetSnapshot returns a participant by id
func (s *Store) GetSnapshot(_ context.Context, id string) (*models.ParticipantSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure("GetSnapshot"); err != nil {
		return nil, err
	}
	p, ok := s.state.participants[id]
	if !ok {
		return nil, dedupe.NotFound("participant %s not found", id)
	}
	out := p.Clone()
	return &out, nil
}

// GetSnapshots returns the participants that exist among ids, in id order
func (s *Store) GetSnapshots(_ context.Context, ids []string) ([]models.ParticipantSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure("GetSnapshots"); err != nil {
		return nil, err
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	out := make([]models.ParticipantSnapshot, 0, len(sorted))
	for _, id := range sorted {
		if p, ok := s.state.participants[id]; ok {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

// ListIdentifiers returns every participant id in ascending order
func (s *Store) ListIdentifiers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure("ListIdentifiers"); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(s.state.participants))
	for id := range s.state.participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ApplyMerge overwrites the survivor and deletes the superseded participant
func (s *Store) ApplyMerge(_ context.Context, survivorID string, fields models.ResolvedFields, supersededID string) (*models.ParticipantSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("ApplyMerge"); err != nil {
		return nil, err
	}
	survivor, ok := s.state.participants[survivorID]
	if !ok {
		return nil, dedupe.NotFound("participant %s not found", survivorID)
	}
	if _, ok := s.state.participants[supersededID]; !ok {
		return nil, dedupe.NotFound("participant %s not found", supersededID)
	}

	merged := fields.Apply(survivor)
	merged.UpdatedAt = s.now()
	s.state.participants[survivorID] = merged
	delete(s.state.participants, supersededID)

	out := merged.Clone()
	return &out, nil
}

// ============================================================================
// Duplicate index
// ============================================================================

// Upsert writes a duplicate pair, leaving unchanged rows untouched
func (s *Store) Upsert(_ context.Context, pair models.DuplicatePair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("Upsert"); err != nil {
		return err
	}
	key := models.NewPairKey(pair.IDLow, pair.IDHigh)
	pair.IDLow, pair.IDHigh = key.IDLow, key.IDHigh

	now := s.now()
	if existing, ok := s.state.duplicates[key]; ok {
		if existing.SameScores(pair) {
			return nil
		}
		pair.CreatedAt = existing.CreatedAt
	} else {
		pair.CreatedAt = now
	}
	pair.UpdatedAt = now
	s.state.duplicates[key] = clonePair(pair)
	return nil
}

// Get returns the row for key, or nil
func (s *Store) Get(_ context.Context, key models.PairKey) (*models.DuplicatePair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pair, ok := s.state.duplicates[models.NewPairKey(key.IDLow, key.IDHigh)]
	if !ok {
		return nil, nil
	}
	out := clonePair(pair)
	return &out, nil
}

// ListActive lists unresolved pairs by score descending then key
func (s *Store) ListActive(_ context.Context, page models.Pagination) ([]models.DuplicatePair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure("ListActive"); err != nil {
		return nil, err
	}
	active := s.activeLocked()
	sort.Slice(active, func(i, j int) bool {
		if active[i].WeightedScore != active[j].WeightedScore {
			return active[i].WeightedScore > active[j].WeightedScore
		}
		return active[i].Key().Less(active[j].Key())
	})

	offset := max(page.Offset, 0)
	if offset >= len(active) {
		return []models.DuplicatePair{}, nil
	}
	end := len(active)
	if page.Limit > 0 && offset+page.Limit < end {
		end = offset + page.Limit
	}
	return active[offset:end], nil
}

// CountActive counts unresolved pairs
func (s *Store) CountActive(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure("CountActive"); err != nil {
		return 0, err
	}
	return len(s.activeLocked()), nil
}

// activeLocked returns unresolved pairs whose participants both still exist
func (s *Store) activeLocked() []models.DuplicatePair {
	active := make([]models.DuplicatePair, 0, len(s.state.duplicates))
	for key, pair := range s.state.duplicates {
		if _, resolved := s.state.resolutions[key]; resolved {
			continue
		}
		if _, ok := s.state.participants[key.IDLow]; !ok {
			continue
		}
		if _, ok := s.state.participants[key.IDHigh]; !ok {
			continue
		}
		active = append(active, clonePair(pair))
	}
	return active
}

// Remove deletes the row for key
func (s *Store) Remove(_ context.Context, key models.PairKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("Remove"); err != nil {
		return err
	}
	delete(s.state.duplicates, models.NewPairKey(key.IDLow, key.IDHigh))
	return nil
}

// RemoveAllReferencing deletes every row naming id
func (s *Store) RemoveAllReferencing(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("RemoveAllReferencing"); err != nil {
		return 0, err
	}
	removed := 0
	for key := range s.state.duplicates {
		if key.References(id) {
			delete(s.state.duplicates, key)
			removed++
		}
	}
	return removed, nil
}

// ListKeys returns every stored pair key, ordered
func (s *Store) ListKeys(_ context.Context) ([]models.PairKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]models.PairKey, 0, len(s.state.duplicates))
	for key := range s.state.duplicates {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys, nil
}

// ============================================================================
// Resolutions
// ============================================================================

// Resolutions exposes the resolution store view of the Store
func (s *Store) Resolutions() dedupe.ResolutionStore {
	return resolutionStore{s}
}

// Runs exposes the batch run store view of the Store
func (s *Store) Runs() dedupe.RunStore {
	return runStore{s}
}

type resolutionStore struct {
	s *Store
}

func (r resolutionStore) Get(_ context.Context, key models.PairKey) (*models.Resolution, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	res, ok := r.s.state.resolutions[models.NewPairKey(key.IDLow, key.IDHigh)]
	if !ok {
		return nil, nil
	}
	return &res, nil
}

func (r resolutionStore) Create(_ context.Context, resolution models.Resolution) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.failure("CreateResolution"); err != nil {
		return err
	}
	key := models.NewPairKey(resolution.IDLow, resolution.IDHigh)
	if _, exists := r.s.state.resolutions[key]; exists {
		return dedupe.Conflict("pair %s is already resolved", key)
	}
	now := r.s.now()
	resolution.IDLow, resolution.IDHigh = key.IDLow, key.IDHigh
	resolution.CreatedAt = now
	resolution.UpdatedAt = now
	r.s.state.resolutions[key] = resolution
	return nil
}

func (r resolutionStore) ResolvedKeys(_ context.Context) (map[models.PairKey]models.ResolutionKind, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[models.PairKey]models.ResolutionKind, len(r.s.state.resolutions))
	for key, res := range r.s.state.resolutions {
		out[key] = res.Kind
	}
	return out, nil
}

type runStore struct {
	s *Store
}

func (r runStore) Latest(_ context.Context) (*models.BatchRun, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if len(r.s.state.runs) == 0 {
		return nil, nil
	}
	run := r.s.state.runs[len(r.s.state.runs)-1]
	return &run, nil
}

func (r runStore) Save(_ context.Context, run models.BatchRun) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.failure("SaveRun"); err != nil {
		return err
	}
	r.s.state.runs = append(r.s.state.runs, run)
	return nil
}

func clonePair(p models.DuplicatePair) models.DuplicatePair {
	if p.FieldScores != nil {
		scores := make(map[models.FieldName]float64, len(p.FieldScores))
		for k, v := range p.FieldScores {
			scores[k] = v
		}
		p.FieldScores = scores
	}
	return p
}
