package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/placement/internal/domain/types"
	"github.com/okian/placement/pkg/metrics"
)

const defaultMaxRuns = 1_000

// MemoryStore is an in-process Store. Datasets are published through an
// atomic pointer so readers never block on a writer.
type MemoryStore struct {
	dataset atomic.Pointer[types.Dataset]

	mu      sync.RWMutex
	runs    map[string]*types.Run
	order   []string // creation order, oldest first
	maxRuns int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		runs:    make(map[string]*types.Run),
		maxRuns: defaultMaxRuns,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) PutDataset(_ context.Context, ds types.Dataset) error {
	cp := ds
	cp.Candidates = append(cp.Candidates[:0:0], ds.Candidates...)
	cp.Opportunities = append(cp.Opportunities[:0:0], ds.Opportunities...)
	if ds.Quotas != nil {
		cp.Quotas = ds.Quotas.Clone()
	}
	s.dataset.Store(&cp)
	return nil
}

func (s *MemoryStore) Dataset(_ context.Context) (types.Dataset, error) {
	ds := s.dataset.Load()
	if ds == nil {
		return types.Dataset{}, ErrNoDataset
	}
	return *ds, nil
}

func (s *MemoryStore) CreateRun(_ context.Context, run types.Run) error {
	if run.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRun)
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("%w: run %s already exists", ErrRunConflict, run.ID)
	}
	if len(s.order) >= s.maxRuns {
		s.evictLocked()
	}
	cp := run
	s.runs[run.ID] = &cp
	s.order = append(s.order, run.ID)
	metrics.UpdateRepositoryRuns(len(s.runs))
	return nil
}

func (s *MemoryStore) StartRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if run.Status != types.RunQueued {
		return fmt.Errorf("%w: run %s is %s", ErrRunConflict, id, run.Status)
	}
	run.Status = types.RunRunning
	return nil
}

func (s *MemoryStore) FinishRun(_ context.Context, run types.Run) error {
	if !run.Status.Terminal() {
		return fmt.Errorf("%w: status %s is not terminal", ErrInvalidRun, run.Status)
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.runs[run.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, run.ID)
	}
	if cur.Status.Terminal() {
		return fmt.Errorf("%w: run %s already %s", ErrRunConflict, run.ID, cur.Status)
	}
	cur.Status = run.Status
	cur.Result = run.Result
	cur.Error = run.Error
	cur.Fallback = run.Fallback
	completed := run.CompletedAt
	if completed == nil {
		now := time.Now().UTC()
		completed = &now
	}
	cur.CompletedAt = completed
	return nil
}

func (s *MemoryStore) Run(_ context.Context, id string) (types.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return types.Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *run, nil
}

func (s *MemoryStore) Runs(_ context.Context, limit int) ([]types.Run, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Run, 0, min(limit, len(s.order)))
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.runs[s.order[i]])
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

func (s *MemoryStore) Close() error { return nil }

// evictLocked drops the oldest terminal run. Open runs are never evicted, so
// the history may exceed maxRuns while many runs are in flight.
func (s *MemoryStore) evictLocked() {
	for i, id := range s.order {
		if s.runs[id].Status.Terminal() {
			delete(s.runs, id)
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
