// Package service provides the application service behind the HTTP API and
// the worker pool.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/placement/internal/adapters/mq/queue"
	"github.com/okian/placement/internal/adapters/mq/worker"
	repository "github.com/okian/placement/internal/adapters/repository"
	"github.com/okian/placement/internal/domain/allocation"
	"github.com/okian/placement/internal/domain/dedupe"
	"github.com/okian/placement/internal/domain/model"
	"github.com/okian/placement/internal/domain/quota"
	"github.com/okian/placement/internal/domain/scoring"
	"github.com/okian/placement/internal/domain/types"
	"github.com/okian/placement/pkg/logger"
	"github.com/okian/placement/pkg/metrics"
)

const (
	defaultQueueSize  = 1_024
	defaultDedupeSize = 10_000
)

// Engine runs one allocation request. *allocation.Engine implements it.
type Engine interface {
	Allocate(ctx context.Context, req allocation.Request) (allocation.Result, error)
}

// plan is a types.AllocateRequest with every default applied.
type plan struct {
	strategy allocation.Strategy
	quotas   model.QuotaSpec
	budget   allocation.Budget
	fallback bool
}

// Service owns the dataset, the run history and the worker pool.
type Service struct {
	mu sync.RWMutex

	store  repository.Store
	index  dedupe.Index
	queue  *queue.InMemoryQueue
	pool   *worker.Pool
	scorer *scoring.Scorer
	engine Engine

	workerCount int
	queueSize   int
	dedupeSize  int
	weights     scoring.Weights
	normalize   bool
	strategy    allocation.Strategy
	budget      allocation.Budget
	quotas      model.QuotaSpec
	fallback    bool
	jobTimeout  time.Duration

	started bool
	logger  logger.Logger
}

// New constructs a Service. Components are built eagerly; Start only launches
// the worker pool.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
		dedupeSize:  defaultDedupeSize,
		weights:     scoring.DefaultWeights(),
		normalize:   true,
		strategy:    allocation.StrategyOptimal,
		budget:      allocation.Budget{MaxNodes: allocation.DefaultMaxNodes, Timeout: allocation.DefaultTimeout},
		quotas:      model.DefaultQuotaSpec(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	s.scorer = scoring.New(
		scoring.WithWeights(s.weights),
		scoring.WithNormalization(s.normalize),
	)
	if s.engine == nil {
		s.engine = allocation.NewEngine(
			allocation.WithScorer(s.scorer),
			allocation.WithBudget(s.budget),
		)
	}
	s.index = dedupe.NewInMemoryIndex(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s,
		worker.WithLogger(s.logger.Named("worker")),
		worker.WithJobTimeout(s.jobTimeout),
	)
	return s
}

// Start launches the worker pool. Queued runs are executed until Shutdown.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.pool.Start(ctx)
	s.started = true
	s.logger.Info(ctx, "placement service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.String("strategy", s.strategy.String()),
	)
	return nil
}

// Shutdown stops accepting runs, drains the queue and closes the store.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.started {
		s.logger.Info(ctx, "stopping placement service", logger.Int("queued", s.queue.Len(ctx)))
		if err := s.pool.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		s.started = false
	} else if err := s.queue.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

// Started reports whether the worker pool is running.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// LoadDataset validates ds and makes it the current snapshot.
func (s *Service) LoadDataset(ctx context.Context, ds types.Dataset) (types.Dataset, error) {
	problems := allocation.Validate(allocation.Request{
		Candidates:    ds.Candidates,
		Opportunities: ds.Opportunities,
		Quotas:        ds.Quotas,
	})
	if len(problems) > 0 {
		return types.Dataset{}, &allocation.InvalidInputError{Problems: problems}
	}

	if ds.ID == "" {
		ds.ID = uuid.NewString()
	}
	ds.LoadedAt = time.Now().UTC()
	if err := s.store.PutDataset(ctx, ds); err != nil {
		return types.Dataset{}, fmt.Errorf("store dataset: %w", err)
	}

	capacity := model.TotalCapacity(ds.Opportunities)
	metrics.UpdateDataset(len(ds.Candidates), len(ds.Opportunities), capacity)
	s.logger.Info(ctx, "dataset loaded",
		logger.String("dataset_id", ds.ID),
		logger.Int("candidates", len(ds.Candidates)),
		logger.Int("opportunities", len(ds.Opportunities)),
		logger.Int("capacity", capacity),
	)
	return ds, nil
}

// Dataset returns the current snapshot.
func (s *Service) Dataset(ctx context.Context) (types.Dataset, error) {
	return s.store.Dataset(ctx)
}

// Candidates lists the candidates of the current dataset.
func (s *Service) Candidates(ctx context.Context) ([]model.Candidate, error) {
	ds, err := s.store.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	return ds.Candidates, nil
}

// Opportunities lists the opportunities of the current dataset.
func (s *Service) Opportunities(ctx context.Context) ([]model.Opportunity, error) {
	ds, err := s.store.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	return ds.Opportunities, nil
}

// ScorePair explains the score of one pair.
func (s *Service) ScorePair(ctx context.Context, candidateID, opportunityID string) (scoring.Breakdown, error) {
	start := time.Now()
	ds, err := s.store.Dataset(ctx)
	if err != nil {
		return scoring.Breakdown{}, err
	}

	var cand *model.Candidate
	for i := range ds.Candidates {
		if ds.Candidates[i].ID == candidateID {
			cand = &ds.Candidates[i]
			break
		}
	}
	if cand == nil {
		return scoring.Breakdown{}, fmt.Errorf("%w: candidate %q", ErrNotFound, candidateID)
	}
	var opp *model.Opportunity
	for i := range ds.Opportunities {
		if ds.Opportunities[i].ID == opportunityID {
			opp = &ds.Opportunities[i]
			break
		}
	}
	if opp == nil {
		return scoring.Breakdown{}, fmt.Errorf("%w: opportunity %q", ErrNotFound, opportunityID)
	}

	b := s.scorer.Score(cand, opp)
	metrics.RecordScoringRequest()
	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	return b, nil
}

// Allocate runs one allocation synchronously and records it. The returned
// run carries the result even when err reports infeasibility or a timeout.
func (s *Service) Allocate(ctx context.Context, req types.AllocateRequest) (types.Run, error) {
	p, err := s.resolve(req)
	if err != nil {
		return types.Run{}, err
	}
	ds, err := s.store.Dataset(ctx)
	if err != nil {
		return types.Run{}, err
	}

	run := types.Run{
		ID:        uuid.NewString(),
		DatasetID: ds.ID,
		Strategy:  p.strategy.String(),
		Status:    types.RunRunning,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return types.Run{}, fmt.Errorf("create run: %w", err)
	}

	res, fellBack, runErr := s.execute(ctx, ds, p)
	run = finish(run, res, fellBack, runErr)
	// The outcome is recorded even when the job deadline has passed.
	if err := s.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		return run, fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	return run, runErr
}

// Submit records a queued run and hands it to the worker pool. A repeated
// idempotency key returns the run it started first; replay reports that case.
func (s *Service) Submit(ctx context.Context, req types.AllocateRequest, idempotencyKey string) (runID string, replay bool, err error) {
	p, err := s.resolve(req)
	if err != nil {
		return "", false, err
	}
	ds, err := s.store.Dataset(ctx)
	if err != nil {
		return "", false, err
	}

	runID = uuid.NewString()
	if idempotencyKey != "" {
		if existing, seen := s.index.Claim(ctx, idempotencyKey, runID); seen {
			metrics.RecordIdempotentReplay()
			s.logger.Debug(ctx, "idempotent replay",
				logger.String("idempotency_key", idempotencyKey),
				logger.String("run_id", existing),
			)
			return existing, true, nil
		}
	}
	release := func() {
		if idempotencyKey != "" {
			s.index.Release(ctx, idempotencyKey)
		}
	}

	run := types.Run{
		ID:             runID,
		DatasetID:      ds.ID,
		Strategy:       p.strategy.String(),
		IdempotencyKey: idempotencyKey,
		Status:         types.RunQueued,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		release()
		return "", false, fmt.Errorf("create run: %w", err)
	}

	job := queue.Job{
		RunID:            runID,
		Strategy:         p.strategy,
		Quotas:           p.quotas,
		Budget:           p.budget,
		FallbackToGreedy: p.fallback,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		release()
		run.Status = types.RunFailed
		run.Error = err.Error()
		if ferr := s.store.FinishRun(ctx, run); ferr != nil {
			s.logger.Warn(ctx, "could not fail unqueued run", logger.String("run_id", runID), logger.Error(ferr))
		}
		return "", false, fmt.Errorf("enqueue run: %w", err)
	}
	return runID, false, nil
}

// Execute runs a queued job. It is the worker pool's Executor.
func (s *Service) Execute(ctx context.Context, job queue.Job) error {
	if err := s.store.StartRun(ctx, job.RunID); err != nil {
		return fmt.Errorf("start run %s: %w", job.RunID, err)
	}
	run, err := s.store.Run(ctx, job.RunID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", job.RunID, err)
	}

	var (
		res      allocation.Result
		fellBack bool
		runErr   error
	)
	ds, err := s.store.Dataset(ctx)
	switch {
	case err != nil:
		runErr = err
	case ds.ID != run.DatasetID:
		runErr = fmt.Errorf("%w: run %s expected %s, found %s", ErrDatasetChanged, run.ID, run.DatasetID, ds.ID)
	default:
		p := plan{strategy: job.Strategy, quotas: job.Quotas, budget: job.Budget, fallback: job.FallbackToGreedy}
		res, fellBack, runErr = s.execute(ctx, ds, p)
	}

	run = finish(run, res, fellBack, runErr)
	// The outcome is recorded even when the job deadline has passed.
	if err := s.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	return nil
}

// Compare runs both strategies on one snapshot. An optimal strategy that is
// infeasible or times out is reported in the comparison, not as an error.
func (s *Service) Compare(ctx context.Context, req types.AllocateRequest) (types.Comparison, error) {
	p, err := s.resolve(req)
	if err != nil {
		return types.Comparison{}, err
	}
	ds, err := s.store.Dataset(ctx)
	if err != nil {
		return types.Comparison{}, err
	}

	var (
		greedy, optimal allocation.Result
		optimalErr      error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		gp := p
		gp.strategy = allocation.StrategyGreedy
		res, _, err := s.execute(gctx, ds, gp)
		greedy = res
		return err
	})
	g.Go(func() error {
		op := p
		op.strategy = allocation.StrategyOptimal
		op.fallback = false
		res, _, err := s.execute(gctx, ds, op)
		if errors.Is(err, allocation.ErrInfeasibleQuota) || errors.Is(err, allocation.ErrSolverTimeout) {
			optimalErr = err
			optimal = res
			return nil
		}
		optimal = res
		return err
	})
	if err := g.Wait(); err != nil {
		return types.Comparison{}, err
	}

	cmp := types.Comparison{Greedy: &greedy}
	if optimalErr != nil {
		cmp.OptimalError = optimalErr.Error()
		return cmp, nil
	}
	cmp.Optimal = &optimal
	cmp.ScoreGain = optimal.TotalScore - greedy.TotalScore
	cmp.AssignmentDiff = optimal.TotalAssigned - greedy.TotalAssigned
	return cmp, nil
}

// Audit measures quota fulfillment of an arbitrary assignment against the
// current candidates.
func (s *Service) Audit(ctx context.Context, placements []model.Placement, quotas model.QuotaSpec) (quota.Report, error) {
	ds, err := s.store.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	if len(quotas) == 0 {
		quotas = s.quotasFor(ds)
	}
	if problems := quotas.Validate(); len(problems) > 0 {
		return nil, &allocation.InvalidInputError{Problems: problems}
	}
	return quota.Audit(placements, ds.Candidates, quotas), nil
}

// Stats summarizes the current dataset.
func (s *Service) Stats(ctx context.Context) (types.DatasetStats, error) {
	ds, err := s.store.Dataset(ctx)
	if err != nil {
		return types.DatasetStats{}, err
	}

	st := types.DatasetStats{
		DatasetID:            ds.ID,
		Candidates:           len(ds.Candidates),
		Opportunities:        len(ds.Opportunities),
		TotalCapacity:        model.TotalCapacity(ds.Opportunities),
		GroupDistribution:    make(map[string]int, len(model.Groups())),
		SectorDistribution:   make(map[string]int),
		LocationDistribution: make(map[string]int),
		Runs:                 s.store.Count(ctx),
	}
	for _, g := range model.Groups() {
		st.GroupDistribution[g.String()] = 0
	}
	for i := range ds.Candidates {
		c := &ds.Candidates[i]
		st.GroupDistribution[c.Group.String()]++
		if c.FromUnderrepresentedRegion {
			st.UnderrepresentedArea++
		}
		if c.HasPriorExperience {
			st.PriorExperience++
		}
	}
	for _, o := range ds.Opportunities {
		st.SectorDistribution[o.Sector]++
		st.LocationDistribution[o.Location]++
	}
	return st, nil
}

// Run returns one recorded run.
func (s *Service) Run(ctx context.Context, id string) (types.Run, error) {
	return s.store.Run(ctx, id)
}

// Runs returns up to limit recorded runs, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]types.Run, error) {
	return s.store.Runs(ctx, limit)
}

// QueueLen returns the number of runs waiting for a worker.
func (s *Service) QueueLen(ctx context.Context) int {
	return s.queue.Len(ctx)
}

func (s *Service) resolve(req types.AllocateRequest) (plan, error) {
	p := plan{
		strategy: s.strategy,
		quotas:   req.Quotas,
		budget:   s.budget,
		fallback: s.fallback,
	}
	if req.Strategy != "" {
		strategy, err := allocation.ParseStrategy(req.Strategy)
		if err != nil {
			return plan{}, &allocation.InvalidInputError{Problems: []string{err.Error()}}
		}
		p.strategy = strategy
	}
	if req.FallbackToGreedy != nil {
		p.fallback = *req.FallbackToGreedy
	}
	if req.TimeoutMs < 0 || req.MaxNodes < 0 {
		return plan{}, &allocation.InvalidInputError{Problems: []string{"budget must be non-negative"}}
	}
	if req.TimeoutMs > 0 {
		p.budget.Timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	if req.MaxNodes > 0 {
		p.budget.MaxNodes = req.MaxNodes
	}
	return p, nil
}

// quotasFor picks the dataset's quotas over the service default.
func (s *Service) quotasFor(ds types.Dataset) model.QuotaSpec {
	if len(ds.Quotas) > 0 {
		return ds.Quotas
	}
	return s.quotas
}

// execute runs the engine once, and once more with greedy when an optimal run
// times out and fallback is enabled.
func (s *Service) execute(ctx context.Context, ds types.Dataset, p plan) (allocation.Result, bool, error) {
	quotas := p.quotas
	if quotas == nil {
		quotas = s.quotasFor(ds)
	}
	req := allocation.Request{
		Candidates:    ds.Candidates,
		Opportunities: ds.Opportunities,
		Quotas:        quotas,
		Strategy:      p.strategy,
		Budget:        p.budget,
	}

	res, err := s.engine.Allocate(ctx, req)
	s.observe(ctx, p.strategy, res, err)
	if !p.fallback || p.strategy != allocation.StrategyOptimal || !errors.Is(err, allocation.ErrSolverTimeout) {
		return res, false, err
	}

	s.logger.Warn(ctx, "optimal strategy timed out, falling back to greedy",
		logger.Duration("timeout", p.budget.Timeout),
		logger.Int("nodes", res.Stats.Nodes),
	)
	req.Strategy = allocation.StrategyGreedy
	res, err = s.engine.Allocate(ctx, req)
	s.observe(ctx, allocation.StrategyGreedy, res, err)
	if err == nil {
		res.Warnings = append(res.Warnings, "optimal strategy timed out; greedy result returned")
	}
	return res, true, err
}

func (s *Service) observe(ctx context.Context, strategy allocation.Strategy, res allocation.Result, err error) {
	status := string(res.Status)
	if status == "" {
		status = "error"
	}
	metrics.RecordAllocation(strategy.String(), status, float64(res.Stats.Elapsed.Microseconds())/1000, res.TotalAssigned)
	if res.Stats.Nodes > 0 {
		metrics.RecordSolverNodes(res.Stats.Nodes)
	}
	keys := make([]string, 0, len(res.QuotaFulfillment))
	for k, f := range res.QuotaFulfillment {
		metrics.UpdateQuotaFulfillment(k.String(), f.Percentage)
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	fields := []logger.Field{
		logger.String("strategy", strategy.String()),
		logger.String("status", status),
		logger.Int("assigned", res.TotalAssigned),
		logger.Float64("total_score", res.TotalScore),
		logger.Duration("elapsed", res.Stats.Elapsed),
		logger.Any("quota_keys", keys),
	}
	if err != nil {
		metrics.RecordErrorByComponent("engine", status)
		s.logger.Warn(ctx, "allocation did not complete", append(fields, logger.Error(err))...)
		return
	}
	s.logger.Info(ctx, "allocation finished", fields...)
}

// finish stamps the terminal state of run from an engine outcome.
func finish(run types.Run, res allocation.Result, fellBack bool, err error) types.Run {
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Fallback = fellBack
	run.Status = types.RunStatusOf(res.Status)
	if res.Status != "" {
		r := res
		run.Result = &r
	}
	if err != nil {
		run.Error = err.Error()
	}
	return run
}
