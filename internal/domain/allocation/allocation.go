// Package allocation assigns candidates to capacity-bounded opportunities.
//
// Two strategies share one contract:
//
//   - StrategyGreedy: score-ordered single pass. Fast, deterministic, ignores
//     quotas.
//   - StrategyOptimal: exact 0/1 program maximizing total score subject to
//     capacity and quota floors. Reports infeasibility and budget exhaustion
//     instead of degrading.
//
// Engine validates input, runs the selected strategy and audits the result.
// It keeps no state between calls, so one Engine may serve concurrent runs as
// long as each run brings its own snapshot.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/placement/internal/domain/model"
	"github.com/okian/placement/internal/domain/quota"
	"github.com/okian/placement/internal/domain/scoring"
)

// Default solver budget.
const (
	DefaultMaxNodes = 20_000
	DefaultTimeout  = 10 * time.Second
)

// Strategy selects an allocation algorithm.
type Strategy int

// Supported strategies.
const (
	StrategyGreedy Strategy = iota
	StrategyOptimal
)

func (s Strategy) String() string {
	switch s {
	case StrategyGreedy:
		return "greedy"
	case StrategyOptimal:
		return "optimal"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a name onto a Strategy. The empty string selects greedy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "greedy":
		return StrategyGreedy, nil
	case "optimal", "exact":
		return StrategyOptimal, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	switch s {
	case StrategyGreedy, StrategyOptimal:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, int(s))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(b []byte) error {
	v, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Status describes how a run ended.
type Status string

// Run statuses.
const (
	StatusCompleted  Status = "completed"
	StatusOptimal    Status = "optimal"
	StatusInfeasible Status = "infeasible"
	StatusTimedOut   Status = "timed_out"
)

// Budget bounds the exact solver. Zero fields fall back to the engine
// defaults.
type Budget struct {
	MaxNodes int           `json:"max_nodes"`
	Timeout  time.Duration `json:"timeout"`
}

// Problem is a validated snapshot handed to an Allocator.
type Problem struct {
	Candidates    []model.Candidate
	Opportunities []model.Opportunity
	Scores        model.ScoreMatrix
	Quotas        model.QuotaSpec
}

// Outcome is what an Allocator produces.
type Outcome struct {
	Placements []model.Placement
	Status     Status
	Nodes      int
}

// Allocator is one allocation strategy.
type Allocator interface {
	Allocate(ctx context.Context, p *Problem) (Outcome, error)
}

// NewAllocator is a factory that creates the Allocator for strategy.
func NewAllocator(strategy Strategy, budget Budget) (Allocator, error) {
	switch strategy {
	case StrategyGreedy:
		return NewGreedy(), nil
	case StrategyOptimal:
		return NewOptimal(budget), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownStrategy, strategy)
	}
}

// Request is the input to Engine.Allocate.
type Request struct {
	Candidates    []model.Candidate
	Opportunities []model.Opportunity
	// Scores is built with the engine's scorer when nil.
	Scores   *model.ScoreMatrix
	Quotas   model.QuotaSpec
	Strategy Strategy
	Budget   Budget
}

// Stats carries run diagnostics.
type Stats struct {
	Candidates    int           `json:"candidates"`
	Opportunities int           `json:"opportunities"`
	TotalCapacity int           `json:"total_capacity"`
	Edges         int           `json:"edges"`
	Nodes         int           `json:"nodes,omitempty"`
	Elapsed       time.Duration `json:"elapsed_ns"`
}

// Result is the output of Engine.Allocate.
type Result struct {
	Placements       []model.Placement `json:"assignments"`
	TotalScore       float64           `json:"total_score"`
	TotalAssigned    int               `json:"total_assigned"`
	QuotaFulfillment quota.Report      `json:"quota_fulfillment"`
	Status           Status            `json:"status"`
	Strategy         Strategy          `json:"strategy"`
	Warnings         []string          `json:"warnings,omitempty"`
	Stats            Stats             `json:"stats"`
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithScorer sets the scorer used when a request carries no score matrix.
func WithScorer(s *scoring.Scorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.scorer = s
		}
	}
}

// WithBudget sets the default solver budget.
func WithBudget(b Budget) Option {
	return func(e *Engine) {
		if b.MaxNodes > 0 {
			e.budget.MaxNodes = b.MaxNodes
		}
		if b.Timeout > 0 {
			e.budget.Timeout = b.Timeout
		}
	}
}

// Engine runs allocation requests.
type Engine struct {
	scorer *scoring.Scorer
	budget Budget
}

// NewEngine creates an Engine with default scorer and budget.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		scorer: scoring.New(),
		budget: Budget{MaxNodes: DefaultMaxNodes, Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Allocate validates req, runs its strategy and audits the assignment.
//
// Infeasible and timed-out runs return a Result carrying the status and no
// placements, together with the typed error. Invalid input returns only the
// error.
func (e *Engine) Allocate(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	if problems := Validate(req); len(problems) > 0 {
		return Result{}, &InvalidInputError{Problems: problems}
	}

	p := &Problem{
		Candidates:    req.Candidates,
		Opportunities: req.Opportunities,
		Quotas:        req.Quotas,
	}
	if req.Scores != nil {
		p.Scores = *req.Scores
	} else {
		p.Scores = e.scorer.BuildMatrix(req.Candidates, req.Opportunities)
	}

	allocator, err := NewAllocator(req.Strategy, e.effectiveBudget(req.Budget))
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Strategy: req.Strategy,
		Warnings: Warnings(req),
		Stats: Stats{
			Candidates:    len(req.Candidates),
			Opportunities: len(req.Opportunities),
			TotalCapacity: model.TotalCapacity(req.Opportunities),
			Edges:         len(req.Candidates) * len(req.Opportunities),
		},
	}

	out, err := allocator.Allocate(ctx, p)
	res.Stats.Nodes = out.Nodes
	res.Stats.Elapsed = time.Since(start)
	if err != nil {
		var infeasible *InfeasibleQuotaError
		var timeout *SolverTimeoutError
		switch {
		case errors.As(err, &infeasible):
			res.Status = StatusInfeasible
		case errors.As(err, &timeout):
			res.Status = StatusTimedOut
		default:
			return Result{}, err
		}
		res.Placements = []model.Placement{}
		res.QuotaFulfillment = quota.Audit(nil, req.Candidates, req.Quotas)
		return res, err
	}

	if err := CheckConsistency(out.Placements, req.Candidates, req.Opportunities); err != nil {
		return Result{}, err
	}

	res.Placements = out.Placements
	res.Status = out.Status
	res.TotalAssigned = len(out.Placements)
	for _, pl := range out.Placements {
		res.TotalScore += pl.Score
	}
	res.QuotaFulfillment = quota.Audit(out.Placements, req.Candidates, req.Quotas)
	return res, nil
}

func (e *Engine) effectiveBudget(b Budget) Budget {
	if b.MaxNodes <= 0 {
		b.MaxNodes = e.budget.MaxNodes
	}
	if b.Timeout <= 0 {
		b.Timeout = e.budget.Timeout
	}
	return b
}

// CheckConsistency verifies that no candidate is placed twice and no
// opportunity is over capacity.
func CheckConsistency(placements []model.Placement, candidates []model.Candidate, opportunities []model.Opportunity) error {
	capacity := make(map[string]int, len(opportunities))
	for _, o := range opportunities {
		capacity[o.ID] = o.Capacity
	}
	known := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		known[c.ID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(placements))
	used := make(map[string]int, len(opportunities))
	for _, p := range placements {
		if _, ok := known[p.CandidateID]; !ok {
			return fmt.Errorf("%w: unknown candidate %q", ErrInconsistentAssignment, p.CandidateID)
		}
		if _, dup := seen[p.CandidateID]; dup {
			return fmt.Errorf("%w: candidate %q placed twice", ErrInconsistentAssignment, p.CandidateID)
		}
		seen[p.CandidateID] = struct{}{}

		limit, ok := capacity[p.OpportunityID]
		if !ok {
			return fmt.Errorf("%w: unknown opportunity %q", ErrInconsistentAssignment, p.OpportunityID)
		}
		used[p.OpportunityID]++
		if used[p.OpportunityID] > limit {
			return fmt.Errorf("%w: opportunity %q over capacity %d", ErrInconsistentAssignment, p.OpportunityID, limit)
		}
	}
	return nil
}
