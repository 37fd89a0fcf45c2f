// Package types contains records shared by the service, its store and its
// transports.
package types

import (
	"errors"
	"time"

	"github.com/okian/placement/internal/domain/allocation"
	"github.com/okian/placement/internal/domain/model"
)

// ErrNotFound marks a lookup of a candidate, opportunity or run that does not
// exist.
var ErrNotFound = errors.New("not found")

// Dataset is the candidate and opportunity snapshot allocation runs read.
type Dataset struct {
	ID            string              `json:"id"`
	Candidates    []model.Candidate   `json:"candidates"`
	Opportunities []model.Opportunity `json:"opportunities"`
	// Quotas overrides the service default when non-empty.
	Quotas   model.QuotaSpec `json:"quotas,omitempty"`
	LoadedAt time.Time       `json:"loaded_at"`
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run lifecycle. Everything past running is terminal.
const (
	RunQueued     RunStatus = "queued"
	RunRunning    RunStatus = "running"
	RunCompleted  RunStatus = RunStatus(allocation.StatusCompleted)
	RunOptimal    RunStatus = RunStatus(allocation.StatusOptimal)
	RunInfeasible RunStatus = RunStatus(allocation.StatusInfeasible)
	RunTimedOut   RunStatus = RunStatus(allocation.StatusTimedOut)
	RunFailed     RunStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s != RunQueued && s != RunRunning
}

// RunStatusOf maps an engine status onto the run lifecycle.
func RunStatusOf(s allocation.Status) RunStatus {
	if s == "" {
		return RunFailed
	}
	return RunStatus(s)
}

// Run is one allocation attempt, sync or async.
type Run struct {
	ID             string             `json:"id"`
	DatasetID      string             `json:"dataset_id"`
	Strategy       string             `json:"strategy"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
	Status         RunStatus          `json:"status"`
	Fallback       bool               `json:"fallback,omitempty"`
	Result         *allocation.Result `json:"result,omitempty"`
	Error          string             `json:"error,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}

// DatasetStats summarizes the loaded dataset.
type DatasetStats struct {
	DatasetID            string         `json:"dataset_id"`
	Candidates           int            `json:"total_candidates"`
	Opportunities        int            `json:"total_opportunities"`
	TotalCapacity        int            `json:"total_capacity"`
	GroupDistribution    map[string]int `json:"category_distribution"`
	SectorDistribution   map[string]int `json:"sector_distribution"`
	LocationDistribution map[string]int `json:"location_distribution"`
	UnderrepresentedArea int            `json:"underrepresented_region_candidates"`
	PriorExperience      int            `json:"prior_experience_candidates"`
	Runs                 int            `json:"runs"`
}

// Comparison holds the outcome of both strategies on one snapshot.
type Comparison struct {
	Greedy         *allocation.Result `json:"greedy"`
	Optimal        *allocation.Result `json:"optimal,omitempty"`
	OptimalError   string             `json:"optimal_error,omitempty"`
	ScoreGain      float64            `json:"score_gain"`
	AssignmentDiff int                `json:"assignment_diff"`
}

// AllocateRequest selects how one run is executed. Zero fields fall back to
// the service defaults.
type AllocateRequest struct {
	Strategy string          `json:"strategy,omitempty" validate:"omitempty,oneof=greedy optimal exact"`
	Quotas   model.QuotaSpec `json:"quotas,omitempty"`
	// FallbackToGreedy overrides the service default when set.
	FallbackToGreedy *bool `json:"fallback,omitempty"`
	TimeoutMs        int   `json:"timeout_ms,omitempty" validate:"gte=0"`
	MaxNodes         int   `json:"max_nodes,omitempty" validate:"gte=0"`
}
