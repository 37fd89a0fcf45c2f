// Package config defines service configuration structures and loading hooks.
//
// Keys are flat so that every field maps onto one PLACEMENT_* variable.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/okian/placement/internal/domain/allocation"
	"github.com/okian/placement/internal/domain/model"
	"github.com/okian/placement/internal/domain/scoring"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory run queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of run workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds the idempotency key index.
	DedupeSize int `koanf:"dedupe_size"`

	// Strategy is used when a request names none.
	Strategy        string `koanf:"strategy"`
	SolverTimeoutMS int    `koanf:"solver_timeout_ms"`
	SolverMaxNodes  int    `koanf:"solver_max_nodes"`
	// FallbackToGreedy reruns timed-out optimal requests greedily.
	FallbackToGreedy bool `koanf:"fallback_to_greedy"`
	// JobTimeoutMS bounds a queued run including any fallback. 0 disables it.
	JobTimeoutMS int `koanf:"job_timeout_ms"`

	NormalizeScores bool    `koanf:"normalize_scores"`
	WeightSkill     float64 `koanf:"weight_skill"`
	WeightLocation  float64 `koanf:"weight_location"`
	WeightSector    float64 `koanf:"weight_sector"`
	WeightAcademic  float64 `koanf:"weight_academic"`

	QuotaSC     float64 `koanf:"quota_sc"`
	QuotaST     float64 `koanf:"quota_st"`
	QuotaOBC    float64 `koanf:"quota_obc"`
	QuotaRegion float64 `koanf:"quota_region"`

	// Store selects the run repository: memory or postgres.
	Store       string `koanf:"store"`
	DatabaseURL string `koanf:"database_url"`
	// MaxRunHistory caps runs kept by the memory store.
	MaxRunHistory int `koanf:"max_run_history"`
	// MaxRunsLimit caps GET /runs?limit.
	MaxRunsLimit int `koanf:"max_runs_limit"`

	// DatasetPath optionally preloads a dataset at startup.
	DatasetPath string `koanf:"dataset_path"`
}

// New creates a Config populated with defaults.
func New() *Config {
	w := scoring.DefaultWeights()
	q := model.DefaultQuotaSpec()
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		QueueSize:       1_024,
		WorkerCount:     runtime.NumCPU(),
		DedupeSize:      10_000,
		Strategy:        allocation.StrategyGreedy.String(),
		SolverTimeoutMS: int(allocation.DefaultTimeout / time.Millisecond),
		SolverMaxNodes:  allocation.DefaultMaxNodes,
		NormalizeScores: true,
		WeightSkill:     w.Skill,
		WeightLocation:  w.Location,
		WeightSector:    w.Sector,
		WeightAcademic:  w.Academic,
		QuotaSC:         q[model.GroupQuota(model.GroupSC)],
		QuotaST:         q[model.GroupQuota(model.GroupST)],
		QuotaOBC:        q[model.GroupQuota(model.GroupOBC)],
		QuotaRegion:     q[model.RegionQuota],
		Store:           StoreMemory,
		MaxRunHistory:   1_000,
		MaxRunsLimit:    100,
	}
}

// Weights returns the scoring weights.
func (c *Config) Weights() scoring.Weights {
	return scoring.Weights{
		Skill:    c.WeightSkill,
		Location: c.WeightLocation,
		Sector:   c.WeightSector,
		Academic: c.WeightAcademic,
	}
}

// Quotas returns the default quota spec. Zero fractions are left out.
func (c *Config) Quotas() model.QuotaSpec {
	q := model.QuotaSpec{}
	for key, f := range map[model.QuotaKey]float64{
		model.GroupQuota(model.GroupSC):  c.QuotaSC,
		model.GroupQuota(model.GroupST):  c.QuotaST,
		model.GroupQuota(model.GroupOBC): c.QuotaOBC,
		model.RegionQuota:                c.QuotaRegion,
	} {
		if f != 0 {
			q[key] = f
		}
	}
	return q
}

// Budget returns the solver budget.
func (c *Config) Budget() allocation.Budget {
	return allocation.Budget{
		MaxNodes: c.SolverMaxNodes,
		Timeout:  time.Duration(c.SolverTimeoutMS) * time.Millisecond,
	}
}

// JobTimeout returns the per-run deadline applied by workers.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutMS) * time.Millisecond
}

// DefaultStrategy parses Strategy.
func (c *Config) DefaultStrategy() (allocation.Strategy, error) {
	return allocation.ParseStrategy(c.Strategy)
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.SolverTimeoutMS <= 0 || c.SolverMaxNodes <= 0:
		return fmt.Errorf("%w: solver budget must be positive", ErrInvalidConfig)
	case c.JobTimeoutMS < 0:
		return fmt.Errorf("%w: job_timeout_ms must not be negative", ErrInvalidConfig)
	case c.MaxRunHistory <= 0 || c.MaxRunsLimit <= 0:
		return fmt.Errorf("%w: run history limits must be positive", ErrInvalidConfig)
	}

	if _, err := c.DefaultStrategy(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Weights().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if problems := c.Quotas().Validate(); len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	switch strings.ToLower(c.Store) {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: database_url is required for the postgres store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
