package service

import (
	"time"

	repository "github.com/okian/placement/internal/adapters/repository"
	"github.com/okian/placement/internal/domain/allocation"
	"github.com/okian/placement/internal/domain/model"
	"github.com/okian/placement/internal/domain/scoring"
	"github.com/okian/placement/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued runs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many idempotency keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWeights sets the scorer weights.
func WithWeights(w scoring.Weights) Option {
	return func(s *Service) {
		s.weights = w
	}
}

// WithNormalization toggles clamping scores to [0,1].
func WithNormalization(enabled bool) Option {
	return func(s *Service) {
		s.normalize = enabled
	}
}

// WithStrategy sets the strategy used when a request names none.
func WithStrategy(strategy allocation.Strategy) Option {
	return func(s *Service) {
		s.strategy = strategy
	}
}

// WithBudget sets the default solver budget.
func WithBudget(b allocation.Budget) Option {
	return func(s *Service) {
		s.budget = b
	}
}

// WithQuotas sets the quotas used when neither the request nor the dataset
// carries any.
func WithQuotas(q model.QuotaSpec) Option {
	return func(s *Service) {
		s.quotas = q.Clone()
	}
}

// WithFallbackToGreedy makes a timed-out optimal run fall back to greedy
// unless the request says otherwise.
func WithFallbackToGreedy(enabled bool) Option {
	return func(s *Service) {
		s.fallback = enabled
	}
}

// WithJobTimeout bounds each queued run, fallback included. Zero leaves runs
// limited by the solver budget alone.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.jobTimeout = d
		}
	}
}

// WithStore replaces the in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithEngine replaces the allocation engine built from the scorer options.
func WithEngine(e Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}
