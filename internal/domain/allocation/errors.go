package allocation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/placement/internal/domain/model"
)

// Sentinel kinds for allocation errors. Typed errors below unwrap to these so
// callers can use errors.Is without knowing the concrete type.
var (
	ErrInvalidInput           = errors.New("invalid allocation input")
	ErrInfeasibleQuota        = errors.New("quota constraints are infeasible")
	ErrSolverTimeout          = errors.New("solver budget exhausted")
	ErrSolverFailure          = errors.New("solver failure")
	ErrUnknownStrategy        = errors.New("unknown allocation strategy")
	ErrInconsistentAssignment = errors.New("inconsistent assignment")
)

// JointGroupQuota labels the shortfall raised when group quotas together ask
// for more seats than can be filled.
const JointGroupQuota model.QuotaKey = "ALL_GROUPS"

// InvalidInputError lists every problem found in a request.
type InvalidInputError struct {
	Problems []string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidInput, strings.Join(e.Problems, "; "))
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// Shortfall says how far a quota is from being satisfiable.
type Shortfall struct {
	Key       model.QuotaKey `json:"key"`
	Required  int            `json:"required"`
	Available int            `json:"available"`
}

// Missing is the number of seats that cannot be found.
func (s Shortfall) Missing() int { return s.Required - s.Available }

func (s Shortfall) String() string {
	return fmt.Sprintf("%s requires %d, only %d available (short by %d)", s.Key, s.Required, s.Available, s.Missing())
}

// InfeasibleQuotaError reports quota floors that cannot all hold at once.
// Shortfalls is empty when infeasibility only shows up in the solver.
type InfeasibleQuotaError struct {
	Shortfalls []Shortfall
}

func (e *InfeasibleQuotaError) Error() string {
	if len(e.Shortfalls) == 0 {
		return ErrInfeasibleQuota.Error() + ": no assignment satisfies capacity and quota floors together"
	}
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = s.String()
	}
	return fmt.Sprintf("%s: %s", ErrInfeasibleQuota, strings.Join(parts, "; "))
}

func (e *InfeasibleQuotaError) Unwrap() error { return ErrInfeasibleQuota }

// SolverTimeoutError reports that the exact solver stopped before proving
// optimality.
type SolverTimeoutError struct {
	Nodes   int
	Elapsed time.Duration
	Reason  string
}

func (e *SolverTimeoutError) Error() string {
	return fmt.Sprintf("%s: %s after %d nodes in %s", ErrSolverTimeout, e.Reason, e.Nodes, e.Elapsed)
}

func (e *SolverTimeoutError) Unwrap() error { return ErrSolverTimeout }
