// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/placement/internal/adapters/mq/queue"
	repository "github.com/okian/placement/internal/adapters/repository"
	"github.com/okian/placement/internal/dataset"
	"github.com/okian/placement/internal/domain/allocation"
	"github.com/okian/placement/internal/domain/types"
	"github.com/okian/placement/pkg/logger"
)

const (
	maxDatasetBytes = 32 << 20
	maxRequestBytes = 4 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider
	DatasetDependencies
	ScoreDependencies
	AllocateDependencies
	RunDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	datasetHandler  *DatasetHandler
	scoreHandler    *ScoreHandler
	allocateHandler *AllocateHandler
	runsHandler     *RunsHandler
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithRunsLimit caps the limit accepted by GET /runs.
func WithRunsLimit(limit int) Option {
	return func(s *Server) {
		if limit > 0 {
			s.runsHandler.maxLimit = limit
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	validate := validator.New()
	s := &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(deps),
		datasetHandler:  NewDatasetHandler(deps),
		scoreHandler:    NewScoreHandler(deps, validate),
		allocateHandler: NewAllocateHandler(deps, validate),
		runsHandler:     NewRunsHandler(deps, validate),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", instrument("healthz", s.healthHandler.HandleHealth))
	mux.HandleFunc("/stats", instrument("stats", s.statsHandler.HandleStats))
	mux.HandleFunc("/dataset", instrument("dataset", s.datasetHandler.HandlePostDataset))
	mux.HandleFunc("/candidates", instrument("candidates", s.datasetHandler.HandleGetCandidates))
	mux.HandleFunc("/opportunities", instrument("opportunities", s.datasetHandler.HandleGetOpportunities))
	mux.HandleFunc("/score", instrument("score", s.scoreHandler.HandlePostScore))
	mux.HandleFunc("/allocate", instrument("allocate", s.allocateHandler.HandlePostAllocate))
	mux.HandleFunc("/compare", instrument("compare", s.allocateHandler.HandlePostCompare))
	mux.HandleFunc("/audit", instrument("audit", s.allocateHandler.HandlePostAudit))
	mux.HandleFunc("/runs", instrument("runs", s.runsHandler.HandleRuns))
	mux.HandleFunc("/runs/", instrument("run", s.runsHandler.HandleGetRun))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, Details: details(err)})
}

// details extracts the structured part of errors that carry one.
func details(err error) any {
	var invalid *allocation.InvalidInputError
	var infeasible *allocation.InfeasibleQuotaError
	var ve *dataset.ValidationError
	var fieldErrs validator.ValidationErrors
	switch {
	case errors.As(err, &invalid):
		return invalid.Problems
	case errors.As(err, &infeasible):
		return infeasible.Shortfalls
	case errors.As(err, &ve):
		return ve.Errors
	case errors.As(err, &fieldErrs):
		out := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			out = append(out, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
		}
		return out
	default:
		return nil
	}
}

// statusOf maps error kinds from every layer onto a status code and a stable
// error code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, allocation.ErrInvalidInput),
		errors.Is(err, allocation.ErrUnknownStrategy),
		errors.Is(err, dataset.ErrInvalidDataset):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, "method_not_allowed"
	case errors.Is(err, allocation.ErrInfeasibleQuota):
		return http.StatusUnprocessableEntity, "infeasible_quota"
	case errors.Is(err, allocation.ErrSolverTimeout):
		return http.StatusGatewayTimeout, "solver_timeout"
	case errors.Is(err, repository.ErrNoDataset):
		return http.StatusConflict, "no_dataset"
	case errors.Is(err, repository.ErrRunConflict):
		return http.StatusConflict, "run_conflict"
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBackpressure), errors.Is(err, queue.ErrFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, queue.ErrClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.Get().Named("api").Error(context.Background(), "request failed", logger.Error(err))
	}
	writeError(w, status, code, err)
}

// decode reads a JSON body into v and, when validate is set, checks its tags.
// An empty body leaves v at its zero value.
func decode(w http.ResponseWriter, r *http.Request, op string, limit int64, v any, validate *validator.Validate) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return WrapKind(op, ErrBadRequest, err)
	}
	if validate != nil {
		if err := validate.Struct(v); err != nil {
			return WrapKind(op, ErrBadRequest, err)
		}
	}
	return nil
}
