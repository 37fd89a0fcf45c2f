package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/okian/placement/internal/domain/types"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100

	// IdempotencyKeyHeader carries the client key that makes POST /runs safe
	// to retry.
	IdempotencyKeyHeader = "Idempotency-Key"
)

// RunDependencies submits and reads runs.
type RunDependencies interface {
	Submit(ctx context.Context, req types.AllocateRequest, idempotencyKey string) (string, bool, error)
	Run(ctx context.Context, id string) (types.Run, error)
	Runs(ctx context.Context, limit int) ([]types.Run, error)
}

// RunsHandler handles run requests.
type RunsHandler struct {
	deps     RunDependencies
	validate *validator.Validate
	maxLimit int
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps RunDependencies, validate *validator.Validate) *RunsHandler {
	return &RunsHandler{deps: deps, validate: validate, maxLimit: maxRunsLimit}
}

type submitResponse struct {
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// HandleRuns handles POST /runs and GET /runs requests.
func (h *RunsHandler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleSubmit(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
	}
}

func (h *RunsHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_runs"
	var req types.AllocateRequest
	if err := decode(w, r, op, maxRequestBytes, &req, h.validate); err != nil {
		writeServiceError(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	id, replay, err := h.deps.Submit(r.Context(), req, key)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Location", "/runs/"+id)
	if replay {
		writeJSON(w, http.StatusOK, submitResponse{RunID: id, Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{RunID: id, Status: string(types.RunQueued)})
}

func (h *RunsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_runs"
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > h.maxLimit {
			writeServiceError(w, WrapKind(op, ErrBadRequest, errLimit(h.maxLimit)))
			return
		}
		limit = n
	}
	runs, err := h.deps.Runs(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if runs == nil {
		runs = []types.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// HandleGetRun handles GET /runs/{id} requests.
func (h *RunsHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_run"
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/runs/")
	if id == "" || strings.Contains(id, "/") {
		writeServiceError(w, NewKind(op, ErrBadRequest))
		return
	}
	run, err := h.deps.Run(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type errLimit int

func (e errLimit) Error() string {
	return "limit must be an integer between 1 and " + strconv.Itoa(int(e))
}
