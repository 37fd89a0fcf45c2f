package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/placement/internal/domain/allocation"
	"github.com/okian/placement/internal/domain/model"
	"github.com/okian/placement/internal/domain/quota"
	"github.com/okian/placement/internal/domain/types"
)

// AllocateDependencies runs, compares and audits allocations.
type AllocateDependencies interface {
	Allocate(ctx context.Context, req types.AllocateRequest) (types.Run, error)
	Compare(ctx context.Context, req types.AllocateRequest) (types.Comparison, error)
	Audit(ctx context.Context, placements []model.Placement, quotas model.QuotaSpec) (quota.Report, error)
}

// AllocateHandler handles synchronous allocation requests.
type AllocateHandler struct {
	deps     AllocateDependencies
	validate *validator.Validate
}

// NewAllocateHandler creates a new allocate handler.
func NewAllocateHandler(deps AllocateDependencies, validate *validator.Validate) *AllocateHandler {
	return &AllocateHandler{deps: deps, validate: validate}
}

type allocateResponse struct {
	types.Run
	Shortfalls []allocation.Shortfall `json:"shortfalls,omitempty"`
}

type auditRequest struct {
	Placements []model.Placement `json:"placements" validate:"required"`
	Quotas     model.QuotaSpec   `json:"quotas,omitempty"`
}

type auditResponse struct {
	TotalAssigned    int              `json:"total_assigned"`
	QuotaFulfillment quota.Report     `json:"quota_fulfillment"`
	Unmet            []model.QuotaKey `json:"unmet"`
}

// HandlePostAllocate handles POST /allocate requests. Infeasible and timed
// out runs still return the recorded run, with 422 and 504 respectively.
func (h *AllocateHandler) HandlePostAllocate(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_allocate"
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
		return
	}
	var req types.AllocateRequest
	if err := decode(w, r, op, maxRequestBytes, &req, h.validate); err != nil {
		writeServiceError(w, err)
		return
	}

	run, err := h.deps.Allocate(r.Context(), req)
	if err == nil {
		writeJSON(w, http.StatusOK, allocateResponse{Run: run})
		return
	}
	if run.ID == "" {
		writeServiceError(w, err)
		return
	}

	resp := allocateResponse{Run: run}
	var infeasible *allocation.InfeasibleQuotaError
	if errors.As(err, &infeasible) {
		resp.Shortfalls = infeasible.Shortfalls
	}
	status, _ := statusOf(err)
	writeJSON(w, status, resp)
}

// HandlePostCompare handles POST /compare requests.
func (h *AllocateHandler) HandlePostCompare(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_compare"
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
		return
	}
	var req types.AllocateRequest
	if err := decode(w, r, op, maxRequestBytes, &req, h.validate); err != nil {
		writeServiceError(w, err)
		return
	}
	cmp, err := h.deps.Compare(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// HandlePostAudit handles POST /audit requests.
func (h *AllocateHandler) HandlePostAudit(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_audit"
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
		return
	}
	var req auditRequest
	if err := decode(w, r, op, maxRequestBytes, &req, h.validate); err != nil {
		writeServiceError(w, err)
		return
	}
	report, err := h.deps.Audit(r.Context(), req.Placements, req.Quotas)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	unmet := report.Unmet()
	if unmet == nil {
		unmet = []model.QuotaKey{}
	}
	writeJSON(w, http.StatusOK, auditResponse{
		TotalAssigned:    len(req.Placements),
		QuotaFulfillment: report,
		Unmet:            unmet,
	})
}
