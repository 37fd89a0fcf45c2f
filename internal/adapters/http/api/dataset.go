package api

import (
	"context"
	"io"
	"net/http"

	"github.com/okian/placement/internal/dataset"
	"github.com/okian/placement/internal/domain/model"
	"github.com/okian/placement/internal/domain/types"
)

// DatasetDependencies loads and lists the current dataset.
type DatasetDependencies interface {
	LoadDataset(ctx context.Context, ds types.Dataset) (types.Dataset, error)
	Candidates(ctx context.Context) ([]model.Candidate, error)
	Opportunities(ctx context.Context) ([]model.Opportunity, error)
}

// DatasetHandler handles dataset requests.
type DatasetHandler struct {
	deps DatasetDependencies
}

// NewDatasetHandler creates a new dataset handler.
func NewDatasetHandler(deps DatasetDependencies) *DatasetHandler {
	return &DatasetHandler{deps: deps}
}

type datasetResponse struct {
	ID            string `json:"id"`
	Candidates    int    `json:"candidates"`
	Opportunities int    `json:"opportunities"`
	TotalCapacity int    `json:"total_capacity"`
}

// HandlePostDataset handles POST /dataset requests.
func (h *DatasetHandler) HandlePostDataset(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_dataset"
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDatasetBytes))
	if err != nil {
		writeServiceError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	ds, err := dataset.Parse(body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ds, err = h.deps.LoadDataset(r.Context(), ds)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, datasetResponse{
		ID:            ds.ID,
		Candidates:    len(ds.Candidates),
		Opportunities: len(ds.Opportunities),
		TotalCapacity: model.TotalCapacity(ds.Opportunities),
	})
}

// HandleGetCandidates handles GET /candidates requests.
func (h *DatasetHandler) HandleGetCandidates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	cands, err := h.deps.Candidates(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cands)
}

// HandleGetOpportunities handles GET /opportunities requests.
func (h *DatasetHandler) HandleGetOpportunities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	opps, err := h.deps.Opportunities(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, opps)
}
