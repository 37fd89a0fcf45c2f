package api

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/placement/internal/domain/scoring"
)

// ScoreDependencies explains the score of one pair.
type ScoreDependencies interface {
	ScorePair(ctx context.Context, candidateID, opportunityID string) (scoring.Breakdown, error)
}

// ScoreHandler handles score requests.
type ScoreHandler struct {
	deps     ScoreDependencies
	validate *validator.Validate
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps ScoreDependencies, validate *validator.Validate) *ScoreHandler {
	return &ScoreHandler{deps: deps, validate: validate}
}

type scoreRequest struct {
	CandidateID   string `json:"candidate_id" validate:"required"`
	OpportunityID string `json:"opportunity_id" validate:"required"`
}

type scoreResponse struct {
	CandidateID   string             `json:"candidate_id"`
	OpportunityID string             `json:"opportunity_id"`
	Score         float64            `json:"score"`
	Features      map[string]float64 `json:"features"`
	Group         string             `json:"group"`
}

// HandlePostScore handles POST /score requests.
func (h *ScoreHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score"
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
		return
	}
	var req scoreRequest
	if err := decode(w, r, op, maxRequestBytes, &req, h.validate); err != nil {
		writeServiceError(w, err)
		return
	}
	b, err := h.deps.ScorePair(r.Context(), req.CandidateID, req.OpportunityID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{
		CandidateID:   req.CandidateID,
		OpportunityID: req.OpportunityID,
		Score:         b.Value,
		Features:      b.Features.Map(),
		Group:         b.Features.Group.String(),
	})
}
