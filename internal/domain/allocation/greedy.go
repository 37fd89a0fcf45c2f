package allocation

import (
	"context"
	"sort"

	"github.com/okian/placement/internal/domain/model"
)

// Greedy commits pairs in descending score order. It ignores quotas.
type Greedy struct{}

// NewGreedy creates a Greedy allocator.
func NewGreedy() *Greedy { return &Greedy{} }

type edge struct {
	cand  int
	opp   int
	score float64
}

// Allocate implements Allocator.
//
// Ties on score break by candidate id then opportunity id, so the result does
// not depend on input order.
func (g *Greedy) Allocate(ctx context.Context, p *Problem) (Outcome, error) {
	edges := make([]edge, 0, len(p.Candidates)*len(p.Opportunities))
	remaining := make([]int, len(p.Opportunities))
	for j, o := range p.Opportunities {
		remaining[j] = max(o.Capacity, 0)
		if remaining[j] == 0 {
			continue
		}
		for i, c := range p.Candidates {
			edges = append(edges, edge{cand: i, opp: j, score: p.Scores.Get(c.ID, o.ID)})
		}
	}

	sort.Slice(edges, func(a, b int) bool {
		ea, eb := edges[a], edges[b]
		if ea.score != eb.score {
			return ea.score > eb.score
		}
		ca, cb := p.Candidates[ea.cand].ID, p.Candidates[eb.cand].ID
		if ca != cb {
			return ca < cb
		}
		return p.Opportunities[ea.opp].ID < p.Opportunities[eb.opp].ID
	})

	assigned := make([]bool, len(p.Candidates))
	placements := make([]model.Placement, 0, min(len(p.Candidates), model.TotalCapacity(p.Opportunities)))
	left := len(p.Candidates)
	for n, e := range edges {
		if left == 0 {
			break
		}
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return Outcome{}, err
			}
		}
		if assigned[e.cand] || remaining[e.opp] == 0 {
			continue
		}
		assigned[e.cand] = true
		remaining[e.opp]--
		left--
		c := &p.Candidates[e.cand]
		placements = append(placements, model.Placement{
			CandidateID:   c.ID,
			OpportunityID: p.Opportunities[e.opp].ID,
			Score:         e.score,
			Group:         c.Group,
		})
	}

	return Outcome{Placements: placements, Status: StatusCompleted}, nil
}
