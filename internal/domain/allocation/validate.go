package allocation

import (
	"fmt"
	"math"

	"github.com/okian/placement/internal/domain/model"
)

// Validate returns every structural problem in req. An empty slice means the
// request can be allocated.
func Validate(req Request) []string {
	var problems []string

	candidates := make(map[string]struct{}, len(req.Candidates))
	for i, c := range req.Candidates {
		switch {
		case c.ID == "":
			problems = append(problems, fmt.Sprintf("candidate[%d]: empty id", i))
		default:
			if _, dup := candidates[c.ID]; dup {
				problems = append(problems, fmt.Sprintf("candidate %q: duplicate id", c.ID))
			}
			candidates[c.ID] = struct{}{}
		}
		if math.IsNaN(c.AcademicScore) || c.AcademicScore < 0 || c.AcademicScore > 1 {
			problems = append(problems, fmt.Sprintf("candidate %q: academic score %v outside [0,1]", c.ID, c.AcademicScore))
		}
		if !c.Group.Valid() {
			problems = append(problems, fmt.Sprintf("candidate %q: unknown group %q", c.ID, c.Group))
		}
	}

	opportunities := make(map[string]struct{}, len(req.Opportunities))
	for i, o := range req.Opportunities {
		switch {
		case o.ID == "":
			problems = append(problems, fmt.Sprintf("opportunity[%d]: empty id", i))
		default:
			if _, dup := opportunities[o.ID]; dup {
				problems = append(problems, fmt.Sprintf("opportunity %q: duplicate id", o.ID))
			}
			opportunities[o.ID] = struct{}{}
		}
		if o.Capacity < 0 {
			problems = append(problems, fmt.Sprintf("opportunity %q: negative capacity %d", o.ID, o.Capacity))
		}
	}

	for _, p := range req.Quotas.Validate() {
		problems = append(problems, "quota "+p)
	}

	if req.Scores != nil {
		for _, pair := range req.Scores.Pairs() {
			s, _ := req.Scores.Lookup(pair.CandidateID, pair.OpportunityID)
			if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
				problems = append(problems, fmt.Sprintf("score %s/%s: %v is not a finite non-negative number",
					pair.CandidateID, pair.OpportunityID, s))
			}
		}
	}

	if req.Strategy != StrategyGreedy && req.Strategy != StrategyOptimal {
		problems = append(problems, fmt.Sprintf("unknown strategy %v", req.Strategy))
	}
	if req.Budget.MaxNodes < 0 {
		problems = append(problems, fmt.Sprintf("budget: negative max nodes %d", req.Budget.MaxNodes))
	}
	if req.Budget.Timeout < 0 {
		problems = append(problems, fmt.Sprintf("budget: negative timeout %s", req.Budget.Timeout))
	}

	return problems
}

// Warnings lists non-fatal observations about req, such as group quota
// fractions that add up to more than the whole pool.
func Warnings(req Request) []string {
	var warnings []string
	if sum := req.Quotas.GroupSum(); sum > 1 {
		warnings = append(warnings, fmt.Sprintf("group quota fractions sum to %.3f, exceeding 1", sum))
	}
	if req.Strategy == StrategyGreedy && len(req.Quotas) > 0 {
		warnings = append(warnings, "greedy strategy does not enforce quotas; fulfillment is reported only")
	}
	if model.TotalCapacity(req.Opportunities) == 0 && len(req.Candidates) > 0 {
		warnings = append(warnings, "no opportunity has capacity; nothing can be assigned")
	}
	return warnings
}
