package loadtest

import (
	"fmt"
	"sort"

	"github.com/okian/placement/internal/dataset"
	"github.com/okian/placement/internal/domain/types"
)

// Verify checks settled runs against the document they were computed on and
// returns one message per broken rule. A run with placements must assign
// each candidate at most once, stay within every capacity, and reference
// only known ids. Infeasible and timed out runs must carry no placements.
func Verify(doc dataset.Document, runs []types.Run) []string {
	capacity := make(map[string]int, len(doc.Opportunities))
	for _, o := range doc.Opportunities {
		capacity[o.ID] = o.Capacity
	}
	known := make(map[string]struct{}, len(doc.Candidates))
	for _, c := range doc.Candidates {
		known[c.ID] = struct{}{}
	}

	var problems []string
	for _, run := range runs {
		if run.Result == nil {
			if run.Status != types.RunFailed {
				problems = append(problems, fmt.Sprintf("run %s: status %s without result", run.ID, run.Status))
			}
			continue
		}
		placements := run.Result.Placements
		if run.Status == types.RunInfeasible || run.Status == types.RunTimedOut {
			if len(placements) > 0 {
				problems = append(problems, fmt.Sprintf("run %s: %s with %d placements", run.ID, run.Status, len(placements)))
			}
			continue
		}

		used := map[string]int{}
		assigned := map[string]struct{}{}
		for _, p := range placements {
			if _, ok := known[p.CandidateID]; !ok {
				problems = append(problems, fmt.Sprintf("run %s: unknown candidate %s", run.ID, p.CandidateID))
			}
			if _, ok := capacity[p.OpportunityID]; !ok {
				problems = append(problems, fmt.Sprintf("run %s: unknown opportunity %s", run.ID, p.OpportunityID))
			}
			if _, dup := assigned[p.CandidateID]; dup {
				problems = append(problems, fmt.Sprintf("run %s: candidate %s placed twice", run.ID, p.CandidateID))
			}
			assigned[p.CandidateID] = struct{}{}
			used[p.OpportunityID]++
		}
		over := make([]string, 0)
		for id, n := range used {
			if c, ok := capacity[id]; ok && n > c {
				over = append(over, fmt.Sprintf("run %s: opportunity %s holds %d of %d", run.ID, id, n, c))
			}
		}
		sort.Strings(over)
		problems = append(problems, over...)
		if run.Result.TotalAssigned != len(placements) {
			problems = append(problems, fmt.Sprintf("run %s: total_assigned %d but %d placements",
				run.ID, run.Result.TotalAssigned, len(placements)))
		}
	}
	return problems
}
