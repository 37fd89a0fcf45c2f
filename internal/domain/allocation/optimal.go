package allocation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/okian/placement/internal/domain/model"
	"github.com/okian/placement/internal/domain/quota"
)

const (
	// integralityTol is how far an LP value may sit from 0 or 1 and still be
	// read as integral.
	integralityTol = 1e-6
	// improvementTol is the minimum objective gain that replaces an incumbent.
	improvementTol = 1e-9
	simplexTol     = 1e-10
	// maxTableauCells bounds rows×columns of the dense simplex tableau built
	// for one relaxation, about 16 MB of float64. Larger programs time out
	// before any tableau is allocated.
	maxTableauCells = 1 << 21
)

// Optimal solves the 0/1 assignment program exactly with LP-based branch and
// bound:
//
//	maximize   Σ score(c,o)·x(c,o)
//	subject to Σ_o x(c,o) ≤ 1                    for every candidate c
//	           Σ_c x(c,o) ≤ capacity(o)           for every opportunity o
//	           Σ_{c∈k} x(c,o) ≥ ⌊fraction(k)·T⌋   for every quota key k
//	           x ∈ {0,1}
//
// where T is the total capacity. Quota keys with no eligible candidate are
// dropped.
type Optimal struct {
	budget Budget
}

// NewOptimal creates an Optimal allocator bounded by budget.
func NewOptimal(budget Budget) *Optimal {
	if budget.MaxNodes <= 0 {
		budget.MaxNodes = DefaultMaxNodes
	}
	if budget.Timeout <= 0 {
		budget.Timeout = DefaultTimeout
	}
	return &Optimal{budget: budget}
}

type quotaRow struct {
	key      model.QuotaKey
	required int
	eligible []bool // by candidate index
	count    int
}

// program is the integer program built from a Problem.
type program struct {
	p             *Problem
	edges         []edge
	capacity      []int
	totalCapacity int
	quotas        []quotaRow
}

func newProgram(p *Problem) *program {
	prog := &program{
		p:             p,
		capacity:      make([]int, len(p.Opportunities)),
		totalCapacity: model.TotalCapacity(p.Opportunities),
	}
	for j, o := range p.Opportunities {
		prog.capacity[j] = max(o.Capacity, 0)
	}
	for i, c := range p.Candidates {
		for j, o := range p.Opportunities {
			if prog.capacity[j] == 0 {
				continue
			}
			prog.edges = append(prog.edges, edge{cand: i, opp: j, score: p.Scores.Get(c.ID, o.ID)})
		}
	}

	for _, key := range p.Quotas.Keys() {
		required := quota.Required(p.Quotas[key], prog.totalCapacity)
		if required == 0 {
			continue
		}
		row := quotaRow{key: key, required: required, eligible: make([]bool, len(p.Candidates))}
		for i := range p.Candidates {
			if key.Matches(&p.Candidates[i]) {
				row.eligible[i] = true
				row.count++
			}
		}
		if row.count == 0 {
			continue
		}
		prog.quotas = append(prog.quotas, row)
	}
	return prog
}

// preflight reports quota floors that no assignment can meet, without
// running the solver.
func (prog *program) preflight() error {
	var shortfalls []Shortfall
	groupRequired := 0
	for _, q := range prog.quotas {
		available := min(q.count, prog.totalCapacity)
		if q.required > available {
			shortfalls = append(shortfalls, Shortfall{Key: q.key, Required: q.required, Available: available})
		}
		if !q.key.IsRegion() {
			groupRequired += q.required
		}
	}
	// Groups are disjoint, so their floors add up.
	if seats := min(prog.totalCapacity, len(prog.p.Candidates)); groupRequired > seats {
		shortfalls = append(shortfalls, Shortfall{Key: JointGroupQuota, Required: groupRequired, Available: seats})
	}
	if len(shortfalls) > 0 {
		return &InfeasibleQuotaError{Shortfalls: shortfalls}
	}
	return nil
}

// rootCells is the size of the root relaxation's tableau, the largest one the
// search builds: one row per candidate, open opportunity and quota floor, and
// one column per edge plus a slack per row.
func (prog *program) rootCells() int {
	rows := len(prog.p.Candidates) + len(prog.quotas)
	for _, c := range prog.capacity {
		if c > 0 {
			rows++
		}
	}
	return rows * (len(prog.edges) + rows)
}

// feasible reports whether selected (edge indices) meets every constraint.
func (prog *program) feasible(selected []int) bool {
	candUsed := make([]int, len(prog.p.Candidates))
	oppUsed := make([]int, len(prog.p.Opportunities))
	for _, e := range selected {
		ed := prog.edges[e]
		candUsed[ed.cand]++
		oppUsed[ed.opp]++
		if candUsed[ed.cand] > 1 || oppUsed[ed.opp] > prog.capacity[ed.opp] {
			return false
		}
	}
	for _, q := range prog.quotas {
		got := 0
		for _, e := range selected {
			if q.eligible[prog.edges[e].cand] {
				got++
			}
		}
		if got < q.required {
			return false
		}
	}
	return true
}

func (prog *program) value(selected []int) float64 {
	v := 0.0
	for _, e := range selected {
		v += prog.edges[e].score
	}
	return v
}

// Variable states in a branch.
const (
	free int8 = iota - 1
	fixedOut
	fixedIn
)

type relaxation struct {
	feasible bool
	value    float64
	x        []float64 // by edge index
}

type simplexResult struct {
	value float64
	x     []float64
	err   error
}

// relax solves the LP relaxation under the given fixings. Fixed variables are
// substituted out rather than added as rows, and rows that would be empty are
// omitted so the constraint matrix keeps full row rank.
//
// lp.Simplex cannot be interrupted, so it runs on its own goroutine and relax
// returns ctx.Err() as soon as ctx is done. The abandoned solve finishes in
// the background and its result is dropped.
func (prog *program) relax(ctx context.Context, fix []int8) (relaxation, error) {
	nc, no := len(prog.p.Candidates), len(prog.p.Opportunities)
	candUsed := make([]int, nc)
	oppUsed := make([]int, no)
	quotaGot := make([]int, len(prog.quotas))
	fixedValue := 0.0
	for e, f := range fix {
		if f != fixedIn {
			continue
		}
		ed := prog.edges[e]
		candUsed[ed.cand]++
		oppUsed[ed.opp]++
		fixedValue += ed.score
		for k, q := range prog.quotas {
			if q.eligible[ed.cand] {
				quotaGot[k]++
			}
		}
	}
	for i := range candUsed {
		if candUsed[i] > 1 {
			return relaxation{}, nil
		}
	}
	for j := range oppUsed {
		if oppUsed[j] > prog.capacity[j] {
			return relaxation{}, nil
		}
	}

	var vars []int
	for e, f := range fix {
		ed := prog.edges[e]
		if f == free && candUsed[ed.cand] == 0 && oppUsed[ed.opp] < prog.capacity[ed.opp] {
			vars = append(vars, e)
		}
	}

	candRow := make([]int, nc)
	oppRow := make([]int, no)
	for i := range candRow {
		candRow[i] = -1
	}
	for j := range oppRow {
		oppRow[j] = -1
	}
	var (
		rhs   []float64
		sense []float64 // +1 for ≤ rows, -1 for ≥ rows
	)
	for _, e := range vars {
		ed := prog.edges[e]
		if candRow[ed.cand] < 0 {
			candRow[ed.cand] = len(rhs)
			rhs = append(rhs, 1)
			sense = append(sense, 1)
		}
		if oppRow[ed.opp] < 0 {
			oppRow[ed.opp] = len(rhs)
			rhs = append(rhs, float64(prog.capacity[ed.opp]-oppUsed[ed.opp]))
			sense = append(sense, 1)
		}
	}
	quotaRowIdx := make([]int, len(prog.quotas))
	for k, q := range prog.quotas {
		quotaRowIdx[k] = -1
		residual := q.required - quotaGot[k]
		if residual <= 0 {
			continue
		}
		reachable := 0
		for i := range prog.p.Candidates {
			if q.eligible[i] && candRow[i] >= 0 {
				reachable++
			}
		}
		if reachable < residual {
			return relaxation{}, nil
		}
		quotaRowIdx[k] = len(rhs)
		rhs = append(rhs, float64(residual))
		sense = append(sense, -1)
	}

	x := make([]float64, len(prog.edges))
	for e, f := range fix {
		if f == fixedIn {
			x[e] = 1
		}
	}
	if len(vars) == 0 {
		return relaxation{feasible: true, value: fixedValue, x: x}, nil
	}

	rows, cols := len(rhs), len(vars)+len(rhs)
	a := mat.NewDense(rows, cols, nil)
	c := make([]float64, cols)
	for col, e := range vars {
		ed := prog.edges[e]
		c[col] = -ed.score
		a.Set(candRow[ed.cand], col, 1)
		a.Set(oppRow[ed.opp], col, 1)
		for k, q := range prog.quotas {
			if quotaRowIdx[k] >= 0 && q.eligible[ed.cand] {
				a.Set(quotaRowIdx[k], col, 1)
			}
		}
	}
	for r := range rhs {
		a.Set(r, len(vars)+r, sense[r])
	}

	done := make(chan simplexResult, 1)
	go func() {
		optF, optX, err := lp.Simplex(c, a, rhs, simplexTol, nil)
		done <- simplexResult{value: optF, x: optX, err: err}
	}()
	var sr simplexResult
	select {
	case <-ctx.Done():
		return relaxation{}, ctx.Err()
	case sr = <-done:
	}

	if sr.err != nil {
		if errors.Is(sr.err, lp.ErrInfeasible) {
			return relaxation{}, nil
		}
		return relaxation{}, fmt.Errorf("%w: %v", ErrSolverFailure, sr.err)
	}
	for col, e := range vars {
		x[e] = sr.x[col]
	}
	return relaxation{feasible: true, value: fixedValue - sr.value, x: x}, nil
}

// Allocate implements Allocator.
func (o *Optimal) Allocate(ctx context.Context, p *Problem) (Outcome, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.budget.Timeout)
	defer cancel()

	prog := newProgram(p)
	if err := prog.preflight(); err != nil {
		return Outcome{}, err
	}
	if len(prog.edges) == 0 {
		return Outcome{Placements: []model.Placement{}, Status: StatusOptimal}, nil
	}
	if cells := prog.rootCells(); cells > maxTableauCells {
		return Outcome{}, &SolverTimeoutError{
			Elapsed: time.Since(start),
			Reason:  fmt.Sprintf("program needs a %d-cell tableau, limit %d", cells, maxTableauCells),
		}
	}

	var (
		best      []int
		bestValue = math.Inf(-1)
		nodes     int
	)
	if seed, err := NewGreedy().Allocate(ctx, p); err == nil {
		if sel := prog.selection(seed.Placements); prog.feasible(sel) {
			best, bestValue = sel, prog.value(sel)
		}
	}

	root := make([]int8, len(prog.edges))
	for e := range root {
		root[e] = free
	}
	stack := [][]int8{root}
	for len(stack) > 0 {
		if err := o.stopped(ctx, start, nodes); err != nil {
			return Outcome{Nodes: nodes}, err
		}
		if nodes >= o.budget.MaxNodes {
			return Outcome{Nodes: nodes}, &SolverTimeoutError{Nodes: nodes, Elapsed: time.Since(start), Reason: "node limit reached"}
		}

		fix := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		r, err := prog.relax(ctx, fix)
		if stop := o.stopped(ctx, start, nodes); stop != nil {
			return Outcome{Nodes: nodes}, stop
		}
		if err != nil {
			return Outcome{Nodes: nodes}, err
		}
		if !r.feasible {
			continue
		}
		if best != nil && r.value <= bestValue+improvementTol {
			continue
		}

		branch, frac := -1, integralityTol
		for e, v := range r.x {
			if fix[e] != free {
				continue
			}
			if d := math.Min(v, 1-v); d > frac {
				branch, frac = e, d
			}
		}
		if branch < 0 {
			sel := make([]int, 0)
			for e, v := range r.x {
				if v > 0.5 {
					sel = append(sel, e)
				}
			}
			if prog.feasible(sel) {
				if v := prog.value(sel); best == nil || v > bestValue+improvementTol {
					best, bestValue = sel, v
				}
			}
			continue
		}

		out := append([]int8(nil), fix...)
		out[branch] = fixedOut
		in := append([]int8(nil), fix...)
		in[branch] = fixedIn
		stack = append(stack, out, in)
	}

	if best == nil {
		return Outcome{Nodes: nodes}, &InfeasibleQuotaError{}
	}
	return Outcome{Placements: prog.placements(best), Status: StatusOptimal, Nodes: nodes}, nil
}

// stopped reports why the search must end now: a SolverTimeoutError once the
// budget has passed, or the caller's cancellation.
func (o *Optimal) stopped(ctx context.Context, start time.Time, nodes int) error {
	elapsed := time.Since(start)
	err := ctx.Err()
	switch {
	case errors.Is(err, context.DeadlineExceeded), elapsed >= o.budget.Timeout:
		return &SolverTimeoutError{Nodes: nodes, Elapsed: elapsed, Reason: "deadline exceeded"}
	case err != nil:
		return err
	}
	return nil
}

// selection maps placements back onto edge indices.
func (prog *program) selection(placements []model.Placement) []int {
	index := make(map[model.PairKey]int, len(prog.edges))
	for e, ed := range prog.edges {
		index[model.PairKey{
			CandidateID:   prog.p.Candidates[ed.cand].ID,
			OpportunityID: prog.p.Opportunities[ed.opp].ID,
		}] = e
	}
	sel := make([]int, 0, len(placements))
	for _, pl := range placements {
		if e, ok := index[model.PairKey{CandidateID: pl.CandidateID, OpportunityID: pl.OpportunityID}]; ok {
			sel = append(sel, e)
		}
	}
	return sel
}

func (prog *program) placements(selected []int) []model.Placement {
	out := make([]model.Placement, 0, len(selected))
	for _, e := range selected {
		ed := prog.edges[e]
		c := &prog.p.Candidates[ed.cand]
		out = append(out, model.Placement{
			CandidateID:   c.ID,
			OpportunityID: prog.p.Opportunities[ed.opp].ID,
			Score:         ed.score,
			Group:         c.Group,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CandidateID < out[j].CandidateID })
	return out
}
