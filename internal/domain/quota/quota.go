// Package quota measures how well a finished assignment meets reservation
// targets. It does not care which strategy produced the assignment.
package quota

import (
	"math"

	"github.com/okian/placement/internal/domain/model"
)

const (
	percentScale = 100
	// floorTolerance absorbs binary representation error so that 0.29 × 100
	// yields 29 rather than 28.
	floorTolerance = 1e-9
)

// Fulfillment is the audit outcome for one quota key.
type Fulfillment struct {
	Required   int     `json:"required"`
	Achieved   int     `json:"achieved"`
	Percentage float64 `json:"percentage"`
}

// Met reports whether the achieved count reaches the requirement.
func (f Fulfillment) Met() bool { return f.Achieved >= f.Required }

// Shortfall returns how many seats are missing, or 0.
func (f Fulfillment) Shortfall() int {
	if f.Achieved >= f.Required {
		return 0
	}
	return f.Required - f.Achieved
}

// Report maps each audited quota key to its fulfillment.
type Report map[model.QuotaKey]Fulfillment

// Required converts a fraction of total into a seat count. It truncates:
// floor(fraction × total). Rounding would change which group just misses its
// quota, so the policy is kept explicit here.
func Required(fraction float64, total int) int {
	if fraction <= 0 || total <= 0 || math.IsNaN(fraction) || math.IsInf(fraction, 0) {
		return 0
	}
	return int(math.Floor(fraction*float64(total) + floorTolerance))
}

// Audit computes fulfillment for every key in spec. Placements referring to
// unknown candidates still count toward the total but match no key.
func Audit(placements []model.Placement, candidates []model.Candidate, spec model.QuotaSpec) Report {
	byID := make(map[string]*model.Candidate, len(candidates))
	for i := range candidates {
		byID[candidates[i].ID] = &candidates[i]
	}

	total := len(placements)
	report := make(Report, len(spec))
	for key, fraction := range spec {
		achieved := 0
		for _, p := range placements {
			if c, ok := byID[p.CandidateID]; ok && key.Matches(c) {
				achieved++
			}
		}
		report[key] = Fulfillment{
			Required:   Required(fraction, total),
			Achieved:   achieved,
			Percentage: percentage(achieved, total),
		}
	}
	return report
}

// Unmet returns the keys whose requirement was not reached, sorted.
func (r Report) Unmet() []model.QuotaKey {
	var keys []model.QuotaKey
	spec := make(model.QuotaSpec, len(r))
	for k := range r {
		spec[k] = 0
	}
	for _, k := range spec.Keys() {
		if !r[k].Met() {
			keys = append(keys, k)
		}
	}
	return keys
}

func percentage(achieved, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(achieved) / float64(total) * percentScale
}
