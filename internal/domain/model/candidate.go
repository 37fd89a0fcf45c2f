// Package model contains domain models passed between layers.
package model

// Candidate is a person seeking at most one placement. Candidates are
// read-only inputs to the engine.
type Candidate struct {
	ID                 string   `json:"id"`
	Skills             []string `json:"skills"`
	PreferredLocations []string `json:"preferred_locations"`
	PreferredSectors   []string `json:"preferred_sectors"`
	// AcademicScore is normalized to [0,1].
	AcademicScore              float64 `json:"academic_score"`
	Group                      Group   `json:"group"`
	FromUnderrepresentedRegion bool    `json:"from_underrepresented_region"`
	HasPriorExperience         bool    `json:"has_prior_experience"`
}

// Opportunity offers Capacity independent seats. The engine tracks remaining
// seats on the side and never mutates the record.
type Opportunity struct {
	ID             string   `json:"id"`
	Capacity       int      `json:"capacity"`
	RequiredSkills []string `json:"required_skills"`
	Sector         string   `json:"sector"`
	Location       string   `json:"location"`
	Tier           int      `json:"tier"`
}

// TotalCapacity sums the seats of all opportunities. Negative capacities
// count as zero.
func TotalCapacity(opportunities []Opportunity) int {
	total := 0
	for _, o := range opportunities {
		if o.Capacity > 0 {
			total += o.Capacity
		}
	}
	return total
}

// Placement records one candidate assigned to one opportunity.
type Placement struct {
	CandidateID   string  `json:"candidate_id"`
	OpportunityID string  `json:"opportunity_id"`
	Score         float64 `json:"score"`
	Group         Group   `json:"group"`
}
