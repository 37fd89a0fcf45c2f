package loadtest

import (
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/okian/placement/internal/dataset"
)

// Candidate skill pools keyed by field of study. Opportunities draw their
// requirements from the pool of the field their sector maps to.
var fieldSkills = map[string][]string{
	"computer_science": {"python", "java", "c++", "sql", "react", "node.js", "cloud computing", "docker"},
	"mechanical":       {"autocad", "solidworks", "matlab", "3d printing", "thermodynamics", "fea"},
	"finance":          {"financial modeling", "excel", "tally", "statistics", "risk analysis", "quickbooks"},
	"marketing":        {"seo", "google analytics", "social media marketing", "content creation", "email marketing"},
}

var fields = []string{"computer_science", "mechanical", "finance", "marketing"}

var sectorField = map[string]string{
	"IT":            "computer_science",
	"Finance":       "finance",
	"Manufacturing": "mechanical",
	"Marketing":     "marketing",
	"Healthcare":    "computer_science",
}

var (
	locations = []string{"Pune", "Mumbai", "Bangalore", "Delhi", "Hyderabad", "Chennai"}
	sectors   = []string{"IT", "Finance", "Manufacturing", "Marketing", "Healthcare"}
	groups    = []string{"GEN", "OBC", "SC", "ST"}
)

// Constants for generated value ranges.
const (
	minCandidateSkills    = 3
	minRequiredSkills     = 2
	preferredPicks        = 2
	cgpaMin               = 6.5
	cgpaMax               = 9.8
	cgpaScale             = 10.0
	regionProbability     = 0.20
	experienceProbability = 0.05
	maxCapacity           = 10
	maxTier               = 3
)

// Generate builds a synthetic dataset document. The same seed always yields
// the same document.
func Generate(seed uint64, candidates, opportunities int) dataset.Document {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	doc := dataset.Document{
		Candidates:    make([]dataset.CandidateDoc, 0, candidates),
		Opportunities: make([]dataset.OpportunityDoc, 0, opportunities),
	}
	for i := 0; i < candidates; i++ {
		doc.Candidates = append(doc.Candidates, generateCandidate(rng, i))
	}
	for i := 0; i < opportunities; i++ {
		doc.Opportunities = append(doc.Opportunities, generateOpportunity(rng, i))
	}
	return doc
}

func generateCandidate(rng *rand.Rand, index int) dataset.CandidateDoc {
	pool := fieldSkills[fields[rng.IntN(len(fields))]]
	cgpa := cgpaMin + rng.Float64()*(cgpaMax-cgpaMin)
	return dataset.CandidateDoc{
		ID:                         "S" + strconv.Itoa(1000+index),
		Skills:                     sample(rng, pool, minCandidateSkills+rng.IntN(len(pool)-minCandidateSkills+1)),
		PreferredLocations:         sample(rng, locations, preferredPicks),
		PreferredSectors:           sample(rng, sectors, preferredPicks),
		AcademicScore:              math.Round(cgpa*100) / 100 / cgpaScale,
		Group:                      groups[rng.IntN(len(groups))],
		FromUnderrepresentedRegion: rng.Float64() < regionProbability,
		HasPriorExperience:         rng.Float64() < experienceProbability,
	}
}

func generateOpportunity(rng *rand.Rand, index int) dataset.OpportunityDoc {
	sector := sectors[rng.IntN(len(sectors))]
	pool := fieldSkills[sectorField[sector]]
	return dataset.OpportunityDoc{
		ID:             "I" + strconv.Itoa(500+index),
		Capacity:       1 + rng.IntN(maxCapacity),
		RequiredSkills: sample(rng, pool, minRequiredSkills+rng.IntN(len(pool)-minRequiredSkills+1)),
		Sector:         sector,
		Location:       locations[rng.IntN(len(locations))],
		Tier:           1 + rng.IntN(maxTier),
	}
}

// sample picks n distinct items of pool in random order.
func sample(rng *rand.Rand, pool []string, n int) []string {
	if n > len(pool) {
		n = len(pool)
	}
	idx := rng.Perm(len(pool))[:n]
	out := make([]string, n)
	for i, j := range idx {
		out[i] = pool[j]
	}
	return out
}
