// Package scoring turns a (candidate, opportunity) pair into a compatibility
// score and the named features behind it.
package scoring

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/okian/placement/internal/domain/model"
)

// Default weights. They sum to 1.
const (
	defaultSkillWeight    = 0.4
	defaultLocationWeight = 0.2
	defaultSectorWeight   = 0.2
	defaultAcademicWeight = 0.2
	maxScoreValue         = 1.0
)

// Feature names reported in Features.Map.
const (
	FeatureSkillMatch             = "skill_match"
	FeatureLocationMatch          = "location_match"
	FeatureSectorMatch            = "sector_match"
	FeatureAcademicScore          = "academic_score"
	FeaturePriorExperience        = "prior_experience"
	FeatureUnderrepresentedRegion = "underrepresented_region"
	FeatureCompanyTier            = "company_tier"
)

// Weights controls how much each feature contributes to the final score.
type Weights struct {
	Skill    float64 `json:"skill"`
	Location float64 `json:"location"`
	Sector   float64 `json:"sector"`
	Academic float64 `json:"academic"`
}

// DefaultWeights returns the stock weighting.
func DefaultWeights() Weights {
	return Weights{
		Skill:    defaultSkillWeight,
		Location: defaultLocationWeight,
		Sector:   defaultSectorWeight,
		Academic: defaultAcademicWeight,
	}
}

// Validate rejects negative or non-finite weights.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"skill":    w.Skill,
		"location": w.Location,
		"sector":   w.Sector,
		"academic": w.Academic,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s weight %v", ErrInvalidWeights, name, v)
		}
	}
	return nil
}

// Features are the sub-scores behind a Breakdown. Only the first four are
// weighted; the rest are reported for explainability.
type Features struct {
	SkillMatch             float64     `json:"skill_match"`
	LocationMatch          float64     `json:"location_match"`
	SectorMatch            float64     `json:"sector_match"`
	AcademicScore          float64     `json:"academic_score"`
	PriorExperience        float64     `json:"prior_experience"`
	UnderrepresentedRegion float64     `json:"underrepresented_region"`
	CompanyTier            float64     `json:"company_tier"`
	Group                  model.Group `json:"group"`
}

// Map returns the numeric features keyed by name.
func (f Features) Map() map[string]float64 {
	return map[string]float64{
		FeatureSkillMatch:             f.SkillMatch,
		FeatureLocationMatch:          f.LocationMatch,
		FeatureSectorMatch:            f.SectorMatch,
		FeatureAcademicScore:          f.AcademicScore,
		FeaturePriorExperience:        f.PriorExperience,
		FeatureUnderrepresentedRegion: f.UnderrepresentedRegion,
		FeatureCompanyTier:            f.CompanyTier,
	}
}

// Breakdown is a score together with the features that produced it.
type Breakdown struct {
	Value    float64  `json:"score"`
	Features Features `json:"features"`
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithWeights replaces the default weights. Invalid weights are ignored.
func WithWeights(w Weights) Option {
	return func(s *Scorer) {
		if w.Validate() == nil {
			s.weights = w
		}
	}
}

// WithoutNormalization lets scores exceed 1. They are still floored at 0.
func WithoutNormalization() Option {
	return func(s *Scorer) {
		s.normalize = false
	}
}

// WithNormalization toggles clamping to [0,1].
func WithNormalization(enabled bool) Option {
	return func(s *Scorer) {
		s.normalize = enabled
	}
}

// Scorer computes weighted compatibility scores. It holds only configuration,
// so a single value may be shared across goroutines.
type Scorer struct {
	weights   Weights
	normalize bool
}

// New creates a Scorer with default weights and normalization on.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		weights:   DefaultWeights(),
		normalize: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Weights returns the weights in effect.
func (s *Scorer) Weights() Weights { return s.weights }

// Score computes the score for one pair.
func (s *Scorer) Score(c *model.Candidate, o *model.Opportunity) Breakdown {
	f := Extract(c, o)
	value := f.SkillMatch*s.weights.Skill +
		f.LocationMatch*s.weights.Location +
		f.SectorMatch*s.weights.Sector +
		f.AcademicScore*s.weights.Academic

	value = math.Max(0, value)
	if s.normalize {
		value = math.Min(maxScoreValue, value)
	}
	return Breakdown{Value: value, Features: f}
}

// BuildMatrix scores every (candidate, opportunity) pair.
func (s *Scorer) BuildMatrix(candidates []model.Candidate, opportunities []model.Opportunity) model.ScoreMatrix {
	scores := make(map[model.PairKey]float64, len(candidates)*len(opportunities))
	for i := range candidates {
		for j := range opportunities {
			key := model.PairKey{CandidateID: candidates[i].ID, OpportunityID: opportunities[j].ID}
			scores[key] = s.Score(&candidates[i], &opportunities[j]).Value
		}
	}
	return model.NewScoreMatrix(scores)
}

// Extract computes the raw features for a pair.
func Extract(c *model.Candidate, o *model.Opportunity) Features {
	return Features{
		SkillMatch:             SkillMatch(c.Skills, o.RequiredSkills),
		LocationMatch:          indicator(slices.Contains(c.PreferredLocations, o.Location)),
		SectorMatch:            indicator(slices.Contains(c.PreferredSectors, o.Sector)),
		AcademicScore:          c.AcademicScore,
		PriorExperience:        indicator(c.HasPriorExperience),
		UnderrepresentedRegion: indicator(c.FromUnderrepresentedRegion),
		CompanyTier:            float64(o.Tier),
		Group:                  c.Group,
	}
}

// SkillMatch returns the share of required skills the candidate has. Tokens
// are compared case-insensitively; an empty requirement scores 0.
func SkillMatch(have, required []string) float64 {
	req := tokenSet(required)
	if len(req) == 0 {
		return 0
	}
	got := tokenSet(have)
	matched := 0
	for tok := range req {
		if _, ok := got[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(req))
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if n := normalizeToken(t); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
