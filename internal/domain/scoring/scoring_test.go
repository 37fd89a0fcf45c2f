package scoring_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/placement/internal/domain/model"
	scoring "github.com/okian/placement/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func candidate() model.Candidate {
	return model.Candidate{
		ID:                 "stu-1",
		Skills:             []string{"Python", " SQL ", "excel"},
		PreferredLocations: []string{"Pune", "Delhi"},
		PreferredSectors:   []string{"Finance"},
		AcademicScore:      0.8,
		Group:              model.GroupSC,
		HasPriorExperience: true,
	}
}

func TestScorer_Score(t *testing.T) {
	Convey("Given a scorer with default weights", t, func() {
		scorer := scoring.New()
		c := candidate()

		Convey("When every preference matches and all skills are present", func() {
			o := model.Opportunity{ID: "int-1", Capacity: 1, RequiredSkills: []string{"python", "sql"}, Sector: "Finance", Location: "Pune", Tier: 2}
			b := scorer.Score(&c, &o)

			Convey("Then the weighted sum is reported with its features", func() {
				So(b.Value, ShouldAlmostEqual, 0.4+0.2+0.2+0.2*0.8, 1e-12)
				So(b.Features.SkillMatch, ShouldEqual, 1.0)
				So(b.Features.LocationMatch, ShouldEqual, 1.0)
				So(b.Features.SectorMatch, ShouldEqual, 1.0)
				So(b.Features.AcademicScore, ShouldEqual, 0.8)
				So(b.Features.PriorExperience, ShouldEqual, 1.0)
				So(b.Features.CompanyTier, ShouldEqual, 2.0)
				So(b.Features.Group, ShouldEqual, model.GroupSC)
			})
		})

		Convey("When only half the required skills are present", func() {
			o := model.Opportunity{ID: "int-2", RequiredSkills: []string{"python", "go"}, Sector: "health", Location: "mumbai"}
			b := scorer.Score(&c, &o)

			Convey("Then skill match is a fraction of the requirement", func() {
				So(b.Features.SkillMatch, ShouldEqual, 0.5)
				So(b.Features.LocationMatch, ShouldEqual, 0.0)
				So(b.Features.SectorMatch, ShouldEqual, 0.0)
				So(b.Value, ShouldAlmostEqual, 0.4*0.5+0.2*0.8, 1e-12)
			})
		})

		Convey("When location and sector differ from the preferences only in case", func() {
			o := model.Opportunity{ID: "int-5", RequiredSkills: []string{"PYTHON"}, Sector: "FINANCE", Location: "delhi"}
			b := scorer.Score(&c, &o)

			Convey("Then only the skill tokens still match", func() {
				So(b.Features.SkillMatch, ShouldEqual, 1.0)
				So(b.Features.LocationMatch, ShouldEqual, 0.0)
				So(b.Features.SectorMatch, ShouldEqual, 0.0)
				So(b.Value, ShouldAlmostEqual, 0.4+0.2*0.8, 1e-12)
			})
		})

		Convey("When the opportunity requires no skills", func() {
			o := model.Opportunity{ID: "int-3"}
			b := scorer.Score(&c, &o)

			Convey("Then skill match is zero", func() {
				So(b.Features.SkillMatch, ShouldEqual, 0.0)
				So(b.Value, ShouldAlmostEqual, 0.16, 1e-12)
			})
		})

		Convey("When the same pair is scored twice", func() {
			o := model.Opportunity{ID: "int-4", RequiredSkills: []string{"excel", "sql", "r"}, Location: "Delhi"}
			first := scorer.Score(&c, &o)
			second := scorer.Score(&c, &o)

			Convey("Then the output is bit-identical", func() {
				So(math.Float64bits(first.Value), ShouldEqual, math.Float64bits(second.Value))
				So(first, ShouldResemble, second)
			})
		})
	})

	Convey("Given weights that sum above one", t, func() {
		heavy := scoring.Weights{Skill: 1, Location: 1, Sector: 1, Academic: 1}
		c := candidate()
		o := model.Opportunity{ID: "int-1", RequiredSkills: []string{"python"}, Sector: "Finance", Location: "Pune"}

		Convey("When normalization is on", func() {
			b := scoring.New(scoring.WithWeights(heavy)).Score(&c, &o)

			Convey("Then the score is clamped to one", func() {
				So(b.Value, ShouldEqual, 1.0)
			})
		})

		Convey("When normalization is off", func() {
			b := scoring.New(scoring.WithWeights(heavy), scoring.WithoutNormalization()).Score(&c, &o)

			Convey("Then the raw sum is returned", func() {
				So(b.Value, ShouldAlmostEqual, 3.8, 1e-12)
			})
		})
	})

	Convey("Given invalid weights", t, func() {
		bad := scoring.Weights{Skill: -1}

		Convey("Then Validate rejects them", func() {
			So(errors.Is(bad.Validate(), scoring.ErrInvalidWeights), ShouldBeTrue)
		})

		Convey("Then the option keeps the defaults", func() {
			So(scoring.New(scoring.WithWeights(bad)).Weights(), ShouldResemble, scoring.DefaultWeights())
		})
	})
}

func TestSkillMatch(t *testing.T) {
	Convey("Given skill tokens", t, func() {
		Convey("Then duplicate and blank requirements are counted once", func() {
			So(scoring.SkillMatch([]string{"go"}, []string{"Go", "go ", "", "rust"}), ShouldEqual, 0.5)
		})

		Convey("Then a candidate without skills scores zero", func() {
			So(scoring.SkillMatch(nil, []string{"go"}), ShouldEqual, 0.0)
		})
	})
}

func TestScorer_BuildMatrix(t *testing.T) {
	Convey("Given two candidates and two opportunities", t, func() {
		scorer := scoring.New()
		candidates := []model.Candidate{
			{ID: "a", Skills: []string{"python"}, AcademicScore: 0.5},
			{ID: "b", Skills: []string{"sql"}, AcademicScore: 1},
		}
		opportunities := []model.Opportunity{
			{ID: "o1", Capacity: 1, RequiredSkills: []string{"python"}},
			{ID: "o2", Capacity: 1, RequiredSkills: []string{"sql"}},
		}

		Convey("When building the matrix", func() {
			m := scorer.BuildMatrix(candidates, opportunities)

			Convey("Then every pair is scored by id", func() {
				So(m.Len(), ShouldEqual, 4)
				So(m.Get("a", "o1"), ShouldAlmostEqual, 0.5, 1e-12)
				So(m.Get("a", "o2"), ShouldAlmostEqual, 0.1, 1e-12)
				So(m.Get("b", "o2"), ShouldAlmostEqual, 0.6, 1e-12)
				So(m.Get("b", "o1"), ShouldAlmostEqual, 0.2, 1e-12)
			})
		})
	})

	Convey("Given features of a scored pair", t, func() {
		c := candidate()
		o := model.Opportunity{ID: "x", RequiredSkills: []string{"python"}}
		f := scoring.Extract(&c, &o)

		Convey("Then Map exposes every numeric feature by name", func() {
			m := f.Map()
			So(m, ShouldContainKey, scoring.FeatureSkillMatch)
			So(m, ShouldContainKey, scoring.FeatureCompanyTier)
			So(m[scoring.FeatureSkillMatch], ShouldEqual, 1.0)
			So(len(m), ShouldEqual, 7)
		})
	})
}
