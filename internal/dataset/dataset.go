// Package dataset reads candidate and opportunity documents.
//
// A document passes three gates before it becomes a types.Dataset: the
// embedded JSON Schema, struct tag validation, and a conversion pass that
// parses group tags and quota keys and rejects duplicate ids.
package dataset

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/okian/placement/internal/domain/model"
	"github.com/okian/placement/internal/domain/types"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

// Schema returns the JSON Schema documents are checked against.
func Schema() []byte { return schemaJSON }

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
})

var validate = sync.OnceValue(func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
})

// Document is the wire form of a dataset.
type Document struct {
	ID            string             `json:"id,omitempty"`
	Candidates    []CandidateDoc     `json:"candidates" validate:"dive"`
	Opportunities []OpportunityDoc   `json:"opportunities" validate:"dive"`
	Quotas        map[string]float64 `json:"quotas,omitempty" validate:"dive,gte=0,lte=1"`
}

// CandidateDoc is a candidate as written in a document.
type CandidateDoc struct {
	ID                         string   `json:"id" validate:"required"`
	Skills                     []string `json:"skills,omitempty"`
	PreferredLocations         []string `json:"preferred_locations,omitempty"`
	PreferredSectors           []string `json:"preferred_sectors,omitempty"`
	AcademicScore              float64  `json:"academic_score" validate:"gte=0,lte=1"`
	Group                      string   `json:"group" validate:"required"`
	FromUnderrepresentedRegion bool     `json:"from_underrepresented_region"`
	HasPriorExperience         bool     `json:"has_prior_experience"`
}

// OpportunityDoc is an opportunity as written in a document.
type OpportunityDoc struct {
	ID             string   `json:"id" validate:"required"`
	Capacity       int      `json:"capacity" validate:"gte=0"`
	RequiredSkills []string `json:"required_skills,omitempty"`
	Sector         string   `json:"sector,omitempty"`
	Location       string   `json:"location,omitempty"`
	Tier           int      `json:"tier,omitempty" validate:"gte=0"`
}

// Parse validates and converts a JSON document. Rejections are returned as
// *ValidationError.
func Parse(data []byte) (types.Dataset, error) {
	schema, err := compiledSchema()
	if err != nil {
		return types.Dataset{}, fmt.Errorf("compile dataset schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		ve := &ValidationError{}
		ve.add("(root)", "malformed JSON: %v", err)
		return types.Dataset{}, ve
	}
	if !result.Valid() {
		ve := &ValidationError{}
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "" {
				field = "(root)"
			}
			ve.add(field, "%s", desc.Description())
		}
		return types.Dataset{}, ve
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		ve := &ValidationError{}
		ve.add("(root)", "decode: %v", err)
		return types.Dataset{}, ve
	}
	return doc.Convert()
}

// Load reads and parses a document from disk.
func Load(path string) (types.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Dataset{}, fmt.Errorf("read dataset %s: %w", path, err)
	}
	ds, err := Parse(data)
	if err != nil {
		return types.Dataset{}, fmt.Errorf("dataset %s: %w", path, err)
	}
	return ds, nil
}

// Convert checks struct tags and turns the document into domain records.
func (d *Document) Convert() (types.Dataset, error) {
	ve := &ValidationError{}

	if err := validate().Struct(d); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return types.Dataset{}, fmt.Errorf("validate dataset: %w", err)
		}
		for _, fe := range fieldErrs {
			ve.add(trimRoot(fe.Namespace()), "failed %q constraint", fe.Tag())
		}
	}

	ds := types.Dataset{
		ID:            d.ID,
		Candidates:    make([]model.Candidate, 0, len(d.Candidates)),
		Opportunities: make([]model.Opportunity, 0, len(d.Opportunities)),
	}

	seen := make(map[string]int, len(d.Candidates))
	for i, c := range d.Candidates {
		field := fmt.Sprintf("candidates[%d]", i)
		if first, dup := seen[c.ID]; dup && c.ID != "" {
			ve.add(field+".id", "duplicate of candidates[%d]", first)
		}
		seen[c.ID] = i

		group, err := model.ParseGroup(c.Group)
		if err != nil && c.Group != "" {
			ve.add(field+".group", "%v", err)
		}
		ds.Candidates = append(ds.Candidates, model.Candidate{
			ID:                         c.ID,
			Skills:                     c.Skills,
			PreferredLocations:         c.PreferredLocations,
			PreferredSectors:           c.PreferredSectors,
			AcademicScore:              c.AcademicScore,
			Group:                      group,
			FromUnderrepresentedRegion: c.FromUnderrepresentedRegion,
			HasPriorExperience:         c.HasPriorExperience,
		})
	}

	clear(seen)
	for i, o := range d.Opportunities {
		if first, dup := seen[o.ID]; dup && o.ID != "" {
			ve.add(fmt.Sprintf("opportunities[%d].id", i), "duplicate of opportunities[%d]", first)
		}
		seen[o.ID] = i
		ds.Opportunities = append(ds.Opportunities, model.Opportunity{
			ID:             o.ID,
			Capacity:       o.Capacity,
			RequiredSkills: o.RequiredSkills,
			Sector:         o.Sector,
			Location:       o.Location,
			Tier:           o.Tier,
		})
	}

	if len(d.Quotas) > 0 {
		ds.Quotas = make(model.QuotaSpec, len(d.Quotas))
		for raw, fraction := range d.Quotas {
			key, err := model.ParseQuotaKey(raw)
			if err != nil {
				ve.add("quotas."+raw, "%v", err)
				continue
			}
			if _, dup := ds.Quotas[key]; dup {
				ve.add("quotas."+raw, "duplicate of quota %s", key)
				continue
			}
			ds.Quotas[key] = fraction
		}
		for _, problem := range ds.Quotas.Validate() {
			ve.add("quotas", "%s", problem)
		}
	}

	if len(ve.Errors) > 0 {
		return types.Dataset{}, ve
	}
	return ds, nil
}

// trimRoot drops the struct name validator puts in front of every path.
func trimRoot(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
