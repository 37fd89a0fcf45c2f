package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/placement/internal/dataset"
	"github.com/okian/placement/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

const validDataset = `{
  "candidates": [
    {"id": "A", "skills": ["go", "sql"], "preferred_locations": ["Pune"], "academic_score": 0.9, "group": "GEN"},
    {"id": "B", "skills": ["go"], "academic_score": 0.6, "group": "SC", "from_underrepresented_region": true},
    {"id": "C", "skills": ["java"], "academic_score": 0.7, "group": "OBC"}
  ],
  "opportunities": [
    {"id": "O1", "capacity": 1, "required_skills": ["go"], "location": "Pune", "sector": "IT"},
    {"id": "O2", "capacity": 1, "required_skills": ["java"], "sector": "Finance"}
  ]
}`

const infeasibleDataset = `{
  "candidates": [
    {"id": "A", "skills": ["go"], "academic_score": 0.9, "group": "GEN"},
    {"id": "B", "skills": ["go"], "academic_score": 0.6, "group": "SC"}
  ],
  "opportunities": [
    {"id": "O1", "capacity": 2, "required_skills": ["go"]}
  ],
  "quotas": {"SC": 1.0}
}`

const brokenDataset = `{
  "candidates": [{"id": "A", "academic_score": 2, "group": "GEN"}],
  "opportunities": [{"id": "O1"}]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(args ...string) (string, error) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestValidateCommand(t *testing.T) {
	Convey("Given the validate command", t, func() {
		Convey("a valid dataset is summarized", func() {
			out, err := execute("validate", "--dataset", writeFile(t, "ok.json", validDataset))
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "is valid")
			So(out, ShouldContainSubstring, "OBC")
			So(out, ShouldContainSubstring, "Finance")
		})

		Convey("schema problems are listed", func() {
			out, err := execute("validate", "--dataset", writeFile(t, "bad.json", brokenDataset))
			So(err, ShouldNotBeNil)
			So(out, ShouldContainSubstring, "Dataset errors")
			So(out, ShouldContainSubstring, "capacity")
		})

		Convey("a missing file fails", func() {
			_, err := execute("validate", "--dataset", filepath.Join(t.TempDir(), "absent.json"))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRunCommand(t *testing.T) {
	Convey("Given the run command", t, func() {
		path := writeFile(t, "ok.json", validDataset)

		Convey("greedy prints placements and quotas", func() {
			out, err := execute("run", "--dataset", path, "--strategy", "greedy", "--json=false")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "Placements")
			So(out, ShouldContainSubstring, "Quota fulfillment")
			So(out, ShouldContainSubstring, "allocation finished")
		})

		Convey("optimal can be printed as JSON", func() {
			out, err := execute("run", "--dataset", path, "--strategy", "optimal", "--json")
			So(err, ShouldBeNil)
			var run types.Run
			So(json.Unmarshal([]byte(out), &run), ShouldBeNil)
			So(run.Status, ShouldEqual, types.RunOptimal)
			So(run.Result.TotalAssigned, ShouldEqual, 2)
		})

		Convey("infeasible quotas print shortfalls and fail", func() {
			out, err := execute("run", "--dataset", writeFile(t, "sc.json", infeasibleDataset), "--strategy", "optimal", "--json=false")
			So(err, ShouldNotBeNil)
			So(out, ShouldContainSubstring, "Quota shortfalls")
		})

		Convey("an unknown strategy fails", func() {
			_, err := execute("run", "--dataset", path, "--strategy", "random", "--json=false")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestScoreCommand(t *testing.T) {
	Convey("Given the score command", t, func() {
		path := writeFile(t, "ok.json", validDataset)

		Convey("features are listed", func() {
			out, err := execute("score", "--dataset", path, "--candidate", "A", "--opportunity", "O1")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "skill_match")
			So(out, ShouldContainSubstring, "1.0000")
		})

		Convey("an unknown id fails", func() {
			_, err := execute("score", "--dataset", path, "--candidate", "Z", "--opportunity", "O1")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestGenerateCommand(t *testing.T) {
	Convey("Given the generate command", t, func() {
		Convey("a file is written that loads cleanly", func() {
			out := filepath.Join(t.TempDir(), "gen.json")
			_, err := execute("generate", "--candidates", "25", "--opportunities", "5", "--seed", "3", "--out", out)
			So(err, ShouldBeNil)
			ds, err := dataset.Load(out)
			So(err, ShouldBeNil)
			So(ds.Candidates, ShouldHaveLength, 25)
			So(ds.Opportunities, ShouldHaveLength, 5)
		})

		Convey("stdout is used without --out", func() {
			out, err := execute("generate", "--candidates", "2", "--opportunities", "1", "--out", "")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, `"candidates"`)
		})
	})
}
