package loadtest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/placement/internal/adapters/http/api"
	service "github.com/okian/placement/internal/app"
	"github.com/okian/placement/internal/dataset"
	"github.com/okian/placement/internal/domain/allocation"
	"github.com/okian/placement/internal/domain/model"
	"github.com/okian/placement/internal/domain/types"
	"github.com/okian/placement/internal/loadtest"
	"github.com/okian/placement/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestGenerate(t *testing.T) {
	Convey("Given a seed", t, func() {
		a := loadtest.Generate(7, 40, 6)
		b := loadtest.Generate(7, 40, 6)

		Convey("the document is reproducible", func() {
			So(a, ShouldResemble, b)
			So(loadtest.Generate(8, 40, 6), ShouldNotResemble, a)
		})

		Convey("the document passes dataset validation", func() {
			data, err := json.Marshal(a)
			So(err, ShouldBeNil)
			ds, err := dataset.Parse(data)
			So(err, ShouldBeNil)
			So(ds.Candidates, ShouldHaveLength, 40)
			So(ds.Opportunities, ShouldHaveLength, 6)
			for _, o := range ds.Opportunities {
				So(o.Capacity, ShouldBeBetweenOrEqual, 1, 10)
				So(len(o.RequiredSkills), ShouldBeGreaterThanOrEqualTo, 2)
			}
			for _, c := range ds.Candidates {
				So(c.AcademicScore, ShouldBeBetweenOrEqual, 0.65, 0.98)
				So(len(c.PreferredLocations), ShouldEqual, 2)
			}
		})
	})
}

func TestVerify(t *testing.T) {
	Convey("Given a small document", t, func() {
		doc := dataset.Document{
			Candidates:    []dataset.CandidateDoc{{ID: "A", Group: "GEN"}, {ID: "B", Group: "SC"}},
			Opportunities: []dataset.OpportunityDoc{{ID: "O1", Capacity: 1}},
		}
		place := func(c, o string) model.Placement { return model.Placement{CandidateID: c, OpportunityID: o} }

		Convey("a sound run passes", func() {
			runs := []types.Run{{ID: "r1", Status: types.RunCompleted, Result: &allocation.Result{
				Placements: []model.Placement{place("A", "O1")}, TotalAssigned: 1,
			}}}
			So(loadtest.Verify(doc, runs), ShouldBeEmpty)
		})

		Convey("over capacity and double placement are reported", func() {
			runs := []types.Run{{ID: "r1", Status: types.RunCompleted, Result: &allocation.Result{
				Placements: []model.Placement{place("A", "O1"), place("A", "O1"), place("B", "O1")}, TotalAssigned: 3,
			}}}
			problems := loadtest.Verify(doc, runs)
			So(problems, ShouldHaveLength, 2)
			So(problems, ShouldContain, "run r1: candidate A placed twice")
			So(problems, ShouldContain, "run r1: opportunity O1 holds 3 of 1")
		})

		Convey("an infeasible run must be empty", func() {
			runs := []types.Run{{ID: "r2", Status: types.RunInfeasible, Result: &allocation.Result{
				Placements: []model.Placement{place("B", "O1")}, TotalAssigned: 1,
			}}}
			So(loadtest.Verify(doc, runs), ShouldHaveLength, 1)
		})

		Convey("failed runs without a result are accepted", func() {
			So(loadtest.Verify(doc, []types.Run{{ID: "r3", Status: types.RunFailed}}), ShouldBeEmpty)
			So(loadtest.Verify(doc, []types.Run{{ID: "r4", Status: types.RunCompleted}}), ShouldHaveLength, 1)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running placement server", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(2))
		So(svc.Start(ctx), ShouldBeNil)
		mux := http.NewServeMux()
		api.NewServer(svc).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		Reset(func() {
			srv.Close()
			_ = svc.Shutdown(ctx)
		})

		out := filepath.Join(t.TempDir(), "data", "dataset.json")
		cfg := &loadtest.Config{
			BaseURL:       srv.URL,
			Candidates:    30,
			Opportunities: 8,
			Runs:          6,
			Workers:       2,
			Strategy:      "greedy",
			Seed:          42,
			Timeout:       5 * time.Second,
			PollInterval:  10 * time.Millisecond,
			OutputFile:    out,
		}

		Convey("every run settles and passes verification", func() {
			stats, err := loadtest.Run(ctx, cfg)
			So(err, ShouldBeNil)
			So(stats.RunsSubmitted, ShouldEqual, 6)
			So(stats.RunsAccepted, ShouldEqual, 5)
			So(stats.RunsDuplicate, ShouldEqual, 1)
			So(stats.RunsRejected, ShouldEqual, 0)
			So(stats.Violations, ShouldEqual, 0)
			settled := 0
			for _, n := range stats.RunsSettled {
				settled += n
			}
			So(settled, ShouldEqual, 5)

			_, err = os.Stat(out)
			So(err, ShouldBeNil)
		})

		Convey("an unreachable server fails the health check", func() {
			cfg.BaseURL = "http://127.0.0.1:1"
			cfg.Timeout = 500 * time.Millisecond
			_, err := loadtest.Run(ctx, cfg)
			So(err, ShouldNotBeNil)
		})
	})
}
