package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	repository "github.com/okian/placement/internal/adapters/repository"
	"github.com/okian/placement/internal/config"
	"github.com/okian/placement/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

const sampleDataset = `{
  "candidates": [
    {"id": "A", "skills": ["go"], "academic_score": 0.9, "group": "GEN"},
    {"id": "B", "skills": ["go"], "academic_score": 0.6, "group": "SC"}
  ],
  "opportunities": [
    {"id": "O1", "capacity": 2, "required_skills": ["go"]}
  ]
}`

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestMainComponents(t *testing.T) {
	convey.Convey("Given the default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.Addr = "127.0.0.1:0"

		convey.Convey("When the store is built", func() {
			store, err := newStore(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			_, isMemory := store.(*repository.MemoryStore)
			convey.So(isMemory, convey.ShouldBeTrue)
			convey.So(store.Close(), convey.ShouldBeNil)
		})

		convey.Convey("When the service is built", func() {
			store, err := newStore(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			svc, err := newService(cfg, store, logger.Get())
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc, convey.ShouldNotBeNil)
			convey.Reset(func() { _ = svc.Shutdown(ctx) })

			convey.Convey("Then routes answer before any dataset is loaded", func() {
				mux := newMux(ctx, svc, cfg)

				rec := httptest.NewRecorder()
				mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)

				rec = httptest.NewRecorder()
				mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)

				rec = httptest.NewRecorder()
				mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/allocate", strings.NewReader(`{}`)))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusConflict)
			})

			convey.Convey("Then a dataset file can be preloaded", func() {
				path := filepath.Join(t.TempDir(), "dataset.json")
				convey.So(os.WriteFile(path, []byte(sampleDataset), 0o600), convey.ShouldBeNil)
				convey.So(preload(ctx, svc, path), convey.ShouldBeNil)

				stats, err := svc.Stats(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(stats.Candidates, convey.ShouldEqual, 2)
				convey.So(stats.TotalCapacity, convey.ShouldEqual, 2)
			})

			convey.Convey("Then a missing dataset file is reported", func() {
				err := preload(ctx, svc, filepath.Join(t.TempDir(), "absent.json"))
				convey.So(err, convey.ShouldNotBeNil)
			})

			convey.Convey("Then service metrics update without panicking", func() {
				convey.So(func() { updateServiceMetrics(ctx, svc) }, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When the strategy is invalid", func() {
			cfg.Strategy = "random"
			_, err := newService(cfg, repository.NewMemoryStore(), logger.Get())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestMetricsUpdater(t *testing.T) {
	convey.Convey("Given a cancelled context", t, func() {
		store, _ := newStore(context.Background(), config.New())
		svc, err := newService(config.New(), store, logger.Get())
		convey.So(err, convey.ShouldBeNil)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		convey.Convey("The updater returns", func() {
			done := make(chan struct{})
			go func() {
				startServiceMetricsUpdater(ctx, svc)
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("metrics updater did not stop")
			}
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a context that is already cancelled", t, func() {
		cfg := config.New()
		cfg.Addr = "127.0.0.1:0"
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		convey.Convey("run shuts down cleanly", func() {
			convey.So(run(ctx, cfg, logger.Get()), convey.ShouldBeNil)
		})

		convey.Convey("run fails on a bad preload path", func() {
			cfg.DatasetPath = filepath.Join(t.TempDir(), "absent.json")
			convey.So(run(ctx, cfg, logger.Get()), convey.ShouldNotBeNil)
		})
	})
}
