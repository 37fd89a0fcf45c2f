package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/placement/internal/config"
	"github.com/okian/placement/internal/domain/allocation"
	"github.com/okian/placement/internal/domain/model"
	"github.com/okian/placement/internal/domain/scoring"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1_024)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the domain views match the domain defaults", func() {
			convey.So(cfg.Weights(), convey.ShouldResemble, scoring.DefaultWeights())
			convey.So(cfg.Quotas(), convey.ShouldResemble, model.DefaultQuotaSpec())
			convey.So(cfg.Budget(), convey.ShouldResemble, allocation.Budget{
				MaxNodes: allocation.DefaultMaxNodes,
				Timeout:  allocation.DefaultTimeout,
			})
			s, err := cfg.DefaultStrategy()
			convey.So(err, convey.ShouldBeNil)
			convey.So(s, convey.ShouldEqual, allocation.StrategyGreedy)
		})

		convey.Convey("Then zero quota fractions are left out", func() {
			cfg.QuotaST = 0
			_, ok := cfg.Quotas()[model.GroupQuota(model.GroupST)]
			convey.So(ok, convey.ShouldBeFalse)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid configurations", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":             func(c *config.Config) { c.Addr = "" },
			"zero workers":           func(c *config.Config) { c.WorkerCount = 0 },
			"negative weight":        func(c *config.Config) { c.WeightSector = -1 },
			"negative quota":         func(c *config.Config) { c.QuotaOBC = -0.1 },
			"unknown strategy":       func(c *config.Config) { c.Strategy = "random" },
			"postgres without url":   func(c *config.Config) { c.Store = config.StorePostgres },
			"unknown store":          func(c *config.Config) { c.Store = "redis" },
			"unknown log format":     func(c *config.Config) { c.LogFormat = "xml" },
			"non-positive timeout":   func(c *config.Config) { c.SolverTimeoutMS = 0 },
			"non-positive run limit": func(c *config.Config) { c.MaxRunsLimit = 0 },
			"negative job timeout":   func(c *config.Config) { c.JobTimeoutMS = -1 },
		}

		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()

			convey.Convey("Then "+name+" is rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}

		convey.Convey("Then a postgres store with a url is accepted", func() {
			cfg := config.New()
			cfg.Store = config.StorePostgres
			cfg.DatabaseURL = "postgres://localhost/placement"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the budget reflects milliseconds", func() {
			cfg := config.New()
			cfg.SolverTimeoutMS = 1500
			convey.So(cfg.Budget().Timeout, convey.ShouldEqual, 1500*time.Millisecond)
		})

		convey.Convey("Then the job timeout is off by default", func() {
			cfg := config.New()
			convey.So(cfg.JobTimeout(), convey.ShouldEqual, time.Duration(0))
			cfg.JobTimeoutMS = 250
			convey.So(cfg.JobTimeout(), convey.ShouldEqual, 250*time.Millisecond)
		})
	})
}
