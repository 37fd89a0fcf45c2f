package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithRegisterer(registry))

			Convey("Then every collector is registered under the default names", func() {
				So(manager, ShouldNotBeNil)
				manager.allocations.WithLabelValues("greedy", "completed").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["placement_engine_allocations_total"], ShouldBeTrue)
				So(names["placement_engine_queue_capacity"], ShouldBeTrue)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("alloc"),
				WithLatencyBuckets([]float64{0.1, 0.5, 1.0}),
				WithAllocationBuckets([]float64{10, 100}),
				WithSolverNodeBuckets([]float64{1, 2, 4}),
				WithRegisterer(registry),
			)

			Convey("Then the names follow the options", func() {
				manager.placements.Add(2)
				So(testutil.ToFloat64(manager.placements), ShouldEqual, 2)
				n, err := testutil.GatherAndCount(registry, "test_alloc_placements_total")
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				So(manager.allocationBuckets, ShouldResemble, []float64{10, 100})
				So(manager.nodeBuckets, ShouldResemble, []float64{1, 2, 4})
			})
		})

		Convey("When empty options are passed", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithLatencyBuckets(nil),
				WithAllocationBuckets(nil),
				WithSolverNodeBuckets([]float64{}),
				WithRegisterer(nil),
				WithRegisterer(prometheus.NewRegistry()),
			)

			Convey("Then the defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "placement")
				So(manager.subsystem, ShouldEqual, "engine")
				So(manager.latencyBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.allocationBuckets, ShouldHaveLength, 10)
				So(manager.nodeBuckets, ShouldResemble, prometheus.ExponentialBuckets(1, 4, 10))
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When an allocation is recorded", func() {
			before := testutil.ToFloat64(globalManager.allocations.WithLabelValues("optimal", "optimal"))
			placedBefore := testutil.ToFloat64(globalManager.placements)
			RecordAllocation("optimal", "optimal", 12.5, 4)

			Convey("Then the counters advance", func() {
				So(testutil.ToFloat64(globalManager.allocations.WithLabelValues("optimal", "optimal")), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.placements), ShouldEqual, placedBefore+4)
			})
		})

		Convey("When gauges are updated", func() {
			UpdateDataset(10, 3, 7)
			UpdateQuotaFulfillment("SC", 50)
			UpdateQueueSize(2)
			UpdateQueueCapacity(8)
			UpdateRepositoryRuns(5)
			UpdateWorkerActiveCount(1)

			Convey("Then they hold the last value", func() {
				So(testutil.ToFloat64(globalManager.datasetCapacity), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.quotaFulfillment.WithLabelValues("SC")), ShouldEqual, 50)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 8)
				So(testutil.ToFloat64(globalManager.repositoryRuns), ShouldEqual, 5)
			})
		})

		Convey("Then the remaining recorders do not panic", func() {
			So(func() {
				RecordSolverNodes(42)
				RecordIdempotentReplay()
				RecordScoringRequest()
				RecordScoringLatency(0.4)
				RecordHTTPRequest("/allocate", "POST", "200")
				RecordHTTPRequestDuration("/allocate", "POST", "200", 3)
				RecordRepositoryQueryLatency(0.2)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordWorkerProcessingLatency(9)
				RecordWorkerError()
				RecordErrorByComponent("solver", "timeout")
			}, ShouldNotPanic)
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
