package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	dedupe "github.com/okian/placement/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryIndex(t *testing.T) {
	Convey("Given a new in-memory index", t, func() {
		ctx := context.Background()
		idx := dedupe.NewInMemoryIndex()

		Convey("When a key is claimed for the first time", func() {
			runID, seen := idx.Claim(ctx, "key-1", "run-1")

			Convey("Then it is bound to the new run", func() {
				So(seen, ShouldBeFalse)
				So(runID, ShouldEqual, "run-1")
				So(idx.Size(), ShouldEqual, 1)
			})

			Convey("And the same key is claimed again", func() {
				runID, seen := idx.Claim(ctx, "key-1", "run-2")

				Convey("Then the original run is returned", func() {
					So(seen, ShouldBeTrue)
					So(runID, ShouldEqual, "run-1")
					So(idx.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the key is released", func() {
				idx.Release(ctx, "key-1")

				Convey("Then a retry binds a fresh run", func() {
					_, ok := idx.Lookup(ctx, "key-1")
					So(ok, ShouldBeFalse)
					runID, seen := idx.Claim(ctx, "key-1", "run-3")
					So(seen, ShouldBeFalse)
					So(runID, ShouldEqual, "run-3")
				})
			})
		})

		Convey("When releasing an unknown key", func() {
			idx.Release(ctx, "missing")

			Convey("Then nothing changes", func() {
				So(idx.Size(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a bounded index", t, func() {
		ctx := context.Background()
		idx := dedupe.NewInMemoryIndex(dedupe.WithMaxSize(3))
		for i := 1; i <= 3; i++ {
			idx.Claim(ctx, fmt.Sprintf("k%d", i), fmt.Sprintf("r%d", i))
		}

		Convey("When one more key is claimed", func() {
			idx.Claim(ctx, "k4", "r4")

			Convey("Then the oldest claim is evicted", func() {
				So(idx.Size(), ShouldEqual, 3)
				_, ok := idx.Lookup(ctx, "k1")
				So(ok, ShouldBeFalse)
				runID, ok := idx.Lookup(ctx, "k4")
				So(ok, ShouldBeTrue)
				So(runID, ShouldEqual, "r4")
			})
		})
	})

	Convey("Given an unbounded index", t, func() {
		ctx := context.Background()
		idx := dedupe.NewInMemoryIndex(dedupe.WithMaxSize(0))
		for i := 0; i < 20_000; i++ {
			idx.Claim(ctx, fmt.Sprintf("k%d", i), "r")
		}

		Convey("Then nothing is evicted", func() {
			So(idx.Size(), ShouldEqual, 20_000)
		})
	})
}

func TestInMemoryIndexConcurrentClaims(t *testing.T) {
	Convey("Given many goroutines claiming one key", t, func() {
		ctx := context.Background()
		idx := dedupe.NewInMemoryIndex()

		var winners atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, seen := idx.Claim(ctx, "shared", fmt.Sprintf("run-%d", i)); !seen {
					winners.Add(1)
				}
			}(i)
		}
		wg.Wait()

		Convey("Then exactly one claim wins", func() {
			So(winners.Load(), ShouldEqual, 1)
			So(idx.Size(), ShouldEqual, 1)
		})
	})
}
