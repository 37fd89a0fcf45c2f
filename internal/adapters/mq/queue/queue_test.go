package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/placement/internal/domain/allocation"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a queue with room for two jobs", t, func() {
		ctx := context.Background()
		q := NewInMemoryQueue(WithCapacity(2))

		Convey("When a job is enqueued", func() {
			So(q.Enqueue(ctx, Job{RunID: "r1", Strategy: allocation.StrategyOptimal}), ShouldBeNil)

			Convey("Then it is counted and delivered in order with a timestamp", func() {
				So(q.Len(ctx), ShouldEqual, 1)
				j := <-q.Dequeue(ctx)
				So(j.RunID, ShouldEqual, "r1")
				So(j.Strategy, ShouldEqual, allocation.StrategyOptimal)
				So(j.EnqueuedAt.IsZero(), ShouldBeFalse)
				So(q.Len(ctx), ShouldEqual, 0)
			})
		})

		Convey("When the queue is full", func() {
			So(q.Enqueue(ctx, Job{RunID: "r1"}), ShouldBeNil)
			So(q.Enqueue(ctx, Job{RunID: "r2"}), ShouldBeNil)
			err := q.Enqueue(ctx, Job{RunID: "r3"})

			Convey("Then further jobs are rejected without blocking", func() {
				So(errors.Is(err, ErrFull), ShouldBeTrue)
				So(q.Len(ctx), ShouldEqual, 2)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			Convey("Then the job is refused", func() {
				So(errors.Is(q.Enqueue(cctx, Job{RunID: "r1"}), context.Canceled), ShouldBeTrue)
			})
		})

		Convey("When the queue is closed with a job inside", func() {
			So(q.Enqueue(ctx, Job{RunID: "r1"}), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then intake stops but the job drains", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(errors.Is(q.Enqueue(ctx, Job{RunID: "r2"}), ErrClosed), ShouldBeTrue)

				var got []string
				for j := range q.Dequeue(ctx) {
					got = append(got, j.RunID)
				}
				So(got, ShouldResemble, []string{"r1"})
			})
		})
	})
}

func TestInMemoryQueue_ConcurrentProducers(t *testing.T) {
	Convey("Given concurrent producers", t, func() {
		ctx := context.Background()
		q := NewInMemoryQueue(WithCapacity(1_000))

		var wg sync.WaitGroup
		for p := 0; p < 10; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					_ = q.Enqueue(ctx, Job{RunID: fmt.Sprintf("%d-%d", p, i)})
				}
			}(p)
		}
		wg.Wait()

		Convey("Then every job is queued exactly once", func() {
			So(q.Len(ctx), ShouldEqual, 500)
			So(q.Close(), ShouldBeNil)
			seen := map[string]bool{}
			for j := range q.Dequeue(ctx) {
				So(seen[j.RunID], ShouldBeFalse)
				seen[j.RunID] = true
			}
			So(seen, ShouldHaveLength, 500)
		})
	})
}
