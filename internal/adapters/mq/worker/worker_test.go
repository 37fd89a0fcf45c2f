package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/placement/internal/adapters/mq/queue"
	worker "github.com/okian/placement/internal/adapters/mq/worker"
	logging "github.com/okian/placement/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan queue.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 64)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Job { return mq.jobs }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

type mockExecutor struct {
	mu   sync.Mutex
	runs []string
	fail map[string]error
	seen chan string
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{fail: map[string]error{}, seen: make(chan string, 64)}
}

func (m *mockExecutor) Execute(_ context.Context, job queue.Job) error {
	m.mu.Lock()
	m.runs = append(m.runs, job.RunID)
	err := m.fail[job.RunID]
	m.mu.Unlock()
	m.seen <- job.RunID
	return err
}

func (m *mockExecutor) executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.runs...)
}

func waitFor(ch <-chan string, n int) []string {
	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case id := <-ch:
			got = append(got, id)
		case <-timeout:
			return got
		}
	}
	return got
}

func TestInMemoryWorker(t *testing.T) {
	if err := logging.Init(); err != nil {
		t.Fatalf("logger init: %v", err)
	}

	convey.Convey("Given a worker reading from a queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := newMockQueue()
		exec := newMockExecutor()
		w := worker.NewInMemoryWorker(q, exec, worker.WithName("w-test"))
		go w.Run(ctx)

		convey.Convey("When jobs arrive", func() {
			q.jobs <- queue.Job{RunID: "r1"}
			q.jobs <- queue.Job{RunID: "r2"}

			convey.Convey("Then each is executed in order", func() {
				convey.So(waitFor(exec.seen, 2), convey.ShouldResemble, []string{"r1", "r2"})
			})
		})

		convey.Convey("When a job fails", func() {
			exec.fail["bad"] = errors.New("boom")
			q.jobs <- queue.Job{RunID: "bad"}
			q.jobs <- queue.Job{RunID: "good"}

			convey.Convey("Then the worker keeps going", func() {
				convey.So(waitFor(exec.seen, 2), convey.ShouldResemble, []string{"bad", "good"})
			})
		})

		convey.Convey("When shutting down", func() {
			err := w.Shutdown(context.Background())

			convey.Convey("Then it stops cleanly and a second call is harmless", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a worker whose context is cancelled", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		w := worker.NewInMemoryWorker(newMockQueue(), newMockExecutor(), worker.WithLogger(logging.Get()))
		stopped := make(chan struct{})
		go func() {
			w.Run(ctx)
			close(stopped)
		}()
		cancel()

		convey.Convey("Then the loop exits", func() {
			select {
			case <-stopped:
				convey.So(true, convey.ShouldBeTrue)
			case <-time.After(2 * time.Second):
				convey.So("worker did not stop", convey.ShouldBeEmpty)
			}
		})
	})
}

func TestPool(t *testing.T) {
	if err := logging.Init(); err != nil {
		t.Fatalf("logger init: %v", err)
	}

	convey.Convey("Given a pool of workers", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := newMockQueue()
		exec := newMockExecutor()

		convey.Convey("When created with a non-positive count", func() {
			p := worker.NewPool(0, q, exec)

			convey.Convey("Then it falls back to a positive size", func() {
				convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
			})
		})

		convey.Convey("When many jobs are queued and the pool shuts down", func() {
			p := worker.NewPool(4, q, exec)
			p.Start(ctx)
			for i := 0; i < 20; i++ {
				q.jobs <- queue.Job{RunID: fmt.Sprintf("r%02d", i)}
			}
			waitFor(exec.seen, 20)
			err := p.Shutdown(context.Background())

			convey.Convey("Then every job ran exactly once", func() {
				convey.So(err, convey.ShouldBeNil)
				runs := exec.executed()
				convey.So(runs, convey.ShouldHaveLength, 20)
				seen := map[string]bool{}
				for _, id := range runs {
					seen[id] = true
				}
				convey.So(seen, convey.ShouldHaveLength, 20)
			})
		})
	})
}

// blockingExecutor waits for the job context and reports why it ended.
type blockingExecutor struct {
	ended chan error
}

func (b *blockingExecutor) Execute(ctx context.Context, _ queue.Job) error {
	<-ctx.Done()
	b.ended <- ctx.Err()
	return ctx.Err()
}

func TestJobTimeout(t *testing.T) {
	if err := logging.Init(); err != nil {
		t.Fatalf("logger init: %v", err)
	}

	convey.Convey("Given a pool with a job timeout", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := newMockQueue()
		exec := &blockingExecutor{ended: make(chan error, 1)}
		p := worker.NewPool(1, q, exec, worker.WithJobTimeout(20*time.Millisecond), worker.WithLogger(logging.Get()))
		p.Start(ctx)

		convey.Convey("When a run never finishes on its own", func() {
			q.jobs <- queue.Job{RunID: "slow"}

			convey.Convey("Then its context is cancelled by the deadline", func() {
				select {
				case err := <-exec.ended:
					convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
				case <-time.After(2 * time.Second):
					convey.So("job was not cancelled", convey.ShouldBeEmpty)
				}
				convey.So(p.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}
