package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/placement/internal/domain/allocation"
	types "github.com/okian/placement/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRunStatus(t *testing.T) {
	Convey("Given run statuses", t, func() {
		Convey("Then only queued and running are open", func() {
			So(types.RunQueued.Terminal(), ShouldBeFalse)
			So(types.RunRunning.Terminal(), ShouldBeFalse)
			for _, s := range []types.RunStatus{types.RunCompleted, types.RunOptimal, types.RunInfeasible, types.RunTimedOut, types.RunFailed} {
				So(s.Terminal(), ShouldBeTrue)
			}
		})

		Convey("Then engine statuses map one to one", func() {
			So(types.RunStatusOf(allocation.StatusTimedOut), ShouldEqual, types.RunTimedOut)
			So(types.RunStatusOf(allocation.StatusOptimal), ShouldEqual, types.RunOptimal)
			So(types.RunStatusOf(""), ShouldEqual, types.RunFailed)
		})
	})
}

func TestRunJSON(t *testing.T) {
	Convey("Given a queued run", t, func() {
		run := types.Run{
			ID:        "r-1",
			Strategy:  "optimal",
			Status:    types.RunQueued,
			CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		}

		Convey("When it is encoded", func() {
			b, err := json.Marshal(run)
			So(err, ShouldBeNil)

			Convey("Then unset optional fields are omitted", func() {
				var m map[string]any
				So(json.Unmarshal(b, &m), ShouldBeNil)
				So(m["status"], ShouldEqual, "queued")
				So(m, ShouldNotContainKey, "result")
				So(m, ShouldNotContainKey, "completed_at")
				So(m, ShouldNotContainKey, "idempotency_key")
			})
		})
	})
}
