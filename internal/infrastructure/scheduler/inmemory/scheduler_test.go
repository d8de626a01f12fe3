package inmemory_scheduler_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	inmemory_scheduler "github.com/vulpemventures/cosigner/internal/infrastructure/scheduler/inmemory"
)

func TestScheduler(t *testing.T) {
	t.Run("fire at", func(t *testing.T) {
		clk := clock.NewMock()
		s := inmemory_scheduler.NewScheduler(clk)
		defer s.Stop()

		var count int32
		fn := func() { atomic.AddInt32(&count, 1) }

		require.True(t, s.Register("task", clk.Now().Add(10*time.Second), fn))
		require.False(t, s.Register("task", clk.Now().Add(time.Second), fn))
		require.True(t, s.Exists("task"))

		clk.Add(9 * time.Second)
		require.Equal(t, int32(0), atomic.LoadInt32(&count))

		clk.Add(time.Second)
		require.Eventually(t, func() bool {
			return atomic.LoadInt32(&count) == 1
		}, time.Second, 10*time.Millisecond)
		require.False(t, s.Exists("task"))

		require.True(t, s.Register("task", clk.Now().Add(time.Second), fn))
	})

	t.Run("past fire at", func(t *testing.T) {
		clk := clock.NewMock()
		s := inmemory_scheduler.NewScheduler(clk)
		defer s.Stop()

		done := make(chan struct{})
		require.True(t, s.Register("task", clk.Now().Add(-time.Minute), func() {
			close(done)
		}))

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("task did not fire")
		}
		require.Eventually(t, func() bool {
			return !s.Exists("task")
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("cancel", func(t *testing.T) {
		clk := clock.NewMock()
		s := inmemory_scheduler.NewScheduler(clk)

		var count int32
		require.True(t, s.Register("task", clk.Now().Add(time.Second), func() {
			atomic.AddInt32(&count, 1)
		}))
		require.True(t, s.Cancel("task"))
		require.False(t, s.Cancel("task"))
		require.False(t, s.Exists("task"))

		clk.Add(time.Minute)
		time.Sleep(50 * time.Millisecond)
		require.Equal(t, int32(0), atomic.LoadInt32(&count))

		s.Stop()
		require.False(t, s.Register("other", clk.Now(), func() {}))
	})
}
