package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(context.Background(), zap.NewNop())
	assert.Error(t, s.AddJob("broken", "not a cron expression", func(context.Context) error {
		return nil
	}))
}

func TestRunningJobObservesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, zap.NewNop())

	started := make(chan struct{}, 1)
	released := make(chan struct{}, 1)
	require.NoError(t, s.AddJob("blocker", "@every 10ms", func(jobCtx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-jobCtx.Done()
		select {
		case released <- struct{}{}:
		default:
		}
		return jobCtx.Err()
	}))

	s.Start()
	defer s.Stop()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	cancel()

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("cancelling the base context did not abort the running job")
	}
}
