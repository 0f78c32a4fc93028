package notification_log

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWait_ReturnsWhenIdle(t *testing.T) {
	s := New(nil, zap.NewNop().Sugar())
	require.NoError(t, s.Wait(context.Background()))
}

func TestWait_HonoursDeadline(t *testing.T) {
	s := New(nil, zap.NewNop().Sugar())
	s.pending.Add(1)
	defer s.pending.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}

func TestSave_IgnoresNil(t *testing.T) {
	s := New(nil, zap.NewNop().Sugar())
	s.Save(context.Background(), nil)
	require.NoError(t, s.Wait(context.Background()))
}
