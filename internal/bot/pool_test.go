package bot

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jgivc/fetchbot/internal/common"
)

func TestWorkerPool(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := NewWorkerPool(2, 8, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		p.Run(ctx)
	}()

	var done atomic.Int32

	require.NoError(t, p.Submit(ctx, func(context.Context) { panic("boom") }))

	for range 5 {
		require.NoError(t, p.Submit(ctx, func(context.Context) { done.Add(1) }))
	}

	require.Eventually(t, func() bool {
		return done.Load() == 5
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop")
	}

	require.Error(t, p.Submit(ctx, func(context.Context) {}))
}

func TestWorkerPoolBusy(t *testing.T) {
	p := NewWorkerPool(1, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	require.NoError(t, p.Submit(ctx, func(context.Context) {}))
	require.ErrorIs(t, p.Submit(ctx, func(context.Context) {}), common.ErrPoolBusy)
}
