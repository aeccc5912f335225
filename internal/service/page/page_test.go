package page

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingRenderer struct {
	calls int
	err   error
}

func (r *countingRenderer) NotFoundPage(name string) (string, error) {
	r.calls++

	return "page:" + name, r.err
}

func TestGetPageCaches(t *testing.T) {
	r := &countingRenderer{}
	svc := NewPageService(r, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for range 3 {
		content, err := svc.GetPage(context.Background(), "a.mp4")
		require.NoError(t, err)
		require.Equal(t, "page:a.mp4", content)
	}

	require.Equal(t, 1, r.calls)
}

func TestGetPageFallback(t *testing.T) {
	r := &countingRenderer{err: errors.New("broken template")}
	svc := NewPageService(r, slog.New(slog.NewTextHandler(io.Discard, nil)))

	content, err := svc.GetPage(context.Background(), "a.mp4")
	require.Error(t, err)
	require.Equal(t, fallbackPage, content)
}
