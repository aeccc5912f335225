package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/jgivc/fetchbot/internal/config"
	"github.com/jgivc/fetchbot/internal/entity"
	"github.com/jgivc/fetchbot/internal/repository/webfile"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	log := NewLogger(config.LogLevelWarn, &buf)
	log.Info("hidden")
	log.Warn("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")

	require.True(t, NewLogger(config.LogLevelDebug, io.Discard).Enabled(context.Background(), slog.LevelDebug))
	require.False(t, NewLogger("", io.Discard).Enabled(context.Background(), slog.LevelDebug))
}

func TestDumpRegistry(t *testing.T) {
	mr := miniredis.RunT(t)
	cfgPath := filepath.Join(t.TempDir(), "missing.yml")

	t.Setenv(config.EnvBotToken, "123:abc")
	t.Setenv(config.EnvRedisURL, "redis://"+mr.Addr())

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	repo := webfile.NewRedisRepository(rdb, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, repo.Save(context.Background(), &entity.WebFileEntry{
		SessionID: "deadbeef",
		FilePath:  "/shared/downloads/deadbeef/clip.mp4",
		Filename:  "clip",
		Ext:       "mp4",
		CreatedAt: time.Now(),
	}))

	var buf bytes.Buffer
	require.NoError(t, DumpRegistry(cfgPath, &buf))
	require.Contains(t, buf.String(), "session_id: deadbeef")
	require.Contains(t, buf.String(), "generated_at:")
}

func TestDumpRegistryRequiresRedis(t *testing.T) {
	t.Setenv(config.EnvBotToken, "123:abc")
	t.Setenv(config.EnvRedisURL, "")

	err := DumpRegistry(filepath.Join(t.TempDir(), "missing.yml"), io.Discard)
	require.ErrorContains(t, err, config.EnvRedisURL)
}
