package webfile

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/jgivc/fetchbot/internal/common"
	"github.com/jgivc/fetchbot/internal/entity"
	webfilerepo "github.com/jgivc/fetchbot/internal/repository/webfile"
	"github.com/jgivc/fetchbot/internal/storage/workdir"
)

const root = "/shared/downloads"

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc *webFileService
	fs  afero.Fs
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	fs := afero.NewMemMapFs()
	dirs := workdir.NewWorkDirStorageWithFS(fs, root, log)

	f := &fixture{fs: fs, now: base}
	f.svc = NewWebFileService(webfilerepo.NewMemoryRepository(log), dirs, 8*time.Hour, log)
	f.svc.now = func() time.Time { return f.now }

	return f
}

func (f *fixture) publish(t *testing.T, sid string, created time.Time) *entity.WebFileEntry {
	t.Helper()

	path := filepath.Join(root, sid, "movie.mkv")
	require.NoError(t, afero.WriteFile(f.fs, path, []byte("data"), 0o644))

	entry := &entity.WebFileEntry{SessionID: sid, FilePath: path, Filename: "Movie.mkv", Ext: ".mkv", CreatedAt: created}
	require.NoError(t, f.svc.Register(context.Background(), entry))

	return entry
}

func TestLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publish(t, "aaaaaaaa", base)

	entry, err := f.svc.Lookup(ctx, "aaaaaaaa")
	require.NoError(t, err)
	require.Equal(t, "Movie.mkv", entry.Filename)
	require.True(t, f.svc.Pinned(ctx, "aaaaaaaa"))

	_, err = f.svc.Lookup(ctx, "bbbbbbbb")
	require.ErrorIs(t, err, common.ErrFileNotFoundError)
	require.False(t, f.svc.Pinned(ctx, "bbbbbbbb"))
}

func TestLookupEvictsMissingFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.publish(t, "aaaaaaaa", base)

	require.NoError(t, f.fs.Remove(entry.FilePath))

	_, err := f.svc.Lookup(ctx, "aaaaaaaa")
	require.ErrorIs(t, err, common.ErrFileNotFoundError)
	require.False(t, f.svc.Pinned(ctx, "aaaaaaaa"))
}

func TestLookupEvictsExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publish(t, "aaaaaaaa", base)

	f.now = base.Add(9 * time.Hour)

	require.False(t, f.svc.Pinned(ctx, "aaaaaaaa"))

	_, err := f.svc.Lookup(ctx, "aaaaaaaa")
	require.ErrorIs(t, err, common.ErrFileNotFoundError)

	ok, err := afero.DirExists(f.fs, filepath.Join(root, "aaaaaaaa"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publish(t, "aaaaaaaa", base)
	f.publish(t, "bbbbbbbb", base.Add(2*time.Hour))

	removed, err := f.svc.Sweep(ctx, base.Add(9*time.Hour))
	require.NoError(t, err)
	require.Equal(t, []string{"aaaaaaaa"}, removed)

	ok, err := afero.DirExists(f.fs, filepath.Join(root, "aaaaaaaa"))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = afero.DirExists(f.fs, filepath.Join(root, "bbbbbbbb"))
	require.NoError(t, err)
	require.True(t, ok)

	removed, err = f.svc.Sweep(ctx, base.Add(9*time.Hour))
	require.NoError(t, err)
	require.Empty(t, removed)
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publish(t, "aaaaaaaa", base)

	require.NoError(t, f.svc.Remove(ctx, "aaaaaaaa"))

	_, err := f.svc.Lookup(ctx, "aaaaaaaa")
	require.ErrorIs(t, err, common.ErrFileNotFoundError)
}
