package workdir

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/jgivc/fetchbot/internal/common"
)

const root = "/shared/downloads"

func newTestStorage(t *testing.T) (*workDirStorage, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewWorkDirStorageWithFS(fs, root, log), fs
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestEnsureAndRemove(t *testing.T) {
	s, fs := newTestStorage(t)

	dir, err := s.Ensure("0a1b2c3d")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "0a1b2c3d"), dir)

	ok, err := afero.DirExists(fs, dir)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Remove("0a1b2c3d"))

	ok, err = afero.DirExists(fs, dir)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPathStaysInRoot(t *testing.T) {
	s, _ := newTestStorage(t)
	require.Equal(t, filepath.Join(root, "etc"), s.Path("../../etc"))
}

func TestHasPartial(t *testing.T) {
	s, fs := newTestStorage(t)
	dir, err := s.Ensure("0a1b2c3d")
	require.NoError(t, err)

	require.False(t, s.HasPartial("0a1b2c3d"))
	require.False(t, s.HasPartial("ffffffff"))

	writeFile(t, fs, filepath.Join(dir, "abc.f137.mp4.part"), "x")
	require.True(t, s.HasPartial("0a1b2c3d"))

	require.NoError(t, fs.Remove(filepath.Join(dir, "abc.f137.mp4.part")))
	writeFile(t, fs, filepath.Join(dir, "abc.f137.mp4.ytdl"), "x")
	require.True(t, s.HasPartial("0a1b2c3d"))
}

func TestResolveOutput(t *testing.T) {
	s, fs := newTestStorage(t)
	dir, err := s.Ensure("0a1b2c3d")
	require.NoError(t, err)

	_, err = s.ResolveOutput("0a1b2c3d", filepath.Join(dir, "abc.webm"))
	require.ErrorIs(t, err, common.ErrFileMissing)

	writeFile(t, fs, filepath.Join(dir, "abc.f137.mp4.part"), "partial")
	_, err = s.ResolveOutput("0a1b2c3d", "")
	require.ErrorIs(t, err, common.ErrFileMissing)

	writeFile(t, fs, filepath.Join(dir, "other.bin"), "data")
	got, err := s.ResolveOutput("0a1b2c3d", filepath.Join(dir, "abc.webm"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "other.bin"), got)

	writeFile(t, fs, filepath.Join(dir, "abc.mkv"), "merged")
	got, err = s.ResolveOutput("0a1b2c3d", filepath.Join(dir, "abc.webm"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "abc.mkv"), got)

	writeFile(t, fs, filepath.Join(dir, "abc.webm"), "exact")
	got, err = s.ResolveOutput("0a1b2c3d", "abc.webm")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "abc.webm"), got)
}

func TestListStale(t *testing.T) {
	s, fs := newTestStorage(t)

	ids, err := s.ListStale(time.Now())
	require.NoError(t, err)
	require.Empty(t, ids)

	now := time.Now()
	for id, age := range map[string]time.Duration{
		"aaaaaaaa": 9 * time.Hour,
		"bbbbbbbb": time.Hour,
		"cccccccc": 10 * time.Hour,
	} {
		dir, err := s.Ensure(id)
		require.NoError(t, err)
		require.NoError(t, fs.Chtimes(dir, now.Add(-age), now.Add(-age)))
	}

	writeFile(t, fs, filepath.Join(root, "webfiles.yml"), "x")

	ids, err = s.ListStale(now.Add(-8 * time.Hour))
	require.NoError(t, err)
	require.Equal(t, []string{"aaaaaaaa", "cccccccc"}, ids)
}

func TestSizeOpenExists(t *testing.T) {
	s, fs := newTestStorage(t)
	dir, err := s.Ensure("0a1b2c3d")
	require.NoError(t, err)

	path := filepath.Join(dir, "file.mp4")
	require.False(t, s.Exists(path))
	require.False(t, s.Exists(dir))

	writeFile(t, fs, path, "0123456789")
	require.True(t, s.Exists(path))

	size, err := s.Size(path)
	require.NoError(t, err)
	require.Equal(t, int64(10), size)

	f, err := s.Open(path)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(data))
}
