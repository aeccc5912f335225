// Package workdir manages per-session working directories under a shared root.
package workdir

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/jgivc/fetchbot/internal/common"
)

const dirPerm = 0o755

// Output containers probed when the engine renamed the file after merging.
var outputExts = []string{"mp4", "mkv", "webm", "m4a", "mp3", "opus"}

var partialSuffixes = []string{".part", ".ytdl"}

type workDirStorage struct {
	fs   afero.Fs
	root string
	log  *slog.Logger
}

func NewWorkDirStorage(root string, log *slog.Logger) *workDirStorage {
	return NewWorkDirStorageWithFS(afero.NewOsFs(), root, log)
}

func NewWorkDirStorageWithFS(fs afero.Fs, root string, log *slog.Logger) *workDirStorage {
	return &workDirStorage{
		fs:   fs,
		root: root,
		log:  log.With(slog.String("item", "WorkDirStorage")),
	}
}

// Path returns the working directory of a session.
func (s *workDirStorage) Path(id string) string {
	return filepath.Join(s.root, filepath.Base(id))
}

func (s *workDirStorage) Ensure(id string) (string, error) {
	dir := s.Path(id)
	if err := s.fs.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("cannot create work dir %s: %w", dir, err)
	}

	return dir, nil
}

// HasPartial reports whether the session directory holds an interrupted download.
func (s *workDirStorage) HasPartial(id string) bool {
	entries, err := afero.ReadDir(s.fs, s.Path(id))
	if err != nil {
		return false
	}

	for _, e := range entries {
		if !e.IsDir() && isPartial(e.Name()) {
			return true
		}
	}

	return false
}

func isPartial(name string) bool {
	for _, suf := range partialSuffixes {
		if strings.HasSuffix(name, suf) {
			return true
		}
	}

	return false
}

func (s *workDirStorage) Remove(id string) error {
	dir := s.Path(id)
	if err := s.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("cannot remove work dir %s: %w", dir, err)
	}

	s.log.Debug("Work dir removed", slog.String("dir", dir))

	return nil
}

// ResolveOutput finds the file a download produced. The engine may change the
// extension after merging, so sibling containers and finally any complete file
// in the directory are accepted.
func (s *workDirStorage) ResolveOutput(id, expected string) (string, error) {
	dir := s.Path(id)

	if expected != "" {
		if !filepath.IsAbs(expected) {
			expected = filepath.Join(dir, expected)
		}

		if s.isFile(expected) {
			return expected, nil
		}

		stem := strings.TrimSuffix(expected, filepath.Ext(expected))
		for _, ext := range outputExts {
			if candidate := stem + "." + ext; s.isFile(candidate) {
				return candidate, nil
			}
		}
	}

	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("cannot read work dir %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.Mode().IsRegular() && !isPartial(e.Name()) {
			return filepath.Join(dir, e.Name()), nil
		}
	}

	return "", fmt.Errorf("%w: %s", common.ErrFileMissing, dir)
}

// ListStale returns ids of working directories last modified before cutoff.
func (s *workDirStorage) ListStale(cutoff time.Time) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("cannot read root dir %s: %w", s.root, err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() && e.ModTime().Before(cutoff) {
			ids = append(ids, e.Name())
		}
	}

	slices.Sort(ids)

	return ids, nil
}

func (s *workDirStorage) Size(path string) (int64, error) {
	st, err := s.fs.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("cannot stat %s: %w", path, err)
	}

	return st.Size(), nil
}

func (s *workDirStorage) Open(path string) (afero.File, error) {
	return s.fs.Open(path)
}

func (s *workDirStorage) Exists(path string) bool {
	return s.isFile(path)
}

func (s *workDirStorage) isFile(path string) bool {
	st, err := s.fs.Stat(path)

	return err == nil && st.Mode().IsRegular()
}
