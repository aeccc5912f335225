// Package webfile tracks files published behind temporary download links.
package webfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jgivc/fetchbot/internal/common"
	"github.com/jgivc/fetchbot/internal/entity"
)

const (
	serviceName = "webfile"
)

type WebFileRepository interface {
	Save(ctx context.Context, entry *entity.WebFileEntry) error
	Get(ctx context.Context, sid string) (*entity.WebFileEntry, error)
	Delete(ctx context.Context, sid string) error
	List(ctx context.Context) ([]*entity.WebFileEntry, error)
}

type WorkDirs interface {
	Exists(path string) bool
	Remove(id string) error
}

type webFileService struct {
	repo WebFileRepository
	dirs WorkDirs
	ttl  time.Duration
	now  func() time.Time
	log  *slog.Logger
}

func NewWebFileService(repo WebFileRepository, dirs WorkDirs, ttl time.Duration, log *slog.Logger) *webFileService {
	return &webFileService{
		repo: repo,
		dirs: dirs,
		ttl:  ttl,
		now:  time.Now,
		log:  log.With(slog.String("service", serviceName)),
	}
}

func (w *webFileService) Register(ctx context.Context, entry *entity.WebFileEntry) error {
	if err := w.repo.Save(ctx, entry); err != nil {
		w.log.Error("Cannot register web file", slog.String("session_id", entry.SessionID), slog.Any("error", err))

		return fmt.Errorf("cannot register web file %s: %w", entry.SessionID, err)
	}

	w.log.Info("Web file registered", slog.String("session_id", entry.SessionID), slog.String("path", entry.FilePath))

	return nil
}

// Lookup returns a live entry. Entries whose file is gone or whose TTL elapsed
// are evicted and reported as not found.
func (w *webFileService) Lookup(ctx context.Context, sid string) (*entity.WebFileEntry, error) {
	entry, err := w.repo.Get(ctx, sid)
	if err != nil {
		if !errors.Is(err, common.ErrFileNotFoundError) {
			w.log.Error("Cannot get web file", slog.String("session_id", sid), slog.Any("error", err))
		}

		return nil, err
	}

	switch {
	case entry.Expired(w.now(), w.ttl):
		w.evict(ctx, sid, true)

		return nil, common.ErrFileNotFoundError
	case !w.dirs.Exists(entry.FilePath):
		w.evict(ctx, sid, false)

		return nil, common.ErrFileNotFoundError
	}

	return entry, nil
}

func (w *webFileService) evict(ctx context.Context, sid string, removeDir bool) {
	w.log.Info("Evict web file", slog.String("session_id", sid), slog.Bool("remove_dir", removeDir))

	if err := w.repo.Delete(ctx, sid); err != nil {
		w.log.Error("Cannot delete web file", slog.String("session_id", sid), slog.Any("error", err))
	}

	if removeDir {
		if err := w.dirs.Remove(sid); err != nil {
			w.log.Error("Cannot remove web file dir", slog.String("session_id", sid), slog.Any("error", err))
		}
	}
}

// Remove drops the entry together with its working directory.
func (w *webFileService) Remove(ctx context.Context, sid string) error {
	if err := w.repo.Delete(ctx, sid); err != nil {
		return fmt.Errorf("cannot remove web file %s: %w", sid, err)
	}

	if err := w.dirs.Remove(sid); err != nil {
		return fmt.Errorf("cannot remove web file %s dir: %w", sid, err)
	}

	return nil
}

// Sweep removes entries older than the TTL and returns their ids.
func (w *webFileService) Sweep(ctx context.Context, now time.Time) ([]string, error) {
	entries, err := w.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list web files: %w", err)
	}

	var (
		removed []string
		errs    []error
	)

	for _, entry := range entries {
		if !entry.Expired(now, w.ttl) {
			continue
		}

		if err := w.Remove(ctx, entry.SessionID); err != nil {
			errs = append(errs, err)

			continue
		}

		removed = append(removed, entry.SessionID)
	}

	if len(removed) > 0 {
		w.log.Info("Expired web files removed", slog.Int("count", len(removed)))
	}

	return removed, errors.Join(errs...)
}

// Pinned reports whether a live web file keeps the session directory alive.
func (w *webFileService) Pinned(ctx context.Context, sid string) bool {
	entry, err := w.repo.Get(ctx, sid)
	if err != nil {
		return false
	}

	return !entry.Expired(w.now(), w.ttl)
}
