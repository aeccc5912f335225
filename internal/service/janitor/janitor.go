// Package janitor periodically reclaims expired sessions, links and orphaned directories.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jgivc/fetchbot/internal/metrics"
)

const (
	serviceName = "JanitorService"

	kindSession = "session"
	kindWebFile = "webfile"
	kindOrphan  = "orphan"
)

type SessionStore interface {
	ListExpired(now time.Time) []string
	Busy(id string) bool
	Remove(id string)
	IDs() []string
	Len() int
}

type WorkDirs interface {
	Remove(id string) error
	ListStale(cutoff time.Time) ([]string, error)
}

type Registry interface {
	Sweep(ctx context.Context, now time.Time) ([]string, error)
	Pinned(ctx context.Context, sid string) bool
}

type Config struct {
	SessionEvery time.Duration
	FileEvery    time.Duration
	WebFileTTL   time.Duration
}

type janitorService struct {
	sessions SessionStore
	dirs     WorkDirs
	registry Registry
	cfg      Config
	now      func() time.Time
	log      *slog.Logger
}

func NewJanitorService(sessions SessionStore, dirs WorkDirs, registry Registry, cfg Config, log *slog.Logger) *janitorService {
	return &janitorService{
		sessions: sessions,
		dirs:     dirs,
		registry: registry,
		cfg:      cfg,
		now:      time.Now,
		log:      log.With(slog.String("item", serviceName)),
	}
}

// Run sweeps until ctx is done. A failing sweep is logged and retried on the next tick.
func (j *janitorService) Run(ctx context.Context) error {
	sessionTicker := time.NewTicker(j.cfg.SessionEvery)
	defer sessionTicker.Stop()

	fileTicker := time.NewTicker(j.cfg.FileEvery)
	defer fileTicker.Stop()

	j.log.Info("Started", slog.Duration("session_every", j.cfg.SessionEvery), slog.Duration("file_every", j.cfg.FileEvery))

	for {
		select {
		case <-ctx.Done():
			j.log.Info("Stopped")

			return nil
		case <-sessionTicker.C:
			j.safe(ctx, kindSession, j.SweepSessions)
		case <-fileTicker.C:
			j.safe(ctx, kindWebFile, j.SweepWebFiles)
			j.safe(ctx, kindOrphan, j.SweepOrphans)
		}
	}
}

// SweepOnce runs every sweep once.
func (j *janitorService) SweepOnce(ctx context.Context, now time.Time) error {
	var errs []error

	for kind, sweep := range map[string]func(context.Context, time.Time) (int, error){
		kindSession: j.SweepSessions,
		kindWebFile: j.SweepWebFiles,
		kindOrphan:  j.SweepOrphans,
	} {
		if _, err := j.run(ctx, now, kind, sweep); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (j *janitorService) safe(ctx context.Context, kind string, sweep func(context.Context, time.Time) (int, error)) {
	if _, err := j.run(ctx, j.now(), kind, sweep); err != nil {
		j.log.Error("Cannot sweep", slog.String("kind", kind), slog.Any("error", err))
	}
}

func (j *janitorService) run(ctx context.Context, now time.Time, kind string, sweep func(context.Context, time.Time) (int, error)) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep %s panicked: %v", kind, r)
		}
	}()

	n, err = sweep(ctx, now)
	if n > 0 {
		metrics.RecordSwept(kind, n)
		j.log.Info("Swept", slog.String("kind", kind), slog.Int("count", n))
	}

	return n, err
}

// SweepSessions drops expired sessions and their working directories unless a
// published link still uses the directory.
func (j *janitorService) SweepSessions(ctx context.Context, now time.Time) (int, error) {
	var errs []error

	expired := j.sessions.ListExpired(now)
	for _, id := range expired {
		j.sessions.Remove(id)

		if j.registry.Pinned(ctx, id) {
			continue
		}

		if err := j.dirs.Remove(id); err != nil {
			errs = append(errs, err)
		}
	}

	metrics.Sessions.Set(float64(j.sessions.Len()))

	return len(expired), errors.Join(errs...)
}

func (j *janitorService) SweepWebFiles(ctx context.Context, now time.Time) (int, error) {
	removed, err := j.registry.Sweep(ctx, now)

	return len(removed), err
}

// SweepOrphans removes working directories older than the link TTL that no
// link pins, together with any session left for them.
func (j *janitorService) SweepOrphans(ctx context.Context, now time.Time) (int, error) {
	stale, err := j.dirs.ListStale(now.Add(-j.cfg.WebFileTTL))
	if err != nil {
		return 0, fmt.Errorf("cannot list stale dirs: %w", err)
	}

	var (
		n    int
		errs []error
	)

	for _, id := range stale {
		if j.registry.Pinned(ctx, id) || j.sessions.Busy(id) {
			continue
		}

		if err := j.dirs.Remove(id); err != nil {
			errs = append(errs, err)

			continue
		}

		j.sessions.Remove(id)
		n++
	}

	return n, errors.Join(errs...)
}

// Shutdown removes working directories of live sessions that no link pins.
func (j *janitorService) Shutdown(ctx context.Context) error {
	var errs []error

	for _, id := range j.sessions.IDs() {
		if j.registry.Pinned(ctx, id) {
			continue
		}

		if err := j.dirs.Remove(id); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		j.log.Error("Cannot clean up work dirs", slog.Any("error", err))

		return err
	}

	j.log.Info("Work dirs cleaned up")

	return nil
}
