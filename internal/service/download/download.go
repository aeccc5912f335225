// Package download runs the extraction engine for a chosen format and locates
// the produced file.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jgivc/fetchbot/internal/common"
	"github.com/jgivc/fetchbot/internal/entity"
)

const (
	serviceName = "download"

	bestAudioSuffix = "+bestaudio"
	mergeContainer  = "mp4"
	adCategories    = "all"
	outputExtTmpl   = ".%(ext)s"
	outputStem      = "%(id)s"

	retries             = 3
	fragmentRetries     = 5
	concurrentFragments = 4
)

// Progress is one engine progress report.
type Progress struct {
	Downloaded int64
	Total      int64
	Speed      float64
	ETA        time.Duration
}

// Percent returns completion in percent when the total is known.
func (p Progress) Percent() (float64, bool) {
	if p.Total <= 0 {
		return 0, false
	}

	return float64(p.Downloaded) / float64(p.Total) * 100, true
}

type ProgressFunc func(Progress)

type ProbeOptions struct {
	CookieFile string
}

type FetchOptions struct {
	URL                 string
	Format              string
	Output              string
	MergeFormat         string
	Resume              bool
	Retries             int
	FragmentRetries     int
	ConcurrentFragments int
	RemoveAds           bool
	AdCategories        string
	CookieFile          string
}

// Engine is the external extraction tool.
type Engine interface {
	Probe(ctx context.Context, url string, opts ProbeOptions) (*entity.MediaInfo, error)
	Fetch(ctx context.Context, opts FetchOptions, progress func(Progress)) (string, error)
}

type WorkDirs interface {
	Ensure(id string) (string, error)
	ResolveOutput(id, expected string) (string, error)
}

type Request struct {
	URL       string
	Format    string
	WorkDir   string // working directory id, the session id
	AdRemoval bool
	VideoOnly bool
	Custom    bool
}

type Config struct {
	ProgressInterval time.Duration
	CookieFile       string
}

type downloadService struct {
	engine Engine
	dirs   WorkDirs
	cfg    Config
	log    *slog.Logger
}

func NewDownloadService(engine Engine, dirs WorkDirs, cfg Config, log *slog.Logger) *downloadService {
	return &downloadService{
		engine: engine,
		dirs:   dirs,
		cfg:    cfg,
		log:    log.With(slog.String("service", serviceName)),
	}
}

// Probe lists the formats available at url.
func (d *downloadService) Probe(ctx context.Context, url string) (*entity.MediaInfo, error) {
	info, err := d.engine.Probe(ctx, url, ProbeOptions{CookieFile: d.cfg.CookieFile})
	if err != nil {
		d.log.Error("Cannot probe url", slog.String("url", url), slog.Any("error", err))

		return nil, fmt.Errorf("%w: %w", common.ErrExtractionFailure, err)
	}

	return info, nil
}

// IsCustom reports whether format is an engine expression rather than a
// plain numeric catalog id.
func IsCustom(format string) bool {
	return format == "" || strings.ContainsFunc(format, func(r rune) bool {
		return r < '0' || r > '9'
	})
}

// Selector builds the engine format expression. A lone numeric video-only
// catalog id gets the best audio merged in. Anything else passes through.
func Selector(format string, videoOnly, custom bool) string {
	if custom || !videoOnly || IsCustom(format) {
		return format
	}

	return format + bestAudioSuffix
}

// mergeFormat is the container for a selector that merges several streams.
func mergeFormat(selector string) string {
	if strings.Contains(selector, "+") {
		return mergeContainer
	}

	return ""
}

// Execute downloads into the request's working directory and returns the
// output path. Partial files are left in place on failure so a retry resumes.
func (d *downloadService) Execute(ctx context.Context, req Request, progress ProgressFunc) (string, error) {
	log := d.log.With(slog.String("work_dir", req.WorkDir), slog.String("format", req.Format))

	dir, err := d.dirs.Ensure(req.WorkDir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrDownloadFatal, err)
	}

	selector := Selector(req.Format, req.VideoOnly, req.Custom)
	opts := FetchOptions{
		URL:                 req.URL,
		Format:              selector,
		Output:              filepath.Join(dir, outputStem+outputExtTmpl),
		MergeFormat:         mergeFormat(selector),
		Resume:              true,
		Retries:             retries,
		FragmentRetries:     fragmentRetries,
		ConcurrentFragments: concurrentFragments,
		CookieFile:          d.cfg.CookieFile,
	}

	if req.AdRemoval {
		opts.RemoveAds = true
		opts.AdCategories = adCategories
	}

	throttle := &rate.Sometimes{Interval: d.cfg.ProgressInterval}
	report := func(p Progress) {
		if progress != nil {
			throttle.Do(func() { progress(p) })
		}
	}

	log.Info("Start download", slog.String("selector", selector), slog.Bool("ad_removal", req.AdRemoval))

	filename, err := d.engine.Fetch(ctx, opts, report)
	if err != nil {
		err = classify(err)
		log.Error("Cannot download", slog.Any("error", err))

		return "", err
	}

	path, err := d.dirs.ResolveOutput(req.WorkDir, filename)
	if err != nil {
		log.Error("Cannot find output", slog.String("filename", filename), slog.Any("error", err))

		return "", err
	}

	log.Info("Download done", slog.String("path", path))

	return path, nil
}

// classify splits engine errors into resumable and other failures.
func classify(err error) error {
	if errors.Is(err, common.ErrDownloadTransient) || errors.Is(err, common.ErrDownloadFatal) {
		return err
	}

	var (
		netErr  net.Error
		exitErr *exec.ExitError
	)

	switch {
	case errors.As(err, &exitErr),
		errors.As(err, &netErr),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", common.ErrDownloadTransient, err)
	}

	return fmt.Errorf("%w: %w", common.ErrDownloadFatal, err)
}
