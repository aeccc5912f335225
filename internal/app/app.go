package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/jgivc/fetchbot/internal/adapter/mdadapter"
	"github.com/jgivc/fetchbot/internal/adapter/tgadapter"
	"github.com/jgivc/fetchbot/internal/adapter/ytdlpadapter"
	"github.com/jgivc/fetchbot/internal/bot"
	"github.com/jgivc/fetchbot/internal/config"
	httphandler "github.com/jgivc/fetchbot/internal/handler/http"
	"github.com/jgivc/fetchbot/internal/metrics"
	"github.com/jgivc/fetchbot/internal/repository/webfile"
	"github.com/jgivc/fetchbot/internal/service/counter"
	"github.com/jgivc/fetchbot/internal/service/delivery"
	"github.com/jgivc/fetchbot/internal/service/download"
	"github.com/jgivc/fetchbot/internal/service/janitor"
	"github.com/jgivc/fetchbot/internal/service/page"
	swebfile "github.com/jgivc/fetchbot/internal/service/webfile"
	"github.com/jgivc/fetchbot/internal/storage/session"
	"github.com/jgivc/fetchbot/internal/storage/workdir"
)

const (
	stopTimeout    = 5 * time.Second
	dumpTimeout    = 5 * time.Second
	pingTimeout    = 5 * time.Second
	headerTimeout  = 10 * time.Second
	queuePerWorker = 8
)

type runner interface {
	Run(ctx context.Context) error
}

type sweeper interface {
	runner
	Shutdown(ctx context.Context) error
}

type App struct {
	cfg        *config.Config
	srv        *http.Server
	metricsSrv *http.Server
	rdb        *redis.Client
	repo       swebfile.WebFileRepository
	pool       interface{ Run(ctx context.Context) }
	controller runner
	janitor    sweeper
	log        *slog.Logger
}

// New loads the config and wires every component. Nothing runs until Run.
func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	log := NewLogger(cfg.LogLevel, os.Stderr)
	a := &App{cfg: cfg, log: log}

	if err := a.wire(); err != nil {
		a.close()

		return nil, err
	}

	return a, nil
}

// NewLogger builds the process logger. Level is validated by config.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lo := &slog.HandlerOptions{}

	switch level {
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		lo.Level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(w, lo))
}

func connectRedis(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cannot parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()

		return nil, fmt.Errorf("cannot ping redis: %w", err)
	}

	return rdb, nil
}

func (a *App) wire() error {
	cfg, log := a.cfg, a.log

	if cfg.RedisURL != "" {
		rdb, err := connectRedis(cfg.RedisURL)
		if err != nil {
			return err
		}

		a.rdb = rdb
		a.repo = webfile.NewRedisRepository(rdb, log)
	} else {
		log.Warn("REDIS_URL is not set, published links will not survive a restart")
		a.repo = webfile.NewMemoryRepository(log)
	}

	dirs := workdir.NewWorkDirStorage(cfg.DownloadDir(), log)
	sessions := session.NewSessionStorage(dirs, session.Config{
		TTL:        cfg.Session.TTL,
		PartialTTL: cfg.Session.PartialTTL,
	}, log)
	files := swebfile.NewWebFileService(a.repo, dirs, cfg.HandlerConfig.WebFileTTL, log)

	downloader := download.NewDownloadService(ytdlpadapter.NewYTDLPAdapter(log), dirs, download.Config{
		ProgressInterval: cfg.Bot.ProgressInterval,
		CookieFile:       cfg.CookiesPath(),
	}, log)

	tg, err := tgadapter.NewTGAdapter(&cfg.Bot, log)
	if err != nil {
		return err
	}

	deliverer := delivery.NewDeliveryService(tg, files, dirs, delivery.Config{
		MaxFileSize: cfg.Bot.MaxFileSize,
		ExternalURL: cfg.HandlerConfig.URL,
	}, log)

	md, err := mdadapter.NewMDAdapter(log)
	if err != nil {
		return err
	}

	dh := httphandler.NewDownloadHandler(httphandler.DownloadConfig{
		ChunkSize:    cfg.HandlerConfig.ChunkSize,
		MaxTransfers: cfg.HandlerConfig.MaxTransfers,
	}, files, page.NewPageService(md, log), dirs, log)

	a.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           httphandler.NewRouter(dh, cfg.HandlerConfig.RateLimit, log),
		ReadHeaderTimeout: headerTimeout,
	}

	if cfg.MetricsListen != "" {
		a.metricsSrv = &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: headerTimeout,
		}
	}

	pool := bot.NewWorkerPool(cfg.Bot.Workers, cfg.Bot.Workers*queuePerWorker, log)
	a.pool = pool

	a.janitor = janitor.NewJanitorService(sessions, dirs, files, janitor.Config{
		SessionEvery: cfg.Session.SweepEvery,
		FileEvery:    cfg.Session.FileSweepEvery,
		WebFileTTL:   cfg.HandlerConfig.WebFileTTL,
	}, log)

	a.controller = bot.NewController(bot.Deps{
		Transport:  tg,
		Sessions:   sessions,
		Limiter:    counter.NewCounterService(cfg.Bot.MaxConcurrentPerUser, log),
		Downloader: downloader,
		Deliverer:  deliverer,
		WorkDirs:   dirs,
		Registry:   files,
		Pool:       pool,
	}, bot.Config{
		PageSize:      cfg.Bot.FormatsPerPage,
		MaxConcurrent: cfg.Bot.MaxConcurrentPerUser,
		LinkTTL:       cfg.HandlerConfig.WebFileTTL,
	}, log)

	return nil
}

func serve(srv *http.Server, log *slog.Logger) error {
	log.Info("Start listen", slog.String("addr", srv.Addr))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("cannot serve on %s: %w", srv.Addr, err)
	}

	return nil
}

// Run blocks until ctx is done or a component fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.pool.Run(gctx)

		return nil
	})
	g.Go(func() error { return a.janitor.Run(gctx) })
	g.Go(func() error { return a.controller.Run(gctx) })
	g.Go(func() error { return serve(a.srv, a.log) })

	if a.metricsSrv != nil {
		g.Go(func() error { return serve(a.metricsSrv, a.log) })
	}

	g.Go(func() error {
		<-gctx.Done()
		a.stopServers()

		return nil
	})

	err := g.Wait()

	a.stop()

	return err
}

func (a *App) stopServers() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	for _, srv := range []*http.Server{a.srv, a.metricsSrv} {
		if srv == nil {
			continue
		}

		if err := srv.Shutdown(ctx); err != nil {
			a.log.Error("Cannot shutdown server", slog.String("addr", srv.Addr), slog.Any("error", err))
		}
	}
}

func (a *App) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := a.janitor.Shutdown(ctx); err != nil {
		a.log.Error("Cannot clean working directories", slog.Any("error", err))
	}

	a.Dump()
	a.close()

	a.log.Info("Stopped")
}

func (a *App) close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("Cannot close redis client", slog.Any("error", err))
		}
	}
}

// Dump writes the published links snapshot next to the shared directory.
func (a *App) Dump() {
	ctx, cancel := context.WithTimeout(context.Background(), dumpTimeout)
	defer cancel()

	path := a.cfg.DumpFileName()
	if err := webfile.DumpFile(ctx, a.repo, time.Now(), path); err != nil {
		a.log.Error("Cannot dump web files", slog.String("path", path), slog.Any("error", err))

		return
	}

	a.log.Info("Web files dumped", slog.String("path", path))
}

// DumpRegistry prints the redis registry of a running or stopped bot to w.
func DumpRegistry(cfgPath string, w io.Writer) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if cfg.RedisURL == "" {
		return fmt.Errorf("%s is required to read the registry", config.EnvRedisURL)
	}

	rdb, err := connectRedis(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), dumpTimeout)
	defer cancel()

	repo := webfile.NewRedisRepository(rdb, NewLogger(cfg.LogLevel, io.Discard))

	return webfile.Dump(ctx, repo, time.Now(), w)
}
