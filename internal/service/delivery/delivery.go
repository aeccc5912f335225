// Package delivery hands a finished file to the chat or publishes it as a link.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jgivc/fetchbot/internal/common"
	"github.com/jgivc/fetchbot/internal/entity"
	"github.com/jgivc/fetchbot/internal/metrics"
)

const (
	serviceName = "delivery"

	linkPath = "/download/"
)

type UploadKind int

const (
	UploadDocument UploadKind = iota
	UploadAudio
	UploadVideo
)

func (k UploadKind) String() string {
	return [...]string{"document", "audio", "video"}[k]
}

// KindFor maps a format category to the upload method.
func KindFor(cat entity.Category) UploadKind {
	switch cat {
	case entity.CategoryAudioOnly:
		return UploadAudio
	case entity.CategoryVideoAudio, entity.CategoryVideoOnly:
		return UploadVideo
	}

	return UploadDocument
}

type Uploader interface {
	Upload(ctx context.Context, kind UploadKind, chatID int64, path, title string) error
}

type Registry interface {
	Register(ctx context.Context, entry *entity.WebFileEntry) error
}

type FileSizer interface {
	Size(path string) (int64, error)
}

type Config struct {
	MaxFileSize int64
	ExternalURL string
}

type Item struct {
	SessionID string
	Path      string
	Title     string
	Category  entity.Category
	ChatID    int64
}

// Result tells whether the file went into the chat or behind a link.
type Result struct {
	Delivered bool
	Link      string
	Size      int64
}

type deliveryService struct {
	uploader Uploader
	registry Registry
	files    FileSizer
	cfg      Config
	now      func() time.Time
	log      *slog.Logger
}

func NewDeliveryService(uploader Uploader, registry Registry, files FileSizer, cfg Config, log *slog.Logger) *deliveryService {
	return &deliveryService{
		uploader: uploader,
		registry: registry,
		files:    files,
		cfg:      cfg,
		now:      time.Now,
		log:      log.With(slog.String("service", serviceName)),
	}
}

func (d *deliveryService) Deliver(ctx context.Context, item Item) (Result, error) {
	log := d.log.With(slog.String("session_id", item.SessionID), slog.String("path", item.Path))

	size, err := d.files.Size(item.Path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", common.ErrFileMissing, err)
	}

	if size <= d.cfg.MaxFileSize {
		kind := KindFor(item.Category)

		log.Info("Upload file", slog.String("kind", kind.String()), slog.String("size", humanize.IBytes(uint64(size))))

		if err := d.uploader.Upload(ctx, kind, item.ChatID, item.Path, item.Title); err != nil {
			log.Error("Cannot upload file", slog.Any("error", err))

			return Result{Size: size}, fmt.Errorf("%w: %w", common.ErrDeliveryFailed, err)
		}

		metrics.RecordDelivery(kind.String())

		return Result{Delivered: true, Size: size}, nil
	}

	ext := filepath.Ext(item.Path)
	entry := &entity.WebFileEntry{
		SessionID: item.SessionID,
		FilePath:  item.Path,
		Filename:  item.Title + ext,
		Ext:       ext,
		CreatedAt: d.now(),
	}

	if err := d.registry.Register(ctx, entry); err != nil {
		log.Error("Cannot register web file", slog.Any("error", err))

		return Result{Size: size}, fmt.Errorf("%w: %w", common.ErrDeliveryFailed, err)
	}

	link := d.cfg.ExternalURL + linkPath + item.SessionID + ext

	log.Info("File published", slog.String("link", link), slog.String("size", humanize.IBytes(uint64(size))))
	metrics.RecordDelivery("link")

	return Result{Link: link, Size: size}, nil
}
