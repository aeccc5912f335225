package httphandler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/semaphore"

	"github.com/jgivc/fetchbot/internal/common"
	"github.com/jgivc/fetchbot/internal/entity"
	"github.com/jgivc/fetchbot/internal/metrics"
	"github.com/jgivc/fetchbot/internal/util"
)

const (
	ParamName = "name"

	sessionIDLen      = 8
	copyBufferSize    = 1 << 20
	contentTypeBinary = "application/octet-stream"
	contentTypeHTML   = "text/html; charset=utf-8"
)

type WebFileService interface {
	Lookup(ctx context.Context, sid string) (*entity.WebFileEntry, error)
}

type PageService interface {
	GetPage(ctx context.Context, name string) (string, error)
}

type FileOpener interface {
	Open(path string) (afero.File, error)
}

type DownloadConfig struct {
	ChunkSize    int
	MaxTransfers int64
}

// NewDownloadHandler serves published files with single byte-range support.
func NewDownloadHandler(cfg DownloadConfig, files WebFileService, pages PageService, fs FileOpener, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "DownloadHandler"))
	sem := semaphore.NewWeighted(cfg.MaxTransfers)

	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, ParamName)

		sid, ok := sessionIDFromName(name)
		if !ok {
			notFound(w, r, pages, name, log)

			return
		}

		entry, err := files.Lookup(r.Context(), sid)
		if err != nil {
			if !errors.Is(err, common.ErrFileNotFoundError) {
				log.Error("Cannot lookup web file", slog.String("session_id", sid), slog.Any("error", err))
			}

			notFound(w, r, pages, name, log)

			return
		}

		f, err := fs.Open(entry.FilePath)
		if err != nil {
			log.Error("Cannot open file", slog.String("path", entry.FilePath), slog.Any("error", err))
			notFound(w, r, pages, name, log)

			return
		}
		defer f.Close()

		st, err := f.Stat()
		if err != nil {
			log.Error("Cannot stat file", slog.String("path", entry.FilePath), slog.Any("error", err))
			http.Error(w, "Cannot get file", http.StatusInternalServerError)

			return
		}

		size := st.Size()

		span, err := parseRange(r.Header.Get("Range"), size)
		if err != nil {
			w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(size, 10))
			http.Error(w, "Range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
			metrics.RecordTransfer(http.StatusRequestedRangeNotSatisfiable, 0)

			return
		}

		h := w.Header()
		h.Set("Accept-Ranges", "bytes")
		h.Set("Content-Disposition", contentDisposition(entry.Filename))
		h.Set("Content-Type", contentTypeBinary)

		status := http.StatusOK
		length := size
		if span.partial {
			status = http.StatusPartialContent
			length = span.length()
			h.Set("Content-Range", "bytes "+strconv.FormatInt(span.start, 10)+"-"+strconv.FormatInt(span.end, 10)+"/"+strconv.FormatInt(size, 10))
		}

		h.Set("Content-Length", strconv.FormatInt(length, 10))

		if r.Method == http.MethodHead {
			w.WriteHeader(status)
			metrics.RecordTransfer(status, 0)

			return
		}

		if err := sem.Acquire(r.Context(), 1); err != nil {
			log.Info("Client gone while waiting for a transfer slot", slog.String("session_id", sid))

			return
		}
		defer sem.Release(1)

		if span.start > 0 {
			if _, err := f.Seek(span.start, io.SeekStart); err != nil {
				log.Error("Cannot seek file", slog.String("path", entry.FilePath), slog.Any("error", err))
				http.Error(w, "Cannot get file", http.StatusInternalServerError)

				return
			}
		}

		w.WriteHeader(status)

		tlog := log.With(slog.String("transfer_id", uuid.NewString()), slog.String("session_id", sid))
		sent := stream(r.Context(), w, f, length, cfg.ChunkSize, tlog)

		metrics.RecordTransfer(status, sent)
	}
}

// stream copies n bytes in chunks and stops early when the client goes away.
func stream(ctx context.Context, w io.Writer, r io.Reader, n int64, chunkSize int, log *slog.Logger) int64 {
	metrics.ActiveTransfers.Inc()
	defer metrics.ActiveTransfers.Dec()

	var (
		started = time.Now()
		sent    int64
		buf     = make([]byte, min(copyBufferSize, max(chunkSize, 1)))
	)

	log.Info("Transfer started", slog.String("size", humanize.IBytes(uint64(n))))

	for sent < n {
		if ctx.Err() != nil {
			log.Info("Client disconnected", slog.String("sent", humanize.IBytes(uint64(sent))))

			return sent
		}

		chunk := min(int64(chunkSize), n-sent)

		written, err := io.CopyBuffer(w, io.LimitReader(r, chunk), buf)
		sent += written

		if err != nil {
			log.Info("Transfer interrupted", slog.String("sent", humanize.IBytes(uint64(sent))), slog.Any("error", err))

			return sent
		}

		if written < chunk {
			log.Error("Short read", slog.Int64("want", chunk), slog.Int64("got", written))

			return sent
		}

		log.Debug("Chunk sent", slog.String("sent", humanize.IBytes(uint64(sent))), slog.String("total", humanize.IBytes(uint64(n))))
	}

	elapsed := time.Since(started)
	rate := float64(sent)
	if s := elapsed.Seconds(); s > 0 {
		rate /= s
	}

	log.Info("Transfer done",
		slog.String("sent", humanize.IBytes(uint64(sent))),
		slog.Duration("elapsed", elapsed),
		slog.String("throughput", humanize.IBytes(uint64(rate))+"/s"),
	)

	return sent
}

func sessionIDFromName(name string) (string, bool) {
	if len(name) < sessionIDLen {
		return "", false
	}

	sid := name[:sessionIDLen]

	return sid, util.IsSessionID(sid)
}

func notFound(w http.ResponseWriter, r *http.Request, pages PageService, name string, log *slog.Logger) {
	metrics.RecordTransfer(http.StatusNotFound, 0)

	content, err := pages.GetPage(r.Context(), name)
	if err != nil {
		log.Error("Cannot get not found page", slog.Any("error", err))
	}

	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(http.StatusNotFound)

	if r.Method != http.MethodHead {
		w.Write([]byte(content))
	}
}
