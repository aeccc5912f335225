// Package ytdlpadapter runs the yt-dlp binary through go-ytdlp.
package ytdlpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/jgivc/fetchbot/internal/common"
	"github.com/jgivc/fetchbot/internal/entity"
	"github.com/jgivc/fetchbot/internal/service/download"
)

const (
	progressEvery = 500 * time.Millisecond
	printFinal    = "after_move:filepath"
)

type rawFormat struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	Resolution     string  `json:"resolution"`
	FormatNote     string  `json:"format_note"`
	FPS            float64 `json:"fps"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	FileSize       float64 `json:"filesize"`
	FileSizeApprox float64 `json:"filesize_approx"`
	TBR            float64 `json:"tbr"`
	ABR            float64 `json:"abr"`
}

// rawInfo is the subset of the yt-dlp info dict we use. Single-file sources
// carry their only format at the top level.
type rawInfo struct {
	rawFormat
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Duration float64     `json:"duration"`
	Formats  []rawFormat `json:"formats"`
}

type ytdlpAdapter struct {
	log *slog.Logger
}

func NewYTDLPAdapter(log *slog.Logger) *ytdlpAdapter {
	return &ytdlpAdapter{
		log: log.With(slog.String("item", "YTDLPAdapter")),
	}
}

func (a *ytdlpAdapter) Probe(ctx context.Context, url string, opts download.ProbeOptions) (*entity.MediaInfo, error) {
	cmd := ytdlp.New().
		DumpSingleJSON().
		SkipDownload().
		NoPlaylist().
		NoWarnings()

	if opts.CookieFile != "" {
		cmd.Cookies(opts.CookieFile)
	}

	res, err := cmd.Run(ctx, url)
	if err != nil {
		return nil, runError(res, err)
	}

	return parseInfo([]byte(res.Stdout))
}

// Fetch downloads one selector and returns the final path printed by yt-dlp.
// A non-zero exit is a download error and may be resumed.
func (a *ytdlpAdapter) Fetch(ctx context.Context, opts download.FetchOptions, progress func(download.Progress)) (string, error) {
	cmd := ytdlp.New().
		NoPlaylist().
		Format(opts.Format).
		Output(opts.Output).
		Retries(strconv.Itoa(opts.Retries)).
		FragmentRetries(strconv.Itoa(opts.FragmentRetries)).
		ConcurrentFragments(opts.ConcurrentFragments).
		Print(printFinal)

	if opts.Resume {
		cmd.Continue()
	} else {
		cmd.NoContinue()
	}

	if opts.MergeFormat != "" {
		cmd.MergeOutputFormat(opts.MergeFormat)
	}

	if opts.RemoveAds {
		cmd.SponsorblockRemove(opts.AdCategories)
	}

	if opts.CookieFile != "" {
		cmd.Cookies(opts.CookieFile)
	}

	if progress != nil {
		cmd.ProgressFunc(progressEvery, func(u ytdlp.ProgressUpdate) {
			progress(toProgress(u, time.Now()))
		})
	}

	a.log.Debug("Run yt-dlp", slog.String("url", opts.URL), slog.String("format", opts.Format))

	res, err := cmd.Run(ctx, opts.URL)
	if err != nil {
		err = runError(res, err)
		if ctx.Err() == nil && res != nil && res.ExitCode > 0 {
			err = fmt.Errorf("%w: %w", common.ErrDownloadTransient, err)
		}

		return "", err
	}

	return lastLine(res.Stdout), nil
}

func parseInfo(data []byte) (*entity.MediaInfo, error) {
	var raw rawInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("cannot parse media info: %w", err)
	}

	formats := raw.Formats
	if len(formats) == 0 && raw.FormatID != "" {
		formats = []rawFormat{raw.rawFormat}
	}

	info := &entity.MediaInfo{
		ID:       raw.ID,
		Title:    raw.Title,
		Duration: raw.Duration,
		Formats:  make([]entity.FormatDescriptor, 0, len(formats)),
	}

	for _, f := range formats {
		info.Formats = append(info.Formats, entity.FormatDescriptor{
			ID:             f.FormatID,
			Ext:            f.Ext,
			Resolution:     f.Resolution,
			Note:           f.FormatNote,
			FPS:            f.FPS,
			VCodec:         f.VCodec,
			ACodec:         f.ACodec,
			FileSize:       int64(f.FileSize),
			FileSizeApprox: int64(f.FileSizeApprox),
			TBR:            f.TBR,
			ABR:            f.ABR,
		})
	}

	return info, nil
}

// toProgress averages the speed over the whole transfer.
func toProgress(u ytdlp.ProgressUpdate, now time.Time) download.Progress {
	p := download.Progress{
		Downloaded: int64(u.DownloadedBytes),
		Total:      int64(u.TotalBytes),
	}

	if !u.Started.IsZero() {
		if elapsed := now.Sub(u.Started).Seconds(); elapsed > 0 {
			p.Speed = float64(u.DownloadedBytes) / elapsed
		}
	}

	if p.Speed > 0 && p.Total > p.Downloaded {
		p.ETA = time.Duration(float64(p.Total-p.Downloaded) / p.Speed * float64(time.Second)).Round(time.Second)
	}

	return p
}

// runError puts the last yt-dlp stderr line in front of err.
func runError(res *ytdlp.Result, err error) error {
	if res == nil {
		return err
	}

	if msg := lastLine(res.Stderr); msg != "" {
		return fmt.Errorf("%s: %w", msg, err)
	}

	return err
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")

	return strings.TrimSpace(lines[len(lines)-1])
}
