// Package bot drives the chat interaction: format menus, downloads and delivery.
package bot

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/jgivc/fetchbot/internal/bot/payload"
	"github.com/jgivc/fetchbot/internal/common"
	"github.com/jgivc/fetchbot/internal/entity"
	"github.com/jgivc/fetchbot/internal/metrics"
	"github.com/jgivc/fetchbot/internal/service/catalog"
	"github.com/jgivc/fetchbot/internal/service/delivery"
	"github.com/jgivc/fetchbot/internal/service/download"
)

const (
	handlerName = "Controller"

	cmdStart     = "/start"
	defaultTitle = "video"
	eventQueue   = 64

	preOpen         = "<pre>"
	preClose        = "</pre>"
	maxEscapeGrowth = 5 // longest html.EscapeString replacement per rune

	resultOK        = "ok"
	resultTransient = "transient"
	resultFatal     = "fatal"
	resultMissing   = "missing"
)

var customFormatRe = regexp.MustCompile(`^[\w+]+$`)

type Sessions interface {
	Create(s *entity.Session) (string, error)
	Get(id string) (*entity.Session, bool)
	Mutate(id string, fn func(*entity.Session) error) error
	Remove(id string)
	FindAwaitingInput(userID int64) (*entity.Session, bool)
	Len() int
}

type Limiter interface {
	TryAcquire(userID int64) bool
	Release(userID int64)
}

type Downloader interface {
	Probe(ctx context.Context, url string) (*entity.MediaInfo, error)
	Execute(ctx context.Context, req download.Request, progress download.ProgressFunc) (string, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, item delivery.Item) (delivery.Result, error)
}

type WorkDirs interface {
	Remove(id string) error
}

type Registry interface {
	Pinned(ctx context.Context, sid string) bool
}

type Pool interface {
	Submit(ctx context.Context, job Job) error
}

type Deps struct {
	Transport  Transport
	Sessions   Sessions
	Limiter    Limiter
	Downloader Downloader
	Deliverer  Deliverer
	WorkDirs   WorkDirs
	Registry   Registry
	Pool       Pool
}

type Config struct {
	PageSize      int
	MaxConcurrent int
	LinkTTL       time.Duration
}

// event runs on the controller goroutine.
type event func(ctx context.Context)

// job is the immutable part of a session a worker needs.
type job struct {
	sid       string
	userID    int64
	chatID    int64
	messageID int
	url       string
	title     string
	format    string
	category  entity.Category
	videoOnly bool
	custom    bool
	remove    bool
}

// Controller owns every session mutation and transport call. Workers hand
// their results back through the events channel.
type Controller struct {
	transport  Transport
	sessions   Sessions
	limiter    Limiter
	downloader Downloader
	deliverer  Deliverer
	dirs       WorkDirs
	registry   Registry
	pool       Pool
	cfg        Config
	events     chan event
	log        *slog.Logger
}

func NewController(deps Deps, cfg Config, log *slog.Logger) *Controller {
	return &Controller{
		transport:  deps.Transport,
		sessions:   deps.Sessions,
		limiter:    deps.Limiter,
		downloader: deps.Downloader,
		deliverer:  deps.Deliverer,
		dirs:       deps.WorkDirs,
		registry:   deps.Registry,
		pool:       deps.Pool,
		cfg:        cfg,
		events:     make(chan event, eventQueue),
		log:        log.With(slog.String("handler", handlerName)),
	}
}

// Run handles updates and worker events until ctx is done or the update
// stream closes.
func (c *Controller) Run(ctx context.Context) error {
	updates := c.transport.Updates(ctx)

	c.log.Info("Started")

	for {
		select {
		case <-ctx.Done():
			c.log.Info("Stopped")

			return nil
		case u, ok := <-updates:
			if !ok {
				c.log.Info("Update stream closed")

				return nil
			}

			c.handle(ctx, u)
		case ev := <-c.events:
			ev(ctx)
		}
	}
}

// post hands ev to the controller goroutine.
func (c *Controller) post(ctx context.Context, ev event) {
	select {
	case <-ctx.Done():
	case c.events <- ev:
	}
}

// tryPost drops ev when the queue is full.
func (c *Controller) tryPost(ev event) {
	select {
	case c.events <- ev:
	default:
		c.log.Debug("Event queue full, progress dropped")
	}
}

func (c *Controller) handle(ctx context.Context, u Update) {
	c.log.Debug("Update",
		slog.String("update_id", uuid.NewString()),
		slog.Int64("user_id", u.UserID),
		slog.Bool("callback", u.IsCallback()),
	)

	if u.IsCallback() {
		c.handleCallback(ctx, u)

		return
	}

	c.handleMessage(ctx, u)
}

func (c *Controller) handleMessage(ctx context.Context, u Update) {
	text := strings.TrimSpace(u.Text)

	switch {
	case text == cmdStart || strings.HasPrefix(text, cmdStart+" "):
		c.send(ctx, u.ChatID, textGreeting, nil)
	case isURL(text):
		c.probe(ctx, u, text)
	case customFormatRe.MatchString(text):
		s, ok := c.sessions.FindAwaitingInput(u.UserID)
		if !ok {
			c.log.Debug("No session awaits format input", slog.Int64("user_id", u.UserID))

			return
		}

		c.customFormat(ctx, u, s, text)
	default:
		c.send(ctx, u.ChatID, textSendLink, nil)
	}
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (c *Controller) probe(ctx context.Context, u Update, link string) {
	msgID, err := c.transport.Send(ctx, u.ChatID, textProbing, nil)
	if err != nil {
		c.log.Error("Cannot send message", slog.Int64("chat_id", u.ChatID), slog.Any("error", err))

		return
	}

	err = c.pool.Submit(ctx, func(ctx context.Context) {
		info, err := c.downloader.Probe(ctx, link)
		c.post(ctx, func(ctx context.Context) {
			c.probed(ctx, u, msgID, link, info, err)
		})
	})
	if err != nil {
		c.log.Error("Cannot submit probe", slog.Any("error", err))
		c.edit(ctx, u.ChatID, msgID, fmt.Sprintf(textProbeFailed, escape(err)), nil)
	}
}

// probed creates the session only when the catalog has at least one format.
func (c *Controller) probed(ctx context.Context, u Update, msgID int, link string, info *entity.MediaInfo, err error) {
	if err == nil && info == nil {
		err = common.ErrNoFormats
	}

	if err != nil {
		c.edit(ctx, u.ChatID, msgID, fmt.Sprintf(textProbeFailed, escape(err)), nil)

		return
	}

	groups := catalog.BuildCatalog(info.Formats)
	if groups.Total() == 0 {
		c.edit(ctx, u.ChatID, msgID, textNoFormats, nil)

		return
	}

	s := &entity.Session{
		SourceURL:   link,
		MediaID:     info.ID,
		Title:       info.Title,
		Duration:    info.Duration,
		Groups:      groups,
		RawFormats:  info.Formats,
		OwnerUserID: u.UserID,
		ChatID:      u.ChatID,
		MessageID:   msgID,
		State:       entity.StateAwaitingFormatSelection,
	}

	sid, err := c.sessions.Create(s)
	if err != nil {
		c.log.Error("Cannot create session", slog.Any("error", err))
		c.edit(ctx, u.ChatID, msgID, fmt.Sprintf(textProbeFailed, escape(err)), nil)

		return
	}

	s.ID = sid
	metrics.Sessions.Set(float64(c.sessions.Len()))

	c.log.Info("Session created", slog.String("session_id", sid), slog.Int("formats", groups.Total()))

	c.edit(ctx, u.ChatID, msgID, header(s), catalog.BuildMenu(sid, groups, 0, c.cfg.PageSize))
}

func header(s *entity.Session) string {
	title := s.Title
	if title == "" {
		title = defaultTitle
	}

	text := fmt.Sprintf(textHeader, html.EscapeString(title))

	if s.Duration > 0 {
		secs := int(s.Duration)
		text += fmt.Sprintf(textHeaderLength, secs/60, secs%60)
	}

	return text + fmt.Sprintf(textHeaderFooter, s.Groups.Total())
}

func (c *Controller) handleCallback(ctx context.Context, u Update) {
	p, err := payload.Decode(u.Data)
	if err != nil {
		c.log.Warn("Cannot decode payload", slog.String("data", u.Data), slog.Any("error", err))
		c.answer(ctx, u, textNotNow, false)

		return
	}

	if _, ok := p.(payload.Noop); ok {
		c.answer(ctx, u, "", false)

		return
	}

	s, err := c.authorize(u, payload.SessionID(p))
	if err != nil {
		c.reject(ctx, u, err)

		return
	}

	switch p := p.(type) {
	case payload.Page:
		c.page(ctx, u, s, p.Page)
	case payload.Cancel:
		c.cancel(ctx, u, s)
	case payload.ShowAllFormats:
		c.showAll(ctx, u, s)
	case payload.FormatChosen:
		c.chooseFormat(ctx, u, s, p.Format)
	case payload.AdRemovalChoice:
		c.start(ctx, u, s, entity.EventAdRemovalChoice, p.Format, p.Remove)
	case payload.Retry:
		c.start(ctx, u, s, entity.EventRetry, p.Format, p.Remove)
	default:
		c.answer(ctx, u, textNotNow, false)
	}
}

// authorize loads the session and checks that the requester owns it.
func (c *Controller) authorize(u Update, sid string) (*entity.Session, error) {
	s, ok := c.sessions.Get(sid)
	if !ok {
		return nil, common.ErrSessionExpired
	}

	if !s.OwnedBy(u.UserID) {
		c.log.Warn("Foreign session access", slog.String("session_id", sid), slog.Int64("user_id", u.UserID))

		return nil, common.ErrUnauthorized
	}

	return s, nil
}

func (c *Controller) reject(ctx context.Context, u Update, err error) {
	switch common.Classify(err) {
	case common.KindSessionExpired:
		c.answer(ctx, u, textSessionExpired, true)
	case common.KindUnauthorized:
		c.answer(ctx, u, textNotYours, true)
	case common.KindConcurrency:
		c.answer(ctx, u, fmt.Sprintf(textTooMany, c.cfg.MaxConcurrent), true)
	default:
		c.log.Debug("Action rejected", slog.Any("error", err))
		c.answer(ctx, u, textNotNow, false)
	}
}

func (c *Controller) page(ctx context.Context, u Update, s *entity.Session, n int) {
	err := c.sessions.Mutate(s.ID, func(s *entity.Session) error {
		return s.Transition(entity.EventPage)
	})
	if err != nil {
		c.reject(ctx, u, err)

		return
	}

	c.answer(ctx, u, "", false)
	c.edit(ctx, u.ChatID, u.MessageID, header(s), catalog.BuildMenu(s.ID, s.Groups, n, c.cfg.PageSize))
}

// cancel drops the session. A download already running is not interrupted.
func (c *Controller) cancel(ctx context.Context, u Update, s *entity.Session) {
	c.retire(ctx, s.ID)

	c.log.Info("Session cancelled", slog.String("session_id", s.ID))

	c.answer(ctx, u, "", false)
	c.edit(ctx, u.ChatID, u.MessageID, textCancelled, nil)
}

// retire removes the session and its working directory unless a link pins it.
func (c *Controller) retire(ctx context.Context, sid string) {
	c.sessions.Remove(sid)
	metrics.Sessions.Set(float64(c.sessions.Len()))

	if c.registry.Pinned(ctx, sid) {
		return
	}

	if err := c.dirs.Remove(sid); err != nil {
		c.log.Error("Cannot remove work dir", slog.String("session_id", sid), slog.Any("error", err))
	}
}

func (c *Controller) showAll(ctx context.Context, u Update, s *entity.Session) {
	err := c.sessions.Mutate(s.ID, func(s *entity.Session) error {
		return s.Transition(entity.EventShowAllFormats)
	})
	if err != nil {
		c.reject(ctx, u, err)

		return
	}

	c.answer(ctx, u, "", false)

	for _, chunk := range preChunks(catalog.BuildDiagnosticTable(s.RawFormats), catalog.MessageLimit) {
		c.send(ctx, u.ChatID, chunk, nil)
	}

	c.send(ctx, u.ChatID, textCustomPrompt, nil)
}

// preChunks splits text into escaped <pre> blocks of at most limit runes.
// Text is split before escaping so no entity is cut in half.
func preChunks(text string, limit int) []string {
	budget := limit - len(preOpen) - len(preClose)

	var out []string

	for _, chunk := range catalog.ChunkLines(text, budget) {
		parts := []string{chunk}
		if utf8.RuneCountInString(html.EscapeString(chunk)) > budget {
			parts = catalog.ChunkLines(chunk, budget/maxEscapeGrowth)
		}

		for _, p := range parts {
			out = append(out, preOpen+html.EscapeString(p)+preClose)
		}
	}

	return out
}

func (c *Controller) chooseFormat(ctx context.Context, u Update, s *entity.Session, format string) {
	custom := format == catalog.BestSelector
	label := format

	if !custom {
		f, _, ok := s.Groups.Find(format)
		if !ok {
			c.answer(ctx, u, textFormatNotFound, true)

			return
		}

		label = catalog.ButtonLabel(*f)
	}

	menu, err := adRemovalMenu(s.ID, format)
	if err != nil {
		c.answer(ctx, u, textFormatTooLong, true)

		return
	}

	err = c.sessions.Mutate(s.ID, func(s *entity.Session) error {
		if err := s.Transition(entity.EventFormatChosen); err != nil {
			return err
		}

		s.Selection = entity.Selection{Format: format, Custom: custom}

		return nil
	})
	if err != nil {
		c.reject(ctx, u, err)

		return
	}

	c.answer(ctx, u, "", false)
	c.edit(ctx, u.ChatID, u.MessageID, fmt.Sprintf(textChosenFormat, html.EscapeString(label))+textAdRemovalPrompt, menu)
}

// customFormat takes a typed format expression for a session awaiting one.
func (c *Controller) customFormat(ctx context.Context, u Update, s *entity.Session, format string) {
	menu, err := adRemovalMenu(s.ID, format)
	if err != nil {
		c.send(ctx, u.ChatID, textFormatTooLong, nil)

		return
	}

	err = c.sessions.Mutate(s.ID, func(s *entity.Session) error {
		if err := s.Transition(entity.EventCustomFormatText); err != nil {
			return err
		}

		s.Selection = entity.Selection{Format: format, Custom: true}

		return nil
	})
	if err != nil {
		c.log.Debug("Custom format rejected", slog.String("session_id", s.ID), slog.Any("error", err))
		c.send(ctx, u.ChatID, textNotNow, nil)

		return
	}

	msgID, err := c.send(ctx, u.ChatID, fmt.Sprintf(textChosenFormat, html.EscapeString(format))+textAdRemovalPrompt, menu)
	if err != nil {
		return
	}

	_ = c.sessions.Mutate(s.ID, func(s *entity.Session) error {
		s.MessageID = msgID

		return nil
	})
}

func adRemovalMenu(sid, format string) (catalog.Menu, error) {
	yes, err := payload.Encode(payload.AdRemovalChoice{SID: sid, Format: format, Remove: true})
	if err != nil {
		return nil, err
	}

	no, err := payload.Encode(payload.AdRemovalChoice{SID: sid, Format: format, Remove: false})
	if err != nil {
		return nil, err
	}

	return catalog.Menu{
		{{Text: textAdRemovalYes, Action: yes}},
		{{Text: textAdRemovalNo, Action: no}},
		{{Text: textCancel, Action: payload.MustEncode(payload.Cancel{SID: sid})}},
	}, nil
}

func retryMenu(sid, format string, remove bool) catalog.Menu {
	retry, err := payload.Encode(payload.Retry{SID: sid, Format: format, Remove: remove})
	if err != nil {
		return nil
	}

	return catalog.Menu{
		{{Text: textRetry, Action: retry}},
		{{Text: textCancel, Action: payload.MustEncode(payload.Cancel{SID: sid})}},
	}
}

// start admits a download for ev (ad-removal choice or retry) and queues it.
// A rejected admission leaves the session untouched.
func (c *Controller) start(ctx context.Context, u Update, s *entity.Session, ev entity.Event, format string, remove bool) {
	if !s.Can(ev) {
		c.reject(ctx, u, fmt.Errorf("%w: %s on %s", common.ErrIllegalTransition, ev, s.State))

		return
	}

	if !c.limiter.TryAcquire(u.UserID) {
		c.reject(ctx, u, common.ErrConcurrency)

		return
	}

	err := c.sessions.Mutate(s.ID, func(s *entity.Session) error {
		if err := s.Transition(ev); err != nil {
			return err
		}

		s.Selection.Format = format
		s.Selection.AdRemoval = remove

		return nil
	})
	if err != nil {
		c.limiter.Release(u.UserID)
		c.reject(ctx, u, err)

		return
	}

	j := newJob(s, u, format, remove)

	c.answer(ctx, u, "", false)

	tmpl := textStarting
	if ev == entity.EventRetry {
		tmpl = textResuming
	}

	c.edit(ctx, u.ChatID, u.MessageID, fmt.Sprintf(tmpl, html.EscapeString(formatLabel(s, format)), sponsorMark(remove)), nil)

	c.log.Info("Download queued", slog.String("session_id", s.ID), slog.String("format", format), slog.String("event", ev.String()))

	err = c.pool.Submit(ctx, func(ctx context.Context) {
		c.download(ctx, j)
	})
	if err != nil {
		c.log.Error("Cannot submit download", slog.Any("error", err))
		c.failed(ctx, j, fmt.Errorf("%w: %w", common.ErrDownloadTransient, err))
	}
}

func newJob(s *entity.Session, u Update, format string, remove bool) job {
	title := s.Title
	if title == "" {
		title = defaultTitle
	}

	custom := s.Selection.Custom || download.IsCustom(format)

	cat := entity.CategoryVideoAudio
	if _, fc, ok := s.Groups.Find(format); ok && !custom {
		cat = fc
	}

	return job{
		sid:       s.ID,
		userID:    u.UserID,
		chatID:    u.ChatID,
		messageID: u.MessageID,
		url:       s.SourceURL,
		title:     title,
		format:    format,
		category:  cat,
		videoOnly: cat == entity.CategoryVideoOnly,
		custom:    custom,
		remove:    remove,
	}
}

func formatLabel(s *entity.Session, format string) string {
	if f, _, ok := s.Groups.Find(format); ok && !s.Selection.Custom {
		return catalog.ButtonLabel(*f)
	}

	return format
}

func sponsorMark(remove bool) string {
	if remove {
		return textSponsorMark
	}

	return ""
}

// download runs on a worker. Every outcome is posted back to the controller.
func (c *Controller) download(ctx context.Context, j job) {
	progress := func(p download.Progress) {
		text := progressText(p, j.remove)
		c.tryPost(func(ctx context.Context) {
			c.notify(ctx, j.chatID, j.messageID, text)
		})
	}

	req := download.Request{
		URL:       j.url,
		Format:    j.format,
		WorkDir:   j.sid,
		AdRemoval: j.remove,
		VideoOnly: j.videoOnly,
		Custom:    j.custom,
	}

	path, err := c.downloader.Execute(ctx, req, progress)
	if err != nil {
		c.post(ctx, func(ctx context.Context) {
			c.failed(ctx, j, err)
		})

		return
	}

	c.post(ctx, func(ctx context.Context) {
		c.notify(ctx, j.chatID, j.messageID, textUploading)
	})

	res, err := c.deliverer.Deliver(ctx, delivery.Item{
		SessionID: j.sid,
		Path:      path,
		Title:     j.title,
		Category:  j.category,
		ChatID:    j.chatID,
	})

	c.post(ctx, func(ctx context.Context) {
		c.finished(ctx, j, res, err)
	})
}

func progressText(p download.Progress, remove bool) string {
	parts := []string{textProgress}

	if pct, ok := p.Percent(); ok {
		parts = append(parts,
			fmt.Sprintf("%.1f%%", pct),
			fmt.Sprintf("(%s / %s)", catalog.HumanSize(p.Downloaded), catalog.HumanSize(p.Total)),
		)
	}

	if p.Speed > 0 {
		parts = append(parts, "| "+catalog.HumanSize(int64(p.Speed))+"/s")
	}

	if p.ETA > 0 {
		parts = append(parts, fmt.Sprintf("| ETA %ds", int(p.ETA.Seconds())))
	}

	return strings.Join(parts, " ") + sponsorMark(remove)
}

// failed keeps the session and partial files for a retry unless the output
// went missing.
func (c *Controller) failed(ctx context.Context, j job, err error) {
	c.limiter.Release(j.userID)

	log := c.log.With(slog.String("session_id", j.sid))
	kind := common.Classify(err)

	if !kind.Retryable() {
		log.Error("Download failed for good", slog.String("kind", kind.String()), slog.Any("error", err))

		text, result := fmt.Sprintf(textFailed, escape(err)), resultFatal
		if kind == common.KindFileMissing {
			text, result = textFileMissing, resultMissing
		}

		metrics.RecordDownload(result)

		c.edit(ctx, j.chatID, j.messageID, text, nil)
		c.retire(ctx, j.sid)

		return
	}

	log.Warn("Download failed", slog.String("kind", kind.String()), slog.Any("error", err))

	tmpl, result := textFatal, resultFatal
	if kind == common.KindTransient {
		tmpl, result = textTransient, resultTransient
	}

	metrics.RecordDownload(result)

	var menu catalog.Menu

	err = c.sessions.Mutate(j.sid, func(s *entity.Session) error {
		return s.Transition(entity.EventDownloadFailed)
	})
	if err == nil {
		menu = retryMenu(j.sid, j.format, j.remove)
	} else {
		log.Info("Session gone, retry not offered", slog.Any("error", err))
	}

	c.edit(ctx, j.chatID, j.messageID, fmt.Sprintf(tmpl, escape(err)), menu)
}

func (c *Controller) finished(ctx context.Context, j job, res delivery.Result, err error) {
	if err != nil {
		c.failed(ctx, j, err)

		return
	}

	c.limiter.Release(j.userID)
	metrics.RecordDownload(resultOK)

	if res.Delivered {
		c.log.Info("File delivered", slog.String("session_id", j.sid), slog.String("size", humanize.IBytes(uint64(res.Size))))

		if err := c.transport.Delete(ctx, j.chatID, j.messageID); err != nil {
			c.log.Debug("Cannot delete status message", slog.Any("error", err))
		}

		c.retire(ctx, j.sid)

		return
	}

	c.log.Info("File published", slog.String("session_id", j.sid), slog.String("link", res.Link))

	c.edit(ctx, j.chatID, j.messageID, fmt.Sprintf(textTooLarge, humanize.IBytes(uint64(res.Size)), html.EscapeString(res.Link), ttlText(c.cfg.LinkTTL)), nil)

	// The registry pins the directory now.
	c.sessions.Remove(j.sid)
	metrics.Sessions.Set(float64(c.sessions.Len()))
}

func ttlText(d time.Duration) string {
	if d > 0 && d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d.Hours()))
	}

	return d.String()
}

func escape(err error) string {
	return html.EscapeString(common.UserMessage(err))
}

// notify is a best-effort progress edit.
func (c *Controller) notify(ctx context.Context, chatID int64, messageID int, text string) {
	if err := c.transport.Edit(ctx, chatID, messageID, text, nil); err != nil {
		c.log.Debug("Cannot notify", slog.Int64("chat_id", chatID), slog.Any("error", err))
		metrics.RecordNotifyFailure()
	}
}

func (c *Controller) send(ctx context.Context, chatID int64, text string, menu catalog.Menu) (int, error) {
	id, err := c.transport.Send(ctx, chatID, text, menu)
	if err != nil {
		c.log.Error("Cannot send message", slog.Int64("chat_id", chatID), slog.Any("error", err))
	}

	return id, err
}

func (c *Controller) edit(ctx context.Context, chatID int64, messageID int, text string, menu catalog.Menu) {
	if err := c.transport.Edit(ctx, chatID, messageID, text, menu); err != nil {
		c.log.Error("Cannot edit message", slog.Int64("chat_id", chatID), slog.Any("error", err))
	}
}

func (c *Controller) answer(ctx context.Context, u Update, text string, alert bool) {
	if err := c.transport.Answer(ctx, u.CallbackID, text, alert); err != nil {
		c.log.Debug("Cannot answer callback", slog.Any("error", err))
	}
}
