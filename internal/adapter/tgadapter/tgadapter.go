// Package tgadapter connects the bot to a Telegram Bot API server.
package tgadapter

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jgivc/fetchbot/internal/bot"
	"github.com/jgivc/fetchbot/internal/config"
	"github.com/jgivc/fetchbot/internal/service/catalog"
	"github.com/jgivc/fetchbot/internal/service/delivery"
)

const (
	endpointFormat = "/bot%s/%s"
	pollTimeout    = 60
	maxCaption     = 1024
)

type tgAdapter struct {
	api *tgbotapi.BotAPI
	log *slog.Logger
}

// NewTGAdapter logs in with getMe and drops updates queued while the bot was down.
func NewTGAdapter(cfg *config.BotConfig, log *slog.Logger) (*tgAdapter, error) {
	endpoint := tgbotapi.APIEndpoint
	if cfg.APIURL != "" {
		endpoint = cfg.APIURL + endpointFormat
	}

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to bot api: %w", err)
	}

	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		return nil, fmt.Errorf("cannot delete webhook: %w", err)
	}

	a := &tgAdapter{
		api: api,
		log: log.With(slog.String("item", "TGAdapter")),
	}

	a.log.Info("Authorized", slog.String("username", api.Self.UserName), slog.String("endpoint", cfg.APIURL))

	return a, nil
}

// Updates long-polls until ctx is done.
func (a *tgAdapter) Updates(ctx context.Context) <-chan bot.Update {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout

	in := a.api.GetUpdatesChan(u)
	out := make(chan bot.Update)

	go func() {
		defer close(out)
		defer a.api.StopReceivingUpdates()

		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-in:
				if !ok {
					return
				}

				update, ok := convert(upd)
				if !ok {
					continue
				}

				select {
				case <-ctx.Done():
					return
				case out <- update:
				}
			}
		}
	}()

	return out
}

func convert(upd tgbotapi.Update) (bot.Update, bool) {
	switch {
	case upd.CallbackQuery != nil:
		cq := upd.CallbackQuery
		if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
			return bot.Update{}, false
		}

		return bot.Update{
			UserID:     cq.From.ID,
			ChatID:     cq.Message.Chat.ID,
			MessageID:  cq.Message.MessageID,
			CallbackID: cq.ID,
			Data:       cq.Data,
		}, true
	case upd.Message != nil:
		m := upd.Message
		if m.From == nil || m.Chat == nil || m.Text == "" {
			return bot.Update{}, false
		}

		return bot.Update{
			UserID:    m.From.ID,
			ChatID:    m.Chat.ID,
			MessageID: m.MessageID,
			Text:      m.Text,
		}, true
	}

	return bot.Update{}, false
}

func keyboard(menu catalog.Menu) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(menu))

	for _, row := range menu {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Action))
		}

		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (a *tgAdapter) Send(_ context.Context, chatID int64, text string, menu catalog.Menu) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if menu != nil {
		msg.ReplyMarkup = keyboard(menu)
	}

	sent, err := a.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("cannot send message: %w", err)
	}

	return sent.MessageID, nil
}

func (a *tgAdapter) Edit(_ context.Context, chatID int64, messageID int, text string, menu catalog.Menu) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if menu != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, keyboard(menu))
	}

	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true

	if _, err := a.api.Request(edit); err != nil {
		return fmt.Errorf("cannot edit message: %w", err)
	}

	return nil
}

func (a *tgAdapter) Answer(_ context.Context, callbackID, text string, alert bool) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cb = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}

	if _, err := a.api.Request(cb); err != nil {
		return fmt.Errorf("cannot answer callback: %w", err)
	}

	return nil
}

func (a *tgAdapter) Delete(_ context.Context, chatID int64, messageID int) error {
	if _, err := a.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("cannot delete message: %w", err)
	}

	return nil
}

// Upload streams the file from disk as a multipart request.
func (a *tgAdapter) Upload(_ context.Context, kind delivery.UploadKind, chatID int64, path, title string) error {
	file := tgbotapi.FilePath(path)
	caption := truncate(title, maxCaption)

	var c tgbotapi.Chattable

	switch kind {
	case delivery.UploadVideo:
		v := tgbotapi.NewVideo(chatID, file)
		v.Caption = caption
		v.SupportsStreaming = true
		c = v
	case delivery.UploadAudio:
		au := tgbotapi.NewAudio(chatID, file)
		au.Caption = caption
		au.Title = title
		c = au
	default:
		d := tgbotapi.NewDocument(chatID, file)
		d.Caption = caption
		c = d
	}

	if _, err := a.api.Send(c); err != nil {
		return fmt.Errorf("cannot upload %s: %w", kind, err)
	}

	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n])
}
