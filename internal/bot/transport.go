package bot

import (
	"context"

	"github.com/jgivc/fetchbot/internal/service/catalog"
)

// Update is an incoming chat message or button press.
type Update struct {
	UserID    int64
	ChatID    int64
	MessageID int
	Text      string
	// CallbackID is set for button presses, Data then holds the payload.
	CallbackID string
	Data       string
}

func (u Update) IsCallback() bool {
	return u.CallbackID != ""
}

// Transport is the chat platform. Texts are HTML. A nil menu sends or leaves
// no keyboard.
type Transport interface {
	Updates(ctx context.Context) <-chan Update
	Send(ctx context.Context, chatID int64, text string, menu catalog.Menu) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string, menu catalog.Menu) error
	Answer(ctx context.Context, callbackID, text string, alert bool) error
	Delete(ctx context.Context, chatID int64, messageID int) error
}
