package bot

import (
	"context"

	"github.com/dharsanguruparan/codegate/internal/model"
)

// EventKind classifies an inbound update.
type EventKind int

const (
	EventCommand EventKind = iota
	EventText
	EventMedia
	EventCallback
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventText:
		return "text"
	case EventMedia:
		return "media"
	case EventCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Event is a transport-neutral inbound update.
type Event struct {
	Kind      EventKind
	From      model.Identity
	ChatID    int64
	MessageID int

	// EventCommand
	Command string
	Args    string

	// EventText
	Text string

	// EventMedia
	MediaKind model.Kind
	FileID    string

	// EventCallback
	CallbackID string
	Data       string
}

// Button is one inline keyboard button. Exactly one of URL and Data is set.
type Button struct {
	Text string
	URL  string
	Data string
}

// Transport is the messaging platform as seen by the bot.
type Transport interface {
	Updates(ctx context.Context) <-chan Event
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	SendPrompt(ctx context.Context, chatID int64, text string, rows [][]Button) (int, error)
	SendArtifact(ctx context.Context, chatID int64, kind model.Kind, fileID, caption string) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
}
