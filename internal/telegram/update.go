package telegram

import (
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dharsanguruparan/codegate/internal/bot"
	"github.com/dharsanguruparan/codegate/internal/model"
)

// toEvent converts an update. The second result is false for updates the bot
// ignores: edits, channel posts, messages without a sender, stickers.
func toEvent(update tgbotapi.Update) (bot.Event, bool) {
	if q := update.CallbackQuery; q != nil {
		if q.From == nil {
			return bot.Event{}, false
		}
		ev := bot.Event{
			Kind:       bot.EventCallback,
			From:       identity(q.From),
			ChatID:     q.From.ID,
			CallbackID: q.ID,
			Data:       q.Data,
		}
		if q.Message != nil {
			ev.MessageID = q.Message.MessageID
			if q.Message.Chat != nil {
				ev.ChatID = q.Message.Chat.ID
			}
		}
		return ev, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return bot.Event{}, false
	}
	ev := bot.Event{
		From:      identity(msg.From),
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
	}
	if kind, fileID := extractMedia(msg); kind != "" {
		ev.Kind = bot.EventMedia
		ev.MediaKind = kind
		ev.FileID = fileID
		return ev, true
	}
	if msg.IsCommand() {
		ev.Kind = bot.EventCommand
		ev.Command = strings.ToLower(msg.Command())
		ev.Args = strings.TrimSpace(msg.CommandArguments())
		return ev, true
	}
	if strings.TrimSpace(msg.Text) == "" {
		return bot.Event{}, false
	}
	ev.Kind = bot.EventText
	ev.Text = msg.Text
	return ev, true
}

func identity(u *tgbotapi.User) model.Identity {
	return model.Identity{
		ID:        u.ID,
		FirstName: u.FirstName,
		Username:  u.UserName,
		FirstSeen: time.Now().UTC(),
	}
}

// extractMedia returns the artifact kind and file handle carried by msg.
// Animations are checked before documents because Telegram sets both.
func extractMedia(msg *tgbotapi.Message) (model.Kind, string) {
	switch {
	case msg.Video != nil:
		return model.KindVideo, msg.Video.FileID
	case msg.Animation != nil:
		return model.KindAnimation, msg.Animation.FileID
	case msg.Document != nil:
		return model.KindDocument, msg.Document.FileID
	case msg.Audio != nil:
		return model.KindAudio, msg.Audio.FileID
	case msg.Voice != nil:
		return model.KindVoice, msg.Voice.FileID
	case len(msg.Photo) > 0:
		return model.KindImage, pickPhoto(msg.Photo).FileID
	default:
		return "", ""
	}
}

// pickPhoto returns the largest rendition. Telegram lists sizes in
// ascending order.
func pickPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	if len(items) == 0 {
		return tgbotapi.PhotoSize{}
	}
	return items[len(items)-1]
}
