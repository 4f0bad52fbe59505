// Package telegram adapts the Telegram Bot API to the bot's Transport and the
// membership Directory.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dharsanguruparan/codegate/internal/apperr"
	"github.com/dharsanguruparan/codegate/internal/bot"
	"github.com/dharsanguruparan/codegate/internal/membership"
	"github.com/dharsanguruparan/codegate/internal/model"
)

const pollTimeout = 30

// API is the subset of *tgbotapi.BotAPI the client calls.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client implements bot.Transport and membership.Directory.
type Client struct {
	api    API
	logger *slog.Logger
}

// New connects to the Bot API with token.
func New(token string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "telegram"))
	if err := tgbotapi.SetLogger(&slogBotLogger{log: logger}); err != nil {
		return nil, err
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	logger.Info("authorized", slog.String("username", api.Self.UserName))
	return &Client{api: api, logger: logger}, nil
}

// NewWithAPI wraps an existing API value.
func NewWithAPI(api API, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, logger: logger.With(slog.String("component", "telegram"))}
}

// Updates long-polls the Bot API and converts updates into events until ctx
// is cancelled. Updates the bot has no use for are dropped.
func (c *Client) Updates(ctx context.Context) <-chan bot.Event {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := c.api.GetUpdatesChan(cfg)
	out := make(chan bot.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				c.api.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					c.logger.Info("updates channel closed")
					return
				}
				ev, ok := toEvent(update)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					c.api.StopReceivingUpdates()
					return
				}
			}
		}
	}()
	return out
}

// SendText sends a plain message.
func (c *Client) SendText(_ context.Context, chatID int64, text string) (int, error) {
	msg, err := c.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, apperr.Transport("send message", err)
	}
	return msg.MessageID, nil
}

// SendPrompt sends a message with an inline keyboard.
func (c *Client) SendPrompt(_ context.Context, chatID int64, text string, rows [][]bot.Button) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(rows) > 0 {
		msg.ReplyMarkup = keyboard(rows)
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, apperr.Transport("send prompt", err)
	}
	return sent.MessageID, nil
}

// SendArtifact re-sends a stored file handle with the primitive matching its
// kind. The handle is passed through verbatim.
func (c *Client) SendArtifact(_ context.Context, chatID int64, kind model.Kind, fileID, caption string) (int, error) {
	file := tgbotapi.FileID(fileID)
	var msg tgbotapi.Chattable
	switch kind {
	case model.KindVideo:
		v := tgbotapi.NewVideo(chatID, file)
		v.Caption = caption
		msg = v
	case model.KindDocument:
		d := tgbotapi.NewDocument(chatID, file)
		d.Caption = caption
		msg = d
	case model.KindAudio:
		a := tgbotapi.NewAudio(chatID, file)
		a.Caption = caption
		msg = a
	case model.KindImage:
		p := tgbotapi.NewPhoto(chatID, file)
		p.Caption = caption
		msg = p
	case model.KindAnimation:
		a := tgbotapi.NewAnimation(chatID, file)
		a.Caption = caption
		msg = a
	case model.KindVoice:
		v := tgbotapi.NewVoice(chatID, file)
		v.Caption = caption
		msg = v
	default:
		return 0, fmt.Errorf("unsupported artifact kind %q: %w", kind, apperr.ErrValidation)
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, apperr.Transport("send "+string(kind), err)
	}
	return sent.MessageID, nil
}

// DeleteMessage removes a message the bot sent.
func (c *Client) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	if _, err := c.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return apperr.Transport("delete message", err)
	}
	return nil
}

// AnswerCallback acknowledges a button press.
func (c *Client) AnswerCallback(_ context.Context, callbackID, text string) error {
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return apperr.Transport("answer callback", err)
	}
	return nil
}

// EditText replaces the text of a message the bot sent.
func (c *Client) EditText(_ context.Context, chatID int64, messageID int, text string) error {
	if _, err := c.api.Request(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		return apperr.Transport("edit message", err)
	}
	return nil
}

// MemberStatus looks up userID in group, which is either "@channelname" or a
// numeric chat id.
func (c *Client) MemberStatus(_ context.Context, group string, userID int64) (membership.Member, error) {
	chatID, username := parseChatInput(group)
	if chatID == 0 && username == "" {
		return membership.Member{}, fmt.Errorf("invalid group %q: %w", group, apperr.ErrValidation)
	}
	member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID:             chatID,
			SuperGroupUsername: username,
			UserID:             userID,
		},
	})
	if err != nil {
		return membership.Member{}, apperr.Transport("get chat member", err)
	}
	return membership.Member{Status: membership.Status(member.Status), IsMember: member.IsMember}, nil
}

// parseChatInput parses input as chat_id (numeric) or @channel_username.
func parseChatInput(input string) (chatID int64, superGroupUsername string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, ""
	}
	if strings.HasPrefix(input, "@") {
		return 0, input
	}
	id, err := strconv.ParseInt(input, 10, 64)
	if err != nil {
		return 0, ""
	}
	return id, ""
}

func keyboard(rows [][]bot.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}
