package sender

import (
	"context"
	"errors"
	"time"

	tele "gopkg.in/telebot.v4"

	"teleforward/internal/destination"
)

const chatTextLimit = 4096

// chatAPI is the slice of *tele.Bot the chat sender needs. Narrowed so tests
// can script provider behavior without a live bot.
type chatAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	ChatByID(id int64) (*tele.Chat, error)
}

// Chat delivers payloads to Telegram chats through an existing bot session.
type Chat struct {
	bot chatAPI
}

func NewChat(bot *tele.Bot) *Chat { return &Chat{bot: bot} }

func newChatWithAPI(bot chatAPI) *Chat { return &Chat{bot: bot} }

func (c *Chat) Send(ctx context.Context, dest destination.Destination, payload Payload) Result {
	if c.bot == nil {
		return Result{Status: StatusTransient, Class: ClassTransientNetwork, Err: errors.New("chat session not connected")}
	}
	if err := ctx.Err(); err != nil {
		return Result{Status: StatusTransient, Class: ClassTransientNetwork, Err: err}
	}

	text := payload.ChatText
	if text == "" {
		return Result{Status: StatusPermanent, Class: ClassRejected, Err: errors.New("chat payload is empty")}
	}
	// Telegram counts characters, not bytes; cutting mid-rune would also
	// produce invalid UTF-8 the API rejects outright.
	if rs := []rune(text); len(rs) > chatTextLimit {
		text = string(rs[:chatTextLimit-3]) + "..."
	}

	opts := &tele.SendOptions{
		DisableWebPagePreview: true,
		ThreadID:              dest.ThreadID,
	}
	_, err := c.bot.Send(&tele.Chat{ID: dest.ChatID}, text, opts)
	return classifyChatErr(err)
}

// Probe resolves the chat without sending anything into it.
func (c *Chat) Probe(ctx context.Context, dest destination.Destination) Result {
	if c.bot == nil {
		return Result{Status: StatusTransient, Class: ClassTransientNetwork, Err: errors.New("chat session not connected")}
	}
	if err := ctx.Err(); err != nil {
		return Result{Status: StatusTransient, Class: ClassTransientNetwork, Err: err}
	}
	_, err := c.bot.ChatByID(dest.ChatID)
	return classifyChatErr(err)
}

// classifyChatErr maps provider errors onto the shared taxonomy. Flood
// control carries the provider's wait in whole seconds; it is authoritative
// and floored at one second.
func classifyChatErr(err error) Result {
	if err == nil {
		return delivered()
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		wait := time.Duration(flood.RetryAfter) * time.Second
		if wait < time.Second {
			wait = time.Second
		}
		return Result{Status: StatusTransient, Class: ClassRateLimited, RetryAfter: wait, Err: err}
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 500 {
			return Result{Status: StatusTransient, Class: ClassTransientNetwork, Err: err}
		}
		// 4xx: chat not found, bot kicked, bad request. Retrying cannot help.
		return Result{Status: StatusPermanent, Class: ClassRejected, Err: err}
	}

	return Result{Status: StatusTransient, Class: ClassTransientNetwork, Err: err}
}
