package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/cowinbot/core/logger"
	"github.com/m3rciful/cowinbot/core/telegram/sender"
)

var activeDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
// Passing nil reverts helpers to synchronous sending.
func SetDispatcher(d *sender.Dispatcher) {
	activeDispatcher.Store(d)
}

// sendAsync hands the send closure to the dispatcher's chat lane. When the
// lane is saturated or the dispatcher is gone the send degrades to a
// synchronous call instead of dropping the message.
func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := activeDispatcher.Load()
	if disp == nil {
		return run()
	}

	var chatID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}

	ctx := BuildContext(c)
	err := disp.Enqueue(ctx, chatID, action, endpoint, run)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sender.ErrQueueFull), errors.Is(err, sender.ErrQueueClosed):
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.String("err", err.Error()),
		)
		return run()
	default:
		return err
	}
}

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	return sendAsync(c, "send.text", "sendMessage", func() error {
		if len(opts) > 0 && opts[0] != nil {
			return c.Send(text, opts[0])
		}
		return c.Send(text)
	})
}

// SendMDV2 sends a message with MarkdownV2 parse mode and optional reply markup.
func SendMDV2(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	return SendText(c, text, &tele.SendOptions{
		ParseMode:   tele.ModeMarkdownV2,
		ReplyMarkup: firstMarkup(markup),
	})
}

// SendPlain sends a message without parse mode and with optional reply markup.
func SendPlain(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	return SendText(c, text, &tele.SendOptions{ReplyMarkup: firstMarkup(markup)})
}

func firstMarkup(markup []*tele.ReplyMarkup) *tele.ReplyMarkup {
	if len(markup) > 0 {
		return markup[0]
	}
	return nil
}
