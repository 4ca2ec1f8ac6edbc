package bot

import (
	tghelpers "github.com/m3rciful/cowinbot/core/telegram/helpers"
	"github.com/m3rciful/cowinbot/core/telegram/keyboard"
	"github.com/m3rciful/cowinbot/internal/dialog"

	tele "gopkg.in/telebot.v4"
)

// teleOutbox adapts a telebot context to the dialog outbox. Replies go
// through the async sender, so per-chat ordering is preserved by its
// serialized lanes.
type teleOutbox struct {
	c tele.Context
}

func outboxFor(c tele.Context) dialog.Outbox {
	return teleOutbox{c: c}
}

func (o teleOutbox) Markdown(text string, rows [][]string) error {
	return tghelpers.SendMDV2(o.c, text, markupFor(rows))
}

func (o teleOutbox) Plain(text string, rows [][]string) error {
	return tghelpers.SendPlain(o.c, text, markupFor(rows))
}

func (o teleOutbox) RemoveKeyboard(text string) error {
	return tghelpers.SendPlain(o.c, text, keyboard.RemoveKeyboard())
}

func markupFor(rows [][]string) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	return keyboard.ReplyButtons(rows...)
}
