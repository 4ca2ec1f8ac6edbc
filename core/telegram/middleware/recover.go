package middleware

import (
	"runtime/debug"

	"github.com/m3rciful/cowinbot/core/logger"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware converts handler panics into an error log so one bad
// update cannot take the bot down. The update itself is dropped.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		defer func() {
			if r := recover(); r != nil {
				attrs := []any{
					slog.String("event", "tg.panic"),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				}
				if upd := c.Update(); upd.ID != 0 {
					attrs = append(attrs, slog.Int("update_id", upd.ID))
				}
				logger.TG.Error("panic recovered", attrs...)
			}
		}()
		return next(c)
	}
}
