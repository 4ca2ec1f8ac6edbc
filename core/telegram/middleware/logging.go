package middleware

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/cowinbot/core/logger"
	tghelpers "github.com/m3rciful/cowinbot/core/telegram/helpers"
)

// seenUpdates remembers recently logged update IDs so the receipt line is
// emitted once even when the middleware chain runs on multiple branches.
type seenUpdates struct {
	mu   sync.Mutex
	ids  map[int]time.Time
	keep time.Duration
}

var recentUpdates = &seenUpdates{ids: make(map[int]time.Time), keep: 10 * time.Second}

// firstSighting records id and reports whether this is its first appearance
// within the retention window. Stale entries are swept on each call.
func (s *seenUpdates) firstSighting(id int) bool {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for old, ts := range s.ids {
		if now.Sub(ts) > s.keep {
			delete(s.ids, old)
		}
	}
	if _, dup := s.ids[id]; dup {
		return false
	}
	s.ids[id] = now
	return true
}

// LoggerMiddleware builds the request correlation id, stores a prepared
// context on the telebot context, and logs a sampled update.received line.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()

		var chatID, userID int64
		if chat := c.Chat(); chat != nil {
			chatID = chat.ID
		}
		if user := c.Sender(); user != nil {
			userID = user.ID
		}

		rid := logger.BuildRID(upd.ID, chatID, userID)
		c.Set("rid", rid)
		c.Set("update_start", time.Now())

		ctx := logger.WithRID(logger.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		ctx = logger.WithLogger(ctx, logger.Component("tg"))
		tghelpers.StoreContext(c, ctx)

		if logger.ShouldSampleDebug() && recentUpdates.firstSighting(upd.ID) {
			logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received",
				receiptAttrs(c, rid)...)
		}

		return next(c)
	}
}

func receiptAttrs(c tele.Context, rid string) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("rid", rid),
		slog.Int("update_id", c.Update().ID),
	}
	if chat := c.Chat(); chat != nil && chat.ID != 0 {
		attrs = append(attrs,
			slog.Int64("chat_id", chat.ID),
			slog.String("chat_type", string(chat.Type)),
		)
	}
	if user := c.Sender(); user != nil && user.ID != 0 {
		attrs = append(attrs, slog.Int64("user_id", user.ID))
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}
	if c.Update().Message != nil {
		if t := c.Text(); t != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
		}
	}
	return attrs
}
