package router

import (
	"log/slog"
	"reflect"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/cowinbot/core/logger"
	tghelpers "github.com/m3rciful/cowinbot/core/telegram/helpers"
	"github.com/m3rciful/cowinbot/core/telegram/middleware"
)

// handleWithSummary runs fn and emits the single handler.handled summary
// line every routed update gets, success or failure.
func handleWithSummary(c tele.Context, handlerName string, start time.Time, statusOverride, outcomeOverride string, fn func() error, extras ...slog.Attr) error {
	tghelpers.WithHandler(c, handlerName)
	err := fn()
	logHandlerSummary(c, handlerName, start, statusOverride, outcomeOverride, err, extras...)
	return err
}

func logHandlerSummary(c tele.Context, handlerName string, start time.Time, statusOverride, outcomeOverride string, err error, extras ...slog.Attr) {
	ctx := tghelpers.WithHandler(c, handlerName)
	msgs, kb := middleware.GetCounters(c)

	attrs := []slog.Attr{
		slog.String("status", overrideOr(statusOverride, err)),
		slog.String("handler", handlerName),
		slog.String("outcome", overrideOr(outcomeOverride, err)),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
			slog.String("cause", handlerName),
		)
	}
	attrs = append(attrs, extras...)
	logger.LogEvent(ctx, logger.Component("tg"), slog.LevelInfo, "handler.handled", attrs...)
}

// overrideOr keeps an explicit override, otherwise derives ok/fail from err.
func overrideOr(override string, err error) string {
	switch {
	case override != "":
		return override
	case err != nil:
		return "fail"
	default:
		return "ok"
	}
}

func normalizeHandlerName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// deriveErrorCode prefers an error's own Code() and falls back to its
// concrete type name, upper-snake-cased.
func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if c, ok := err.(interface{ Code() string }); ok {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return toErrCode(code)
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return toErrCode(t.Name())
	}
	return "UNKNOWN_ERROR"
}

func toErrCode(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, " ", "_"))
}
