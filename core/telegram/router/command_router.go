package router

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/cowinbot/core/logger"
	tg "github.com/m3rciful/cowinbot/core/telegram"
	"github.com/m3rciful/cowinbot/core/telegram/middleware"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes turns every registered command into a Route with the shared
// middleware stack applied: recover innermost, then logging, then the admin
// gate for commands that need it.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}

	defs := reg.Commands()
	routes := make([]tg.Route, 0, len(defs))
	for name, def := range defs {
		routes = append(routes, tg.Route{
			Endpoint: name,
			Handler:  wrapCommand(def.Handler, def.AdminOnly, opts),
		})
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(defs)),
	)
	return routes
}

func wrapCommand(h tele.HandlerFunc, adminOnly bool, opts CommandRouteOptions) tele.HandlerFunc {
	h = middleware.RecoverMiddleware(h)
	h = middleware.LoggerMiddleware(h)
	if adminOnly {
		h = middleware.AdminOnlyMiddleware(middleware.AdminOptions{
			AdminID:  opts.AdminID,
			OnReject: opts.OnAdminReject,
		})(h)
	}
	return h
}
