package bot

import (
	"fmt"
	"strings"

	tg "github.com/m3rciful/cowinbot/core/telegram"
	"github.com/m3rciful/cowinbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/cowinbot/core/telegram/helpers"
	"github.com/m3rciful/cowinbot/core/telegram/router"
	"github.com/m3rciful/cowinbot/internal/dialog"
	"github.com/m3rciful/cowinbot/internal/searchlog"

	tele "gopkg.in/telebot.v4"
)

const helpText = `This bot finds COVID-19 vaccination slots on the public CoWIN calendar.

Press /start and either:
- type your 6-digit pincode, or
- pick your state, then your district.

You get every center with free capacity for the next 7 days. If a district has too many results, the bot asks for a pincode to narrow them down. Your last search is remembered so you can repeat it with one tap.

Book your slot at https://selfregistration.cowin.gov.in/`

// Bot wires the slot search dialog into Telegram handlers.
type Bot struct {
	dialog   *dialog.Controller
	searches *searchlog.Repo
	adminID  int64
}

// New builds the bot over a dialog controller and an optional search
// audit repo.
func New(ctl *dialog.Controller, searches *searchlog.Repo, adminID int64) *Bot {
	return &Bot{dialog: ctl, searches: searches, adminID: adminID}
}

// Registry returns all bot commands ready for route wiring.
func (b *Bot) Registry() *tg.Registry {
	reg := tg.NewRegistry()
	reg.RegisterCommand("/start", commands.Command{
		Handler:     b.handleStart,
		Description: "Search for vaccination slots",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     b.handleHelp,
		Description: "How to use this bot",
	})
	reg.RegisterCommand("/stats", commands.Command{
		Handler:     b.handleStats,
		Description: "Usage statistics",
		AdminOnly:   true,
		Hidden:      true,
	})
	return reg
}

// Routes builds command and text routes for the registry.
func (b *Bot) Routes(reg *tg.Registry) []tg.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{AdminID: b.adminID})
	routes = append(routes, router.TextRoutes(b, reg, router.TextOptions{})...)
	return routes
}

// InProgress reports whether the sender has an active search dialog.
func (b *Bot) InProgress(userID int64) bool {
	return b.dialog.InProgress(userID)
}

// HandleText forwards a plain text update into the dialog.
func (b *Bot) HandleText(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return b.dialog.HandleText(ctx, c.Sender().ID, c.Text(), outboxFor(c))
}

func (b *Bot) handleStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return b.dialog.Start(ctx, c.Sender().ID, c.Text(), outboxFor(c))
}

func (b *Bot) handleHelp(c tele.Context) error {
	return tghelpers.SendPlain(c, helpText)
}

func (b *Bot) handleStats(c tele.Context) error {
	if !b.searches.Enabled() {
		return tghelpers.SendPlain(c, "Search statistics are not enabled.")
	}
	ctx := tghelpers.BuildContext(c)
	stats, err := b.searches.Fetch(ctx)
	if err != nil {
		return tghelpers.SendPlain(c, "Failed to load statistics.")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Searches: %d total, %d today\n", stats.TotalSearches, stats.SearchesToday)
	fmt.Fprintf(&sb, "Users: %d\n", stats.UniqueUsers)
	fmt.Fprintf(&sb, "Empty results: %d\n", stats.EmptySearches)
	fmt.Fprintf(&sb, "By method: district %d, pincode %d, district+pincode %d",
		stats.DistrictMethod, stats.PincodeMethod, stats.FilteredMethod)
	return tghelpers.SendPlain(c, sb.String())
}
