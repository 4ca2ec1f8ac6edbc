package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/cowinbot/core/bootstrap"
	corecmd "github.com/m3rciful/cowinbot/core/cmd"
	coretelegram "github.com/m3rciful/cowinbot/core/telegram"
	"github.com/m3rciful/cowinbot/internal/bot"
	"github.com/m3rciful/cowinbot/internal/cowin"
	"github.com/m3rciful/cowinbot/internal/dialog"
	"github.com/m3rciful/cowinbot/internal/searchlog"
)

// App holds the assembled application.
type App struct {
	cfg *Config
	db  *sqlx.DB
	bot *bot.Bot
}

// Load adapts LoadConfig to the runner's ConfigCarrier contract.
func Load(path string) (corecmd.ConfigCarrier, error) {
	return LoadConfig(path)
}

// Bootstrap initializes infrastructure and wires the bot together.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}

	res, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	client, err := cowin.NewClient(cfg.Cowin)
	if err != nil {
		return nil, err
	}

	searches := searchlog.New(res.DB)

	ctl, err := dialog.NewController(dialog.Options{
		Provider:         client,
		Recorder:         searches,
		MessageCharLimit: cfg.Telegram.MessageCharLimit,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg: cfg,
		db:  res.DB,
		bot: bot.New(ctl, searches, cfg.Telegram.AdminID),
	}, nil
}

// TelegramRunOptions builds the runtime options for the bot loop.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := a.bot.Registry()
	return coretelegram.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg.CoreConfig(), nil),
		Routes:      a.bot.Routes(reg),
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			if a.db != nil {
				return a.db.Close()
			}
			return nil
		},
	}, nil
}
