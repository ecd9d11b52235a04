// Package app wires configuration, storage, the snapshot source, the
// sinks and the scheduler into the running process.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/config"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/dispatch"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/fetchcache"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/reconcile"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/sink/email"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/sink/push"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/sink/telegram"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/source"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/storage"
	"github.com/Vernoxvernax/Nyaa-Notifications/pkg/logx"
)

type App struct {
	cfg *config.Config
	log logx.Logger

	store      storage.Store
	src        fetchcache.Source
	reconciler *reconcile.Reconciler
	dispatcher *dispatch.Dispatcher
	bot        *telegram.Bot

	cron *cron.Cron
	// token guards cycle non-overlap: a cycle runs only while holding
	// the single slot.
	token chan struct{}
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	log, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File:    cfg.Logging.File,
	})
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout.Value(),
	}, log.With(logx.String("component", "storage")))
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	client := source.NewClient(source.Config{
		RequestDelay: cfg.RequestDelay.Value(),
		Timeout:      cfg.FetchTimeout.Value(),
	}, log.With(logx.String("component", "source")))

	a := &App{
		cfg:        cfg,
		log:        log,
		store:      store,
		src:        client,
		reconciler: reconcile.New(cfg.FreshnessWindow.Value(), log.With(logx.String("component", "reconcile"))),
		dispatcher: dispatch.New(log.With(logx.String("component", "dispatch"))),
		cron:       cron.New(),
		token:      make(chan struct{}, 1),
	}
	a.token <- struct{}{}

	a.dispatcher.Register(config.KindEmail, email.NewSink(log.With(logx.String("sink", "email"))))
	a.dispatcher.Register(config.KindPush, push.NewSink(log.With(logx.String("sink", "push"))))

	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		bot, err := telegram.NewBot(cfg.Telegram, store, log.With(logx.String("component", "telegram")))
		if err != nil {
			_ = store.Close()
			_ = log.Close()
			return nil, err
		}
		a.bot = bot
		a.dispatcher.Register(config.KindTelegram, telegram.NewSink(bot, log.With(logx.String("sink", "telegram"))))
	}
	return a, nil
}

// Start launches the chat session and the poll schedule, then reports
// readiness to the service manager. An immediate first cycle runs
// before the schedule takes over.
func (a *App) Start(ctx context.Context) error {
	if a.bot != nil {
		go a.bot.Start()
	}

	spec := "@every " + a.cfg.UpdateInterval.Value().String()
	if _, err := a.cron.AddFunc(spec, func() { a.tryCycle(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	a.cron.Start()

	go a.tryCycle(ctx)

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("started",
		logx.String("interval", a.cfg.UpdateInterval.String()),
		logx.Int("destinations", len(a.cfg.Destinations)),
		logx.Bool("telegram", a.bot != nil))
	return nil
}

func (a *App) Stop() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	<-a.cron.Stop().Done()
	if a.bot != nil {
		a.bot.Stop()
	}
	// Wait for an in-flight cycle before closing the store.
	<-a.token
	if err := a.store.Close(); err != nil {
		a.log.Error("store close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	_ = a.log.Close()
}
