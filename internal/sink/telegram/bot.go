package telegram

import (
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/config"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/storage"
	"github.com/Vernoxvernax/Nyaa-Notifications/pkg/logx"
)

// Bot owns the long-lived Telegram session. It runs independently of
// the poll cycle; the cycle only borrows its outbound send capability
// through Sink.
type Bot struct {
	bot    *tele.Bot
	store  storage.Store
	owners []int64
	log    logx.Logger
}

func NewBot(cfg config.TelegramConfig, store storage.Store, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}

	b := &Bot{bot: tb, store: store, owners: cfg.OwnerIDs, log: log}
	b.registerHandlers()
	return b, nil
}

// Raw exposes the underlying session for sending.
func (b *Bot) Raw() *tele.Bot { return b.bot }

// Start blocks on the long poller until Stop is called; run it on its
// own goroutine.
func (b *Bot) Start() {
	b.log.Info("telegram session starting",
		logx.String("bot", b.bot.Me.Username))
	b.bot.Start()
}

func (b *Bot) Stop() {
	b.bot.Stop()
}

// allowed checks the optional owner restriction. An empty owner list
// lets anyone in the chat manage subscriptions.
func (b *Bot) allowed(c tele.Context) bool {
	if len(b.owners) == 0 {
		return true
	}
	sender := c.Sender()
	if sender == nil {
		return false
	}
	for _, id := range b.owners {
		if id == sender.ID {
			return true
		}
	}
	return false
}
