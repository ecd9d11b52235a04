package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tele "gopkg.in/telebot.v4"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/storage"
	"github.com/Vernoxvernax/Nyaa-Notifications/pkg/logx"
)

const commandTimeout = 10 * time.Second

const helpText = `Commands:
/watch <feed-url> [all|uploads|comments] - watch a feed in this chat
/list - show this chat's watches
/pause - pause notifications for this chat
/resume - resume notifications
/reset - remove all watches and their history`

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", func(c tele.Context) error { return c.Send(helpText) })
	b.bot.Handle("/help", func(c tele.Context) error { return c.Send(helpText) })
	b.bot.Handle("/watch", b.guarded(b.handleWatch))
	b.bot.Handle("/list", b.guarded(b.handleList))
	b.bot.Handle("/pause", b.guarded(b.handlePause(true)))
	b.bot.Handle("/resume", b.guarded(b.handlePause(false)))
	b.bot.Handle("/reset", b.guarded(b.handleReset))
}

func (b *Bot) guarded(h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if !b.allowed(c) {
			return c.Send("You are not allowed to manage subscriptions here.")
		}
		return h(c)
	}
}

// handleWatch creates a subscription for the current chat. The feed
// starts silently: the first cycle seeds the baseline without
// notifying, changes show up from the second cycle on.
func (b *Bot) handleWatch(c tele.Context) error {
	args := c.Args()
	if len(args) == 0 {
		return c.Send("Usage: /watch <feed-url> [all|uploads|comments]")
	}
	feed := args[0]
	if !strings.HasPrefix(feed, "http://") && !strings.HasPrefix(feed, "https://") {
		return c.Send("That does not look like a feed URL.")
	}

	sub := storage.Subscription{
		ChatID:   c.Chat().ID,
		Feed:     feed,
		Uploads:  true,
		Comments: true,
	}
	for _, opt := range args[1:] {
		switch strings.ToLower(opt) {
		case "all":
			sub.AllPages = true
		case "uploads":
			sub.Comments = false
		case "comments":
			sub.Uploads = false
		default:
			return c.Send(fmt.Sprintf("Unknown option %q.", opt))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	id, err := b.store.AddSubscription(ctx, sub)
	if err != nil {
		b.log.Error("add subscription failed", logx.Err(err))
		return c.Send("Could not save the watch, try again later.")
	}
	b.log.Info("subscription added",
		logx.Int64("chat", sub.ChatID), logx.Int64("id", id),
		logx.String("feed", feed))
	return c.Send("Watching. You will be notified about changes from the next poll on.")
}

func (b *Bot) handleList(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	subs, err := b.store.Subscriptions(ctx)
	if err != nil {
		b.log.Error("list subscriptions failed", logx.Err(err))
		return c.Send("Could not read the watch list.")
	}

	var sb strings.Builder
	for _, sub := range subs {
		if sub.ChatID != c.Chat().ID {
			continue
		}
		state := "active"
		if sub.Paused {
			state = "paused"
		}
		fmt.Fprintf(&sb, "• %s (%s, added %s)\n",
			html.EscapeString(sub.Feed), state, humanize.Time(sub.CreatedAt))
	}
	if sb.Len() == 0 {
		return c.Send("No watches in this chat. Add one with /watch.")
	}
	return c.Send(sb.String(), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
}

func (b *Bot) handlePause(paused bool) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		n, err := b.store.SetPaused(ctx, c.Chat().ID, paused)
		if err != nil {
			b.log.Error("pause toggle failed", logx.Err(err))
			return c.Send("Could not update the watches.")
		}
		if n == 0 {
			return c.Send("Nothing to change.")
		}
		if paused {
			return c.Send(fmt.Sprintf("Paused %d watch(es).", n))
		}
		return c.Send(fmt.Sprintf("Resumed %d watch(es).", n))
	}
}

// handleReset drops the chat's watches together with their baselines,
// so a re-added feed starts over from a silent first cycle.
func (b *Bot) handleReset(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	n, err := b.store.Reset(ctx, c.Chat().ID)
	if err != nil {
		b.log.Error("reset failed", logx.Err(err))
		return c.Send("Could not reset the watches.")
	}
	if n == 0 {
		return c.Send("Nothing to reset.")
	}
	return c.Send(fmt.Sprintf("Removed %d watch(es) and their history.", n))
}
