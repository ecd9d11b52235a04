package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/config"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/dispatch"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/fetchcache"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/nyaa"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/reconcile"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/storage"
	"github.com/Vernoxvernax/Nyaa-Notifications/pkg/logx"
)

// tryCycle runs a poll cycle if none is in flight. A cycle still
// running when the next tick fires wins; the tick is skipped rather
// than queued.
func (a *App) tryCycle(ctx context.Context) {
	select {
	case <-a.token:
	default:
		a.log.Warn("previous cycle still running, skipping tick")
		return
	}
	defer func() { a.token <- struct{}{} }()

	if ctx.Err() != nil {
		return
	}
	a.runCycle(ctx)
}

func (a *App) runCycle(ctx context.Context) {
	started := time.Now()
	log := a.log.With(logx.String("cycle", uuid.NewString()[:8]))

	dests, err := a.destinations(ctx)
	if err != nil {
		log.Error("loading destinations failed, cycle aborted", logx.Err(err))
		return
	}

	// One cache per cycle; every destination shares its fetches.
	cache := fetchcache.New(a.src, log)

	for _, dest := range dests {
		if dest.Paused {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if err := a.processDestination(ctx, log, cache, dest); err != nil {
			// A store failure must not advance any state this cycle.
			log.Error("cycle aborted", logx.String("destination", dest.ID), logx.Err(err))
			return
		}
	}
	log.Info("cycle finished", logx.Duration("took", time.Since(started)))
}

// destinations merges the static config destinations with the
// chat-created subscriptions. Subscriptions only materialize while the
// bot session exists.
func (a *App) destinations(ctx context.Context) ([]config.Destination, error) {
	dests := append([]config.Destination(nil), a.cfg.Destinations...)
	if a.bot == nil {
		return dests, nil
	}

	subs, err := a.store.Subscriptions(ctx)
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		dests = append(dests, config.Destination{
			ID:       storage.SubscriptionDestID(sub.ID),
			Kind:     config.KindTelegram,
			Feeds:    []string{sub.Feed},
			Uploads:  sub.Uploads,
			Comments: sub.Comments,
			AllPages: sub.AllPages,
			Paused:   sub.Paused,
			ChatID:   sub.ChatID,
		})
	}
	return dests, nil
}

func (a *App) processDestination(ctx context.Context, log logx.Logger, cache *fetchcache.Cache, dest config.Destination) error {
	log = log.With(logx.String("destination", dest.ID))

	persisted, err := a.store.Load(ctx, dest.ID)
	if err != nil {
		return err
	}
	seeding, err := a.isFirstRun(ctx, dest.ID)
	if err != nil {
		return err
	}

	var fresh []nyaa.Torrent
	for _, feed := range dest.Feeds {
		torrents, err := cache.Page(ctx, feed, dest.AllPages)
		if err != nil {
			// Fetch trouble degrades to "no updates from this feed".
			log.Warn("feed fetch failed", logx.String("feed", feed), logx.Err(err))
			continue
		}
		fresh = mergeFresh(fresh, torrents)
	}
	if len(fresh) == 0 {
		return nil
	}

	updates, err := a.reconciler.Reconcile(ctx, dest, cache, fresh, persisted)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	// Feeds list newest first; notifications go out oldest first.
	reverse(updates)

	var accepted dispatch.Delivered
	if seeding {
		// First run for this destination: record everything silently so
		// only changes from here on notify.
		log.Info("seeding baseline", logx.Int("torrents", len(updates)))
		accepted = dispatch.Delivered{Updates: updates}
	} else {
		accepted = a.dispatcher.Dispatch(ctx, dest, updates)
	}

	baseline := make(map[uint64]*nyaa.Torrent, len(persisted))
	for i := range persisted {
		baseline[persisted[i].ID] = &persisted[i]
	}
	for _, u := range accepted.Updates {
		next := reconcile.Advance(baseline[u.Torrent.ID], u)
		if err := a.store.Upsert(ctx, dest.ID, next); err != nil {
			return err
		}
	}
	if len(accepted.Updates) > 0 {
		log.Info("updates persisted",
			logx.Int("delivered", len(accepted.Updates)),
			logx.Int("reconciled", len(updates)))
	}
	return nil
}

func (a *App) isFirstRun(ctx context.Context, destID string) (bool, error) {
	has, err := a.store.HasBaseline(ctx, destID)
	if err != nil {
		return false, err
	}
	return !has, nil
}

func mergeFresh(have, more []nyaa.Torrent) []nyaa.Torrent {
	seen := make(map[uint64]struct{}, len(have))
	for _, t := range have {
		seen[t.ID] = struct{}{}
	}
	for _, t := range more {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		have = append(have, t)
	}
	return have
}

func reverse(u []nyaa.Update) {
	for i, j := 0, len(u)-1; i < j; i, j = i+1, j-1 {
		u[i], u[j] = u[j], u[i]
	}
}
