// Package reconcile computes the delta between a freshly fetched feed
// snapshot and the persisted baseline of one destination, classifying
// every comment into its lifecycle state.
package reconcile

import (
	"context"
	"time"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/config"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/nyaa"
	"github.com/Vernoxvernax/Nyaa-Notifications/pkg/logx"
)

// Cache loads full torrent details on demand. It lives for exactly one
// poll cycle and is handed in per call, never stored on the Reconciler.
type Cache interface {
	FullTorrent(ctx context.Context, t nyaa.Torrent) (nyaa.Torrent, error)
}

// Reconciler diffs snapshots. Safe for reuse across cycles; all
// per-cycle state lives in the Cache argument.
type Reconciler struct {
	window time.Duration
	now    func() time.Time
	log    logx.Logger
}

func New(window time.Duration, log logx.Logger) *Reconciler {
	if window <= 0 {
		window = time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reconciler{window: window, now: time.Now, log: log}
}

// Reconcile compares fresh torrents against the persisted baseline and
// returns one Update per torrent that changed, in feed order. Torrents
// whose detail fetch fails are skipped for this cycle and will be
// retried on the next one, since the baseline does not move for them.
func (r *Reconciler) Reconcile(ctx context.Context, dest config.Destination, cache Cache, fresh, persisted []nyaa.Torrent) ([]nyaa.Update, error) {
	baseline := make(map[uint64]*nyaa.Torrent, len(persisted))
	for i := range persisted {
		baseline[persisted[i].ID] = &persisted[i]
	}

	var updates []nyaa.Update
	for _, t := range fresh {
		p, known := baseline[t.ID]
		if !known {
			u, ok := r.newTorrent(ctx, dest, cache, t)
			if ok {
				updates = append(updates, u)
			}
			continue
		}
		u, ok := r.knownTorrent(ctx, dest, cache, t, *p)
		if ok {
			updates = append(updates, u)
		}
	}
	return updates, nil
}

// newTorrent builds the first Update for a torrent absent from the
// baseline. Every comment it carries is tagged new.
func (r *Reconciler) newTorrent(ctx context.Context, dest config.Destination, cache Cache, t nyaa.Torrent) (nyaa.Update, bool) {
	needDetail := (t.CommentCount > 0 && dest.Comments) || dest.NeedsUploader()
	if needDetail {
		full, err := cache.FullTorrent(ctx, t)
		if err != nil {
			// A half-built new-torrent event would persist a wrong
			// baseline; skip the torrent and let the next cycle retry.
			r.log.Warn("detail fetch failed, skipping new torrent",
				logx.Uint64("torrent", t.ID), logx.Err(err))
			return nyaa.Update{}, false
		}
		t = full
	}
	for i := range t.Comments {
		t.Comments[i].State = nyaa.StateNew
	}
	return nyaa.Update{NewTorrent: true, Torrent: t}, true
}

// knownTorrent decides whether a baseline torrent changed and, if so,
// produces an Update carrying only the changed comments.
func (r *Reconciler) knownTorrent(ctx context.Context, dest config.Destination, cache Cache, t, p nyaa.Torrent) (nyaa.Update, bool) {
	// The source's own count proves the thread was emptied; no fetch
	// needed to conclude every recorded comment is gone.
	if t.CommentCount == 0 && p.CommentCount > 0 {
		deleted := make([]nyaa.Comment, 0, len(p.Comments))
		for _, c := range p.Comments {
			c.State = nyaa.StateDeleted
			deleted = append(deleted, c)
		}
		if len(deleted) == 0 {
			return nyaa.Update{}, false
		}
		t.Comments = deleted
		return nyaa.Update{Torrent: t}, true
	}

	if t.CommentCount == p.CommentCount && !r.hasRecheckable(p) {
		return nyaa.Update{}, false
	}

	full, err := cache.FullTorrent(ctx, t)
	if err != nil {
		r.log.Warn("detail fetch failed, deferring torrent",
			logx.Uint64("torrent", t.ID), logx.Err(err))
		return nyaa.Update{}, false
	}

	changed := r.diffComments(full.Comments, p.Comments)
	if len(changed) == 0 {
		return nyaa.Update{}, false
	}
	full.Comments = changed
	return nyaa.Update{Torrent: full}, true
}

// hasRecheckable reports whether the baseline carries a delivered
// comment still inside the freshness window. Such comments may have
// been silently edited at the source and force a thread re-fetch even
// when the count did not move.
func (r *Reconciler) hasRecheckable(p nyaa.Torrent) bool {
	for _, c := range p.Comments {
		if c.State == nyaa.StateUnchecked && !r.frozen(c) {
			return true
		}
	}
	return false
}

// frozen reports whether a delivered comment has aged out of the
// freshness window. Frozen comments are never compared again; late
// edits to them go unnoticed, trading completeness for fetch cost.
func (r *Reconciler) frozen(c nyaa.Comment) bool {
	age := r.now().Unix() - c.CreatedAt
	return age >= int64(r.window/time.Second)
}
