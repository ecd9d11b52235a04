// Package storage persists per-destination diff baselines and the
// chat-managed subscriptions.
package storage

import (
	"context"
	"time"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/nyaa"
)

// Subscription is a feed watch created through the chat control
// surface. It is materialized into a destination at the start of each
// poll cycle.
type Subscription struct {
	ID        int64
	ChatID    int64
	Feed      string
	Uploads   bool
	Comments  bool
	AllPages  bool
	Paused    bool
	CreatedAt time.Time
}

// Store is the persistence boundary. Baselines are keyed by
// destination id, so the same torrent can hold independent diff
// baselines per destination.
//
// Any error from a Store method is fatal for the current poll cycle:
// the caller must not advance any state and retries on the next tick.
type Store interface {
	// Load returns every persisted torrent baseline of a destination.
	Load(ctx context.Context, destID string) ([]nyaa.Torrent, error)
	// Upsert replaces one torrent baseline including its comments.
	Upsert(ctx context.Context, destID string, t nyaa.Torrent) error
	// Delete drops one torrent baseline.
	Delete(ctx context.Context, destID string, torrentID uint64) error
	// HasBaseline reports whether the destination has any baseline at
	// all, distinguishing a first run from an empty feed.
	HasBaseline(ctx context.Context, destID string) (bool, error)

	Subscriptions(ctx context.Context) ([]Subscription, error)
	AddSubscription(ctx context.Context, sub Subscription) (int64, error)
	// SetPaused toggles every subscription of a chat and returns how
	// many rows changed.
	SetPaused(ctx context.Context, chatID int64, paused bool) (int, error)
	// Reset removes a chat's subscriptions together with their
	// baselines and returns how many subscriptions were dropped.
	Reset(ctx context.Context, chatID int64) (int, error)

	Close() error
}
