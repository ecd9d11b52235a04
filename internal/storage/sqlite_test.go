package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/nyaa"
	"github.com/Vernoxvernax/Nyaa-Notifications/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "state.sqlite")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleTorrent() nyaa.Torrent {
	return nyaa.Torrent{
		ID:           1837736,
		Domain:       "https://nyaa.si/",
		Title:        "Some Title",
		Category:     "Anime",
		Size:         "1.4 GiB",
		MagnetLink:   "magnet:?xt=urn:btih:abc",
		UploadedAt:   1700000000,
		Seeders:      12,
		Leechers:     3,
		Completed:    45,
		CommentCount: 2,
		Uploader:     &nyaa.User{Username: "up", Role: "Trusted"},
		Comments: []nyaa.Comment{
			{User: nyaa.User{Username: "alice", Role: "User"}, CreatedAt: 100,
				Message: "first", State: nyaa.StateUnchecked, DirectLink: "https://nyaa.si/view/1837736#com-1"},
			{User: nyaa.User{Username: "bob"}, CreatedAt: 200,
				Message: "second", EditedAt: 250, State: nyaa.StateUnchecked},
		},
	}
}

func TestUpsertLoadRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	want := sampleTorrent()
	if err := st.Upsert(ctx, "d1", want); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := st.Load(ctx, "d1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 torrent, got %d", len(got))
	}
	g := got[0]
	if g.ID != want.ID || g.Title != want.Title || g.CommentCount != 2 {
		t.Errorf("torrent = %+v", g)
	}
	if g.Uploader == nil || g.Uploader.Username != "up" {
		t.Errorf("uploader = %+v", g.Uploader)
	}
	if len(g.Comments) != 2 {
		t.Fatalf("comments = %d", len(g.Comments))
	}
	if g.Comments[0].User.Username != "alice" || g.Comments[0].State != nyaa.StateUnchecked {
		t.Errorf("first comment = %+v", g.Comments[0])
	}
	if g.Comments[1].EditedAt != 250 {
		t.Errorf("second comment = %+v", g.Comments[1])
	}

	// Baselines are per destination.
	other, err := st.Load(ctx, "d2")
	if err != nil {
		t.Fatalf("Load other: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("d2 should be empty, got %d", len(other))
	}
}

func TestUpsertReplacesComments(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	tor := sampleTorrent()
	if err := st.Upsert(ctx, "d1", tor); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	tor.Comments = tor.Comments[:1]
	tor.CommentCount = 1
	if err := st.Upsert(ctx, "d1", tor); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}

	got, err := st.Load(ctx, "d1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got[0].Comments) != 1 || got[0].CommentCount != 1 {
		t.Errorf("comments = %+v", got[0].Comments)
	}
}

func TestDeleteAndHasBaseline(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	has, err := st.HasBaseline(ctx, "d1")
	if err != nil || has {
		t.Fatalf("HasBaseline before = %v, %v", has, err)
	}

	if err := st.Upsert(ctx, "d1", sampleTorrent()); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	has, err = st.HasBaseline(ctx, "d1")
	if err != nil || !has {
		t.Fatalf("HasBaseline after = %v, %v", has, err)
	}

	if err := st.Delete(ctx, "d1", 1837736); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := st.Load(ctx, "d1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty baseline, got %d", len(got))
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	id, err := st.AddSubscription(ctx, Subscription{
		ChatID: 42, Feed: "https://nyaa.si/?q=test", Uploads: true, Comments: true,
	})
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	if _, err := st.AddSubscription(ctx, Subscription{
		ChatID: 99, Feed: "https://nyaa.si/?q=other", Uploads: true, Comments: true,
	}); err != nil {
		t.Fatalf("AddSubscription other: %v", err)
	}

	subs, err := st.Subscriptions(ctx)
	if err != nil {
		t.Fatalf("Subscriptions: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("subscriptions = %d", len(subs))
	}
	if subs[0].ID != id || subs[0].ChatID != 42 || subs[0].Paused {
		t.Errorf("first sub = %+v", subs[0])
	}
	if subs[0].CreatedAt.IsZero() {
		t.Errorf("created at not persisted")
	}

	n, err := st.SetPaused(ctx, 42, true)
	if err != nil || n != 1 {
		t.Fatalf("SetPaused = %d, %v", n, err)
	}
	// Toggling again changes nothing.
	n, err = st.SetPaused(ctx, 42, true)
	if err != nil || n != 0 {
		t.Fatalf("SetPaused repeat = %d, %v", n, err)
	}

	// A baseline under the subscription's destination id goes away with
	// the reset.
	if err := st.Upsert(ctx, SubscriptionDestID(id), sampleTorrent()); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	n, err = st.Reset(ctx, 42)
	if err != nil || n != 1 {
		t.Fatalf("Reset = %d, %v", n, err)
	}
	has, err := st.HasBaseline(ctx, SubscriptionDestID(id))
	if err != nil || has {
		t.Fatalf("baseline survived reset: %v, %v", has, err)
	}

	subs, err = st.Subscriptions(ctx)
	if err != nil {
		t.Fatalf("Subscriptions after reset: %v", err)
	}
	if len(subs) != 1 || subs[0].ChatID != 99 {
		t.Errorf("remaining subs = %+v", subs)
	}
}
