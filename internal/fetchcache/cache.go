// Package fetchcache deduplicates snapshot-source requests within one
// poll cycle. A Cache value is created at the start of a cycle, handed
// to the reconciler explicitly, and discarded when the cycle ends; it
// is never shared across cycles.
package fetchcache

import (
	"context"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/nyaa"
	"github.com/Vernoxvernax/Nyaa-Notifications/pkg/logx"
)

// FeedPageSize is how many torrents one index page lists. When a
// complete (all-pages) fetch is already cached and a shallow request
// arrives, the first page worth of entries is served from it.
const FeedPageSize = 75

// Source is the snapshot-source boundary. Implementations do the
// actual network I/O including the shared inter-request delay.
type Source interface {
	FetchPage(ctx context.Context, feedURL string, page int) ([]nyaa.Torrent, bool, error)
	FetchTorrentDetail(ctx context.Context, t nyaa.Torrent) ([]nyaa.Comment, *nyaa.User, error)
	FetchUserProfile(ctx context.Context, domain, username string) (string, error)
}

type pageEntry struct {
	complete bool
	torrents []nyaa.Torrent
}

// Cache memoizes feed pages (per completeness level), loaded torrent
// details and user avatars for the duration of one cycle.
type Cache struct {
	src Source
	log logx.Logger

	pages   map[string]*pageEntry   // normalized feed URL -> fetched torrents
	details map[uint64]nyaa.Torrent // torrent id -> fully loaded snapshot
	avatars map[string]string       // username -> avatar URL
}

func New(src Source, log logx.Logger) *Cache {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cache{
		src:     src,
		log:     log,
		pages:   make(map[string]*pageEntry),
		details: make(map[uint64]nyaa.Torrent),
		avatars: make(map[string]string),
	}
}

// Page returns the torrents of a feed. With allPages set, pagination is
// followed to the end; otherwise only the first page is fetched.
//
// A shallow request served after a complete fetch reuses the cached
// entries. A complete request after a shallow fetch only downloads the
// missing pages (from page 2 on) instead of starting over.
func (c *Cache) Page(ctx context.Context, feedURL string, allPages bool) ([]nyaa.Torrent, error) {
	entry := c.pages[feedURL]
	switch {
	case entry == nil:
		torrents, err := c.fetchFrom(ctx, feedURL, 1, allPages)
		if err != nil {
			return nil, err
		}
		entry = &pageEntry{complete: allPages, torrents: torrents}
		c.pages[feedURL] = entry

	case allPages && !entry.complete:
		rest, err := c.fetchFrom(ctx, feedURL, 2, true)
		if err != nil {
			return nil, err
		}
		entry.torrents = mergeByID(entry.torrents, rest)
		entry.complete = true

	default:
		c.log.Debug("feed served from cache", logx.String("feed", feedURL))
	}

	if !allPages && entry.complete && len(entry.torrents) > FeedPageSize {
		return entry.torrents[:FeedPageSize], nil
	}
	return entry.torrents, nil
}

func (c *Cache) fetchFrom(ctx context.Context, feedURL string, page int, allPages bool) ([]nyaa.Torrent, error) {
	var out []nyaa.Torrent
	for {
		torrents, hasMore, err := c.src.FetchPage(ctx, feedURL, page)
		if err != nil {
			return nil, err
		}
		out = mergeByID(out, torrents)
		if !hasMore || !allPages {
			return out, nil
		}
		page++
	}
}

// FullTorrent returns the torrent with its comment thread and uploader
// loaded, fetching the detail page at most once per cycle and id.
func (c *Cache) FullTorrent(ctx context.Context, t nyaa.Torrent) (nyaa.Torrent, error) {
	if cached, ok := c.details[t.ID]; ok {
		return cached, nil
	}

	comments, uploader, err := c.src.FetchTorrentDetail(ctx, t)
	if err != nil {
		return nyaa.Torrent{}, err
	}
	full := t
	full.Comments = comments
	full.ThreadLoaded = true
	full.Uploader = uploader
	for _, cm := range comments {
		if cm.User.Avatar != "" {
			c.avatars[cm.User.Username] = cm.User.Avatar
		}
	}
	c.details[t.ID] = full
	return full, nil
}

// UserAvatar resolves a user's avatar, preferring what earlier fetches
// of this cycle already revealed (comment threads carry avatars too).
func (c *Cache) UserAvatar(ctx context.Context, domain string, u nyaa.User) (string, error) {
	if avatar, ok := c.avatars[u.Username]; ok && avatar != "" {
		return avatar, nil
	}
	avatar, err := c.src.FetchUserProfile(ctx, domain, u.Username)
	if err != nil {
		return "", err
	}
	c.avatars[u.Username] = avatar
	return avatar, nil
}

func mergeByID(have, more []nyaa.Torrent) []nyaa.Torrent {
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
