// Package source talks to the torrent index over HTTP and extracts
// torrent snapshots, comment threads and user profiles from its pages.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/nyaa"
	"github.com/Vernoxvernax/Nyaa-Notifications/pkg/logx"
)

// StatusError reports a non-success HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source: %s returned status %d", e.URL, e.Code)
}

// ErrNotHTML marks a response body that is not the expected document.
// Callers treat it like any other parse failure: skip the page, keep
// the cycle alive.
var ErrNotHTML = errors.New("source: response is not an html document")

type Config struct {
	// RequestDelay is the fixed pause enforced between any two requests.
	RequestDelay time.Duration
	// Timeout bounds a single request including body read.
	Timeout   time.Duration
	UserAgent string
}

// Client fetches pages from one index origin. A single shared limiter
// spaces out all requests regardless of which feed they serve.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
	ua      string
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if cfg.RequestDelay <= 0 {
		cfg.RequestDelay = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Nyaa-Notifications"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(cfg.RequestDelay), 1),
		log:     log,
		ua:      cfg.UserAgent,
	}
}

// FetchPage retrieves one feed page (1-based) and reports whether the
// index advertises a further page.
func (c *Client) FetchPage(ctx context.Context, feedURL string, page int) ([]nyaa.Torrent, bool, error) {
	base := NormalizeFeedURL(feedURL)
	pageURL := base + "p=" + strconv.Itoa(page)
	body, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, false, err
	}
	torrents, hasMore, err := ParseFeed(body, DomainOf(base))
	if err != nil {
		return nil, false, fmt.Errorf("parse feed %s: %w", pageURL, err)
	}
	return torrents, hasMore, nil
}

// FetchTorrentDetail loads the view page of a torrent: the full comment
// thread plus the uploader identity.
func (c *Client) FetchTorrentDetail(ctx context.Context, t nyaa.Torrent) ([]nyaa.Comment, *nyaa.User, error) {
	viewURL := t.ViewURL()
	body, err := c.get(ctx, viewURL)
	if err != nil {
		return nil, nil, err
	}
	comments, uploader, err := ParseTorrentPage(body, viewURL, t.Domain)
	if err != nil {
		return nil, nil, fmt.Errorf("parse torrent %s: %w", viewURL, err)
	}
	return comments, uploader, nil
}

// FetchUserProfile resolves the avatar URL of a user profile page.
func (c *Client) FetchUserProfile(ctx context.Context, domain, username string) (string, error) {
	profileURL := domain + "user/" + username
	body, err := c.get(ctx, profileURL)
	if err != nil {
		return "", err
	}
	avatar, err := ParseUserPage(body, domain)
	if err != nil {
		return "", fmt.Errorf("parse user %s: %w", profileURL, err)
	}
	return avatar, nil
}

// get performs a single attempt. Retrying is the caller's policy: a
// failed fetch simply defers the affected torrent to the next cycle.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	c.log.Debug("requesting", logx.String("url", url))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.ua)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", url, err)
	}
	return body, nil
}

// NormalizeFeedURL upgrades the scheme and guarantees the result ends
// with "?" or "&" so a page parameter can be appended directly.
func NormalizeFeedURL(u string) string {
	u = strings.Replace(u, "http:", "https:", 1)
	switch {
	case strings.Contains(u, "?"):
		return u + "&"
	case strings.HasSuffix(u, "/"):
		return u + "?"
	default:
		return u + "/?"
	}
}

// DomainOf extracts the origin (scheme + host + trailing slash) of a
// normalized feed URL.
func DomainOf(u string) string {
	rest := u
	scheme := ""
	if i := strings.Index(u, "://"); i >= 0 {
		scheme = u[:i+3]
		rest = u[i+3:]
	}
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		rest = rest[:i]
	}
	return scheme + rest + "/"
}
