package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Vernoxvernax/Nyaa-Notifications/pkg/logx"
)

func testClient() *Client {
	return NewClient(Config{
		RequestDelay: time.Millisecond,
		Timeout:      2 * time.Second,
	}, logx.Nop())
}

func TestFetchPageAppendsPageParam(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(feedPage))
	}))
	defer srv.Close()

	c := testClient()
	torrents, hasMore, err := c.FetchPage(context.Background(), srv.URL+"/?q=test", 2)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if gotQuery != "q=test&p=2" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(torrents) != 1 || !hasMore {
		t.Errorf("torrents = %d, hasMore = %v", len(torrents), hasMore)
	}
}

func TestFetchPageStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient()
	_, _, err := c.FetchPage(context.Background(), srv.URL, 1)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusTooManyRequests {
		t.Errorf("code = %d", se.Code)
	}
}

func TestNormalizeFeedURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"http://nyaa.si", "https://nyaa.si/?"},
		{"https://nyaa.si/", "https://nyaa.si/?"},
		{"https://nyaa.si/?q=test", "https://nyaa.si/?q=test&"},
		{"https://nyaa.si/user/x?f=0", "https://nyaa.si/user/x?f=0&"},
	}
	for _, tc := range cases {
		if got := NormalizeFeedURL(tc.in); got != tc.want {
			t.Errorf("NormalizeFeedURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDomainOf(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://nyaa.si/?", "https://nyaa.si/"},
		{"https://nyaa.si/?q=test&", "https://nyaa.si/"},
		{"https://sukebei.nyaa.si/user/x?f=0&", "https://sukebei.nyaa.si/"},
	}
	for _, tc := range cases {
		if got := DomainOf(tc.in); got != tc.want {
			t.Errorf("DomainOf(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
