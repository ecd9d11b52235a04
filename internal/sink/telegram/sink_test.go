package telegram

import (
	"strings"
	"testing"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/chunk"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/nyaa"
)

func TestCommentHeader(t *testing.T) {
	tor := nyaa.Torrent{ID: 7, Domain: "https://nyaa.si/", Title: "Show <S2>"}
	c := nyaa.Comment{
		User:       nyaa.User{Username: "alice"},
		Uploader:   true,
		DirectLink: "https://nyaa.si/view/7#com-1",
		State:      nyaa.StateNew,
	}

	got := commentHeader(tor, c)
	if !strings.Contains(got, "alice (uploader)") {
		t.Errorf("author missing: %q", got)
	}
	if !strings.Contains(got, `"https://nyaa.si/view/7#com-1"`) {
		t.Errorf("permalink missing: %q", got)
	}
	if !strings.Contains(got, "Show &lt;S2&gt;") {
		t.Errorf("title not escaped: %q", got)
	}
}

func TestCommentHeaderFallsBackToViewURL(t *testing.T) {
	tor := nyaa.Torrent{ID: 7, Domain: "https://nyaa.si/", Title: "x"}
	got := commentHeader(tor, nyaa.Comment{User: nyaa.User{Username: "a"}, State: nyaa.StateDeleted})
	if !strings.Contains(got, `"https://nyaa.si/view/7"`) {
		t.Errorf("view url fallback missing: %q", got)
	}
}

func TestCommentFieldsByState(t *testing.T) {
	edited := commentFields(nyaa.Comment{
		State: nyaa.StateEdited, Message: "new", OldMessage: "old",
	})
	if len(edited) != 2 || edited[0].Value != "new" || edited[1].Value != "old" {
		t.Errorf("edited fields = %+v", edited)
	}

	deleted := commentFields(nyaa.Comment{State: nyaa.StateDeleted, Message: "gone"})
	if len(deleted) != 1 || deleted[0].Name != "Deleted comment" {
		t.Errorf("deleted fields = %+v", deleted)
	}

	fresh := commentFields(nyaa.Comment{State: nyaa.StateNew, Message: "hi"})
	if len(fresh) != 1 || fresh[0].Name != "New comment" {
		t.Errorf("new fields = %+v", fresh)
	}
}

func TestRenderFieldsHTMLEscapesValues(t *testing.T) {
	got := renderFieldsHTML([]chunk.Field{
		{Name: "New comment:", Value: "a < b & c"},
	})
	if !strings.Contains(got, "a &lt; b &amp; c") {
		t.Errorf("value not escaped: %q", got)
	}
	if !strings.Contains(got, "<b>New comment:</b>") {
		t.Errorf("name formatting wrong: %q", got)
	}
}

func TestLongCommentSplitsUnderTelegramLimit(t *testing.T) {
	fields := commentFields(nyaa.Comment{
		State:   nyaa.StateNew,
		Message: strings.Repeat("a", 10_000),
	})
	chunks := chunk.Split(fields, maxMessageSize)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(renderFieldsHTML(c)) > 4096 {
			t.Errorf("rendered chunk exceeds telegram limit")
		}
	}
}
