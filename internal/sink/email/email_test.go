package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/config"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/nyaa"
	"github.com/Vernoxvernax/Nyaa-Notifications/pkg/logx"
)

type capturedMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func captureSink() (*Sink, *capturedMail) {
	s := NewSink(logx.Nop())
	got := &capturedMail{}
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		got.addr = addr
		got.from = from
		got.to = to
		got.msg = string(msg)
		return nil
	}
	return s, got
}

func mailDest() config.Destination {
	return config.Destination{
		ID:   "m1",
		Kind: config.KindEmail,
		Email: &config.EmailConfig{
			Host:       "smtp.example.org",
			Port:       587,
			Username:   "bot@example.org",
			Password:   "pw",
			Subject:    "Nyaa-Notifications",
			Recipients: []string{"me@example.org", "you@example.org"},
		},
	}
}

func TestSendUpload(t *testing.T) {
	s, got := captureSink()
	err := s.SendUpload(context.Background(), mailDest(), nyaa.Torrent{
		ID: 7, Domain: "https://nyaa.si/", Title: "Show <S2>", Category: "Anime", Size: "1 GiB",
		Uploader: &nyaa.User{Username: "up"},
	})
	if err != nil {
		t.Fatalf("SendUpload: %v", err)
	}
	if got.addr != "smtp.example.org:587" {
		t.Errorf("addr = %q", got.addr)
	}
	if len(got.to) != 2 {
		t.Errorf("recipients = %v", got.to)
	}
	if !strings.Contains(got.msg, "Subject: Nyaa-Notifications - New upload: Show <S2>") {
		t.Errorf("subject missing:\n%s", got.msg)
	}
	if !strings.Contains(got.msg, "Content-Type: text/html") {
		t.Errorf("content type missing")
	}
	if !strings.Contains(got.msg, "Show &lt;S2&gt;") {
		t.Errorf("title not escaped in body:\n%s", got.msg)
	}
	if !strings.Contains(got.msg, "https://nyaa.si/view/7") {
		t.Errorf("deep link missing")
	}
}

func TestSendCommentRendersMarkdown(t *testing.T) {
	s, got := captureSink()
	err := s.SendComment(context.Background(), mailDest(),
		nyaa.Torrent{ID: 7, Domain: "https://nyaa.si/", Title: "x"},
		nyaa.Comment{
			User:    nyaa.User{Username: "alice"},
			Message: "thanks for **seeding**",
			State:   nyaa.StateNew,
		})
	if err != nil {
		t.Fatalf("SendComment: %v", err)
	}
	if !strings.Contains(got.msg, "<strong>seeding</strong>") {
		t.Errorf("markdown not rendered:\n%s", got.msg)
	}
	if !strings.Contains(got.msg, "<b>alice</b> commented") {
		t.Errorf("author line missing:\n%s", got.msg)
	}
}

func TestSendCommentEditShowsPreviousRevision(t *testing.T) {
	s, got := captureSink()
	err := s.SendComment(context.Background(), mailDest(),
		nyaa.Torrent{ID: 7, Domain: "https://nyaa.si/", Title: "x"},
		nyaa.Comment{
			User:       nyaa.User{Username: "alice"},
			Message:    "fixed link",
			OldMessage: "broken link",
			State:      nyaa.StateEdited,
		})
	if err != nil {
		t.Fatalf("SendComment: %v", err)
	}
	if !strings.Contains(got.msg, "edited their comment") {
		t.Errorf("edit verb missing:\n%s", got.msg)
	}
	if !strings.Contains(got.msg, "broken link") || !strings.Contains(got.msg, "fixed link") {
		t.Errorf("both revisions expected:\n%s", got.msg)
	}
}

func TestSubjectHeaderInjectionStripped(t *testing.T) {
	s, got := captureSink()
	err := s.SendUpload(context.Background(), mailDest(), nyaa.Torrent{
		ID: 7, Domain: "https://nyaa.si/", Title: "x\r\nBcc: evil@example.org",
	})
	if err != nil {
		t.Fatalf("SendUpload: %v", err)
	}
	if strings.Contains(got.msg, "\r\nBcc:") {
		t.Errorf("header injection not stripped:\n%s", got.msg)
	}
}
