// Package email delivers notifications as HTML mail over SMTP.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/yuin/goldmark"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/config"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/nyaa"
	"github.com/Vernoxvernax/Nyaa-Notifications/pkg/logx"
)

// sendFunc matches smtp.SendMail; swapped out in tests.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Sink struct {
	md   goldmark.Markdown
	send sendFunc
	log  logx.Logger
}

func NewSink(log logx.Logger) *Sink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{
		md:   goldmark.New(),
		send: smtp.SendMail,
		log:  log,
	}
}

func (s *Sink) SendUpload(ctx context.Context, dest config.Destination, t nyaa.Torrent) error {
	var body bytes.Buffer
	fmt.Fprintf(&body, "<h2><a href=%q>%s</a></h2>", t.ViewURL(), html.EscapeString(t.Title))
	fmt.Fprintf(&body, "<p>%s &middot; %s</p>",
		html.EscapeString(t.Category), html.EscapeString(t.Size))
	if t.Uploader != nil {
		fmt.Fprintf(&body, "<p>Uploaded by <a href=%q>%s</a></p>",
			t.UserURL(t.Uploader.Username), html.EscapeString(t.Uploader.Username))
	}
	fmt.Fprintf(&body, "<p>Seeders %s, leechers %s, completed %s</p>",
		humanize.Comma(int64(t.Seeders)),
		humanize.Comma(int64(t.Leechers)),
		humanize.Comma(int64(t.Completed)))
	fmt.Fprintf(&body, "<p><a href=%q>Download</a></p>", t.DownloadURL())

	return s.mail(dest, "New upload: "+t.Title, body.Bytes())
}

func (s *Sink) SendComment(ctx context.Context, dest config.Destination, t nyaa.Torrent, c nyaa.Comment) error {
	var body bytes.Buffer
	link := c.DirectLink
	if link == "" {
		link = t.ViewURL()
	}
	fmt.Fprintf(&body, "<h2><a href=%q>%s</a></h2>", link, html.EscapeString(t.Title))

	author := html.EscapeString(c.User.Username)
	if c.Uploader {
		author += " (uploader)"
	}
	verb := "commented"
	switch c.State {
	case nyaa.StateEdited:
		verb = "edited their comment"
	case nyaa.StateDeleted:
		verb = "deleted their comment"
	}
	fmt.Fprintf(&body, "<p><b>%s</b> %s</p>", author, verb)

	if c.State == nyaa.StateEdited && c.OldMessage != "" {
		body.WriteString("<p>Previously:</p><blockquote>")
		if err := s.renderMarkdown(&body, c.OldMessage); err != nil {
			return err
		}
		body.WriteString("</blockquote>")
	}
	if err := s.renderMarkdown(&body, c.Message); err != nil {
		return err
	}

	return s.mail(dest, fmt.Sprintf("Comment on %s", t.Title), body.Bytes())
}

// renderMarkdown converts the source's comment markdown to HTML.
func (s *Sink) renderMarkdown(w *bytes.Buffer, markdown string) error {
	if err := s.md.Convert([]byte(markdown), w); err != nil {
		return fmt.Errorf("email: render markdown: %w", err)
	}
	return nil
}

func (s *Sink) mail(dest config.Destination, subject string, body []byte) error {
	cfg := dest.Email
	if cfg == nil {
		return errors.New("email: destination has no email config")
	}

	if cfg.Subject != "" {
		subject = cfg.Subject + " - " + subject
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", cfg.Username)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(cfg.Recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", sanitizeHeader(subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.Write(body)

	addr := cfg.Host + ":" + strconv.Itoa(cfg.Port)
	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	if err := s.send(addr, auth, cfg.Username, cfg.Recipients, msg.Bytes()); err != nil {
		return fmt.Errorf("email: send via %s: %w", addr, err)
	}
	return nil
}

// sanitizeHeader strips CRLF so subject text cannot inject headers.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
