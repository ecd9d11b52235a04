// Package telegram delivers notifications through a Telegram bot and
// exposes the chat command surface for managing subscriptions.
package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/dustin/go-humanize"
	tele "gopkg.in/telebot.v4"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/chunk"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/config"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/nyaa"
	"github.com/Vernoxvernax/Nyaa-Notifications/pkg/logx"
)

// maxMessageSize keeps a chunked payload plus its HTML header safely
// under Telegram's 4096-character message limit, with headroom for
// escaping overhead.
const maxMessageSize = 3000

// Sink sends notifications through a running bot session. The session
// lifecycle is owned by Bot; the sink only uses its outbound side.
type Sink struct {
	bot *Bot
	log logx.Logger
}

func NewSink(bot *Bot, log logx.Logger) *Sink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{bot: bot, log: log}
}

func (s *Sink) SendUpload(ctx context.Context, dest config.Destination, t nyaa.Torrent) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📦 <b><a href=%q>%s</a></b>\n", t.ViewURL(), html.EscapeString(t.Title))
	fmt.Fprintf(&sb, "%s | %s\n", html.EscapeString(t.Category), html.EscapeString(t.Size))
	if t.Uploader != nil {
		fmt.Fprintf(&sb, "by <a href=%q>%s</a>\n",
			t.UserURL(t.Uploader.Username), html.EscapeString(t.Uploader.Username))
	}
	fmt.Fprintf(&sb, "S:%s L:%s C:%s\n",
		humanize.Comma(int64(t.Seeders)),
		humanize.Comma(int64(t.Leechers)),
		humanize.Comma(int64(t.Completed)))
	fmt.Fprintf(&sb, "<a href=%q>download</a>", t.DownloadURL())

	return s.send(dest.ChatID, sb.String())
}

func (s *Sink) SendComment(ctx context.Context, dest config.Destination, t nyaa.Torrent, c nyaa.Comment) error {
	header := commentHeader(t, c)
	for _, part := range chunk.Split(commentFields(c), maxMessageSize) {
		msg := header + "\n" + renderFieldsHTML(part)
		if err := s.send(dest.ChatID, msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) send(chatID int64, text string) error {
	_, err := s.bot.Raw().Send(tele.ChatID(chatID), text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("telegram: send to %d: %w", chatID, err)
	}
	return nil
}

func commentHeader(t nyaa.Torrent, c nyaa.Comment) string {
	icon := "💬"
	switch c.State {
	case nyaa.StateEdited:
		icon = "✏️"
	case nyaa.StateDeleted:
		icon = "🗑"
	}
	author := html.EscapeString(c.User.Username)
	if c.Uploader {
		author += " (uploader)"
	}
	link := c.DirectLink
	if link == "" {
		link = t.ViewURL()
	}
	return fmt.Sprintf("%s <b>%s</b> on <a href=%q>%s</a>",
		icon, author, link, html.EscapeString(t.Title))
}

// commentFields builds the chunkable payload: edits carry the previous
// revision as a second field so both sides of the change are shown.
func commentFields(c nyaa.Comment) []chunk.Field {
	switch c.State {
	case nyaa.StateEdited:
		return []chunk.Field{
			{Name: "Edited comment", Value: c.Message},
			{Name: "Previously", Value: c.OldMessage},
		}
	case nyaa.StateDeleted:
		return []chunk.Field{{Name: "Deleted comment", Value: c.Message}}
	default:
		return []chunk.Field{{Name: "New comment", Value: c.Message}}
	}
}

// renderFieldsHTML escapes values after chunking; budgets in the
// chunker are byte counts of the raw text, the escape overhead is what
// maxMessageSize's headroom absorbs.
func renderFieldsHTML(fields []chunk.Field) string {
	var sb strings.Builder
	for i, f := range fields {
		if i > 0 {
			sb.WriteString("\n")
		}
		name := f.Name
		if !strings.HasSuffix(name, ":") {
			name += ":"
		}
		fmt.Fprintf(&sb, "<b>%s</b>\n%s", html.EscapeString(name), html.EscapeString(f.Value))
	}
	return sb.String()
}
