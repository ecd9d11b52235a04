// Package push delivers notifications to a Gotify-compatible HTTP
// endpoint.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/chunk"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/config"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/nyaa"
	"github.com/Vernoxvernax/Nyaa-Notifications/pkg/logx"
)

// maxMessageSize bounds one push message body; servers commonly cap
// payloads well below chat-message limits.
const maxMessageSize = 2000

const requestTimeout = 5 * time.Second

type message struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority int    `json:"priority"`
}

type Sink struct {
	http *http.Client
	log  logx.Logger
}

func NewSink(log logx.Logger) *Sink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{
		http: &http.Client{Timeout: requestTimeout},
		log:  log,
	}
}

func (s *Sink) SendUpload(ctx context.Context, dest config.Destination, t nyaa.Torrent) error {
	body := fmt.Sprintf("%s | %s\n%s", t.Category, t.Size, t.ViewURL())
	return s.post(ctx, dest, message{
		Title:    "New upload: " + t.Title,
		Message:  body,
		Priority: priority(dest, true),
	})
}

func (s *Sink) SendComment(ctx context.Context, dest config.Destination, t nyaa.Torrent, c nyaa.Comment) error {
	title := fmt.Sprintf("%s on %s", c.User.Username, t.Title)
	for _, part := range chunk.Split(commentFields(c), maxMessageSize) {
		if err := s.post(ctx, dest, message{
			Title:    title,
			Message:  chunk.Render(part),
			Priority: priority(dest, false),
		}); err != nil {
			return err
		}
	}
	return nil
}

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

func priority(dest config.Destination, upload bool) int {
	if dest.Push == nil {
		return 0
	}
	if upload {
		return dest.Push.UploadPriority
	}
	return dest.Push.CommentPriority
}

func (s *Sink) post(ctx context.Context, dest config.Destination, m message) error {
	cfg := dest.Push
	if cfg == nil {
		return fmt.Errorf("push: destination %q has no push config", dest.ID)
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("push: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("push: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Token != "" {
		req.Header.Set("X-Gotify-Key", cfg.Token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("push: post %s: %w", cfg.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push: %s returned status %d", cfg.URL, resp.StatusCode)
	}
	s.log.Debug("push delivered", logx.String("title", m.Title))
	return nil
}
