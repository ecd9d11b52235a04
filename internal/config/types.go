package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind selects the delivery transport of a destination.
type Kind string

const (
	KindTelegram Kind = "telegram"
	KindEmail    Kind = "email"
	KindPush     Kind = "push"
)

// Config is the process configuration, loaded once at startup.
// Hot reload is intentionally not supported.
type Config struct {
	// UpdateInterval is the poll period ("10m", "1h", ...).
	UpdateInterval Duration `json:"update_interval"`
	// RequestDelay is the fixed pause between requests against the
	// snapshot source. Politeness, not correctness.
	RequestDelay Duration `json:"request_delay,omitempty"`
	// FetchTimeout bounds every single network operation.
	FetchTimeout Duration `json:"fetch_timeout,omitempty"`
	// FreshnessWindow is how long after creation a delivered comment
	// remains eligible for re-diffing.
	FreshnessWindow Duration `json:"freshness_window,omitempty"`

	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Telegram TelegramConfig `json:"telegram,omitempty"`

	Destinations []Destination `json:"destinations"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"`
	File    string `json:"file,omitempty"`
}

func (c LoggingConfig) ConsoleEnabled() bool {
	return c.Console == nil || *c.Console
}

type StorageConfig struct {
	Path        string   `json:"path"`
	BusyTimeout Duration `json:"busy_timeout,omitempty"`
}

// TelegramConfig holds the bot session used both as a chat sink and as
// the subscription command surface. Empty token disables both.
type TelegramConfig struct {
	Token string `json:"token,omitempty"`
	// OwnerIDs may restrict who can manage subscriptions (empty: anyone
	// in the chat).
	OwnerIDs []int64 `json:"owner_ids,omitempty"`
}

// Destination is one configured delivery target with its own diff
// baseline. Read-only during a poll cycle.
type Destination struct {
	ID       string   `json:"id"`
	Kind     Kind     `json:"kind"`
	Feeds    []string `json:"feeds"`
	Uploads  bool     `json:"uploads"`
	Comments bool     `json:"comments"`
	AllPages bool     `json:"all_pages,omitempty"`
	Paused   bool     `json:"paused,omitempty"`

	ChatID int64        `json:"chat_id,omitempty"` // telegram
	Email  *EmailConfig `json:"email,omitempty"`
	Push   *PushConfig  `json:"push,omitempty"`
}

type EmailConfig struct {
	Host       string   `json:"host"`
	Port       int      `json:"port,omitempty"`
	Username   string   `json:"username"`
	Password   string   `json:"password,omitempty"`
	Subject    string   `json:"subject,omitempty"`
	Recipients []string `json:"recipients"`
}

type PushConfig struct {
	URL             string `json:"url"`
	Token           string `json:"token,omitempty"`
	UploadPriority  int    `json:"upload_priority,omitempty"`
	CommentPriority int    `json:"comment_priority,omitempty"`
}

// NeedsUploader reports whether delivering an upload for this
// destination requires the uploader identity (avatar thumbnails).
func (d Destination) NeedsUploader() bool { return d.Kind == KindTelegram }

func (c *Config) applyDefaults() {
	if c.UpdateInterval.Value() <= 0 {
		c.UpdateInterval = Duration(10 * time.Minute)
	}
	if c.RequestDelay.Value() <= 0 {
		c.RequestDelay = Duration(2 * time.Second)
	}
	if c.FetchTimeout.Value() <= 0 {
		c.FetchTimeout = Duration(15 * time.Second)
	}
	if c.FreshnessWindow.Value() <= 0 {
		c.FreshnessWindow = Duration(time.Hour)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = "./nyaa-notifications/nyaa-notifications.sqlite"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	for i := range c.Destinations {
		d := &c.Destinations[i]
		if d.Email != nil && d.Email.Port == 0 {
			d.Email.Port = 587
		}
		if d.Email != nil && d.Email.Subject == "" {
			d.Email.Subject = "Nyaa-Notifications"
		}
	}
}

func (c *Config) validate() error {
	seen := make(map[string]struct{}, len(c.Destinations))
	for i := range c.Destinations {
		d := &c.Destinations[i]
		if strings.TrimSpace(d.ID) == "" {
			return fmt.Errorf("destination %d: id is required", i)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("destination %q: duplicate id", d.ID)
		}
		seen[d.ID] = struct{}{}

		if len(d.Feeds) == 0 {
			return fmt.Errorf("destination %q: at least one feed is required", d.ID)
		}
		switch d.Kind {
		case KindTelegram:
			if strings.TrimSpace(c.Telegram.Token) == "" {
				return fmt.Errorf("destination %q: telegram destination without telegram.token", d.ID)
			}
			if d.ChatID == 0 {
				return fmt.Errorf("destination %q: chat_id is required", d.ID)
			}
		case KindEmail:
			if d.Email == nil {
				return fmt.Errorf("destination %q: email block is required", d.ID)
			}
			if d.Email.Host == "" || d.Email.Username == "" {
				return fmt.Errorf("destination %q: email host and username are required", d.ID)
			}
			if len(d.Email.Recipients) == 0 {
				return fmt.Errorf("destination %q: at least one recipient is required", d.ID)
			}
		case KindPush:
			if d.Push == nil || d.Push.URL == "" {
				return fmt.Errorf("destination %q: push url is required", d.ID)
			}
		default:
			return fmt.Errorf("destination %q: unknown kind %q", d.ID, d.Kind)
		}
	}
	return nil
}

var errNoDestinations = errors.New("config: no destinations and no telegram token; nothing to do")
