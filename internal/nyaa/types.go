// Package nyaa holds the domain model shared by every layer: torrent
// snapshots as seen on the index, their comment threads and the
// lifecycle states the reconciler assigns.
package nyaa

import (
	"strconv"
	"strings"
)

// User identifies an index account as it appears on a page.
type User struct {
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
	Banned   bool   `json:"banned,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// AnonymousUser is the placeholder identity for uploads and comments
// without an account link.
func AnonymousUser(domain string) User {
	return User{
		Username: "Anonymous",
		Role:     "User",
		Avatar:   strings.TrimSuffix(domain, "/") + "/static/img/avatar/default.png",
	}
}

// CommentState is the lifecycle classification of a comment relative
// to the persisted baseline of one destination.
type CommentState string

const (
	// StateNew marks a comment seen for the first time.
	StateNew CommentState = "new"
	// StateEdited marks a known comment whose edit timestamp moved.
	StateEdited CommentState = "edited"
	// StateDeleted marks a persisted comment absent from the thread.
	StateDeleted CommentState = "deleted"
	// StateUnchecked marks a delivered comment carried in the baseline.
	StateUnchecked CommentState = "unchecked"
)

// CommentKey is the identity of a comment within one thread. The index
// exposes no stable comment id across page loads, so author plus
// creation timestamp stands in for one.
type CommentKey struct {
	Username  string
	CreatedAt int64
}

// Comment is one entry of a torrent's comment thread.
type Comment struct {
	User    User   `json:"user"`
	Message string `json:"message"`
	// OldMessage carries the previous text when State is "edited".
	OldMessage string `json:"old_message,omitempty"`
	// Uploader is set when the index marks the author as the uploader.
	Uploader  bool  `json:"uploader,omitempty"`
	CreatedAt int64 `json:"created_at"`
	EditedAt  int64 `json:"edited_at,omitempty"`
	// OldEditedAt is the edit timestamp of the superseded revision.
	OldEditedAt int64        `json:"old_edited_at,omitempty"`
	DirectLink  string       `json:"direct_link,omitempty"`
	State       CommentState `json:"state,omitempty"`
}

// Key returns the comment's identity within its thread.
func (c Comment) Key() CommentKey {
	return CommentKey{Username: c.User.Username, CreatedAt: c.CreatedAt}
}

// Torrent is one snapshot of an index entry. Feed pages produce it
// without the comment thread; ThreadLoaded reports whether the view
// page has been merged in.
type Torrent struct {
	ID     uint64 `json:"id"`
	Domain string `json:"domain"`
	Title  string `json:"title"`

	Category   string `json:"category,omitempty"`
	Size       string `json:"size,omitempty"`
	MagnetLink string `json:"magnet_link,omitempty"`
	UploadedAt int64  `json:"uploaded_at"`
	Seeders    uint64 `json:"seeders"`
	Leechers   uint64 `json:"leechers"`
	Completed  uint64 `json:"completed"`

	CommentCount int       `json:"comment_count"`
	Uploader     *User     `json:"uploader,omitempty"`
	Comments     []Comment `json:"comments,omitempty"`
	ThreadLoaded bool      `json:"-"`
}

// ViewURL is the torrent's detail page.
func (t Torrent) ViewURL() string {
	return t.Domain + "view/" + strconv.FormatUint(t.ID, 10)
}

// DownloadURL is the .torrent file link.
func (t Torrent) DownloadURL() string {
	return t.Domain + "download/" + strconv.FormatUint(t.ID, 10) + ".torrent"
}

// UserURL is the profile page of a user on this torrent's index.
func (t Torrent) UserURL(username string) string {
	return t.Domain + "user/" + username
}

// WithoutComments returns a copy stripped of the thread, for persisting
// the torrent row independently of its comments.
func (t Torrent) WithoutComments() Torrent {
	cp := t
	cp.Comments = nil
	return cp
}

// Update is one reconciler finding for a destination: either a torrent
// new to the baseline or a known torrent whose thread changed.
type Update struct {
	NewTorrent bool    `json:"new_torrent"`
	Torrent    Torrent `json:"torrent"`
}
