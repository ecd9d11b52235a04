package reconcile

import (
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/nyaa"
	"github.com/Vernoxvernax/Nyaa-Notifications/pkg/logx"
)

// diffComments classifies a fresh thread against the persisted one by
// comment identity (author, creation timestamp) and returns only the
// comments that changed: new ones first in thread order, then deletions
// in baseline order. Unchanged comments are left out entirely.
func (r *Reconciler) diffComments(fresh, persisted []nyaa.Comment) []nyaa.Comment {
	known := make(map[nyaa.CommentKey]nyaa.Comment, len(persisted))
	for _, c := range persisted {
		if _, dup := known[c.Key()]; dup {
			// Identity collision in the source data. Diffing degrades to
			// first-match; keep the earlier record.
			r.log.Warn("duplicate comment identity in baseline",
				logx.String("user", c.User.Username),
				logx.Int64("created_at", c.CreatedAt))
			continue
		}
		known[c.Key()] = c
	}

	seen := make(map[nyaa.CommentKey]struct{}, len(fresh))
	var changed []nyaa.Comment

	for _, c := range fresh {
		key := c.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		old, ok := known[key]
		if !ok {
			c.State = nyaa.StateNew
			changed = append(changed, c)
			continue
		}
		if old.State == nyaa.StateUnchecked && r.frozen(old) {
			continue
		}
		if c.EditedAt != old.EditedAt && c.Message != old.Message {
			c.State = nyaa.StateEdited
			c.OldMessage = old.Message
			c.OldEditedAt = old.EditedAt
			changed = append(changed, c)
		}
	}

	for _, old := range persisted {
		if _, present := seen[old.Key()]; present {
			continue
		}
		old.State = nyaa.StateDeleted
		changed = append(changed, old)
	}
	return changed
}
