package reconcile

import "github.com/Vernoxvernax/Nyaa-Notifications/internal/nyaa"

// Advance folds an accepted Update into the persisted baseline and
// returns the snapshot to store. Only comments the sink actually
// accepted are present in the Update, so anything missing from it
// keeps its old state and is retried next cycle.
//
// baseline is nil for a torrent not seen before. State transitions:
// new and edited comments become unchecked, deleted comments leave the
// baseline for good.
func Advance(baseline *nyaa.Torrent, accepted nyaa.Update) nyaa.Torrent {
	next := accepted.Torrent.WithoutComments()

	var kept []nyaa.Comment
	if baseline != nil {
		kept = append(kept, baseline.Comments...)
	}

	index := make(map[nyaa.CommentKey]int, len(kept))
	for i, c := range kept {
		index[c.Key()] = i
	}

	for _, c := range accepted.Torrent.Comments {
		switch c.State {
		case nyaa.StateDeleted:
			if i, ok := index[c.Key()]; ok {
				kept = append(kept[:i], kept[i+1:]...)
				delete(index, c.Key())
				for k, j := range index {
					if j > i {
						index[k] = j - 1
					}
				}
			}
		default:
			c.State = nyaa.StateUnchecked
			c.OldMessage = ""
			c.OldEditedAt = 0
			if i, ok := index[c.Key()]; ok {
				kept[i] = c
			} else {
				index[c.Key()] = len(kept)
				kept = append(kept, c)
			}
		}
	}

	next.Comments = kept
	next.CommentCount = len(kept)
	next.ThreadLoaded = false
	return next
}
