package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/nyaa"
)

func TestAdvanceNewTorrent(t *testing.T) {
	u := nyaa.Update{NewTorrent: true, Torrent: nyaa.Torrent{
		ID: 7, Title: "x",
		Comments: []nyaa.Comment{
			{User: nyaa.User{Username: "a"}, CreatedAt: 1, Message: "one", State: nyaa.StateNew},
			{User: nyaa.User{Username: "b"}, CreatedAt: 2, Message: "two", State: nyaa.StateNew},
		},
	}}

	next := Advance(nil, u)
	require.Len(t, next.Comments, 2)
	require.Equal(t, 2, next.CommentCount)
	for _, c := range next.Comments {
		require.Equal(t, nyaa.StateUnchecked, c.State)
	}
}

func TestAdvanceAppliesEditAndDelete(t *testing.T) {
	baseline := nyaa.Torrent{ID: 7, Comments: []nyaa.Comment{
		{User: nyaa.User{Username: "a"}, CreatedAt: 1, Message: "one", State: nyaa.StateUnchecked},
		{User: nyaa.User{Username: "b"}, CreatedAt: 2, Message: "two", State: nyaa.StateUnchecked},
		{User: nyaa.User{Username: "c"}, CreatedAt: 3, Message: "three", State: nyaa.StateUnchecked},
	}}
	u := nyaa.Update{Torrent: nyaa.Torrent{ID: 7, Comments: []nyaa.Comment{
		{User: nyaa.User{Username: "a"}, CreatedAt: 1, Message: "one!", OldMessage: "one",
			EditedAt: 9, State: nyaa.StateEdited},
		{User: nyaa.User{Username: "b"}, CreatedAt: 2, Message: "two", State: nyaa.StateDeleted},
	}}}

	next := Advance(&baseline, u)
	require.Len(t, next.Comments, 2)
	require.Equal(t, 2, next.CommentCount)

	byUser := map[string]nyaa.Comment{}
	for _, c := range next.Comments {
		byUser[c.User.Username] = c
	}
	require.NotContains(t, byUser, "b")

	edited := byUser["a"]
	require.Equal(t, "one!", edited.Message)
	require.Equal(t, nyaa.StateUnchecked, edited.State)
	require.Empty(t, edited.OldMessage, "transient diff fields do not persist")
	require.Equal(t, int64(9), edited.EditedAt)

	require.Equal(t, nyaa.StateUnchecked, byUser["c"].State)
}

// A partial accept leaves the stored comment count behind the source's
// count, which is exactly what forces the retry diff next cycle.
func TestAdvancePartialAcceptKeepsRetryTrigger(t *testing.T) {
	u := nyaa.Update{NewTorrent: true, Torrent: nyaa.Torrent{
		ID: 7, CommentCount: 3,
		Comments: []nyaa.Comment{
			{User: nyaa.User{Username: "a"}, CreatedAt: 1, State: nyaa.StateNew},
			{User: nyaa.User{Username: "b"}, CreatedAt: 2, State: nyaa.StateNew},
		},
	}}

	next := Advance(nil, u)
	require.Equal(t, 2, next.CommentCount)
}
