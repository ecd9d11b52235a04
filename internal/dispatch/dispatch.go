// Package dispatch routes reconciler Updates to the sinks of a
// destination and reports back exactly what was delivered, so the
// baseline only ever advances past content a sink accepted.
package dispatch

import (
	"context"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/config"
	"github.com/Vernoxvernax/Nyaa-Notifications/internal/nyaa"
	"github.com/Vernoxvernax/Nyaa-Notifications/pkg/logx"
)

// Sink is one delivery transport. Both calls are independently
// retryable; an error means the item was not accepted.
type Sink interface {
	SendUpload(ctx context.Context, dest config.Destination, t nyaa.Torrent) error
	SendComment(ctx context.Context, dest config.Destination, t nyaa.Torrent, c nyaa.Comment) error
}

// Delivered wraps the subset of the dispatched updates that sinks
// actually accepted. Only this subset may be persisted; everything
// outside it keeps its classification and is retried next cycle.
type Delivered struct {
	Updates []nyaa.Update
}

// Dispatcher fans updates out to registered sinks. Destinations whose
// kind has no registered sink pass through unchanged, so a missing
// transport never blocks state advancement.
type Dispatcher struct {
	sinks map[config.Kind]Sink
	log   logx.Logger
}

func New(log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{sinks: make(map[config.Kind]Sink), log: log}
}

func (d *Dispatcher) Register(kind config.Kind, s Sink) {
	d.sinks[kind] = s
}

// Dispatch delivers updates in the given order (callers pass them
// oldest first) and returns the accepted portion. Failures are scoped
// to the single comment or upload that failed; siblings proceed.
func (d *Dispatcher) Dispatch(ctx context.Context, dest config.Destination, updates []nyaa.Update) Delivered {
	sink, ok := d.sinks[dest.Kind]
	if !ok {
		return Delivered{Updates: updates}
	}

	var accepted []nyaa.Update
	for _, u := range updates {
		if au, ok := d.dispatchOne(ctx, dest, sink, u); ok {
			accepted = append(accepted, au)
		}
	}
	return Delivered{Updates: accepted}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, dest config.Destination, sink Sink, u nyaa.Update) (nyaa.Update, bool) {
	log := d.log.With(
		logx.String("destination", dest.ID),
		logx.Uint64("torrent", u.Torrent.ID),
	)

	if u.NewTorrent && dest.Uploads {
		if err := sink.SendUpload(ctx, dest, u.Torrent); err != nil {
			// Without the upload notice the whole event is withheld so
			// the torrent stays absent from the baseline and retries.
			log.Warn("upload notification failed", logx.Err(err))
			return nyaa.Update{}, false
		}
	}

	// Comment notifications disabled: the comments still advance
	// through the state machine, there is just nothing to send.
	if !dest.Comments {
		return u, true
	}

	acceptedComments := make([]nyaa.Comment, 0, len(u.Torrent.Comments))
	for _, c := range u.Torrent.Comments {
		if err := sink.SendComment(ctx, dest, u.Torrent, c); err != nil {
			log.Warn("comment notification failed",
				logx.String("user", c.User.Username),
				logx.String("state", string(c.State)),
				logx.Err(err))
			continue
		}
		acceptedComments = append(acceptedComments, c)
	}

	u.Torrent.Comments = acceptedComments
	if !u.NewTorrent && len(acceptedComments) == 0 {
		return nyaa.Update{}, false
	}
	return u, true
}
