package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"ticketflow/internal/domain"
)

// Sender performs one notification write. The bool result reports whether a
// record was actually created; false means an identical (kind, entity,
// recipient) notification already existed and the write was skipped.
type Sender interface {
	Send(ctx context.Context, n domain.Notification) (bool, error)
}

// Store is the slice of the repository the store-backed sender needs.
type Store interface {
	CreateNotification(ctx context.Context, n domain.Notification) (bool, error)
}

type storeSender struct{ store Store }

// NewStoreSender returns a Sender writing through the persistence layer's
// create-or-skip operation.
func NewStoreSender(st Store) Sender { return &storeSender{store: st} }

func (s *storeSender) Send(ctx context.Context, n domain.Notification) (bool, error) {
	return s.store.CreateNotification(ctx, n)
}

// FanOut sends one notification per recipient, isolating failures: an error
// for one recipient is logged and the loop continues. Returns the number of
// notifications actually created (duplicates suppressed by the sender do not
// count).
func FanOut(ctx context.Context, sender Sender, recipients []string, build func(recipient string) domain.Notification) int {
	sent := 0
	for _, recipient := range recipients {
		n := build(recipient)
		created, err := sender.Send(ctx, n)
		if err != nil {
			log.Warn().Err(err).
				Str("recipient", recipient).
				Str("kind", string(n.Kind)).
				Str("entity", n.EntityID).
				Msg("notification failed")
			continue
		}
		if !created {
			log.Debug().
				Str("recipient", recipient).
				Str("kind", string(n.Kind)).
				Str("entity", n.EntityID).
				Msg("duplicate notification suppressed")
			continue
		}
		sent++
	}
	return sent
}
