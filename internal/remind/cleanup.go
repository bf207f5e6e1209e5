package remind

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"ticketflow/internal/sched"
)

// CleanupStore is the slice of the repository the cleanup job needs.
type CleanupStore interface {
	PurgeNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error)
	PurgeTerminalIssuesBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Cleanup ages out delivered notifications and resolved/closed issues. Runs
// are idempotent: re-running with no newly-qualifying rows deletes nothing.
type Cleanup struct {
	store  CleanupStore
	maxAge time.Duration
}

func NewCleanup(st CleanupStore, maxAge time.Duration) *Cleanup {
	return &Cleanup{store: st, maxAge: maxAge}
}

func (c *Cleanup) Run(ctx context.Context, now time.Time) error {
	cutoff := sched.CutoffBefore(now, c.maxAge)

	notifications, err := c.store.PurgeNotificationsBefore(ctx, cutoff)
	if err != nil {
		return errors.Wrap(err, "purge notifications")
	}
	issues, err := c.store.PurgeTerminalIssuesBefore(ctx, cutoff)
	if err != nil {
		return errors.Wrap(err, "purge terminal issues")
	}

	log.Info().Time("cutoff", cutoff).
		Int("notifications", notifications).
		Int("issues", issues).
		Msg("cleanup finished")
	return nil
}
