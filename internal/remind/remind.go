package remind

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"ticketflow/internal/domain"
	"ticketflow/internal/notify"
	"ticketflow/internal/sched"
)

// Store is the slice of the repository the reminder jobs need.
type Store interface {
	EventsStartingBetween(ctx context.Context, start, end time.Time) ([]domain.Event, error)
	ActiveRegistrations(ctx context.Context, eventID string) ([]domain.Registration, error)
}

// Reminder fans out pre-event notifications to registered attendees. Two
// windows exist: day-ahead (H-1, tomorrow's calendar day) and final-call
// (H-0, events starting in 60-120 minutes).
type Reminder struct {
	store  Store
	sender notify.Sender
}

func New(st Store, sender notify.Sender) *Reminder {
	return &Reminder{store: st, sender: sender}
}

func (r *Reminder) RunDayAhead(ctx context.Context, now time.Time) error {
	return r.run(ctx, sched.DayAheadWindow(now), domain.KindEventReminderDayAhead,
		"Your event is tomorrow")
}

func (r *Reminder) RunFinalCall(ctx context.Context, now time.Time) error {
	return r.run(ctx, sched.FinalCallWindow(now), domain.KindEventReminderFinalCall,
		"Your event starts soon")
}

func (r *Reminder) run(ctx context.Context, w sched.Window, kind domain.NotificationKind, title string) error {
	events, err := r.store.EventsStartingBetween(ctx, w.Start, w.End)
	if err != nil {
		return errors.Wrap(err, "fetch events in window")
	}
	if len(events) == 0 {
		log.Info().Time("start", w.Start).Time("end", w.End).Str("kind", string(kind)).
			Msg("no events in reminder window")
		return nil
	}

	for _, event := range events {
		regs, err := r.store.ActiveRegistrations(ctx, event.ID)
		if err != nil {
			log.Warn().Err(err).Str("event", event.ID).Msg("registrations unavailable, skipping event")
			continue
		}
		if len(regs) == 0 {
			continue
		}

		payload, err := json.Marshal(map[string]any{
			"event_id": event.ID,
			"title":    event.Title,
			"date":     event.StartsAt.Format("2006-01-02"),
			"time":     event.StartsAt.Format("15:04"),
			"location": event.Location,
		})
		if err != nil {
			log.Warn().Err(err).Str("event", event.ID).Msg("payload marshal failed, skipping event")
			continue
		}

		recipients := make([]string, 0, len(regs))
		for _, reg := range regs {
			recipients = append(recipients, reg.AttendeeID)
		}

		ev := event
		sent := notify.FanOut(ctx, r.sender, recipients, func(recipient string) domain.Notification {
			return domain.Notification{
				RecipientID: recipient,
				Kind:        kind,
				EntityID:    ev.ID,
				Title:       title,
				Body:        fmt.Sprintf("%s starts %s at %s.", ev.Title, ev.StartsAt.Format("Jan 2 15:04"), ev.Location),
				Payload:     payload,
			}
		})
		log.Info().Str("event", event.ID).Str("kind", string(kind)).
			Int("recipients", len(recipients)).Int("sent", sent).
			Msg("event reminders dispatched")
	}
	return nil
}
