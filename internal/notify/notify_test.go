package notify

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"ticketflow/internal/domain"
)

type fakeSender struct {
	sent    []domain.Notification
	failFor map[string]bool
	dupes   map[string]bool
}

func (f *fakeSender) Send(ctx context.Context, n domain.Notification) (bool, error) {
	if f.failFor[n.RecipientID] {
		return false, errors.New("delivery down")
	}
	if f.dupes[n.RecipientID] {
		return false, nil
	}
	f.sent = append(f.sent, n)
	return true, nil
}

func build(recipient string) domain.Notification {
	return domain.Notification{
		RecipientID: recipient,
		Kind:        domain.KindEventReminderDayAhead,
		EntityID:    "evt_1",
		Title:       "Your event is tomorrow",
	}
}

func TestFanOutIsolatesFailures(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{"u3": true}}
	recipients := []string{"u1", "u2", "u3", "u4", "u5"}

	sent := FanOut(context.Background(), sender, recipients, build)

	require.Equal(t, 4, sent)
	require.Len(t, sender.sent, 4)
	for _, n := range sender.sent {
		require.NotEqual(t, "u3", n.RecipientID)
	}
}

func TestFanOutSkipsDuplicates(t *testing.T) {
	sender := &fakeSender{dupes: map[string]bool{"u2": true}}

	sent := FanOut(context.Background(), sender, []string{"u1", "u2"}, build)

	require.Equal(t, 1, sent)
	require.Len(t, sender.sent, 1)
	require.Equal(t, "u1", sender.sent[0].RecipientID)
}

func TestFanOutEmptyRecipients(t *testing.T) {
	sender := &fakeSender{}
	require.Zero(t, FanOut(context.Background(), sender, nil, build))
}
