package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"ticketflow/internal/config"
	"ticketflow/internal/domain"
	"ticketflow/internal/payment"
	"ticketflow/internal/store"
	"ticketflow/internal/testutil"
)

type fakeGateway struct {
	results map[string]payment.GatewayResult
	errFor  map[string]bool
	calls   int
}

func (g *fakeGateway) Status(ctx context.Context, externalRef string) (payment.GatewayResult, error) {
	g.calls++
	if g.errFor[externalRef] {
		return payment.GatewayResult{}, errors.New("gateway unreachable")
	}
	return g.results[externalRef], nil
}

type recordingFulfiller struct{ fulfilled []string }

func (f *recordingFulfiller) Fulfill(ctx context.Context, p domain.PaymentRecord) error {
	f.fulfilled = append(f.fulfilled, p.ID)
	return nil
}

func pollerConfig() config.PaymentsConfig {
	return config.PaymentsConfig{
		PendingMaxAge: config.Duration(24 * time.Hour),
		CallTimeout:   config.Duration(time.Second),
		GatewayRate:   1000, // tests never wait on the limiter
	}
}

func setup(t *testing.T, gw *fakeGateway) (store.Repository, *recordingFulfiller, *payment.Poller) {
	t.Helper()
	repo := store.NewSQLiteRepo(testutil.OpenTestDB(t))
	fulfiller := &recordingFulfiller{}
	return repo, fulfiller, payment.NewPoller(repo, gw, fulfiller, pollerConfig())
}

func TestConfirmedPaymentLeavesPendingSet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	gw := &fakeGateway{results: map[string]payment.GatewayResult{
		"tx-1": {Status: domain.PaymentStatusConfirmed, ConfirmedAmountCents: 2500},
	}}
	repo, fulfiller, poller := setup(t, gw)

	id, err := repo.CreatePayment(ctx, domain.PaymentRecord{
		ExternalRef: "tx-1", AmountCents: 2500, CreatedAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, poller.Run(ctx, now))
	require.Equal(t, []string{id}, fulfiller.fulfilled)

	pending, err := repo.PendingPayments(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	// Next tick has nothing to do and makes no gateway calls.
	calls := gw.calls
	require.NoError(t, poller.Run(ctx, now.Add(2*time.Minute)))
	require.Equal(t, calls, gw.calls)
}

func TestGatewayFailureLeavesRecordPending(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	gw := &fakeGateway{errFor: map[string]bool{"tx-1": true}}
	repo, fulfiller, poller := setup(t, gw)

	_, err := repo.CreatePayment(ctx, domain.PaymentRecord{
		ExternalRef: "tx-1", CreatedAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, poller.Run(ctx, now))

	pending, err := repo.PendingPayments(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, domain.PaymentStatusPending, pending[0].Status)
	require.Empty(t, fulfiller.fulfilled)
}

func TestStalePendingExpiresWithoutGatewayCall(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	gw := &fakeGateway{}
	repo, _, poller := setup(t, gw)

	_, err := repo.CreatePayment(ctx, domain.PaymentRecord{
		ExternalRef: "tx-old", CreatedAt: now.Add(-25 * time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, poller.Run(ctx, now))
	require.Zero(t, gw.calls)

	pending, err := repo.PendingPayments(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestStillPendingUpdatesLastChecked(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	gw := &fakeGateway{results: map[string]payment.GatewayResult{
		"tx-1": {Status: domain.PaymentStatusPending},
	}}
	repo, _, poller := setup(t, gw)

	_, err := repo.CreatePayment(ctx, domain.PaymentRecord{
		ExternalRef: "tx-1", CreatedAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, poller.Run(ctx, now))

	pending, err := repo.PendingPayments(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].LastCheckedAt)
}

func TestPerRecordFailureIsolation(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	gw := &fakeGateway{
		errFor: map[string]bool{"tx-1": true},
		results: map[string]payment.GatewayResult{
			"tx-2": {Status: domain.PaymentStatusConfirmed},
		},
	}
	repo, fulfiller, poller := setup(t, gw)

	_, err := repo.CreatePayment(ctx, domain.PaymentRecord{
		ExternalRef: "tx-1", CreatedAt: now.Add(-2 * time.Hour),
	})
	require.NoError(t, err)
	confirmedID, err := repo.CreatePayment(ctx, domain.PaymentRecord{
		ExternalRef: "tx-2", CreatedAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, poller.Run(ctx, now))

	require.Equal(t, []string{confirmedID}, fulfiller.fulfilled)
	pending, err := repo.PendingPayments(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "tx-1", pending[0].ExternalRef)
}

func TestGatewayFailedStatus(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	gw := &fakeGateway{results: map[string]payment.GatewayResult{
		"tx-1": {Status: domain.PaymentStatusFailed},
	}}
	repo, fulfiller, poller := setup(t, gw)

	_, err := repo.CreatePayment(ctx, domain.PaymentRecord{
		ExternalRef: "tx-1", CreatedAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, poller.Run(ctx, now))

	pending, err := repo.PendingPayments(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
	require.Empty(t, fulfiller.fulfilled, "failed payments are not fulfilled")
}
