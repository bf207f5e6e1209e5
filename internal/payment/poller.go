package payment

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"ticketflow/internal/config"
	"ticketflow/internal/domain"
)

// Gateway is the external settlement system, polled for transaction status.
type Gateway interface {
	Status(ctx context.Context, externalRef string) (GatewayResult, error)
}

// GatewayResult is the settlement system's answer for one transaction.
type GatewayResult struct {
	Status               domain.PaymentStatus
	ConfirmedAmountCents int64
}

// Fulfiller is invoked once a payment is confirmed (ticket issuance lives
// upstream of this engine).
type Fulfiller interface {
	Fulfill(ctx context.Context, p domain.PaymentRecord) error
}

// Store is the slice of the repository the poller needs.
type Store interface {
	PendingPayments(ctx context.Context) ([]domain.PaymentRecord, error)
	SetPaymentStatus(ctx context.Context, id string, status domain.PaymentStatus, at time.Time) error
	TouchPaymentChecked(ctx context.Context, id string, at time.Time) error
}

// Poller reconciles local PENDING payments against the settlement gateway.
// Each record is handled independently; a gateway failure for one record
// leaves it PENDING and it is retried on the next tick. Records pending past
// the configured age are expired locally without another gateway call.
type Poller struct {
	store     Store
	gateway   Gateway
	fulfiller Fulfiller
	limiter   *rate.Limiter

	pendingMaxAge time.Duration
	callTimeout   time.Duration
}

func NewPoller(st Store, gw Gateway, f Fulfiller, cfg config.PaymentsConfig) *Poller {
	return &Poller{
		store:         st,
		gateway:       gw,
		fulfiller:     f,
		limiter:       rate.NewLimiter(rate.Limit(cfg.GatewayRate), 1),
		pendingMaxAge: cfg.PendingMaxAge.Std(),
		callTimeout:   cfg.CallTimeout.Std(),
	}
}

func (p *Poller) Run(ctx context.Context, now time.Time) error {
	pending, err := p.store.PendingPayments(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch pending payments")
	}
	if len(pending) == 0 {
		log.Debug().Msg("no pending payments")
		return nil
	}

	for _, record := range pending {
		if err := p.reconcile(ctx, now, record); err != nil {
			log.Warn().Err(err).Str("payment", record.ID).Msg("reconciliation skipped, will retry next tick")
		}
	}
	return nil
}

func (p *Poller) reconcile(ctx context.Context, now time.Time, record domain.PaymentRecord) error {
	if now.Sub(record.CreatedAt) > p.pendingMaxAge {
		if err := p.store.SetPaymentStatus(ctx, record.ID, domain.PaymentStatusExpired, now); err != nil {
			return err
		}
		log.Info().Str("payment", record.ID).Dur("pending_for", now.Sub(record.CreatedAt)).
			Msg("payment expired locally")
		return nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limit wait")
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	result, err := p.gateway.Status(callCtx, record.ExternalRef)
	if err != nil {
		// Status stays PENDING; the tick interval is the retry policy.
		return errors.Wrapf(err, "gateway status for %s", record.ExternalRef)
	}

	switch result.Status {
	case domain.PaymentStatusConfirmed:
		if err := p.store.SetPaymentStatus(ctx, record.ID, domain.PaymentStatusConfirmed, now); err != nil {
			return err
		}
		log.Info().Str("payment", record.ID).Int64("amount_cents", result.ConfirmedAmountCents).
			Msg("payment confirmed")
		if err := p.fulfiller.Fulfill(ctx, record); err != nil {
			// The payment is confirmed regardless; fulfillment retries are
			// the collaborator's concern.
			log.Error().Err(err).Str("payment", record.ID).Msg("fulfillment failed")
		}
	case domain.PaymentStatusFailed:
		if err := p.store.SetPaymentStatus(ctx, record.ID, domain.PaymentStatusFailed, now); err != nil {
			return err
		}
		log.Info().Str("payment", record.ID).Msg("payment failed at gateway")
	case domain.PaymentStatusExpired:
		if err := p.store.SetPaymentStatus(ctx, record.ID, domain.PaymentStatusExpired, now); err != nil {
			return err
		}
		log.Info().Str("payment", record.ID).Msg("payment expired at gateway")
	default:
		if err := p.store.TouchPaymentChecked(ctx, record.ID, now); err != nil {
			return err
		}
	}
	return nil
}

// LogFulfiller is the default fulfillment collaborator: it only records that
// downstream delivery should happen.
type LogFulfiller struct{}

func (LogFulfiller) Fulfill(ctx context.Context, p domain.PaymentRecord) error {
	log.Info().Str("payment", p.ID).Str("external_ref", p.ExternalRef).Msg("fulfillment triggered")
	return nil
}
