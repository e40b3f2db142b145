package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Ghepes/checkout-ui-app/internal/client"
	"github.com/Ghepes/checkout-ui-app/internal/metrics"
	"github.com/Ghepes/checkout-ui-app/internal/model"
	"github.com/Ghepes/checkout-ui-app/internal/plan"
	"github.com/Ghepes/checkout-ui-app/internal/repository"
)

// SettlementService reacts to payment lifecycle notifications by replaying
// the settlement plan embedded in charge metadata and issuing the vendor
// transfers that do not already exist. It keeps no authoritative local
// state: the settled/unsettled question is always re-derived from the
// gateway, which makes redelivery and restarts safe.
type SettlementService interface {
	HandleEvent(ctx context.Context, event *client.PaymentEvent) error
}

type settlementServiceImpl struct {
	gateway     client.Gateway
	eventRepo   repository.WebhookEventRepository
	attemptRepo repository.TransferAttemptRepository
	logger      *slog.Logger
}

func NewSettlementService(
	gateway client.Gateway,
	eventRepo repository.WebhookEventRepository,
	attemptRepo repository.TransferAttemptRepository,
) SettlementService {
	return &settlementServiceImpl{
		gateway:     gateway,
		eventRepo:   eventRepo,
		attemptRepo: attemptRepo,
		logger:      slog.With("component", "settlement"),
	}
}

func (s *settlementServiceImpl) HandleEvent(ctx context.Context, event *client.PaymentEvent) error {
	switch event.Type {
	case client.EventCheckoutCompleted, client.EventPaymentSucceeded, client.EventChargeSucceeded:
	default:
		metrics.WebhookEvents.WithLabelValues(event.Type, "ignored").Inc()
		return nil
	}

	// Fast path for exact redeliveries. Best effort only: a log failure
	// must not stop settlement, the charge-level checks below stay
	// authoritative either way.
	if processed, err := s.eventRepo.Exists(ctx, event.ID); err != nil {
		s.logger.Warn("event log lookup failed", "event", event.ID, "err", err)
	} else if processed {
		metrics.WebhookEvents.WithLabelValues(event.Type, "duplicate").Inc()
		s.logger.Debug("event already processed", "event", event.ID)
		return nil
	}

	payment, err := s.lookupPayment(ctx, event)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(event.Type, "error").Inc()
		return fmt.Errorf("resolve payment for event %s: %w", event.ID, err)
	}
	if payment == nil {
		metrics.WebhookEvents.WithLabelValues(event.Type, "ignored").Inc()
		return nil
	}

	// Payment-level metadata first; session-level copy as fallback for
	// plans written before the payment-level copy existed.
	p, err := plan.DecodeWithFallback(payment.Metadata, event.ObjectMetadata)
	if err != nil {
		// Nothing to reconcile for this charge. Not an error surface:
		// plenty of charges legitimately carry no plan.
		metrics.WebhookEvents.WithLabelValues(event.Type, "no_plan").Inc()
		s.logger.Debug("no settlement plan for charge", "charge", payment.ChargeID, "err", err)
		s.markProcessed(ctx, event, payment.ChargeID)
		return nil
	}

	// A recorded transfer reference on the charge proves a prior
	// invocation (or the gateway's direct-charge mechanism) already
	// settled it.
	if payment.TransferID != "" {
		metrics.WebhookEvents.WithLabelValues(event.Type, "already_settled").Inc()
		s.logger.Debug("charge already settled", "charge", payment.ChargeID, "transfer", payment.TransferID)
		s.markProcessed(ctx, event, payment.ChargeID)
		return nil
	}

	outcomes := s.settleAll(ctx, payment, p)

	var failed int
	for _, out := range outcomes {
		if out.err != nil {
			failed++
		}
	}
	if failed > 0 {
		// Operator-visible only. The notification is still acknowledged;
		// remediation happens out of band via the attempt log.
		s.logger.Error("settlement completed with failures",
			"event", event.ID,
			"charge", payment.ChargeID,
			"failed", failed,
			"total", len(outcomes),
		)
	} else {
		s.logger.Info("settlement completed",
			"event", event.ID,
			"charge", payment.ChargeID,
			"destinations", len(outcomes),
		)
	}

	metrics.WebhookEvents.WithLabelValues(event.Type, "settled").Inc()
	s.markProcessed(ctx, event, payment.ChargeID)
	return nil
}

// lookupPayment resolves the underlying charge for an event. Events that
// reference neither a payment intent nor a charge resolve to nil.
func (s *settlementServiceImpl) lookupPayment(ctx context.Context, event *client.PaymentEvent) (*client.PaymentDetails, error) {
	switch {
	case event.PaymentIntentID != "":
		return s.gateway.GetPaymentIntent(ctx, event.PaymentIntentID)
	case event.ChargeID != "":
		return s.gateway.GetCharge(ctx, event.ChargeID)
	default:
		return nil, nil
	}
}

type destinationOutcome struct {
	entry      plan.Entry
	transferID string
	skipped    bool
	err        error
}

// settleAll fans out one goroutine per destination. Destinations are
// disjoint, so they run concurrently; a failure on one never cancels the
// others.
func (s *settlementServiceImpl) settleAll(ctx context.Context, payment *client.PaymentDetails, p *plan.Plan) []destinationOutcome {
	outcomes := make([]destinationOutcome, len(p.Entries))

	var wg sync.WaitGroup
	for i, entry := range p.Entries {
		wg.Add(1)
		go func(i int, entry plan.Entry) {
			defer wg.Done()
			outcomes[i] = s.settleDestination(ctx, payment, p, entry)
		}(i, entry)
	}
	wg.Wait()

	return outcomes
}

func (s *settlementServiceImpl) settleDestination(ctx context.Context, payment *client.PaymentDetails, p *plan.Plan, entry plan.Entry) destinationOutcome {
	out := destinationOutcome{entry: entry}

	// Existence check as late as possible, just before the create, to keep
	// the race window with overlapping invocations minimal. The
	// idempotency key on the create closes it entirely.
	existing, err := s.gateway.ListTransfers(ctx, entry.AccountID, p.TransferGroup)
	if err != nil {
		out.err = fmt.Errorf("list transfers for %s: %w", entry.AccountID, err)
		s.recordAttempt(ctx, payment, p, entry, out)
		return out
	}

	for _, t := range existing {
		if t.SourceTransaction == payment.ChargeID {
			out.skipped = true
			out.transferID = t.ID
			metrics.Transfers.WithLabelValues("skipped").Inc()
			s.recordAttempt(ctx, payment, p, entry, out)
			return out
		}
	}

	created, err := s.gateway.CreateTransfer(ctx, &client.TransferRequest{
		Amount:            entry.Amount,
		Currency:          p.Currency,
		Destination:       entry.AccountID,
		TransferGroup:     p.TransferGroup,
		SourceTransaction: payment.ChargeID,
		IdempotencyKey:    payment.ChargeID + "_" + entry.AccountID,
	})
	if err != nil {
		out.err = fmt.Errorf("create transfer to %s: %w", entry.AccountID, err)
		metrics.Transfers.WithLabelValues("failed").Inc()
		s.logger.Error("transfer failed", "charge", payment.ChargeID, "destination", entry.AccountID, "err", err)
		s.recordAttempt(ctx, payment, p, entry, out)
		return out
	}

	out.transferID = created.ID
	metrics.Transfers.WithLabelValues("created").Inc()
	s.recordAttempt(ctx, payment, p, entry, out)
	return out
}

func (s *settlementServiceImpl) recordAttempt(ctx context.Context, payment *client.PaymentDetails, p *plan.Plan, entry plan.Entry, out destinationOutcome) {
	attempt := &model.TransferAttempt{
		ChargeID:      payment.ChargeID,
		Destination:   entry.AccountID,
		Amount:        entry.Amount,
		Currency:      p.Currency,
		TransferGroup: p.TransferGroup,
		TransferID:    out.transferID,
	}

	switch {
	case out.err != nil:
		attempt.Status = model.TransferStatusFailed
		attempt.LastError = out.err.Error()
	case out.skipped:
		attempt.Status = model.TransferStatusSkipped
	default:
		attempt.Status = model.TransferStatusCreated
	}

	if err := s.attemptRepo.Record(ctx, attempt); err != nil {
		s.logger.Warn("record transfer attempt failed", "charge", payment.ChargeID, "destination", entry.AccountID, "err", err)
	}
}

func (s *settlementServiceImpl) markProcessed(ctx context.Context, event *client.PaymentEvent, chargeID string) {
	if err := s.eventRepo.MarkProcessed(ctx, event.ID, event.Type, chargeID); err != nil {
		s.logger.Warn("mark event processed failed", "event", event.ID, "err", err)
	}
}
