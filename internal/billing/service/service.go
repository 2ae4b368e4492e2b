// Package service implements payment reconciliation. The webhook and the
// return redirect both land here and race; all writes are idempotent so
// whichever path arrives second converges on the rows the first created.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/astraops/paygate/internal/billing/correlate"
	"github.com/astraops/paygate/internal/billing/domain"
	"github.com/astraops/paygate/internal/config"
	"github.com/astraops/paygate/internal/observability/metrics"
	"github.com/astraops/paygate/internal/paypal"
	"github.com/astraops/paygate/internal/tier"
)

// Params declares the dependencies of the billing service.
type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Node    *snowflake.Node
	Gateway paypal.Client
	Catalog *tier.Catalog
	Repo    domain.Repository
	Cfg     config.Config
	Metrics *metrics.Metrics `optional:"true"`
}

type billingService struct {
	db      *gorm.DB
	log     *zap.Logger
	node    *snowflake.Node
	gateway paypal.Client
	catalog *tier.Catalog
	repo    domain.Repository
	cfg     config.Config
	metrics *metrics.Metrics
	now     func() time.Time
}

// New constructs the billing service.
func New(p Params) domain.Service {
	return &billingService{
		db:      p.DB,
		log:     p.Log.Named("billing.service"),
		node:    p.Node,
		gateway: p.Gateway,
		catalog: p.Catalog,
		repo:    p.Repo,
		cfg:     p.Cfg,
		metrics: p.Metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *billingService) StartCheckout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: user_id is required", domain.ErrInvalidRequest)
	}

	t, err := s.catalog.Resolve(req.TierID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	payment, err := s.gateway.CreatePayment(ctx, paypal.CreatePaymentRequest{
		ItemName:    t.Name + " Subscription",
		SKU:         t.ID,
		AmountUSD:   t.AmountUSD(),
		Description: fmt.Sprintf("%s subscription, %d hours", t.Name, t.Hours),
		Custom:      userID,
		ReturnURL:   s.cfg.PayPalReturnURL,
		CancelURL:   s.cfg.PayPalCancelURL,
	})
	if err != nil {
		s.recordGateway("create_payment", "error")
		return domain.CheckoutResponse{}, fmt.Errorf("create payment: %w", err)
	}
	s.recordGateway("create_payment", "ok")

	s.log.Info("checkout started",
		zap.String("user_id", userID),
		zap.String("tier_id", t.ID),
		zap.String("payment_id", payment.ID),
	)
	return domain.CheckoutResponse{
		PaymentID:   payment.ID,
		ApprovalURL: payment.ApprovalURL(),
	}, nil
}

// HandleCompletedSale reconciles one webhook delivery. The delivery is
// claimed in payment_events before any gateway call; a second delivery of
// the same event id either short-circuits (already reconciled) or retries
// (claimed but a previous attempt failed before completion).
func (s *billingService) HandleCompletedSale(ctx context.Context, notif domain.CompletedSaleNotification) error {
	if notif.PaymentID == "" {
		return domain.ErrMalformedEvent
	}
	eventID := notif.EventID
	if eventID == "" {
		// Some sandbox simulators omit the event id. The payment id
		// still dedupes correctly since each sale completes once.
		eventID = "sale_" + notif.PaymentID
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &domain.EventRecord{
		ID:              s.node.Generate(),
		Provider:        domain.ProviderPayPal,
		ProviderEventID: eventID,
		EventType:       "PAYMENT.SALE.COMPLETED",
		PaymentID:       notif.PaymentID,
		Payload:         datatypes.JSON(notif.Payload),
		ReceivedAt:      s.now(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		prior, err := s.repo.FindEvent(ctx, s.db, domain.ProviderPayPal, eventID)
		if err != nil {
			return err
		}
		if prior.ProcessedAt != nil {
			s.recordEvent("PAYMENT.SALE.COMPLETED", "duplicate")
			return domain.ErrEventAlreadyProcessed
		}
		// Claimed by an attempt that never finished. Fall through and
		// reprocess; every write below is idempotent.
	}

	payment, err := s.gateway.FindPayment(ctx, notif.PaymentID)
	if err != nil {
		if s.terminalGatewayErr(err) {
			s.log.Warn("payment unrecoverable, dropping event",
				zap.String("payment_id", notif.PaymentID),
				zap.String("event_id", eventID),
				zap.Error(err),
			)
			s.recordGateway("find_payment", "rejected")
			return s.finishEvent(ctx, eventID, "PAYMENT.SALE.COMPLETED", "dropped")
		}
		s.recordGateway("find_payment", "error")
		return fmt.Errorf("find payment %s: %w", notif.PaymentID, err)
	}
	s.recordGateway("find_payment", "ok")

	res, err := correlate.Resolve(payment, s.catalog)
	if err != nil {
		// No retry can repair a payment that lacks correlation or
		// names a tier we do not sell. Log loudly, acknowledge.
		s.log.Error("payment cannot be correlated",
			zap.String("payment_id", notif.PaymentID),
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		return s.finishEvent(ctx, eventID, "PAYMENT.SALE.COMPLETED", "uncorrelated")
	}

	if _, _, err := s.Reconcile(ctx, res); err != nil {
		s.recordReconciliation("webhook", "error")
		return err
	}
	s.recordReconciliation("webhook", "ok")

	if err := s.repo.MarkEventProcessed(ctx, s.db, domain.ProviderPayPal, eventID, s.now()); err != nil {
		return err
	}
	s.recordEvent("PAYMENT.SALE.COMPLETED", "processed")
	s.log.Info("sale reconciled",
		zap.String("payment_id", res.PaymentID),
		zap.String("user_id", res.UserID),
		zap.String("tier_id", res.TierID),
	)
	return nil
}

func (s *billingService) ConfirmRedirect(ctx context.Context, paymentID, payerID string) (domain.Subscription, error) {
	if paymentID == "" || payerID == "" {
		return domain.Subscription{}, fmt.Errorf("%w: paymentId and PayerID are required", domain.ErrInvalidRequest)
	}

	_, err := s.gateway.ExecutePayment(ctx, paymentID, payerID)
	switch {
	case errors.Is(err, paypal.ErrAlreadyExecuted):
		// The webhook won the race and the sale already completed.
		// Reconciliation below is a no-op refresh, not a failure.
		s.recordGateway("execute_payment", "already_executed")
		s.log.Info("payment already executed, continuing",
			zap.String("payment_id", paymentID),
		)
	case err != nil:
		s.recordGateway("execute_payment", "error")
		return domain.Subscription{}, fmt.Errorf("execute payment %s: %w", paymentID, err)
	default:
		s.recordGateway("execute_payment", "ok")
	}

	payment, err := s.gateway.FindPayment(ctx, paymentID)
	if err != nil {
		s.recordGateway("find_payment", "error")
		return domain.Subscription{}, fmt.Errorf("find payment %s: %w", paymentID, err)
	}
	s.recordGateway("find_payment", "ok")

	res, err := correlate.Resolve(payment, s.catalog)
	if err != nil {
		return domain.Subscription{}, err
	}

	_, sub, err := s.Reconcile(ctx, res)
	if err != nil {
		s.recordReconciliation("redirect", "error")
		return domain.Subscription{}, err
	}
	s.recordReconciliation("redirect", "ok")
	s.log.Info("redirect reconciled",
		zap.String("payment_id", res.PaymentID),
		zap.String("user_id", res.UserID),
		zap.String("tier_id", sub.TierID),
	)
	return sub, nil
}

// Reconcile upserts the customer and subscription for one resolved
// payment. Any number of invocations for the same payment leave exactly
// one customer row and one subscription row; replays refresh the period
// window and never change the stored tier.
func (s *billingService) Reconcile(ctx context.Context, res correlate.Resolution) (domain.Customer, domain.Subscription, error) {
	now := s.now()

	customer := domain.Customer{
		UserID:    res.UserID,
		Email:     res.PayerEmail,
		Active:    true,
		Provider:  domain.ProviderPayPal,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertCustomer(ctx, s.db, &customer); err != nil {
		return domain.Customer{}, domain.Subscription{}, err
	}

	sub := domain.Subscription{
		ID:          domain.SubscriptionKey(res.PaymentID),
		UserID:      res.UserID,
		Status:      domain.SubscriptionStatusActive,
		TierID:      res.TierID,
		PeriodStart: now,
		PeriodEnd:   now.Add(domain.Term),
		Metadata: datatypes.JSONMap{
			"payment_id":   res.PaymentID,
			"tier_id":      res.TierID,
			"amount_cents": res.Tier.AmountCents,
			"hours":        res.Tier.Hours,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertSubscription(ctx, s.db, &sub); err != nil {
		return domain.Customer{}, domain.Subscription{}, err
	}

	// Re-read both rows so callers observe what storage settled on, not
	// what this writer attempted. Matters when a replay raced an earlier
	// confirmation that already fixed the tier.
	storedCust, err := s.repo.FindCustomer(ctx, s.db, res.UserID)
	if err != nil {
		return domain.Customer{}, domain.Subscription{}, err
	}
	storedSub, err := s.repo.FindSubscription(ctx, s.db, sub.ID)
	if err != nil {
		return domain.Customer{}, domain.Subscription{}, err
	}
	return *storedCust, *storedSub, nil
}

func (s *billingService) SubscriptionForUser(ctx context.Context, userID string) (domain.Subscription, error) {
	subs, err := s.repo.SubscriptionsByUser(ctx, s.db, userID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if len(subs) == 0 {
		return domain.Subscription{}, domain.ErrNotFound
	}
	latest := subs[0]
	if latest.Status == domain.SubscriptionStatusActive && latest.Expired(s.now()) {
		latest.Status = domain.SubscriptionStatusExpired
	}
	return latest, nil
}

// finishEvent marks a terminally failed event processed so the provider
// stops redelivering it.
func (s *billingService) finishEvent(ctx context.Context, eventID, eventType, outcome string) error {
	if err := s.repo.MarkEventProcessed(ctx, s.db, domain.ProviderPayPal, eventID, s.now()); err != nil {
		return err
	}
	s.recordEvent(eventType, outcome)
	return nil
}

// terminalGatewayErr reports whether the gateway definitively rejected
// the lookup, as opposed to a transport failure worth retrying.
func (s *billingService) terminalGatewayErr(err error) bool {
	if errors.Is(err, paypal.ErrPaymentNotFound) {
		return true
	}
	var apiErr *paypal.APIError
	return errors.As(err, &apiErr)
}

func (s *billingService) recordEvent(eventType, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordPaymentEvent(eventType, outcome)
	}
}

func (s *billingService) recordReconciliation(path, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordReconciliation(path, outcome)
	}
}

func (s *billingService) recordGateway(operation, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordGatewayCall(operation, outcome)
	}
}
