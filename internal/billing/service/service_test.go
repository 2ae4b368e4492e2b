package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/astraops/paygate/internal/billing/correlate"
	"github.com/astraops/paygate/internal/billing/domain"
	"github.com/astraops/paygate/internal/billing/repository"
	"github.com/astraops/paygate/internal/billing/service"
	"github.com/astraops/paygate/internal/config"
	"github.com/astraops/paygate/internal/paypal"
	"github.com/astraops/paygate/internal/tier"
)

const schema = `
CREATE TABLE billing_customers (
	user_id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT FALSE,
	provider TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE billing_subscriptions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL,
	tier_id TEXT NOT NULL,
	period_start DATETIME NOT NULL,
	period_end DATETIME NOT NULL,
	metadata TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX idx_billing_subscriptions_user_id ON billing_subscriptions (user_id);
CREATE TABLE payment_events (
	id INTEGER PRIMARY KEY,
	provider TEXT NOT NULL,
	provider_event_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payment_id TEXT NOT NULL,
	payload TEXT,
	received_at DATETIME NOT NULL,
	processed_at DATETIME,
	UNIQUE (provider, provider_event_id)
);
`

// fakeGateway stands in for the PayPal REST API. Payments are seeded or
// created through CreatePayment, and ExecutePayment enforces the real
// API's once-only execution.
type fakeGateway struct {
	mu       sync.Mutex
	payments map[string]*paypal.Payment
	executed map[string]bool
	seq      int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		payments: make(map[string]*paypal.Payment),
		executed: make(map[string]bool),
	}
}

func (g *fakeGateway) seed(id, custom, sku string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[id] = buildPayment(id, custom, sku)
}

func buildPayment(id, custom, sku string) *paypal.Payment {
	p := &paypal.Payment{
		ID:     id,
		Intent: "sale",
		State:  "created",
		Payer: paypal.Payer{
			PaymentMethod: "paypal",
			PayerInfo:     paypal.PayerInfo{Email: "buyer@example.com"},
		},
		Transactions: []paypal.Transaction{{
			Amount: paypal.Amount{Total: "20.00", Currency: "USD"},
			Custom: custom,
		}},
		Links: []paypal.Link{{
			Href:   "https://sandbox.paypal.test/approve/" + id,
			Rel:    "approval_url",
			Method: "REDIRECT",
		}},
	}
	if sku != "" {
		p.Transactions[0].ItemList = &paypal.ItemList{
			Items: []paypal.Item{{Name: "Tier", SKU: sku, Price: "20.00", Currency: "USD", Quantity: 1}},
		}
	}
	return p
}

func (g *fakeGateway) CreatePayment(_ context.Context, req paypal.CreatePaymentRequest) (*paypal.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("PAY-TEST%04d", g.seq)
	g.payments[id] = buildPayment(id, req.Custom, req.SKU)
	return g.payments[id], nil
}

func (g *fakeGateway) FindPayment(_ context.Context, paymentID string) (*paypal.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[paymentID]
	if !ok {
		return nil, paypal.ErrPaymentNotFound
	}
	return p, nil
}

func (g *fakeGateway) ExecutePayment(_ context.Context, paymentID, _ string) (*paypal.ExecuteResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[paymentID]
	if !ok {
		return nil, paypal.ErrPaymentNotFound
	}
	if g.executed[paymentID] {
		return nil, paypal.ErrAlreadyExecuted
	}
	g.executed[paymentID] = true
	p.State = "approved"
	return &paypal.ExecuteResult{PaymentID: paymentID, State: "approved"}, nil
}

type fixture struct {
	svc     domain.Service
	db      *gorm.DB
	gateway *fakeGateway
	catalog *tier.Catalog
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	// A single connection keeps the shared in-memory database alive and
	// serializes concurrent statements the way a real server pool does.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.Exec(schema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	catalog, err := tier.NewCatalog(tier.DefaultTiers())
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}

	gateway := newFakeGateway()
	svc := service.New(service.Params{
		DB:      db,
		Log:     zap.NewNop(),
		Node:    node,
		Gateway: gateway,
		Catalog: catalog,
		Repo:    repository.New(),
		Cfg: config.Config{
			PayPalReturnURL: "https://app.example.com/api/paypal/success",
			PayPalCancelURL: "https://app.example.com/api/paypal/cancel",
		},
	})
	return &fixture{svc: svc, db: db, gateway: gateway, catalog: catalog}
}

func (f *fixture) countRows(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	if err := f.db.Table(table).Count(&n).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func notification(eventID, paymentID string) domain.CompletedSaleNotification {
	return domain.CompletedSaleNotification{
		EventID:   eventID,
		PaymentID: paymentID,
		Payload:   []byte(`{"event_type":"PAYMENT.SALE.COMPLETED"}`),
	}
}

func TestStartCheckout(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	resp, err := f.svc.StartCheckout(ctx, domain.CheckoutRequest{UserID: "user_1", TierID: "tier_2_20"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.PaymentID)
	assert.Contains(t, resp.ApprovalURL, resp.PaymentID)

	// The payment carries the correlation the webhook will need later.
	created := f.gateway.payments[resp.PaymentID]
	require.NotNil(t, created)
	assert.Equal(t, "user_1", created.Transactions[0].Custom)
	assert.Equal(t, "tier_2_20", created.Transactions[0].ItemList.Items[0].SKU)
}

func TestStartCheckoutRejectsBadInput(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.StartCheckout(ctx, domain.CheckoutRequest{UserID: "", TierID: "tier_2_20"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.svc.StartCheckout(ctx, domain.CheckoutRequest{UserID: "user_1", TierID: "tier_999"})
	assert.ErrorIs(t, err, tier.ErrUnknownTier)
}

func TestWebhookReconciles(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.gateway.seed("PAY-100", "user_42", "tier_6_50")

	require.NoError(t, f.svc.HandleCompletedSale(ctx, notification("WH-1", "PAY-100")))

	sub, err := f.svc.SubscriptionForUser(ctx, "user_42")
	require.NoError(t, err)
	assert.Equal(t, "paypal_PAY-100", sub.ID)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "tier_6_50", sub.TierID)
	assert.WithinDuration(t, sub.PeriodStart.Add(domain.Term), sub.PeriodEnd, time.Second)

	var cust domain.Customer
	require.NoError(t, f.db.Where("user_id = ?", "user_42").First(&cust).Error)
	assert.True(t, cust.Active)
	assert.Equal(t, "buyer@example.com", cust.Email)
	assert.Equal(t, domain.ProviderPayPal, cust.Provider)
}

func TestWebhookDuplicateEventShortCircuits(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.gateway.seed("PAY-100", "user_42", "tier_2_20")

	require.NoError(t, f.svc.HandleCompletedSale(ctx, notification("WH-1", "PAY-100")))

	err := f.svc.HandleCompletedSale(ctx, notification("WH-1", "PAY-100"))
	assert.ErrorIs(t, err, domain.ErrEventAlreadyProcessed)

	assert.Equal(t, int64(1), f.countRows(t, "billing_subscriptions"))
	assert.Equal(t, int64(1), f.countRows(t, "payment_events"))
}

func TestWebhookRedeliveryWithFreshEventID(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.gateway.seed("PAY-100", "user_42", "tier_2_20")

	require.NoError(t, f.svc.HandleCompletedSale(ctx, notification("WH-1", "PAY-100")))
	require.NoError(t, f.svc.HandleCompletedSale(ctx, notification("WH-2", "PAY-100")))
	require.NoError(t, f.svc.HandleCompletedSale(ctx, notification("WH-3", "PAY-100")))

	// Each delivery gets its own event row, but the billing outcome is
	// exactly one customer and one subscription.
	assert.Equal(t, int64(3), f.countRows(t, "payment_events"))
	assert.Equal(t, int64(1), f.countRows(t, "billing_customers"))
	assert.Equal(t, int64(1), f.countRows(t, "billing_subscriptions"))
}

func TestWebhookMissingCorrelationAcknowledged(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.gateway.seed("PAY-100", "", "tier_2_20")

	// No user reference means no retry can ever help. The event is
	// absorbed so the provider stops redelivering.
	require.NoError(t, f.svc.HandleCompletedSale(ctx, notification("WH-1", "PAY-100")))

	assert.Equal(t, int64(0), f.countRows(t, "billing_customers"))
	assert.Equal(t, int64(0), f.countRows(t, "billing_subscriptions"))

	var ev domain.EventRecord
	require.NoError(t, f.db.Where("provider_event_id = ?", "WH-1").First(&ev).Error)
	assert.NotNil(t, ev.ProcessedAt)
}

func TestWebhookUnknownTierAcknowledged(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.gateway.seed("PAY-100", "user_42", "tier_999")

	require.NoError(t, f.svc.HandleCompletedSale(ctx, notification("WH-1", "PAY-100")))
	assert.Equal(t, int64(0), f.countRows(t, "billing_subscriptions"))
}

func TestWebhookUnknownPaymentDropped(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.HandleCompletedSale(ctx, notification("WH-1", "PAY-MISSING")))

	var ev domain.EventRecord
	require.NoError(t, f.db.Where("provider_event_id = ?", "WH-1").First(&ev).Error)
	assert.NotNil(t, ev.ProcessedAt)
}

func TestWebhookRejectsMissingPaymentID(t *testing.T) {
	f := setup(t)
	err := f.svc.HandleCompletedSale(context.Background(), notification("WH-1", ""))
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)
}

func TestConfirmRedirect(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.gateway.seed("PAY-200", "user_7", "tier_12_100")

	sub, err := f.svc.ConfirmRedirect(ctx, "PAY-200", "PAYER-1")
	require.NoError(t, err)
	assert.Equal(t, "paypal_PAY-200", sub.ID)
	assert.Equal(t, "tier_12_100", sub.TierID)
	assert.True(t, f.gateway.executed["PAY-200"])
}

func TestConfirmRedirectAfterWebhookExecuted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.gateway.seed("PAY-200", "user_7", "tier_12_100")

	// Simulate the webhook path having completed the sale first: the
	// payment is already executed and already reconciled.
	_, err := f.gateway.ExecutePayment(ctx, "PAY-200", "PAYER-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleCompletedSale(ctx, notification("WH-1", "PAY-200")))

	// The redirect must still succeed for the user standing on the
	// return page.
	sub, err := f.svc.ConfirmRedirect(ctx, "PAY-200", "PAYER-1")
	require.NoError(t, err)
	assert.Equal(t, "paypal_PAY-200", sub.ID)

	assert.Equal(t, int64(1), f.countRows(t, "billing_subscriptions"))
	assert.Equal(t, int64(1), f.countRows(t, "billing_customers"))
}

func TestWebhookAfterRedirect(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.gateway.seed("PAY-200", "user_7", "tier_12_100")

	_, err := f.svc.ConfirmRedirect(ctx, "PAY-200", "PAYER-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleCompletedSale(ctx, notification("WH-1", "PAY-200")))

	assert.Equal(t, int64(1), f.countRows(t, "billing_subscriptions"))
	assert.Equal(t, int64(1), f.countRows(t, "billing_customers"))
}

func TestConcurrentWebhookAndRedirect(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.gateway.seed("PAY-300", "user_9", "tier_25_200")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := f.svc.HandleCompletedSale(ctx, notification("WH-1", "PAY-300")); err != nil {
			t.Errorf("webhook: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := f.svc.ConfirmRedirect(ctx, "PAY-300", "PAYER-9"); err != nil {
			t.Errorf("redirect: %v", err)
		}
	}()
	wg.Wait()

	assert.Equal(t, int64(1), f.countRows(t, "billing_customers"))
	assert.Equal(t, int64(1), f.countRows(t, "billing_subscriptions"))

	sub, err := f.svc.SubscriptionForUser(ctx, "user_9")
	require.NoError(t, err)
	assert.Equal(t, "tier_25_200", sub.TierID)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
}

func TestReconcileTierFirstWriteWins(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first := resolution(t, f.catalog, "PAY-400", "user_5", "tier_2_20")
	_, sub1, err := f.svc.Reconcile(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "tier_2_20", sub1.TierID)

	time.Sleep(20 * time.Millisecond)

	// A replay that somehow resolves a different tier refreshes the
	// period but cannot rewrite history.
	second := resolution(t, f.catalog, "PAY-400", "user_5", "tier_50_400")
	_, sub2, err := f.svc.Reconcile(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "tier_2_20", sub2.TierID)
	assert.True(t, sub2.PeriodEnd.After(sub1.PeriodEnd))
}

func TestReconcileKeepsFirstEmail(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res := resolution(t, f.catalog, "PAY-500", "user_5", "tier_2_20")
	res.PayerEmail = "first@example.com"
	cust1, _, err := f.svc.Reconcile(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, "first@example.com", cust1.Email)

	res.PayerEmail = "second@example.com"
	cust2, _, err := f.svc.Reconcile(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, "first@example.com", cust2.Email)
}

func TestSubscriptionForUserExpiry(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	start := time.Now().UTC().Add(-40 * 24 * time.Hour)
	require.NoError(t, f.db.Exec(`
		INSERT INTO billing_subscriptions
			(id, user_id, status, tier_id, period_start, period_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, "paypal_PAY-OLD", "user_old", "active", "tier_2_20",
		start, start.Add(domain.Term), start, start).Error)

	sub, err := f.svc.SubscriptionForUser(ctx, "user_old")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusExpired, sub.Status)

	// Expiry is applied at read time only; the stored row is untouched.
	var stored domain.Subscription
	require.NoError(t, f.db.Where("id = ?", "paypal_PAY-OLD").First(&stored).Error)
	assert.Equal(t, domain.SubscriptionStatusActive, stored.Status)
}

func TestSubscriptionForUserNotFound(t *testing.T) {
	f := setup(t)
	_, err := f.svc.SubscriptionForUser(context.Background(), "user_none")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func resolution(t *testing.T, catalog *tier.Catalog, paymentID, userID, tierID string) correlate.Resolution {
	t.Helper()
	tr, err := catalog.Resolve(tierID)
	if err != nil {
		t.Fatalf("resolve tier %s: %v", tierID, err)
	}
	return correlate.Resolution{
		PaymentID:  paymentID,
		UserID:     userID,
		TierID:     tr.ID,
		Tier:       tr,
		PayerEmail: "buyer@example.com",
	}
}
