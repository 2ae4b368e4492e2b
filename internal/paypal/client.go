package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	sandboxBaseURL = "https://api.sandbox.paypal.com"
	liveBaseURL    = "https://api.paypal.com"

	// PAYMENT_ALREADY_DONE is the gateway's name for a second execute call
	// against an already-finalized payment.
	errNameAlreadyDone = "PAYMENT_ALREADY_DONE"
)

// Client is the gateway surface the reconciliation core consumes.
type Client interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error)
	FindPayment(ctx context.Context, paymentID string) (*Payment, error)
	ExecutePayment(ctx context.Context, paymentID, payerID string) (*ExecuteResult, error)
}

// Config configures the REST client. The client is constructed explicitly and
// injected; there is no process-wide SDK state.
type Config struct {
	ClientID     string
	ClientSecret string
	Mode         string // "sandbox" or "live"
	BaseURL      string // overrides mode-derived base URL when set
	HTTPTimeout  time.Duration
}

type restClient struct {
	cfg     Config
	baseURL string
	http    *http.Client
	log     *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient builds the REST gateway client.
func NewClient(cfg Config, log *zap.Logger) Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		if strings.EqualFold(cfg.Mode, "live") {
			base = liveBaseURL
		} else {
			base = sandboxBaseURL
		}
	}
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &restClient{
		cfg:     cfg,
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		log:     log.Named("paypal.client"),
	}
}

func (c *restClient) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	body := map[string]any{
		"intent": "sale",
		"payer":  map[string]any{"payment_method": "paypal"},
		"redirect_urls": map[string]any{
			"return_url": req.ReturnURL,
			"cancel_url": req.CancelURL,
		},
		"transactions": []map[string]any{{
			"item_list": map[string]any{
				"items": []map[string]any{{
					"name":     req.ItemName,
					"sku":      req.SKU,
					"price":    req.AmountUSD,
					"currency": "USD",
					"quantity": 1,
				}},
			},
			"amount": map[string]any{
				"total":    req.AmountUSD,
				"currency": "USD",
			},
			"description": req.Description,
			"custom":      req.Custom,
		}},
	}

	var payment Payment
	headers := map[string]string{"PayPal-Request-Id": uuid.NewString()}
	if err := c.do(ctx, http.MethodPost, "/v1/payments/payment", body, headers, &payment); err != nil {
		return nil, err
	}

	c.log.Info("payment created",
		zap.String("payment_id", payment.ID),
		zap.String("sku", req.SKU),
	)
	return &payment, nil
}

func (c *restClient) FindPayment(ctx context.Context, paymentID string) (*Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, ErrPaymentNotFound
	}

	var payment Payment
	path := "/v1/payments/payment/" + url.PathEscape(paymentID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *restClient) ExecutePayment(ctx context.Context, paymentID, payerID string) (*ExecuteResult, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, ErrPaymentNotFound
	}

	var payment Payment
	path := "/v1/payments/payment/" + url.PathEscape(paymentID) + "/execute"
	body := map[string]any{"payer_id": strings.TrimSpace(payerID)}
	if err := c.do(ctx, http.MethodPost, path, body, nil, &payment); err != nil {
		return nil, err
	}

	result := &ExecuteResult{PaymentID: payment.ID, State: payment.State}
	for _, tx := range payment.Transactions {
		for _, related := range tx.RelatedResources {
			if related.Sale != nil {
				result.TransactionID = related.Sale.ID
				break
			}
		}
	}

	c.log.Info("payment executed",
		zap.String("payment_id", payment.ID),
		zap.String("transaction_id", result.TransactionID),
	)
	return result, nil
}

func (c *restClient) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return c.decodeError(resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

func (c *restClient) decodeError(status int, payload []byte) error {
	apiErr := &APIError{StatusCode: status}
	_ = json.Unmarshal(payload, apiErr)

	switch {
	case apiErr.Name == errNameAlreadyDone:
		return ErrAlreadyExecuted
	case status == http.StatusNotFound:
		return ErrPaymentNotFound
	}
	if apiErr.Name == "" {
		apiErr.Name = http.StatusText(status)
	}
	return apiErr
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *restClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", c.decodeError(resp.StatusCode, payload)
	}

	var token tokenResponse
	if err := json.Unmarshal(payload, &token); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("gateway returned empty access token")
	}

	// Refresh one minute early to avoid using a token at the expiry edge.
	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}
