package paypal

import (
	"errors"
	"fmt"
)

// ErrPaymentNotFound is returned when the gateway does not know the payment id.
var ErrPaymentNotFound = errors.New("payment_not_found")

// ErrAlreadyExecuted is returned when execute is called against a payment the
// gateway already finalized. The payment is final; callers proceed with the
// known payment state.
var ErrAlreadyExecuted = errors.New("payment_already_executed")

// APIError is a structured error response from the gateway.
type APIError struct {
	StatusCode int    `json:"-"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal: %s (%d): %s", e.Name, e.StatusCode, e.Message)
}

// Payment is the gateway's payment record, fetched per reconciliation
// attempt. Never cached; the gateway is the source of truth for its state.
type Payment struct {
	ID           string        `json:"id"`
	Intent       string        `json:"intent"`
	State        string        `json:"state"`
	Payer        Payer         `json:"payer"`
	Transactions []Transaction `json:"transactions"`
	Links        []Link        `json:"links"`
}

type Payer struct {
	PaymentMethod string    `json:"payment_method"`
	PayerInfo     PayerInfo `json:"payer_info"`
}

type PayerInfo struct {
	Email   string `json:"email"`
	PayerID string `json:"payer_id"`
}

type Transaction struct {
	Amount           Amount            `json:"amount"`
	Description      string            `json:"description,omitempty"`
	Custom           string            `json:"custom,omitempty"`
	ItemList         *ItemList         `json:"item_list,omitempty"`
	RelatedResources []RelatedResource `json:"related_resources,omitempty"`
}

type Amount struct {
	Total    string `json:"total"`
	Currency string `json:"currency"`
}

type ItemList struct {
	Items []Item `json:"items"`
}

type Item struct {
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
	Quantity int    `json:"quantity"`
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type RelatedResource struct {
	Sale *Sale `json:"sale,omitempty"`
}

type Sale struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	ParentPayment string `json:"parent_payment"`
}

// CreatePaymentRequest describes a one-off sale to create at the gateway.
// Custom carries the internal user id so the asynchronous confirmation can be
// correlated back; SKU carries the tier id.
type CreatePaymentRequest struct {
	ItemName    string
	SKU         string
	AmountUSD   string
	Description string
	Custom      string
	ReturnURL   string
	CancelURL   string
}

// ExecuteResult is the outcome of finalizing an approved payment.
type ExecuteResult struct {
	PaymentID     string
	TransactionID string
	State         string
}

// ApprovalURL returns the redirect target the payer must visit to approve the
// payment, or empty when the gateway did not include one.
func (p *Payment) ApprovalURL() string {
	for _, link := range p.Links {
		if link.Rel == "approval_url" {
			return link.Href
		}
	}
	return ""
}
