// Package xendit is a minimal client for the Xendit Invoice API.
package xendit

import (
	"bytes"
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultBaseURL = "https://api.xendit.co"

// Invoice statuses reported by Xendit
const (
	StatusPending = "PENDING"
	StatusPaid    = "PAID"
	StatusSettled = "SETTLED"
	StatusExpired = "EXPIRED"
)

// Config holds Xendit API configuration
type Config struct {
	SecretKey string
	BaseURL   string
	// InvoiceDuration is how long the hosted invoice stays payable
	InvoiceDuration time.Duration
}

// Client is the Xendit API client
type Client struct {
	config     Config
	httpClient *http.Client
	logger     zerolog.Logger
}

// Customer is the payer block of an invoice
type Customer struct {
	GivenNames   string `json:"given_names,omitempty"`
	Email        string `json:"email,omitempty"`
	MobileNumber string `json:"mobile_number,omitempty"`
}

// Item is one invoice line
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// InvoiceRequest is the body of POST /v2/invoices
type InvoiceRequest struct {
	ExternalID         string    `json:"external_id"`
	Amount             int64     `json:"amount"`
	PayerEmail         string    `json:"payer_email,omitempty"`
	Description        string    `json:"description"`
	InvoiceDuration    int64     `json:"invoice_duration,omitempty"` // seconds
	Currency           string    `json:"currency"`
	SuccessRedirectURL string    `json:"success_redirect_url,omitempty"`
	FailureRedirectURL string    `json:"failure_redirect_url,omitempty"`
	Customer           *Customer `json:"customer,omitempty"`
	Items              []Item    `json:"items,omitempty"`
}

// Invoice is the subset of the invoice resource this service reads
type Invoice struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	InvoiceURL string `json:"invoice_url"`
	ExpiryDate string `json:"expiry_date"`
}

type apiError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// NewClient creates a new Xendit client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.InvoiceDuration <= 0 {
		cfg.InvoiceDuration = 24 * time.Hour
	}
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log.With().Str("component", "xendit").Logger(),
	}
}

// CreateInvoice creates a hosted invoice. Xendit returns the original invoice for a
// repeated idempotency key, so retries never create a second charge.
func (c *Client) CreateInvoice(ctx context.Context, idempotencyKey string, req InvoiceRequest) (*Invoice, error) {
	if req.Currency == "" {
		req.Currency = "IDR"
	}
	if req.InvoiceDuration == 0 {
		req.InvoiceDuration = int64(c.config.InvoiceDuration.Seconds())
	}

	body, err := sonic.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	headers := map[string]string{"X-IDEMPOTENCY-KEY": idempotencyKey}
	var inv Invoice
	if err := c.do(ctx, http.MethodPost, "/v2/invoices", headers, body, &inv); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("external_id", req.ExternalID).
		Str("invoice_id", inv.ID).
		Int64("amount", req.Amount).
		Msg("invoice created")
	return &inv, nil
}

// GetInvoice fetches the current state of an invoice
func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	var inv Invoice
	if err := c.do(ctx, http.MethodGet, "/v2/invoices/"+invoiceID, nil, nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(c.config.SecretKey, "")
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.GatewayError{Provider: domain.ProviderXendit, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.GatewayError{Provider: domain.ProviderXendit, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		_ = sonic.Unmarshal(respBody, &apiErr)
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("error_code", apiErr.ErrorCode).
			Str("path", path).
			Msg("xendit request failed")
		return &domain.GatewayError{
			Provider:   domain.ProviderXendit,
			StatusCode: resp.StatusCode,
			Message:    apiErr.Message,
			Err:        fmt.Errorf("xendit %s %s: status %d", method, path, resp.StatusCode),
		}
	}

	if err := sonic.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// CallbackPayload is the invoice webhook body
type CallbackPayload struct {
	ID         string  `json:"id"`
	ExternalID string  `json:"external_id"`
	Status     string  `json:"status"`
	Amount     float64 `json:"amount"`
	PaidAmount float64 `json:"paid_amount"`
}

// VerifyCallbackToken compares the x-callback-token header in constant time
func VerifyCallbackToken(expected, got string) bool {
	if expected == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// MapStatus converts an invoice status to a payment attempt status
func MapStatus(status string) string {
	switch strings.ToUpper(status) {
	case StatusPaid, StatusSettled:
		return domain.AttemptStatusPaid
	case StatusExpired:
		return domain.AttemptStatusExpired
	case StatusPending:
		return domain.AttemptStatusPending
	}
	return domain.AttemptStatusFailed
}
