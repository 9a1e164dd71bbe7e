// Package paypal is a minimal client for the PayPal Orders v2 REST API.
package paypal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	SandboxBaseURL    = "https://api-m.sandbox.paypal.com"
	ProductionBaseURL = "https://api-m.paypal.com"
)

// Order statuses reported by PayPal
const (
	StatusCreated   = "CREATED"
	StatusApproved  = "APPROVED"
	StatusCompleted = "COMPLETED"
	StatusVoided    = "VOIDED"
)

// Config holds PayPal REST credentials
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
}

// Client is the PayPal API client. Access tokens are cached until shortly before expiry.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     zerolog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Money is a PayPal amount
type Money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id,omitempty"`
	CustomID    string `json:"custom_id,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      Money  `json:"amount"`
}

type applicationContext struct {
	BrandName  string `json:"brand_name,omitempty"`
	UserAction string `json:"user_action,omitempty"`
	ReturnURL  string `json:"return_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

type createOrderRequest struct {
	Intent             string              `json:"intent"`
	PurchaseUnits      []purchaseUnit      `json:"purchase_units"`
	ApplicationContext *applicationContext `json:"application_context,omitempty"`
}

// OrderRequest describes a one-off capture order
type OrderRequest struct {
	ReferenceID string
	Description string
	Amount      Money
	BrandName   string
	ReturnURL   string
	CancelURL   string
}

// Link is a HATEOAS link on an order
type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

// Order is the subset of the order resource this service reads
type Order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []Link `json:"links"`
}

// ApproveURL returns the link the buyer follows to approve the order
func (o *Order) ApproveURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// NewClient creates a new PayPal client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = SandboxBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log.With().Str("component", "paypal").Logger(),
	}
}

// BaseURLFor maps a gateway environment to the REST endpoint
func BaseURLFor(env domain.GatewayEnvironment) string {
	if env == domain.EnvProduction {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

// CreateOrder creates a CAPTURE order. requestID is sent as PayPal-Request-Id so a
// retried call returns the original order.
func (c *Client) CreateOrder(ctx context.Context, requestID string, req OrderRequest) (*Order, error) {
	body := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.ReferenceID,
			CustomID:    req.ReferenceID,
			Description: req.Description,
			Amount:      req.Amount,
		}},
		ApplicationContext: &applicationContext{
			BrandName:  req.BrandName,
			UserAction: "PAY_NOW",
			ReturnURL:  req.ReturnURL,
			CancelURL:  req.CancelURL,
		},
	}

	var order Order
	if err := c.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", requestID, body, &order); err != nil {
		return nil, err
	}
	c.logger.Info().Str("reference_id", req.ReferenceID).Str("order_id", order.ID).Str("value", req.Amount.Value).Msg("order created")
	return &order, nil
}

// CaptureOrder captures an approved order
func (c *Client) CaptureOrder(ctx context.Context, requestID, orderID string) (*Order, error) {
	var order Order
	if err := c.doJSON(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", requestID, struct{}{}, &order); err != nil {
		return nil, err
	}
	c.logger.Info().Str("order_id", orderID).Str("status", order.Status).Msg("order captured")
	return &order, nil
}

// GetOrder fetches an order
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.doJSON(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), "", nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &domain.GatewayError{Provider: domain.ProviderPayPal, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &domain.GatewayError{
			Provider:   domain.ProviderPayPal,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("paypal token: status %d", resp.StatusCode),
		}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := sonic.Unmarshal(raw, &tok); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	c.accessToken = tok.AccessToken
	// refresh a minute early
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, requestID string, in, out interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if in != nil {
		body, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.GatewayError{Provider: domain.ProviderPayPal, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.GatewayError{Provider: domain.ProviderPayPal, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		_ = sonic.Unmarshal(raw, &apiErr)
		c.logger.Warn().Int("status", resp.StatusCode).Str("name", apiErr.Name).Str("path", path).Msg("paypal request failed")
		return &domain.GatewayError{
			Provider:   domain.ProviderPayPal,
			StatusCode: resp.StatusCode,
			Message:    apiErr.Message,
			Err:        fmt.Errorf("paypal %s %s: %s", method, path, apiErr.Name),
		}
	}

	if err := sonic.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// ConvertIDR converts an IDR amount into a USD Money value at idrPerUSD, rounded to cents
func ConvertIDR(amountIDR int64, idrPerUSD decimal.Decimal) (Money, error) {
	if !idrPerUSD.IsPositive() {
		return Money{}, fmt.Errorf("invalid IDR/USD rate %s", idrPerUSD)
	}
	usd := decimal.NewFromInt(amountIDR).Div(idrPerUSD).Round(2)
	if usd.LessThan(decimal.New(1, -2)) {
		usd = decimal.New(1, -2)
	}
	return Money{CurrencyCode: "USD", Value: usd.StringFixed(2)}, nil
}

// MapStatus converts an order status to a payment attempt status
func MapStatus(status string) string {
	switch status {
	case StatusCompleted:
		return domain.AttemptStatusPaid
	case StatusCreated, StatusApproved, "SAVED", "PAYER_ACTION_REQUIRED":
		return domain.AttemptStatusPending
	}
	return domain.AttemptStatusFailed
}
