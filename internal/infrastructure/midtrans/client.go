// Package midtrans adapts midtrans-go (Snap and Core API) to this service.
package midtrans

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/mansoorceksport/sitekit/internal/domain"
	mt "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds Midtrans credentials
type Config struct {
	ServerKey  string
	ClientKey  string
	Production bool
}

// Client creates Snap and Core API transactions
type Client struct {
	config Config
	logger zerolog.Logger
}

// Customer is the buyer block sent to Midtrans
type Customer struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// Item is one transaction line. Line totals must add up to GrossAmount.
type Item struct {
	ID       string
	Name     string
	Price    int64
	Qty      int32
	Category string
}

// TransactionRequest is a provider-neutral charge description
type TransactionRequest struct {
	OrderID        string
	GrossAmount    int64
	IdempotencyKey string
	Customer       Customer
	Items          []Item
	FinishURL      string
}

// SnapResult is what the storefront needs to open the Snap popup or redirect
type SnapResult struct {
	Token       string
	RedirectURL string
}

// ChargeResult is the outcome of a direct Core API card charge
type ChargeResult struct {
	TransactionID     string
	TransactionStatus string
	FraudStatus       string
	RedirectURL       string
	StatusMessage     string
}

func NewClient(cfg Config) *Client {
	return &Client{
		config: cfg,
		logger: log.With().Str("component", "midtrans").Logger(),
	}
}

func (c *Client) env() mt.EnvironmentType {
	if c.config.Production {
		return mt.Production
	}
	return mt.Sandbox
}

// CreateSnap opens a Snap transaction. A fresh snap.Client is built per call because
// its Options carry the per-request idempotency key and context.
func (c *Client) CreateSnap(ctx context.Context, req TransactionRequest) (*SnapResult, error) {
	var s snap.Client
	s.New(c.config.ServerKey, c.env())
	s.Options.SetContext(ctx)
	if req.IdempotencyKey != "" {
		s.Options.SetPaymentIdempotencyKey(req.IdempotencyKey)
	}

	snapReq := &snap.Request{
		TransactionDetails: mt.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: req.GrossAmount,
		},
		CustomerDetail: customerDetails(req.Customer),
		Items:          itemDetails(req),
		CreditCard:     &snap.CreditCardDetails{Secure: true},
	}
	if req.FinishURL != "" {
		snapReq.Callbacks = &snap.Callbacks{Finish: req.FinishURL}
	}

	resp, mtErr := s.CreateTransaction(snapReq)
	if mtErr != nil {
		return nil, c.gatewayError("snap", mtErr)
	}

	c.logger.Info().Str("order_id", req.OrderID).Int64("amount", req.GrossAmount).Msg("snap transaction created")
	return &SnapResult{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// ChargeCard charges a card tokenized by Midtrans.js through the Core API
func (c *Client) ChargeCard(ctx context.Context, req TransactionRequest, tokenID string) (*ChargeResult, error) {
	var core coreapi.Client
	core.New(c.config.ServerKey, c.env())
	core.Options.SetContext(ctx)
	if req.IdempotencyKey != "" {
		core.Options.SetPaymentIdempotencyKey(req.IdempotencyKey)
	}

	chargeReq := &coreapi.ChargeReq{
		PaymentType: coreapi.PaymentTypeCreditCard,
		TransactionDetails: mt.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: req.GrossAmount,
		},
		CreditCard: &coreapi.CreditCardDetails{
			TokenID:        tokenID,
			Authentication: true,
		},
		CustomerDetails: customerDetails(req.Customer),
		Items:           itemDetails(req),
	}

	resp, mtErr := core.ChargeTransaction(chargeReq)
	if mtErr != nil {
		return nil, c.gatewayError("charge", mtErr)
	}

	c.logger.Info().
		Str("order_id", req.OrderID).
		Str("transaction_status", resp.TransactionStatus).
		Msg("card charged")
	return &ChargeResult{
		TransactionID:     resp.TransactionID,
		TransactionStatus: resp.TransactionStatus,
		FraudStatus:       resp.FraudStatus,
		RedirectURL:       resp.RedirectURL,
		StatusMessage:     resp.StatusMessage,
	}, nil
}

// CheckStatus asks Midtrans for the current transaction state of orderID
func (c *Client) CheckStatus(ctx context.Context, orderID string) (string, error) {
	var core coreapi.Client
	core.New(c.config.ServerKey, c.env())
	core.Options.SetContext(ctx)

	resp, mtErr := core.CheckTransaction(orderID)
	if mtErr != nil {
		return "", c.gatewayError("status", mtErr)
	}
	return MapStatus(resp.TransactionStatus, resp.FraudStatus), nil
}

// gatewayError takes the concrete *mt.Error so a nil pointer never reaches an error interface
func (c *Client) gatewayError(op string, e *mt.Error) error {
	c.logger.Warn().Str("op", op).Int("status", e.StatusCode).Str("message", e.Message).Msg("midtrans request failed")
	return &domain.GatewayError{
		Provider:   domain.ProviderMidtrans,
		StatusCode: e.StatusCode,
		Message:    e.Message,
		Err:        e.RawError,
	}
}

func customerDetails(cust Customer) *mt.CustomerDetails {
	return &mt.CustomerDetails{
		FName: cust.FirstName,
		LName: cust.LastName,
		Email: cust.Email,
		Phone: cust.Phone,
	}
}

// itemDetails falls back to a single line when the items do not add up to the gross amount
func itemDetails(req TransactionRequest) *[]mt.ItemDetails {
	var sum int64
	items := make([]mt.ItemDetails, 0, len(req.Items))
	for _, it := range req.Items {
		sum += it.Price * int64(it.Qty)
		items = append(items, mt.ItemDetails{
			ID:       it.ID,
			Name:     truncate(it.Name, 50),
			Price:    it.Price,
			Qty:      it.Qty,
			Category: it.Category,
		})
	}
	if len(items) == 0 || sum != req.GrossAmount {
		items = []mt.ItemDetails{{
			ID:    req.OrderID,
			Name:  truncate("Order "+req.OrderID, 50),
			Price: req.GrossAmount,
			Qty:   1,
		}}
	}
	return &items
}

// SplitName splits a full name into Midtrans first/last name fields
func SplitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	if i := strings.LastIndex(full, " "); i > 0 {
		return full[:i], full[i+1:]
	}
	return full, ""
}

// Notification is the HTTP notification body
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
	PaymentType       string `json:"payment_type"`
}

// VerifySignature checks SHA512(order_id + status_code + gross_amount + server_key)
func VerifySignature(n Notification, serverKey string) bool {
	if n.SignatureKey == "" || serverKey == "" {
		return false
	}
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + serverKey))
	want := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(n.SignatureKey))) == 1
}

// MapStatus converts a Midtrans transaction status to a payment attempt status
func MapStatus(transactionStatus, fraudStatus string) string {
	switch transactionStatus {
	case "capture":
		if fraudStatus == "challenge" {
			return domain.AttemptStatusPending
		}
		if fraudStatus == "deny" {
			return domain.AttemptStatusFailed
		}
		return domain.AttemptStatusPaid
	case "settlement":
		return domain.AttemptStatusPaid
	case "pending", "authorize":
		return domain.AttemptStatusPending
	case "expire":
		return domain.AttemptStatusExpired
	}
	return domain.AttemptStatusFailed
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
