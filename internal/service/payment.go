package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mansoorceksport/sitekit/internal/config"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/infrastructure/midtrans"
	"github.com/mansoorceksport/sitekit/internal/infrastructure/paypal"
	"github.com/mansoorceksport/sitekit/internal/infrastructure/xendit"
	"github.com/mansoorceksport/sitekit/internal/pricing"
	"github.com/shopspring/decimal"
)

// ChargeRequest is the provider-neutral description of one checkout attempt
type ChargeRequest struct {
	IdempotencyKey string
	OrderRef       string
	Amount         int64 // IDR
	Description    string
	PromoCode      string
	Domain         string
	TemplateID     string
	TemplateName   string
	PackageName    string
	Lines          []pricing.QuoteLine
	Customer       domain.Customer
	// CardToken is a Midtrans.js token; when set, Midtrans charges the card directly.
	CardToken  string
	SuccessURL string
	PendingURL string
	ErrorURL   string
}

// ChargeResult is what a provider returned for a charge
type ChargeResult struct {
	Status         string // attempt status
	ProviderRef    string
	RedirectURL    string
	Token          string // Snap token or PayPal order id for embedded widgets
	Currency       string
	ProviderAmount string
	Message        string
}

// PaymentProvider defines the interface for payment gateway integrations
type PaymentProvider interface {
	Name() domain.Provider
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// PaymentCapturer completes an approved charge inline (PayPal buttons)
type PaymentCapturer interface {
	Capture(ctx context.Context, requestID, providerRef string) (*ChargeResult, error)
}

// ProviderFactory builds a provider from its effective configuration
type ProviderFactory func(cfg *domain.GatewayConfig) (PaymentProvider, error)

// NewProviderFactory returns the factory used in production. Per-request construction
// lets admin credential changes apply to the next checkout without a restart.
func NewProviderFactory(cfg config.PaymentConfig) ProviderFactory {
	rate, err := decimal.NewFromString(cfg.PayPal.IDRPerUSD)
	if err != nil || !rate.IsPositive() {
		rate = decimal.NewFromInt(16_000)
	}

	return func(gc *domain.GatewayConfig) (PaymentProvider, error) {
		if gc == nil {
			return nil, domain.ErrNoGatewayConfigured
		}
		if !gc.Configured() {
			return nil, fmt.Errorf("%w: %s is not configured", domain.ErrNoGatewayConfigured, gc.Provider)
		}
		switch gc.Provider {
		case domain.ProviderXendit:
			return &XenditAdapter{client: xendit.NewClient(xendit.Config{
				SecretKey:       gc.SecretKey,
				BaseURL:         cfg.Xendit.BaseURL,
				InvoiceDuration: cfg.Xendit.InvoiceExpiry,
			})}, nil
		case domain.ProviderMidtrans:
			return &MidtransAdapter{client: midtrans.NewClient(midtrans.Config{
				ServerKey:  gc.SecretKey,
				ClientKey:  gc.ClientKey,
				Production: gc.Environment == domain.EnvProduction,
			})}, nil
		case domain.ProviderPayPal:
			return &PayPalAdapter{
				client: paypal.NewClient(paypal.Config{
					ClientID:     gc.ClientKey,
					ClientSecret: gc.SecretKey,
					BaseURL:      paypal.BaseURLFor(gc.Environment),
				}),
				idrPerUSD: rate,
			}, nil
		}
		return nil, fmt.Errorf("unknown provider %q", gc.Provider)
	}
}

// XenditAdapter adapts the xendit.Client to PaymentProvider interface
type XenditAdapter struct {
	client *xendit.Client
}

func (a *XenditAdapter) Name() domain.Provider { return domain.ProviderXendit }

// CreateCharge opens a hosted invoice; the buyer is redirected to pay
func (a *XenditAdapter) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	inv, err := a.client.CreateInvoice(ctx, req.IdempotencyKey, xendit.InvoiceRequest{
		ExternalID:         req.OrderRef,
		Amount:             req.Amount,
		PayerEmail:         req.Customer.Email,
		Description:        req.Description,
		Currency:           "IDR",
		SuccessRedirectURL: req.SuccessURL,
		FailureRedirectURL: req.ErrorURL,
		Customer: &xendit.Customer{
			GivenNames:   req.Customer.Name,
			Email:        req.Customer.Email,
			MobileNumber: req.Customer.Phone,
		},
		Items: xenditItems(req),
	})
	if err != nil {
		return nil, err
	}
	return &ChargeResult{
		Status:         xendit.MapStatus(inv.Status),
		ProviderRef:    inv.ID,
		RedirectURL:    inv.InvoiceURL,
		Currency:       "IDR",
		ProviderAmount: strconv.FormatInt(req.Amount, 10),
	}, nil
}

// xenditItems sends positive lines only, and only when they add up to the amount
func xenditItems(req ChargeRequest) []xendit.Item {
	var items []xendit.Item
	var sum int64
	for _, l := range req.Lines {
		if l.Amount <= 0 {
			return nil
		}
		sum += l.Amount
		items = append(items, xendit.Item{Name: l.Label, Quantity: 1, Price: l.Amount})
	}
	if sum != req.Amount {
		return nil
	}
	return items
}

// MidtransAdapter adapts the midtrans.Client to PaymentProvider interface
type MidtransAdapter struct {
	client *midtrans.Client
}

func (a *MidtransAdapter) Name() domain.Provider { return domain.ProviderMidtrans }

// CreateCharge charges a tokenized card through the Core API when a token is present,
// otherwise opens a Snap transaction.
func (a *MidtransAdapter) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	first, last := midtrans.SplitName(req.Customer.Name)
	tx := midtrans.TransactionRequest{
		OrderID:        req.OrderRef,
		GrossAmount:    req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		Customer: midtrans.Customer{
			FirstName: first,
			LastName:  last,
			Email:     req.Customer.Email,
			Phone:     req.Customer.Phone,
		},
		FinishURL: req.SuccessURL,
	}
	for _, l := range req.Lines {
		tx.Items = append(tx.Items, midtrans.Item{
			ID:       firstNonEmpty(l.RefID, string(l.Kind)),
			Name:     l.Label,
			Price:    l.Amount,
			Qty:      1,
			Category: string(l.Kind),
		})
	}

	result := &ChargeResult{Currency: "IDR", ProviderAmount: strconv.FormatInt(req.Amount, 10)}
	if req.CardToken != "" {
		charge, err := a.client.ChargeCard(ctx, tx, req.CardToken)
		if err != nil {
			return nil, err
		}
		result.Status = midtrans.MapStatus(charge.TransactionStatus, charge.FraudStatus)
		result.ProviderRef = charge.TransactionID
		result.RedirectURL = charge.RedirectURL // 3DS
		result.Message = charge.StatusMessage
		return result, nil
	}

	snap, err := a.client.CreateSnap(ctx, tx)
	if err != nil {
		return nil, err
	}
	result.Status = domain.AttemptStatusPending
	result.ProviderRef = snap.Token
	result.Token = snap.Token
	result.RedirectURL = snap.RedirectURL
	return result, nil
}

// PayPalAdapter adapts the paypal.Client. Amounts are converted from IDR to USD.
type PayPalAdapter struct {
	client    *paypal.Client
	idrPerUSD decimal.Decimal
}

func (a *PayPalAdapter) Name() domain.Provider { return domain.ProviderPayPal }

// CreateCharge creates an order for the embedded PayPal button to approve
func (a *PayPalAdapter) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	amount, err := paypal.ConvertIDR(req.Amount, a.idrPerUSD)
	if err != nil {
		return nil, err
	}
	order, err := a.client.CreateOrder(ctx, req.IdempotencyKey, paypal.OrderRequest{
		ReferenceID: req.OrderRef,
		Description: truncateRunes(req.Description, 127),
		Amount:      amount,
		ReturnURL:   req.SuccessURL,
		CancelURL:   req.ErrorURL,
	})
	if err != nil {
		return nil, err
	}
	return &ChargeResult{
		Status:         paypal.MapStatus(order.Status),
		ProviderRef:    order.ID,
		Token:          order.ID,
		RedirectURL:    order.ApproveURL(),
		Currency:       amount.CurrencyCode,
		ProviderAmount: amount.Value,
	}, nil
}

// Capture completes an approved order
func (a *PayPalAdapter) Capture(ctx context.Context, requestID, orderID string) (*ChargeResult, error) {
	order, err := a.client.CaptureOrder(ctx, requestID, orderID)
	if err != nil {
		return nil, err
	}
	return &ChargeResult{Status: paypal.MapStatus(order.Status), ProviderRef: order.ID}, nil
}

// DurationDescriptor renders the subscription length shown on invoices
func DurationDescriptor(months int) string {
	if months > 0 && months%12 == 0 {
		return fmt.Sprintf("%d tahun", months/12)
	}
	return fmt.Sprintf("%d bulan", months)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// attemptTimeout bounds one provider call
const attemptTimeout = 45 * time.Second
