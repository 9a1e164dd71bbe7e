package xendit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInvoice(t *testing.T) {
	var gotKey, gotUser string
	var gotBody InvoiceRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/invoices", r.URL.Path)
		gotKey = r.Header.Get("X-IDEMPOTENCY-KEY")
		gotUser, _, _ = r.BasicAuth()
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, sonic.Unmarshal(raw, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"inv_1","external_id":"ORD-1","status":"PENDING","amount":2700000,"invoice_url":"https://checkout.xendit.co/inv_1"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{SecretKey: "xnd_development_abc", BaseURL: srv.URL})
	inv, err := c.CreateInvoice(context.Background(), "idem-1", InvoiceRequest{
		ExternalID: "ORD-1", Amount: 2_700_000, Description: "Growth 6 bulan",
	})
	require.NoError(t, err)

	assert.Equal(t, "inv_1", inv.ID)
	assert.Equal(t, "https://checkout.xendit.co/inv_1", inv.InvoiceURL)
	assert.Equal(t, "idem-1", gotKey)
	assert.Equal(t, "xnd_development_abc", gotUser)
	assert.Equal(t, "IDR", gotBody.Currency)
	assert.Equal(t, int64(86400), gotBody.InvoiceDuration)
}

func TestCreateInvoice_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code":"API_VALIDATION_ERROR","message":"amount must be at least 10000"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{SecretKey: "k", BaseURL: srv.URL})
	_, err := c.CreateInvoice(context.Background(), "idem", InvoiceRequest{ExternalID: "x", Amount: 1})

	var gwErr *domain.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
	assert.Equal(t, "amount must be at least 10000", gwErr.UserMessage())
}

func TestVerifyCallbackToken(t *testing.T) {
	assert.True(t, VerifyCallbackToken("secret", "secret"))
	assert.False(t, VerifyCallbackToken("secret", "other"))
	assert.False(t, VerifyCallbackToken("", ""))
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, domain.AttemptStatusPaid, MapStatus("PAID"))
	assert.Equal(t, domain.AttemptStatusPaid, MapStatus("settled"))
	assert.Equal(t, domain.AttemptStatusExpired, MapStatus("EXPIRED"))
	assert.Equal(t, domain.AttemptStatusPending, MapStatus("PENDING"))
	assert.Equal(t, domain.AttemptStatusFailed, MapStatus("WHATEVER"))
}
