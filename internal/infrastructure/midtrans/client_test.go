package midtrans

import (
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/stretchr/testify/assert"
)

func sign(orderID, status, gross, key string) string {
	sum := sha512.Sum512([]byte(orderID + status + gross + key))
	return hex.EncodeToString(sum[:])
}

func TestVerifySignature(t *testing.T) {
	n := Notification{OrderID: "ORD-1", StatusCode: "200", GrossAmount: "2700000.00"}
	n.SignatureKey = sign(n.OrderID, n.StatusCode, n.GrossAmount, "SB-Mid-server-xyz")

	assert.True(t, VerifySignature(n, "SB-Mid-server-xyz"))
	assert.False(t, VerifySignature(n, "other-key"))

	n.GrossAmount = "1.00"
	assert.False(t, VerifySignature(n, "SB-Mid-server-xyz"), "tampered amount")

	assert.False(t, VerifySignature(Notification{OrderID: "x"}, "SB-Mid-server-xyz"))
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		status, fraud, want string
	}{
		{"capture", "accept", domain.AttemptStatusPaid},
		{"capture", "challenge", domain.AttemptStatusPending},
		{"capture", "deny", domain.AttemptStatusFailed},
		{"settlement", "", domain.AttemptStatusPaid},
		{"pending", "", domain.AttemptStatusPending},
		{"expire", "", domain.AttemptStatusExpired},
		{"cancel", "", domain.AttemptStatusFailed},
		{"deny", "", domain.AttemptStatusFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapStatus(tt.status, tt.fraud), "%s/%s", tt.status, tt.fraud)
	}
}

func TestItemDetails(t *testing.T) {
	req := TransactionRequest{
		OrderID:     "ORD-1",
		GrossAmount: 3_100_000,
		Items: []Item{
			{ID: "pkg", Name: "Growth", Price: 2_700_000, Qty: 1},
			{ID: "seo", Name: "Extra article", Price: 100_000, Qty: 6},
			{ID: "promo", Name: "Promo", Price: -200_000, Qty: 1},
		},
	}
	items := *itemDetails(req)
	assert.Len(t, items, 3)

	req.GrossAmount = 999
	items = *itemDetails(req)
	assert.Len(t, items, 1, "mismatched lines collapse into one")
	assert.Equal(t, int64(999), items[0].Price)
}

func TestSplitName(t *testing.T) {
	first, last := SplitName("Sari Dewi Lestari")
	assert.Equal(t, "Sari Dewi", first)
	assert.Equal(t, "Lestari", last)

	first, last = SplitName("Budi")
	assert.Equal(t, "Budi", first)
	assert.Empty(t, last)
}
