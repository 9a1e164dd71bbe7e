package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/handler"
	"github.com/mansoorceksport/sitekit/internal/repository"
	"github.com/mansoorceksport/sitekit/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Token   string          `json:"token"`
	User    map[string]any  `json:"user"`
}

type client struct {
	t   *testing.T
	app *server.App
}

func (c client) do(method, path, token string, body any, headers ...string) (int, envelope) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := sonic.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := c.app.Test(req, -1)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if len(raw) > 0 {
		require.NoError(c.t, sonic.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, sonic.Unmarshal(env.Data, &v))
	return v
}

type idRow struct {
	ID string `json:"id"`
}

type wizardState struct {
	SessionID      string         `json:"session_id"`
	Step           string         `json:"step"`
	DraftID        string         `json:"draft_id"`
	DurationMonths int            `json:"duration_months"`
	AddOns         map[string]int `json:"add_ons"`
	Promo          *struct {
		Code     string `json:"code"`
		Discount int64  `json:"discount"`
	} `json:"promo"`
}

type quote struct {
	Subtotal      int64 `json:"subtotal"`
	PromoDiscount int64 `json:"promo_discount"`
	Total         int64 `json:"total"`
}

func TestGoldenPath(t *testing.T) {
	// 1. Setup Infrastructure
	db, cleanupDB := SetupTestDB(t)
	defer cleanupDB()
	redisClient := SetupTestRedis(t)

	mockAuth := NewMockAuthClient()
	gateway := NewStubGateway(domain.ProviderXendit)

	app, err := server.NewApp(server.AppDependencies{
		Config:      TestConfig(),
		MongoDB:     db,
		RedisClient: redisClient,
		AuthClient:  mockAuth,
		Providers:   gateway.Factory(),
	})
	require.NoError(t, err)
	api := client{t: t, app: app}
	ctx := context.Background()

	// ==========================================
	// STEP 1: Super Admin Login
	// ==========================================
	// The first super admin is provisioned by email; login links the Firebase identity.
	users := repository.NewMongoUserRepository(db)
	require.NoError(t, users.Create(ctx, &domain.User{
		Email: "owner@sitekit.id",
		Name:  "Owner",
		Roles: []string{domain.RoleSuperAdmin},
	}))
	mockAuth.AddMockUser("token_owner", "uid_owner", "owner@sitekit.id")

	status, env := api.do(http.MethodPost, "/v1/auth/login", "token_owner", nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	ownerToken := env.Token
	require.NotEmpty(t, ownerToken)
	assert.Contains(t, env.User["roles"], domain.RoleSuperAdmin)

	// a stranger registers with the user role and cannot reach the admin API
	mockAuth.AddMockUser("token_stranger", "uid_stranger", "stranger@example.com")
	status, env = api.do(http.MethodPost, "/v1/auth/login", "token_stranger", nil)
	require.Equal(t, http.StatusOK, status)
	strangerToken := env.Token
	status, _ = api.do(http.MethodGet, "/v1/admin/packages", strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// ==========================================
	// STEP 2: Catalog Setup
	// ==========================================
	status, env = api.do(http.MethodPost, "/v1/admin/packages", ownerToken, map[string]any{
		"name":       "Growth",
		"type":       "growth",
		"base_price": 500_000,
		"features":   []string{"Website care", "8 social posts"},
	})
	require.Equal(t, http.StatusCreated, status, env.Error)
	pkg := decodeData[struct {
		ID      string `json:"id"`
		Cadence string `json:"cadence"`
	}](t, env)
	assert.Equal(t, "monthly", pkg.Cadence)

	status, env = api.do(http.MethodPut, "/v1/admin/packages/"+pkg.ID+"/durations", ownerToken, map[string]any{
		"months":           6,
		"discount_percent": 10,
	})
	require.Equal(t, http.StatusOK, status, env.Error)

	status, env = api.do(http.MethodPost, "/v1/admin/addons", ownerToken, map[string]any{
		"scope":          "package",
		"package_id":     pkg.ID,
		"label":          "Extra social post",
		"price_per_unit": 50_000,
		"step":           1,
		"max_quantity":   5,
	})
	require.Equal(t, http.StatusCreated, status, env.Error)
	addOnID := decodeData[idRow](t, env).ID

	status, env = api.do(http.MethodPost, "/v1/admin/promos", ownerToken, map[string]any{
		"code":           "hemat200",
		"name":           "Flat 200K",
		"discount_type":  "fixed",
		"discount_value": 200_000,
	})
	require.Equal(t, http.StatusCreated, status, env.Error)

	status, env = api.do(http.MethodGet, "/v1/catalog/packages", "", nil)
	require.Equal(t, http.StatusOK, status)
	listed := decodeData[[]map[string]any](t, env)
	require.Len(t, listed, 1)

	// ==========================================
	// STEP 3: Marketing Plan Wizard
	// ==========================================
	status, env = api.do(http.MethodPost, "/v1/wizard", "", map[string]string{"flow": "plan"})
	require.Equal(t, http.StatusCreated, status, env.Error)
	session := decodeData[wizardState](t, env).SessionID
	require.NotEmpty(t, session)
	base := "/v1/wizard/" + session

	// add-ons are locked until a package is chosen
	status, _ = api.do(http.MethodPut, base+"/addons", "", map[string]any{"add_ons": map[string]int{addOnID: 1}})
	assert.Equal(t, http.StatusConflict, status)

	status, env = api.do(http.MethodPut, base+"/package", "", map[string]string{"package_id": pkg.ID})
	require.Equal(t, http.StatusOK, status, env.Error)

	status, env = api.do(http.MethodPut, base+"/duration", "", map[string]int{"months": 6})
	require.Equal(t, http.StatusOK, status, env.Error)
	st := decodeData[wizardState](t, env)
	assert.Equal(t, 6, st.DurationMonths)
	assert.Equal(t, "addons", st.Step)

	status, env = api.do(http.MethodGet, base+"/quote", "", nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	q := decodeData[struct {
		Quote quote `json:"quote"`
	}](t, env).Quote
	assert.EqualValues(t, 2_700_000, q.Total)

	status, env = api.do(http.MethodPut, base+"/addons", "", map[string]any{"add_ons": map[string]int{addOnID: 2}})
	require.Equal(t, http.StatusOK, status, env.Error)

	status, env = api.do(http.MethodGet, base+"/quote", "", nil)
	require.Equal(t, http.StatusOK, status)
	q = decodeData[struct {
		Quote quote `json:"quote"`
	}](t, env).Quote
	assert.EqualValues(t, 3_300_000, q.Total)

	// an unknown code leaves the order untouched
	status, env = api.do(http.MethodPut, base+"/promo", "", map[string]string{"code": "NOPE"})
	require.Equal(t, http.StatusOK, status)
	applied := decodeData[struct {
		State wizardState `json:"state"`
		Promo struct {
			OK     bool   `json:"ok"`
			Reason string `json:"reason"`
		} `json:"promo"`
	}](t, env)
	assert.False(t, applied.Promo.OK)
	assert.Nil(t, applied.State.Promo)

	status, env = api.do(http.MethodPut, base+"/promo", "", map[string]string{"code": " Hemat200 "})
	require.Equal(t, http.StatusOK, status, env.Error)
	applied = decodeData[struct {
		State wizardState `json:"state"`
		Promo struct {
			OK     bool   `json:"ok"`
			Reason string `json:"reason"`
		} `json:"promo"`
	}](t, env)
	require.True(t, applied.Promo.OK, applied.Promo.Reason)
	require.NotNil(t, applied.State.Promo)
	assert.Equal(t, "HEMAT200", applied.State.Promo.Code)

	// checkout is locked until the buyer's details are in
	status, _ = api.do(http.MethodPost, base+"/checkout", "", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, env = api.do(http.MethodPut, base+"/details", "", map[string]any{
		"name":           "Siti Rahma",
		"email":          "siti@warungsiti.id",
		"phone":          "+628123456789",
		"business_name":  "Warung Siti",
		"accepted_terms": true,
	})
	require.Equal(t, http.StatusOK, status, env.Error)
	st = decodeData[wizardState](t, env)
	assert.Equal(t, "payment", st.Step)
	assert.NotEmpty(t, st.DraftID)

	// ==========================================
	// STEP 4: Checkout
	// ==========================================
	status, env = api.do(http.MethodGet, "/v1/payments/availability", "", nil)
	require.Equal(t, http.StatusOK, status)
	av := decodeData[struct {
		Available bool   `json:"available"`
		Active    string `json:"active_provider"`
	}](t, env)
	assert.True(t, av.Available)
	assert.Equal(t, "xendit", av.Active)

	type attempt struct {
		ID          string `json:"id"`
		OrderRef    string `json:"order_ref"`
		Amount      int64  `json:"amount"`
		Status      string `json:"status"`
		RedirectURL string `json:"redirect_url"`
	}
	type checkout struct {
		Attempt attempt `json:"attempt"`
		Reused  bool    `json:"reused"`
	}

	status, env = api.do(http.MethodPost, base+"/checkout", "", nil, "X-Correlation-ID", "checkout-1")
	require.Equal(t, http.StatusOK, status, env.Error)
	first := decodeData[checkout](t, env)
	assert.EqualValues(t, 3_100_000, first.Attempt.Amount)
	assert.Equal(t, domain.AttemptStatusPending, first.Attempt.Status)
	assert.NotEmpty(t, first.Attempt.RedirectURL)
	require.Len(t, gateway.Charges(), 1)
	assert.EqualValues(t, 3_100_000, gateway.Charges()[0].Amount)

	// a resubmission returns the same attempt without charging again
	status, env = api.do(http.MethodPost, base+"/checkout", "", nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	again := decodeData[checkout](t, env)
	assert.True(t, again.Reused)
	assert.Equal(t, first.Attempt.ID, again.Attempt.ID)
	assert.Len(t, gateway.Charges(), 1)

	// ==========================================
	// STEP 5: Gateway Callback
	// ==========================================
	callback := map[string]any{
		"id":          "inv_" + first.Attempt.OrderRef,
		"external_id": first.Attempt.OrderRef,
		"status":      "PAID",
		"amount":      3_100_000,
	}
	status, _ = api.do(http.MethodPost, "/v1/webhooks/xendit", "", callback, handler.XenditCallbackHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = api.do(http.MethodPost, "/v1/webhooks/xendit", "", callback, handler.XenditCallbackHeader, testXenditWebhook)
	require.Equal(t, http.StatusOK, status, env.Error)

	// replays are harmless
	status, _ = api.do(http.MethodPost, "/v1/webhooks/xendit", "", callback, handler.XenditCallbackHeader, testXenditWebhook)
	assert.Equal(t, http.StatusOK, status)

	status, env = api.do(http.MethodGet, "/v1/payments/"+first.Attempt.ID+"/status", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.AttemptStatusPaid, decodeData[attempt](t, env).Status)

	// a paid order ends the session
	status, _ = api.do(http.MethodGet, base, "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	// ==========================================
	// STEP 6: Staff Follow-up
	// ==========================================
	status, env = api.do(http.MethodGet, "/v1/staff/leads?kind=marketing", ownerToken, nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	leads := decodeData[[]struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		PromoCode   string `json:"promo_code"`
		QuotedTotal *int64 `json:"quoted_total"`
		Customer    struct {
			Email string `json:"email"`
		} `json:"customer"`
	}](t, env)
	require.Len(t, leads, 1)
	assert.Equal(t, st.DraftID, leads[0].ID)
	assert.Equal(t, domain.DraftStatusPaid, leads[0].Status)
	assert.Equal(t, "siti@warungsiti.id", leads[0].Customer.Email)

	status, env = api.do(http.MethodGet, "/v1/admin/promos", ownerToken, nil)
	require.Equal(t, http.StatusOK, status)
	promos := decodeData[[]struct {
		Code      string `json:"code"`
		UsedCount int    `json:"used_count"`
	}](t, env)
	require.Len(t, promos, 1)
	assert.Equal(t, 1, promos[0].UsedCount)
}

func TestGatewaySettingsFunctions(t *testing.T) {
	db, cleanupDB := SetupTestDB(t)
	defer cleanupDB()
	redisClient := SetupTestRedis(t)

	mockAuth := NewMockAuthClient()
	app, err := server.NewApp(server.AppDependencies{
		Config:      TestConfig(),
		MongoDB:     db,
		RedisClient: redisClient,
		AuthClient:  mockAuth,
		Providers:   NewStubGateway(domain.ProviderXendit).Factory(),
	})
	require.NoError(t, err)
	api := client{t: t, app: app}
	ctx := context.Background()

	users := repository.NewMongoUserRepository(db)
	require.NoError(t, users.Create(ctx, &domain.User{Email: "owner@sitekit.id", Name: "Owner", Roles: []string{domain.RoleSuperAdmin}}))
	require.NoError(t, users.Create(ctx, &domain.User{Email: "ops@sitekit.id", Name: "Ops", Roles: []string{domain.RoleAdmin}}))
	mockAuth.AddMockUser("token_owner", "uid_owner", "owner@sitekit.id")
	mockAuth.AddMockUser("token_ops", "uid_ops", "ops@sitekit.id")

	_, env := api.do(http.MethodPost, "/v1/auth/login", "token_owner", nil)
	ownerToken := env.Token
	_, env = api.do(http.MethodPost, "/v1/auth/login", "token_ops", nil)
	opsToken := env.Token
	require.NotEmpty(t, ownerToken)
	require.NotEmpty(t, opsToken)

	const fn = "/v1/functions/" + handler.FunctionPaymentGateway
	save := map[string]any{
		"action":      "save_settings",
		"provider":    "midtrans",
		"enabled":     true,
		"environment": "sandbox",
		"client_key":  "SB-Mid-client-abcd",
		"secret_key":  "SB-Mid-server-secret-1234",
	}

	status, _ := api.do(http.MethodPost, fn, "", save)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = api.do(http.MethodPost, fn, opsToken, save)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = api.do(http.MethodPost, fn, ownerToken, save)
	require.Equal(t, http.StatusOK, status, env.Error)

	status, env = api.do(http.MethodPost, fn, ownerToken, map[string]string{"action": "set_active", "active_provider": "midtrans"})
	require.Equal(t, http.StatusOK, status, env.Error)

	// admins may read settings, with secrets masked
	status, env = api.do(http.MethodPost, fn, opsToken, map[string]string{"action": "get_settings"})
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.NotContains(t, string(env.Data), "SB-Mid-server-secret-1234")

	status, env = api.do(http.MethodGet, "/v1/payments/availability", "", nil)
	require.Equal(t, http.StatusOK, status)
	av := decodeData[struct {
		Active            string   `json:"active_provider"`
		Configured        []string `json:"configured"`
		MidtransClientKey string   `json:"midtrans_client_key"`
	}](t, env)
	assert.Equal(t, "midtrans", av.Active)
	assert.ElementsMatch(t, []string{"xendit", "midtrans"}, av.Configured)
	assert.Equal(t, "SB-Mid-client-abcd", av.MidtransClientKey)
}
