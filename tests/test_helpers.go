package tests

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/alicebob/miniredis/v2"
	"github.com/mansoorceksport/sitekit/internal/config"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SetupTestDB spins up a fresh MongoDB container and returns the database connection
// along with a cleanup function.
func SetupTestDB(t *testing.T) (*mongo.Database, func()) {
	ctx := context.Background()

	mongodbContainer, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Fatalf("failed to start container: %s", err)
	}

	endpoint, err := mongodbContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %s", err)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(endpoint))
	if err != nil {
		t.Fatalf("failed to connect to mongo: %v", err)
	}

	return mongoClient.Database("sitekit_test"), func() {
		if err := mongoClient.Disconnect(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to disconnect mongo")
		}
		if err := mongodbContainer.Terminate(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to terminate container")
		}
	}
}

// SetupTestRedis starts an in-process Redis
func SetupTestRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

const (
	testJWTSecret     = "test-secret-key-123"
	testXenditKey     = "xnd_development_test"
	testXenditWebhook = "xendit-callback-token"
)

// TestConfig returns the smallest config the app runs with. Xendit is the only
// configured gateway.
func TestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.MaxUploadSizeMB = 5
	cfg.Server.AllowOrigins = "*"
	cfg.Server.PublicBaseURL = "https://shop.example.com"
	cfg.JWT.Secret = testJWTSecret
	cfg.JWT.AccessTokenExpiry = time.Hour
	cfg.Payment.DefaultProvider = string(domain.ProviderXendit)
	cfg.Payment.Xendit.SecretKey = testXenditKey
	cfg.Payment.Xendit.WebhookToken = testXenditWebhook
	cfg.Wizard.SessionTTL = time.Hour
	cfg.Wizard.CheckpointTimeout = 5 * time.Second
	cfg.Wizard.ChangeDebounce = 10 * time.Millisecond
	cfg.Wizard.PromoRatePerMin = 100
	cfg.Idempotency.TTL = time.Minute
	return cfg
}

// MockAuthClient implements service.FirebaseAuthClient for testing
type MockAuthClient struct {
	// Key: ID token provided in the Authorization header
	// Value: what VerifyIDToken returns
	ValidTokens map[string]*auth.Token
}

func NewMockAuthClient() *MockAuthClient {
	return &MockAuthClient{
		ValidTokens: make(map[string]*auth.Token),
	}
}

func (m *MockAuthClient) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	if token, ok := m.ValidTokens[idToken]; ok {
		return token, nil
	}
	return nil, fmt.Errorf("invalid mock token")
}

// AddMockUser registers a Firebase identity under tokenString
func (m *MockAuthClient) AddMockUser(tokenString string, uid string, email string) {
	m.ValidTokens[tokenString] = &auth.Token{
		UID: uid,
		Claims: map[string]interface{}{
			"email": email,
		},
	}
}

// StubGateway is a PaymentProvider that opens a fake hosted invoice for every charge
type StubGateway struct {
	mu       sync.Mutex
	provider domain.Provider
	charges  []service.ChargeRequest
}

func NewStubGateway(provider domain.Provider) *StubGateway {
	return &StubGateway{provider: provider}
}

func (g *StubGateway) Name() domain.Provider { return g.provider }

func (g *StubGateway) CreateCharge(ctx context.Context, req service.ChargeRequest) (*service.ChargeResult, error) {
	g.mu.Lock()
	g.charges = append(g.charges, req)
	g.mu.Unlock()

	return &service.ChargeResult{
		Status:         domain.AttemptStatusPending,
		ProviderRef:    "inv_" + req.OrderRef,
		RedirectURL:    "https://checkout.example.com/" + req.OrderRef,
		Currency:       "IDR",
		ProviderAmount: strconv.FormatInt(req.Amount, 10),
	}, nil
}

// Charges returns what the gateway was asked to charge
func (g *StubGateway) Charges() []service.ChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]service.ChargeRequest(nil), g.charges...)
}

// Factory hands out the stub for any configured provider
func (g *StubGateway) Factory() service.ProviderFactory {
	return func(gc *domain.GatewayConfig) (service.PaymentProvider, error) {
		if !gc.Configured() {
			return nil, domain.ErrNoGatewayConfigured
		}
		return g, nil
	}
}
