package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	MongoDB     MongoDBConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Firebase    FirebaseConfig
	S3          S3Config
	OTEL        OTELConfig
	Payment     PaymentConfig
	Wizard      WizardConfig
	Idempotency IdempotencyConfig
	Log         LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	MaxUploadSizeMB int64
	AllowOrigins    string
	// PublicBaseURL is where the storefront lives; used to build gateway redirect URLs.
	PublicBaseURL string
}

// MongoDBConfig holds MongoDB connection configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
}

// JWTConfig holds signing configuration for service-issued tokens
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// FirebaseConfig holds Firebase Admin SDK configuration
type FirebaseConfig struct {
	ProjectID   string
	PrivateKey  string // Base64 encoded
	ClientEmail string
}

// Enabled reports whether all Firebase credentials are present
func (f FirebaseConfig) Enabled() bool {
	return f.ProjectID != "" && f.PrivateKey != "" && f.ClientEmail != ""
}

// S3Config holds object storage configuration (SeaweedFS / S3 compatible)
type S3Config struct {
	Endpoint string
	Region   string
	Bucket   string
}

// OTELConfig holds OpenTelemetry exporter configuration
type OTELConfig struct {
	Enabled        bool
	Endpoint       string
	InstanceID     string
	Token          string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// PaymentConfig holds env-level gateway defaults.
// Rows saved through the admin gateway settings override these per provider.
type PaymentConfig struct {
	DefaultProvider string
	Xendit          XenditConfig
	Midtrans        MidtransConfig
	PayPal          PayPalConfig
}

// XenditConfig holds Xendit invoice API credentials
type XenditConfig struct {
	SecretKey     string
	WebhookToken  string
	BaseURL       string
	InvoiceExpiry time.Duration
}

// MidtransConfig holds Midtrans Snap / Core API credentials
type MidtransConfig struct {
	ServerKey   string
	ClientKey   string
	MerchantID  string
	Environment string // sandbox | production
}

// PayPalConfig holds PayPal REST credentials
type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	Environment  string // sandbox | production
	// IDRPerUSD converts the IDR quote into the USD amount PayPal charges.
	IDRPerUSD string
}

// WizardConfig holds order wizard session settings
type WizardConfig struct {
	SessionTTL        time.Duration
	CheckpointTimeout time.Duration
	ChangeDebounce    time.Duration
	PromoRatePerMin   int
}

// IdempotencyConfig holds replay cache settings
type IdempotencyConfig struct {
	TTL time.Duration
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads configuration from environment variables
// It attempts to load from .env file first, then falls back to system env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			MaxUploadSizeMB: getEnvAsInt64("MAX_UPLOAD_SIZE_MB", 5),
			AllowOrigins:    getEnv("CORS_ALLOW_ORIGINS", "*"),
			PublicBaseURL:   strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		},
		MongoDB: MongoDBConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "sitekit"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: getEnvAsDuration("JWT_ACCESS_TOKEN_EXPIRY", 24*time.Hour),
		},
		Firebase: FirebaseConfig{
			ProjectID:   getEnv("FIREBASE_PROJECT_ID", ""),
			PrivateKey:  getEnv("FIREBASE_PRIVATE_KEY", ""),
			ClientEmail: getEnv("FIREBASE_CLIENT_EMAIL", ""),
		},
		S3: S3Config{
			Endpoint: getEnv("S3_ENDPOINT", ""),
			Region:   getEnv("S3_REGION", "us-east-1"),
			Bucket:   getEnv("S3_BUCKET", "template-previews"),
		},
		OTEL: OTELConfig{
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			InstanceID:     getEnv("OTEL_INSTANCE_ID", ""),
			Token:          getEnv("OTEL_TOKEN", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "sitekit-api"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("OTEL_ENVIRONMENT", "development"),
		},
		Payment: PaymentConfig{
			DefaultProvider: getEnv("PAYMENT_DEFAULT_PROVIDER", ""),
			Xendit: XenditConfig{
				SecretKey:     getEnv("XENDIT_SECRET_KEY", ""),
				WebhookToken:  getEnv("XENDIT_WEBHOOK_TOKEN", ""),
				BaseURL:       getEnv("XENDIT_BASE_URL", "https://api.xendit.co"),
				InvoiceExpiry: getEnvAsDuration("XENDIT_INVOICE_EXPIRY", 24*time.Hour),
			},
			Midtrans: MidtransConfig{
				ServerKey:   getEnv("MIDTRANS_SERVER_KEY", ""),
				ClientKey:   getEnv("MIDTRANS_CLIENT_KEY", ""),
				MerchantID:  getEnv("MIDTRANS_MERCHANT_ID", ""),
				Environment: getEnv("MIDTRANS_ENVIRONMENT", "sandbox"),
			},
			PayPal: PayPalConfig{
				ClientID:     getEnv("PAYPAL_CLIENT_ID", ""),
				ClientSecret: getEnv("PAYPAL_CLIENT_SECRET", ""),
				Environment:  getEnv("PAYPAL_ENVIRONMENT", "sandbox"),
				IDRPerUSD:    getEnv("PAYPAL_IDR_PER_USD", "16000"),
			},
		},
		Wizard: WizardConfig{
			SessionTTL:        getEnvAsDuration("WIZARD_SESSION_TTL", 72*time.Hour),
			CheckpointTimeout: getEnvAsDuration("WIZARD_CHECKPOINT_TIMEOUT", 5*time.Second),
			ChangeDebounce:    getEnvAsDuration("REALTIME_DEBOUNCE", 300*time.Millisecond),
			PromoRatePerMin:   int(getEnvAsInt64("PROMO_VALIDATE_RATE_PER_MIN", 30)),
		},
		Idempotency: IdempotencyConfig{
			TTL: getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvAsBool("LOG_PRETTY", false),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MongoDB.URI == "" {
		return fmt.Errorf("MONGODB_URI is required")
	}
	switch c.Payment.DefaultProvider {
	case "", "xendit", "midtrans", "paypal":
	default:
		return fmt.Errorf("PAYMENT_DEFAULT_PROVIDER must be one of xendit, midtrans, paypal")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt64 retrieves an environment variable as int64 or returns a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go duration strings ("30s", "72h")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
