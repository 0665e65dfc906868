package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Payment  PaymentConfig
	QR       QRConfig
	Orders   OrderConfig
	Log      LogConfig
}

// ServerConfig has no write timeout: order event streams stay open.
type ServerConfig struct {
	Port        string
	ReadTimeout time.Duration
	IdleTimeout time.Duration
	FrontendURL string
}

type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	AutoMigrate  bool
	ConnRetries  int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
	Enabled     bool
}

type AuthConfig struct {
	JWTSecret  string
	OIDCIssuer string
}

type PaymentConfig struct {
	Provider       string
	Currency       string
	GatewayTimeout time.Duration

	EpaycoAPIURL        string
	EpaycoValidationURL string
	EpaycoPublicKey     string
	EpaycoPrivateKey    string
	EpaycoCustID        string
	EpaycoPKey          string
	EpaycoTestMode      bool

	StripeSecretKey     string
	StripeWebhookSecret string
}

type QRConfig struct {
	PublicBaseURL string
	ImageSize     int
	// TagSheetFont is a TTF file used to caption printable tag sheets.
	TagSheetFont string
}

type OrderConfig struct {
	ConfirmLockTTL time.Duration
}

type LogConfig struct {
	Level string
	Dir   string
}

// Load reads the process environment.
func Load() (*Config, error) {
	return load(os.LookupEnv)
}

type lookupFunc func(string) (string, bool)

func load(lookup lookupFunc) (*Config, error) {
	e := env{lookup: lookup}

	frontend := strings.TrimRight(e.str("FRONTEND_URL", "http://localhost:3000"), "/")

	cfg := &Config{
		Server: ServerConfig{
			Port:        e.str("SERVER_PORT", "8085"),
			ReadTimeout: 15 * time.Second,
			IdleTimeout: 60 * time.Second,
			FrontendURL: frontend,
		},
		Database: DatabaseConfig{
			URL:          e.str("DATABASE_URL", ""),
			MaxOpenConns: e.int("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: e.int("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(e.int("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:  e.bool("AUTO_MIGRATE", true),
			ConnRetries:  e.int("DB_CONNECT_RETRIES", 5),
		},
		Redis: RedisConfig{
			Addr:     e.str("REDIS_ADDR", "localhost:6379"),
			Password: e.str("REDIS_PASSWORD", ""),
			DB:       e.int("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:     e.list("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicPrefix: e.str("KAFKA_TOPIC_PREFIX", "pettag"),
			Enabled:     e.bool("KAFKA_ENABLED", false),
		},
		Auth: AuthConfig{
			JWTSecret:  e.str("JWT_SECRET", ""),
			OIDCIssuer: e.str("OIDC_ISSUER", ""),
		},
		Payment: PaymentConfig{
			Provider:            strings.ToLower(e.str("PAYMENT_PROVIDER", "epayco")),
			Currency:            strings.ToUpper(e.str("PAYMENT_CURRENCY", "COP")),
			GatewayTimeout:      time.Duration(e.int("PAYMENT_GATEWAY_TIMEOUT_SECONDS", 15)) * time.Second,
			EpaycoAPIURL:        e.str("EPAYCO_API_URL", "https://api.secure.payco.co"),
			EpaycoValidationURL: e.str("EPAYCO_VALIDATION_URL", "https://secure.epayco.co/validation/v1/reference"),
			EpaycoPublicKey:     e.str("EPAYCO_PUBLIC_KEY", ""),
			EpaycoPrivateKey:    e.str("EPAYCO_PRIVATE_KEY", ""),
			EpaycoCustID:        e.str("EPAYCO_P_CUST_ID", ""),
			EpaycoPKey:          e.str("EPAYCO_P_KEY", ""),
			EpaycoTestMode:      e.bool("EPAYCO_TEST", true),
			StripeSecretKey:     e.str("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: e.str("STRIPE_WEBHOOK_SECRET", ""),
		},
		QR: QRConfig{
			PublicBaseURL: strings.TrimRight(e.str("QR_PUBLIC_BASE_URL", frontend), "/"),
			ImageSize:     e.int("QR_IMAGE_SIZE", 300),
			TagSheetFont:  e.str("TAG_SHEET_FONT", ""),
		},
		Orders: OrderConfig{
			ConfirmLockTTL: time.Duration(e.int("ORDER_CONFIRM_LOCK_TTL_SECONDS", 30)) * time.Second,
		},
		Log: LogConfig{
			Level: e.str("LOG_LEVEL", "info"),
			Dir:   e.str("LOG_DIR", "logs"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Payment.Provider {
	case "epayco", "stripe":
	default:
		return fmt.Errorf("config: unsupported PAYMENT_PROVIDER %q", c.Payment.Provider)
	}
	if c.Payment.GatewayTimeout <= 0 {
		return fmt.Errorf("config: PAYMENT_GATEWAY_TIMEOUT_SECONDS must be positive")
	}
	if c.QR.ImageSize < 64 {
		return fmt.Errorf("config: QR_IMAGE_SIZE must be at least 64")
	}
	if c.Auth.JWTSecret == "" && c.Auth.OIDCIssuer == "" {
		return fmt.Errorf("config: one of JWT_SECRET or OIDC_ISSUER is required")
	}
	return nil
}

type env struct {
	lookup lookupFunc
}

func (e env) str(key, defaultValue string) string {
	if value, ok := e.lookup(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func (e env) bool(key string, defaultValue bool) bool {
	if value, ok := e.lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (e env) int(key string, defaultValue int) int {
	if value, ok := e.lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (e env) list(key string, defaultValue []string) []string {
	value, ok := e.lookup(key)
	if !ok || value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
