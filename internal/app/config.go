package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yungbote/enrollment-backend/internal/data/db"
	"github.com/yungbote/enrollment-backend/internal/observability"
	"github.com/yungbote/enrollment-backend/internal/platform/envutil"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
	"github.com/yungbote/enrollment-backend/internal/services"
)

type Config struct {
	Env     string
	Port    string
	LogMode string

	PostgresDSN string
	RedisAddr   string
	RedisPrefix string

	PaymentMode       services.PaymentMode
	MidtransServerKey string
	MidtransEnv       string
	PublicBaseURL     string
	CheckoutSuccess   string
	CheckoutFailure   string
	CheckoutPending   string

	WebhookSigningSecret string
	WebhookMaxBodyBytes  int64
	AdminJWTSecret       string
	CORSOrigins          []string

	PricingScheduleFile string
	HealthThresholds    observability.HealthThresholds

	MetricsEnabled bool
	MetricsAddr    string
	ServiceName    string
	Version        string

	ShutdownTimeout time.Duration
}

// LoadDotEnv loads .env outside production. A missing file is not an error.
func LoadDotEnv(log *logger.Logger) {
	if strings.EqualFold(envutil.String("APP_ENV", ""), "production") {
		return
	}
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file loaded, using process environment", "error", err)
		return
	}
	log.Info("Loaded .env file")
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Env:     envutil.String("APP_ENV", "development"),
		Port:    envutil.String("PORT", "8080"),
		LogMode: envutil.String("LOG_MODE", "development"),

		PostgresDSN: db.PostgresDSN(),
		RedisAddr:   envutil.String("REDIS_ADDR", ""),
		RedisPrefix: envutil.String("REDIS_PREFIX", "enroll"),

		PaymentMode:       services.ParsePaymentMode(envutil.String("PAYMENT_PROVIDER_MODE", "mock")),
		MidtransServerKey: envutil.String("MIDTRANS_SERVER_KEY", ""),
		MidtransEnv:       envutil.String("MIDTRANS_ENV", "sandbox"),
		PublicBaseURL:     envutil.String("PUBLIC_BASE_URL", "http://localhost:8080"),
		CheckoutSuccess:   envutil.String("CHECKOUT_SUCCESS_URL", ""),
		CheckoutFailure:   envutil.String("CHECKOUT_FAILURE_URL", ""),
		CheckoutPending:   envutil.String("CHECKOUT_PENDING_URL", ""),

		WebhookSigningSecret: envutil.String("WEBHOOK_SIGNING_SECRET", ""),
		WebhookMaxBodyBytes:  int64(envutil.Int("WEBHOOK_MAX_BODY_BYTES", 1<<20)),
		AdminJWTSecret:       envutil.String("ADMIN_JWT_SECRET", ""),
		CORSOrigins:          splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),

		PricingScheduleFile: envutil.String("PRICING_SCHEDULE_FILE", ""),
		HealthThresholds:    observability.HealthThresholdsFromEnv(),

		MetricsEnabled: observability.Enabled(),
		MetricsAddr:    envutil.String("METRICS_ADDR", ""),
		ServiceName:    envutil.String("OTEL_SERVICE_NAME", "enrollment-backend"),
		Version:        envutil.String("APP_VERSION", "dev"),

		ShutdownTimeout: envutil.Duration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
	if cfg.WebhookSigningSecret == "" && log != nil {
		log.Warn("WEBHOOK_SIGNING_SECRET not set; webhook signatures will not be verified")
	}
	if cfg.AdminJWTSecret == "" && log != nil {
		log.Warn("ADMIN_JWT_SECRET not set; admin endpoints will reject every request")
	}
	return cfg
}

func (c Config) Validate() error {
	if c.PaymentMode == services.PaymentModeMidtrans && strings.TrimSpace(c.MidtransServerKey) == "" {
		return fmt.Errorf("PAYMENT_PROVIDER_MODE=midtrans requires MIDTRANS_SERVER_KEY")
	}
	if strings.TrimSpace(c.PublicBaseURL) == "" {
		return fmt.Errorf("PUBLIC_BASE_URL is required")
	}
	if err := c.HealthThresholds.Validate(); err != nil {
		return fmt.Errorf("queue health thresholds: %w", err)
	}
	return nil
}

func (c Config) MidtransProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.MidtransEnv), "production")
}

func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
