package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) lookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(mapLookup(map[string]string{"JWT_SECRET": "s3cret"}))
	require.NoError(t, err)

	assert.Equal(t, "8085", cfg.Server.Port)
	assert.Equal(t, "epayco", cfg.Payment.Provider)
	assert.Equal(t, "COP", cfg.Payment.Currency)
	assert.Equal(t, 15*time.Second, cfg.Payment.GatewayTimeout)
	assert.Equal(t, "http://localhost:3000", cfg.QR.PublicBaseURL)
	assert.Equal(t, 300, cfg.QR.ImageSize)
	assert.Equal(t, 30*time.Second, cfg.Orders.ConfirmLockTTL)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(mapLookup(map[string]string{
		"OIDC_ISSUER":                     "https://auth.example.com/realms/pettag",
		"FRONTEND_URL":                    "https://pettag.example.com/",
		"PAYMENT_PROVIDER":                "Stripe",
		"PAYMENT_GATEWAY_TIMEOUT_SECONDS": "5",
		"KAFKA_ENABLED":                   "true",
		"KAFKA_BROKERS":                   "k1:9092, k2:9092,",
		"ORDER_CONFIRM_LOCK_TTL_SECONDS":  "not-a-number",
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://pettag.example.com", cfg.Server.FrontendURL)
	assert.Equal(t, "https://pettag.example.com", cfg.QR.PublicBaseURL)
	assert.Equal(t, "stripe", cfg.Payment.Provider)
	assert.Equal(t, 5*time.Second, cfg.Payment.GatewayTimeout)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Second, cfg.Orders.ConfirmLockTTL)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := load(mapLookup(map[string]string{}))
	assert.ErrorContains(t, err, "JWT_SECRET")

	_, err = load(mapLookup(map[string]string{"JWT_SECRET": "x", "PAYMENT_PROVIDER": "paypal"}))
	assert.ErrorContains(t, err, "PAYMENT_PROVIDER")

	_, err = load(mapLookup(map[string]string{"JWT_SECRET": "x", "PAYMENT_GATEWAY_TIMEOUT_SECONDS": "0"}))
	assert.Error(t, err)
}
