package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_NAME", "agrilink.db")
	t.Setenv("PAYMENT_PROVIDER", "Stripe")
	t.Setenv("PAYMENT_CURRENCY", "inr")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("RATE_LIMIT_ENABLED", "FALSE")
	t.Setenv("FRONTEND_URL", "https://agrilink.in")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "stripe", cfg.Payment.Provider)
	assert.Equal(t, "INR", cfg.Payment.Currency)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Server.RateLimit)
	assert.Equal(t, []string{"https://agrilink.in"}, cfg.Frontend.AllowedOrigins)
	assert.Equal(t, "agrilink.db", cfg.Database.DSN())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment: "production",
			Database:    DatabaseConfig{Driver: "postgres", Password: "secret"},
			JWT:         JWTConfig{SecretKey: "a-real-secret"},
			Payment:     PaymentConfig{Provider: "razorpay", RazorpayKeySecret: "rzp_secret"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"default jwt secret", func(c *Config) { c.JWT.SecretKey = "your-secret-key-change-in-production" }},
		{"missing db password", func(c *Config) { c.Database.Password = "" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"unknown provider", func(c *Config) { c.Payment.Provider = "paypal" }},
		{"missing razorpay secret", func(c *Config) { c.Payment.RazorpayKeySecret = "" }},
		{"missing stripe webhook secret", func(c *Config) { c.Payment.Provider = "stripe" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	d := DatabaseConfig{Driver: "postgres", Host: "db", Port: "5432", User: "agri", Password: "pw", Database: "market", SSLMode: "require"}
	assert.Equal(t, "host=db port=5432 user=agri password=pw dbname=market sslmode=require", d.DSN())
}
