package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Port     string
	DBDSN    string
	LogFile  string
	LogLevel string

	// Commission tiers. Both are fractions in [0,1].
	StandardCommissionRate decimal.Decimal
	PremiumCommissionRate  decimal.Decimal

	BoostDailyPrice decimal.Decimal

	DispatchRetryInterval time.Duration
	DispatchMaxAttempts   int

	ShutdownTimeout time.Duration
	SeedDemo        bool
}

const (
	DefaultStandardCommissionRate = "0.10"
	DefaultPremiumCommissionRate  = "0.05"
	DefaultBoostDailyPrice        = "1.00"
)

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolenv(key string, def bool) bool {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func rateenv(key, def string) (decimal.Decimal, error) {
	raw := getenv(key, def)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %s=%q is not a decimal: %w", key, raw, err)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("config: %s=%s must be within [0,1]", key, raw)
	}
	return d, nil
}

// Load reads the process configuration from the environment.
func Load() (Config, error) {
	standard, err := rateenv("COMMISSION_STANDARD_RATE", DefaultStandardCommissionRate)
	if err != nil {
		return Config{}, err
	}
	premium, err := rateenv("COMMISSION_PREMIUM_RATE", DefaultPremiumCommissionRate)
	if err != nil {
		return Config{}, err
	}
	rawPrice := getenv("BOOST_DAILY_PRICE", DefaultBoostDailyPrice)
	boostPrice, err := decimal.NewFromString(rawPrice)
	if err != nil || boostPrice.IsNegative() {
		return Config{}, fmt.Errorf("config: BOOST_DAILY_PRICE=%q must be a non-negative decimal", rawPrice)
	}

	maxAttempts := atoienv("DISPATCH_MAX_ATTEMPTS", 5)
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryMs := atoienv("DISPATCH_RETRY_INTERVAL_MS", 5000)
	if retryMs <= 0 {
		retryMs = 5000
	}

	return Config{
		Port:                   getenv("PORT", "8080"),
		DBDSN:                  getenv("DB_DSN", "tradepost.db"),
		LogFile:                getenv("LOG_FILE", ""),
		LogLevel:               getenv("LOG_LEVEL", "info"),
		StandardCommissionRate: standard,
		PremiumCommissionRate:  premium,
		BoostDailyPrice:        boostPrice,
		DispatchRetryInterval:  time.Duration(retryMs) * time.Millisecond,
		DispatchMaxAttempts:    maxAttempts,
		ShutdownTimeout:        time.Duration(atoienv("SHUTDOWN_TIMEOUT", 10)) * time.Second,
		SeedDemo:               boolenv("SEED_DEMO", true),
	}, nil
}
