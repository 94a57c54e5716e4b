package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper). Quality thresholds
// and cost rates are tunable here rather than hard-coded in the analyzer.
type Config struct {
	Env         string
	Port        string
	DatabaseURL string
	RedisURL    string

	FrontendURLEndsWith string

	ProvenanceBaseURL string
	ProvenanceAPIKey  string

	// Advisory thresholds for the compatibility analyzer.
	MoistureWarnPct    float64
	BrokenRecommendPct float64

	// Cost rates for transfer estimates.
	TransferRatePerTon     float64
	StorageRatePerTonMonth float64

	// Per-silo lock acquisition bound and lease TTL.
	LockWait time.Duration
	LockTTL  time.Duration

	// Cron spec for the occupancy reconciliation sweep; empty disables it.
	ReconcileSpec string
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL_DEV")
	}

	return &Config{
		Env:                    env,
		Port:                   port,
		DatabaseURL:            dbURL,
		RedisURL:               viper.GetString("REDIS_URL"),
		FrontendURLEndsWith:    viper.GetString("FRONTEND_URL_ENDS_WITH"),
		ProvenanceBaseURL:      viper.GetString("PROVENANCE_BASE_URL"),
		ProvenanceAPIKey:       viper.GetString("PROVENANCE_API_KEY"),
		MoistureWarnPct:        floatOr("MOISTURE_WARN_PCT", 14.0),
		BrokenRecommendPct:     floatOr("BROKEN_RECOMMEND_PCT", 4.0),
		TransferRatePerTon:     floatOr("TRANSFER_RATE_PER_TON", 12.5),
		StorageRatePerTonMonth: floatOr("STORAGE_RATE_PER_TON_MONTH", 2.0),
		LockWait:               durationOr("SILO_LOCK_WAIT", 3*time.Second),
		LockTTL:                durationOr("SILO_LOCK_TTL", 10*time.Second),
		ReconcileSpec:          viper.GetString("RECONCILE_CRON"),
	}, nil
}

func floatOr(key string, def float64) float64 {
	if !viper.IsSet(key) {
		return def
	}
	return viper.GetFloat64(key)
}

func durationOr(key string, def time.Duration) time.Duration {
	if !viper.IsSet(key) {
		return def
	}
	if d := viper.GetDuration(key); d > 0 {
		return d
	}
	return def
}
