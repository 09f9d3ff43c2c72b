package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port                     string
	Environment              string
	LogLevel                 string
	AllowedOrigin            string
	DatabaseURL              string
	MigrateOnStart           bool
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	DefaultStoreType         string
	StoreTimezone            string
	SettingsCacheTTLSeconds  int
	DashboardCacheTTLSeconds int
	OrderChannel             string
	AuthSecret               string
	AccessTokenTTLMinutes    int
	ManagerPIN               string
	ElevatedTokenTTLMinutes  int
	RefundRestock            bool
	RefundReversePoints      bool
	SeedAdminPassword        string
	SeedCashierPassword      string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("MIGRATE_ON_START", false)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DEFAULT_STORE_TYPE", "retail")
	v.SetDefault("STORE_TIMEZONE", "UTC")
	v.SetDefault("SETTINGS_CACHE_TTL_SECONDS", 60)
	v.SetDefault("DASHBOARD_CACHE_TTL_SECONDS", 30)
	v.SetDefault("ORDER_CHANNEL", "pos:orders")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("ELEVATED_TOKEN_TTL_MINUTES", 15)
	v.SetDefault("REFUND_RESTOCK", false)
	v.SetDefault("REFUND_REVERSE_POINTS", false)

	cfg := Config{
		Port:                     strings.TrimSpace(v.GetString("PORT")),
		Environment:              strings.ToLower(strings.TrimSpace(v.GetString("ENVIRONMENT"))),
		LogLevel:                 strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		AllowedOrigin:            strings.TrimSpace(v.GetString("ALLOWED_ORIGIN")),
		DatabaseURL:              strings.TrimSpace(v.GetString("DATABASE_URL")),
		MigrateOnStart:           v.GetBool("MIGRATE_ON_START"),
		RedisAddr:                strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:            v.GetString("REDIS_PASSWORD"),
		RedisDB:                  v.GetInt("REDIS_DB"),
		DefaultStoreType:         strings.ToLower(strings.TrimSpace(v.GetString("DEFAULT_STORE_TYPE"))),
		StoreTimezone:            strings.TrimSpace(v.GetString("STORE_TIMEZONE")),
		SettingsCacheTTLSeconds:  positiveOr(v.GetInt("SETTINGS_CACHE_TTL_SECONDS"), 60),
		DashboardCacheTTLSeconds: positiveOr(v.GetInt("DASHBOARD_CACHE_TTL_SECONDS"), 30),
		OrderChannel:             strings.TrimSpace(v.GetString("ORDER_CHANNEL")),
		AuthSecret:               strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes:    positiveOr(v.GetInt("ACCESS_TOKEN_TTL_MINUTES"), 480),
		ManagerPIN:               strings.TrimSpace(v.GetString("MANAGER_PIN")),
		ElevatedTokenTTLMinutes:  positiveOr(v.GetInt("ELEVATED_TOKEN_TTL_MINUTES"), 15),
		RefundRestock:            v.GetBool("REFUND_RESTOCK"),
		RefundReversePoints:      v.GetBool("REFUND_REVERSE_POINTS"),
		SeedAdminPassword:        v.GetString("SEED_ADMIN_PASSWORD"),
		SeedCashierPassword:      v.GetString("SEED_CASHIER_PASSWORD"),
	}
	if cfg.OrderChannel == "" {
		cfg.OrderChannel = "pos:orders"
	}
	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves StoreTimezone, falling back to UTC for unknown names.
func (c Config) Location() *time.Location {
	if c.StoreTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.StoreTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func positiveOr(value int, fallback int) int {
	if value < 1 {
		return fallback
	}
	return value
}
