package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tiendapos/backend/internal/cache"
	"tiendapos/backend/internal/config"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/httpapi"
	"tiendapos/backend/internal/insights"
	"tiendapos/backend/internal/notify"
	"tiendapos/backend/internal/service"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/store/memory"
	pgstore "tiendapos/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		if cfg.MigrateOnStart {
			if err := pgstore.MigrateUp(cfg.DatabaseURL); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		if cfg.IsProduction() {
			logger.Fatal("DATABASE_URL is required in production")
		}
		repo = memory.NewSeeded(logger, cfg.SeedAdminPassword, cfg.SeedCashierPassword)
		logger.Info("repository: in-memory")
	}

	location := cfg.Location()
	var (
		settingsCache  cache.Cache[domain.Settings]
		dashboardCache cache.Cache[domain.Dashboard]
		notifier       notify.Notifier
	)
	settingsCache = cache.NewMemory[domain.Settings](time.Now)
	dashboardCache = cache.NewMemory[domain.Dashboard](time.Now)
	notifier = notify.NewBroker(logger)

	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisSettings := cache.NewRedis[domain.Settings](client, "pos:settings:")
		if err := redisSettings.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using in-process cache and broker", zap.Error(err))
			_ = client.Close()
		} else {
			settingsCache = redisSettings
			dashboardCache = cache.NewRedis[domain.Dashboard](client, "pos:dashboard:")
			notifier = notify.NewRedisBroker(client, cfg.OrderChannel, logger)
			closers = append(closers, client.Close)
			logger.Info("cache: redis", zap.String("addr", cfg.RedisAddr), zap.String("order_channel", cfg.OrderChannel))
		}
	} else {
		logger.Info("cache: in-process")
	}

	engine := insights.NewEngine(dashboardCache, time.Duration(cfg.DashboardCacheTTLSeconds)*time.Second, location, logger)
	svc := service.New(repo, service.Options{
		DefaultStoreType:    cfg.DefaultStoreType,
		Location:            location,
		SettingsCache:       settingsCache,
		SettingsTTL:         time.Duration(cfg.SettingsCacheTTLSeconds) * time.Second,
		Insights:            engine,
		Notifier:            notifier,
		RefundRestock:       cfg.RefundRestock,
		RefundReversePoints: cfg.RefundReversePoints,
		Logger:              logger,
	})
	auth := httpapi.NewAuthManager(httpapi.AuthOptions{
		Secret:      cfg.AuthSecret,
		TokenTTL:    time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute,
		ElevatedTTL: time.Duration(cfg.ElevatedTokenTTLMinutes) * time.Minute,
		ManagerPIN:  cfg.ManagerPIN,
		UserStore:   repo,
		Logger:      logger,
	})
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("POS backend listening",
			zap.String("address", cfg.Address()),
			zap.String("environment", cfg.Environment),
			zap.String("store_type", cfg.DefaultStoreType))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("LOG_LEVEL: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

// validateSecurityConfig requires a signing secret everywhere. The manager PIN
// may be left empty outside production, which disables elevation.
func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.ManagerPIN == "" {
		if cfg.IsProduction() {
			return fmt.Errorf("MANAGER_PIN must be set in production")
		}
		return nil
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be at least 6 digits")
	}
	for _, r := range cfg.ManagerPIN {
		if r < '0' || r > '9' {
			return fmt.Errorf("MANAGER_PIN must contain digits only")
		}
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "121212": true,
		"112233": true, "123123": true, "101010": true, "159753": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
