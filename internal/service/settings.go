package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"tiendapos/backend/internal/apperr"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

func settingsCacheKey(storeType string) string {
	return "pos:settings:" + storeType
}

// Settings returns the store-type settings, falling back to defaults when
// none were saved. Reads go through the settings cache.
func (s *Service) Settings(ctx context.Context, storeType string) (domain.Settings, error) {
	storeType, err := s.resolveStoreType(storeType)
	if err != nil {
		return domain.Settings{}, err
	}
	return s.settingsFor(ctx, storeType)
}

func (s *Service) settingsFor(ctx context.Context, storeType string) (domain.Settings, error) {
	key := settingsCacheKey(storeType)
	if cached, ok, err := s.settingsCache.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		s.logger.Warn("settings cache read failed", zap.String("store_type", storeType), zap.Error(err))
	}

	settings := domain.DefaultSettings(storeType)
	saved, err := s.repo.GetSettings(ctx, storeType)
	switch {
	case err == nil:
		settings = *saved
	case errors.Is(err, store.ErrNotFound):
	default:
		return domain.Settings{}, wrapStorage("get settings", err)
	}

	if err := s.settingsCache.Set(ctx, key, &settings, s.settingsTTL); err != nil {
		s.logger.Warn("settings cache write failed", zap.String("store_type", storeType), zap.Error(err))
	}
	return settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, storeType string, req domain.Settings) (domain.Settings, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Settings{}, err
	}
	storeType, err := s.resolveStoreType(storeType)
	if err != nil {
		return domain.Settings{}, err
	}
	if err := validateSettings(req); err != nil {
		return domain.Settings{}, err
	}

	req.StoreType = storeType
	req.StoreName = strings.TrimSpace(req.StoreName)
	req.UpdatedAt = s.now().UTC()
	saved, err := s.repo.UpsertSettings(ctx, req)
	if err != nil {
		return domain.Settings{}, wrapStorage("save settings", err)
	}
	if err := s.settingsCache.Delete(ctx, settingsCacheKey(storeType)); err != nil {
		s.logger.Warn("settings cache invalidation failed", zap.String("store_type", storeType), zap.Error(err))
	}

	s.logAudit(ctx, storeType, "settings_update", "settings", storeType,
		"vat="+saved.VATRate.String()+",earn="+saved.PointsEarningPercentage.String()+",point_value="+saved.CurrencyPerPointRedemption.String())
	return *saved, nil
}

func validateSettings(settings domain.Settings) error {
	if settings.VATRate.IsNegative() || settings.VATRate.GreaterThan(hundred) {
		return apperr.Validation("vat_rate", "must be between 0 and 100")
	}
	if settings.PointsEarningPercentage.IsNegative() || settings.PointsEarningPercentage.GreaterThan(hundred) {
		return apperr.Validation("points_earning_percentage", "must be between 0 and 100")
	}
	if !settings.CurrencyPerPointRedemption.IsPositive() {
		return apperr.Validation("currency_per_point_redemption", "must be greater than 0")
	}
	if settings.PointsPerCurrencyUnit.IsNegative() {
		return apperr.Validation("points_per_currency_unit", "must not be negative")
	}
	if settings.LowStockThreshold < 0 {
		return apperr.Validation("low_stock_threshold", "must not be negative")
	}
	return nil
}

// StoreInfo is the public subset of the settings shown on the storefront.
func (s *Service) StoreInfo(ctx context.Context, storeType string) (domain.StoreInfo, error) {
	settings, err := s.Settings(ctx, storeType)
	if err != nil {
		return domain.StoreInfo{}, err
	}
	return domain.StoreInfo{
		StoreType:       settings.StoreType,
		StoreName:       settings.StoreName,
		BusinessPhone:   settings.BusinessPhone,
		BusinessAddress: settings.BusinessAddress,
		BusinessLogoURL: settings.BusinessLogoURL,
		TermsOfUse:      settings.TermsOfUse,
		PrivacyPolicy:   settings.PrivacyPolicy,
	}, nil
}

func (s *Service) ListTerminals(ctx context.Context) ([]domain.Terminal, error) {
	terminals, err := s.repo.ListTerminals(ctx)
	return terminals, wrapStorage("list terminals", err)
}

func (s *Service) CreateTerminal(ctx context.Context, req domain.TerminalCreateRequest) (domain.Terminal, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Terminal{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Terminal{}, apperr.Validation("name", "is required")
	}

	created, err := s.repo.CreateTerminal(ctx, domain.Terminal{
		ID:        xid.New("term"),
		Name:      name,
		Location:  strings.TrimSpace(req.Location),
		Status:    domain.TerminalActive,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.Terminal{}, wrapStorage("create terminal", err)
	}
	s.logAudit(ctx, "", "terminal_create", "terminal", created.ID, "name="+created.Name)
	return *created, nil
}

// activeTerminal resolves a terminal id and refuses inactive terminals.
func (s *Service) activeTerminal(ctx context.Context, terminalID string) (domain.Terminal, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return domain.Terminal{}, apperr.Validation("terminal_id", "is required")
	}
	terminal, err := s.repo.GetTerminal(ctx, terminalID)
	if err != nil {
		return domain.Terminal{}, wrapStorage("get terminal", err)
	}
	if terminal.Status != domain.TerminalActive {
		return domain.Terminal{}, apperr.Validation("terminal_id", "terminal is not active")
	}
	return *terminal, nil
}
