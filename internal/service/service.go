// Package service holds the POS use cases: catalog and customer admin, the
// per-terminal ticket workflow, checkout, held tickets, public orders,
// refunds, receipts and reporting.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"tiendapos/backend/internal/apperr"
	"tiendapos/backend/internal/cache"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/insights"
	"tiendapos/backend/internal/notify"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/ticket"
	"tiendapos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Options configures a Service. Zero values fall back to in-process
// defaults so tests only set what they exercise.
type Options struct {
	DefaultStoreType    string
	Location            *time.Location
	SettingsCache       cache.Cache[domain.Settings]
	SettingsTTL         time.Duration
	Insights            *insights.Engine
	Notifier            notify.Notifier
	RefundRestock       bool
	RefundReversePoints bool
	Now                 func() time.Time
	Logger              *zap.Logger
}

type Service struct {
	repo                store.Repository
	tickets             *ticket.Registry
	settingsCache       cache.Cache[domain.Settings]
	settingsTTL         time.Duration
	insights            *insights.Engine
	notifier            notify.Notifier
	refundRestock       bool
	refundReversePoints bool
	defaultStoreType    string
	location            *time.Location
	now                 func() time.Time
	logger              *zap.Logger
}

func New(repo store.Repository, opts Options) *Service {
	if opts.DefaultStoreType == "" {
		opts.DefaultStoreType = domain.StoreRetail
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SettingsCache == nil {
		opts.SettingsCache = cache.Noop[domain.Settings]{}
	}
	if opts.SettingsTTL <= 0 {
		opts.SettingsTTL = time.Minute
	}
	if opts.Insights == nil {
		opts.Insights = insights.NewEngine(nil, 0, opts.Location, opts.Logger)
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewBroker(opts.Logger)
	}

	return &Service{
		repo:                repo,
		tickets:             ticket.NewRegistry(opts.Now),
		settingsCache:       opts.SettingsCache,
		settingsTTL:         opts.SettingsTTL,
		insights:            opts.Insights,
		notifier:            opts.Notifier,
		refundRestock:       opts.RefundRestock,
		refundReversePoints: opts.RefundReversePoints,
		defaultStoreType:    opts.DefaultStoreType,
		location:            opts.Location,
		now:                 opts.Now,
		logger:              opts.Logger.Named("service"),
	}
}

// DefaultStoreType is the store type used when a request names none.
func (s *Service) DefaultStoreType() string {
	return s.defaultStoreType
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{}, apperr.Unauthenticated()
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.Actor{}, apperr.Forbidden("admin role required")
	}
	return actor, nil
}

// StoreTypeFor resolves an optional store type, falling back to the default.
func (s *Service) StoreTypeFor(value string) (string, error) {
	return s.resolveStoreType(value)
}

func (s *Service) resolveStoreType(value string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return s.defaultStoreType, nil
	}
	if !domain.IsStoreType(value) {
		return "", apperr.Validation("store_type", "must be %s or %s", domain.StoreRetail, domain.StoreWholesale)
	}
	return value, nil
}

var passthrough = []error{
	store.ErrNotFound,
	store.ErrInsufficientStock,
	store.ErrInsufficientPoints,
	store.ErrCouponExhausted,
	store.ErrInvalidTransition,
	store.ErrConflict,
	store.ErrInvalidInput,
}

// wrapStorage keeps repository sentinels visible to callers and wraps
// anything else as a StorageError.
func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range passthrough {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return apperr.Storage(op, err)
}

func (s *Service) logAudit(ctx context.Context, storeType string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreType:     storeType,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.logger.Warn("audit log write failed",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err))
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, storeType string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if storeType != "" {
		resolved, err := s.resolveStoreType(storeType)
		if err != nil {
			return nil, err
		}
		storeType = resolved
	}
	if to.IsZero() {
		to = s.now().UTC().Add(time.Minute)
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -7)
	}
	if to.Before(from) {
		return nil, apperr.Validation("to", "must not be before from")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	logs, err := s.repo.ListAuditLogs(ctx, storeType, from, to, limit)
	return logs, wrapStorage("list audit logs", err)
}

func trimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
