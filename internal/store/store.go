package store

import (
	"context"
	"errors"
	"time"

	"tiendapos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInsufficientPoints = errors.New("insufficient points balance")
	ErrCouponExhausted    = errors.New("coupon usage limit reached")
	ErrInvalidTransition  = errors.New("invalid sale status transition")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
)

type Repository interface {
	ListCategories(ctx context.Context, storeType string) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetVariant(ctx context.Context, id string) (*domain.Variant, error)
	CreateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error)
	UpdateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error)

	ListCustomers(ctx context.Context, storeType string, search string, limit int) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	FindCustomerByPhone(ctx context.Context, storeType string, phone string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	AdjustCustomerPoints(ctx context.Context, id string, delta int64) (*domain.Customer, error)

	ListCoupons(ctx context.Context, storeType string) ([]domain.Coupon, error)
	GetCoupon(ctx context.Context, id string) (*domain.Coupon, error)
	GetCouponByCode(ctx context.Context, storeType string, code string) (*domain.Coupon, error)
	CreateCoupon(ctx context.Context, coupon domain.Coupon) (*domain.Coupon, error)
	UpdateCoupon(ctx context.Context, coupon domain.Coupon) (*domain.Coupon, error)
	DeleteCoupon(ctx context.Context, id string) error

	ListDiscounts(ctx context.Context, storeType string) ([]domain.Discount, error)
	CreateDiscount(ctx context.Context, discount domain.Discount) (*domain.Discount, error)
	DeleteDiscount(ctx context.Context, id string) error

	GetSettings(ctx context.Context, storeType string) (*domain.Settings, error)
	UpsertSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error)

	ListTerminals(ctx context.Context) ([]domain.Terminal, error)
	GetTerminal(ctx context.Context, id string) (*domain.Terminal, error)
	CreateTerminal(ctx context.Context, terminal domain.Terminal) (*domain.Terminal, error)

	// CommitCheckout writes the sale, its items, stock decrements, points and
	// coupon usage in one transaction. A sale with the same idempotency key is
	// returned with duplicate=true and nothing is written.
	CommitCheckout(ctx context.Context, commit domain.CheckoutCommit) (*domain.Sale, bool, error)
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	CountSales(ctx context.Context, storeType string, status string) (int, error)
	TransitionSaleStatus(ctx context.Context, id string, from string, to string) (*domain.Sale, error)
	// PopHeldSale returns a held sale with its items and deletes it atomically.
	PopHeldSale(ctx context.Context, id string) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string, statuses ...string) error
	CommitRefund(ctx context.Context, commit domain.RefundCommit) (*domain.RefundResult, error)
	TopProducts(ctx context.Context, storeType string, from time.Time, limit int) ([]domain.ProductSales, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeType string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
