package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StoreType string    `json:"store_type"`
	CreatedAt time.Time `json:"created_at"`
}

type CategoryCreateRequest struct {
	Name      string `json:"name"`
	StoreType string `json:"store_type"`
}

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Cost      decimal.Decimal `json:"cost"`
	Stock     int             `json:"stock"`
	ImageURL  string          `json:"image_url,omitempty"`
	Active    bool            `json:"is_active"`
	StoreType string          `json:"store_type"`
	CreatedAt time.Time       `json:"created_at"`
	Variants  []Variant       `json:"variants,omitempty"`
}

type ProductFilter struct {
	StoreType       string
	Category        string
	Search          string
	IncludeInactive bool
}

type ProductCreateRequest struct {
	Name      string           `json:"name"`
	Category  string           `json:"category"`
	Price     decimal.Decimal  `json:"price"`
	Cost      *decimal.Decimal `json:"cost,omitempty"`
	Stock     int              `json:"stock"`
	ImageURL  string           `json:"image_url,omitempty"`
	StoreType string           `json:"store_type"`
}

type ProductUpdateRequest struct {
	Name     *string          `json:"name,omitempty"`
	Category *string          `json:"category,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Cost     *decimal.Decimal `json:"cost,omitempty"`
	Stock    *int             `json:"stock,omitempty"`
	ImageURL *string          `json:"image_url,omitempty"`
	Active   *bool            `json:"is_active,omitempty"`
}

// Variant overrides the sellable attributes of its parent product.
type Variant struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Cost      decimal.Decimal `json:"cost"`
	Stock     int             `json:"stock"`
	ImageURL  string          `json:"image_url,omitempty"`
	Active    bool            `json:"is_active"`
}

type VariantCreateRequest struct {
	Name     string           `json:"name"`
	Price    decimal.Decimal  `json:"price"`
	Cost     *decimal.Decimal `json:"cost,omitempty"`
	Stock    int              `json:"stock"`
	ImageURL string           `json:"image_url,omitempty"`
}

type VariantUpdateRequest struct {
	Name     *string          `json:"name,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Cost     *decimal.Decimal `json:"cost,omitempty"`
	Stock    *int             `json:"stock,omitempty"`
	ImageURL *string          `json:"image_url,omitempty"`
	Active   *bool            `json:"is_active,omitempty"`
}

type Customer struct {
	ID            string     `json:"id"`
	FullName      string     `json:"full_name"`
	Email         string     `json:"email,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	BirthDate     *time.Time `json:"birth_date,omitempty"`
	PointsBalance int64      `json:"points_balance"`
	StoreType     string     `json:"store_type"`
	CreatedAt     time.Time  `json:"created_at"`
}

type CustomerCreateRequest struct {
	FullName  string `json:"full_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
	StoreType string `json:"store_type"`
}

type CustomerUpdateRequest struct {
	FullName  *string `json:"full_name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	BirthDate *string `json:"birth_date,omitempty"`
}

type PointsAdjustRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

type Coupon struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	DiscountType      string          `json:"discount_type"`
	DiscountValue     decimal.Decimal `json:"discount_value"`
	MaxUses           int             `json:"max_uses"`
	CurrentUses       int             `json:"current_uses"`
	MinPurchaseAmount decimal.Decimal `json:"min_purchase_amount"`
	BirthdayOnly      bool            `json:"is_birthday_coupon"`
	Active            bool            `json:"active"`
	StoreType         string          `json:"store_type"`
	CreatedAt         time.Time       `json:"created_at"`
}

type CouponCreateRequest struct {
	Code              string          `json:"code"`
	DiscountType      string          `json:"discount_type"`
	DiscountValue     decimal.Decimal `json:"discount_value"`
	MaxUses           int             `json:"max_uses"`
	MinPurchaseAmount decimal.Decimal `json:"min_purchase_amount"`
	BirthdayOnly      bool            `json:"is_birthday_coupon"`
	StoreType         string          `json:"store_type"`
}

type CouponUpdateRequest struct {
	DiscountType      *string          `json:"discount_type,omitempty"`
	DiscountValue     *decimal.Decimal `json:"discount_value,omitempty"`
	MaxUses           *int             `json:"max_uses,omitempty"`
	MinPurchaseAmount *decimal.Decimal `json:"min_purchase_amount,omitempty"`
	BirthdayOnly      *bool            `json:"is_birthday_coupon,omitempty"`
	Active            *bool            `json:"active,omitempty"`
}

// Discount is a named preset shown as a quick-select button. It enforces no usage limit.
type Discount struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Value     decimal.Decimal `json:"value"`
	StoreType string          `json:"store_type"`
	CreatedAt time.Time       `json:"created_at"`
}

type DiscountCreateRequest struct {
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Value     decimal.Decimal `json:"value"`
	StoreType string          `json:"store_type"`
}

type Settings struct {
	StoreType                  string          `json:"store_type"`
	VATRate                    decimal.Decimal `json:"vat_rate"`
	PointsEarningPercentage    decimal.Decimal `json:"points_earning_percentage"`
	CurrencyPerPointRedemption decimal.Decimal `json:"currency_per_point_redemption"`
	PointsPerCurrencyUnit      decimal.Decimal `json:"points_per_currency_unit"`
	LowStockThreshold          int             `json:"low_stock_threshold"`
	StoreName                  string          `json:"store_name"`
	BusinessAddress            string          `json:"business_address"`
	BusinessPhone              string          `json:"business_phone"`
	BusinessLogoURL            string          `json:"business_logo_url"`
	TicketHeader               string          `json:"ticket_header"`
	TicketFooter               string          `json:"ticket_footer"`
	TermsOfUse                 string          `json:"terms_of_use"`
	PrivacyPolicy              string          `json:"privacy_policy"`
	QuoteNotes                 string          `json:"quote_notes"`
	OrderNotificationSound     bool            `json:"order_notification_sound"`
	UpdatedAt                  time.Time       `json:"updated_at"`
}

// DefaultSettings is used until an admin saves settings for the store type.
func DefaultSettings(storeType string) Settings {
	return Settings{
		StoreType:                  storeType,
		VATRate:                    decimal.NewFromInt(16),
		PointsEarningPercentage:    decimal.NewFromInt(10),
		CurrencyPerPointRedemption: decimal.NewFromInt(1),
		PointsPerCurrencyUnit:      decimal.NewFromInt(1),
		LowStockThreshold:          5,
		StoreName:                  "Mi Tienda",
		TicketFooter:               "Gracias por su compra",
		OrderNotificationSound:     true,
	}
}

// StoreInfo is the public subset of Settings shown on the shared store page.
type StoreInfo struct {
	StoreType       string `json:"store_type"`
	StoreName       string `json:"store_name"`
	BusinessPhone   string `json:"business_phone"`
	BusinessAddress string `json:"business_address"`
	BusinessLogoURL string `json:"business_logo_url"`
	TermsOfUse      string `json:"terms_of_use"`
	PrivacyPolicy   string `json:"privacy_policy"`
}

type Terminal struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type TerminalCreateRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type ElevateRequest struct {
	ManagerPIN string `json:"manager_pin"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreType     string    `json:"store_type"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	StoreRetail    = "retail"
	StoreWholesale = "wholesale"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

const (
	TerminalActive   = "active"
	TerminalInactive = "inactive"
)

func IsStoreType(value string) bool {
	return value == StoreRetail || value == StoreWholesale
}
