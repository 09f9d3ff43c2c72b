package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SaleCompleted = "completed"
	SaleHeld      = "held"
	SaleOrder     = "order"
	SaleCancelled = "cancelled"
	SaleRefund    = "refund"
)

const (
	RefundNone    = "none"
	RefundPartial = "partial"
	RefundFull    = "full"
)

const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
	PaymentPoints   = "points"
	PaymentPending  = "pending"
)

const (
	SourcePOS         = "pos"
	SourceSharedStore = "shared_store"
)

func IsPaymentMethod(value string) bool {
	switch value {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentPoints:
		return true
	default:
		return false
	}
}

type Sale struct {
	ID                   string          `json:"id"`
	TicketNumber         int64           `json:"ticket_number"`
	UserID               string          `json:"user_id,omitempty"`
	CustomerID           string          `json:"customer_id,omitempty"`
	TerminalID           string          `json:"terminal_id,omitempty"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	PaymentMethod        string          `json:"payment_method"`
	Status               string          `json:"status"`
	DiscountAmount       decimal.Decimal `json:"discount_amount"`
	CouponCode           string          `json:"coupon_code,omitempty"`
	PointsEarned         int64           `json:"points_earned"`
	PointsRedeemed       int64           `json:"points_redeemed"`
	PointsDiscountAmount decimal.Decimal `json:"points_discount_amount"`
	RefundedAmount       decimal.Decimal `json:"refunded_amount"`
	RefundStatus         string          `json:"refund_status"`
	RefundRelatedSaleID  string          `json:"refund_related_sale_id,omitempty"`
	Source               string          `json:"source"`
	CustomerInfo         string          `json:"customer_info,omitempty"`
	Notes                string          `json:"notes,omitempty"`
	StoreType            string          `json:"store_type"`
	IdempotencyKey       string          `json:"-"`
	CreatedAt            time.Time       `json:"created_at"`
	Items                []SaleItem      `json:"items,omitempty"`
}

type SaleItem struct {
	ID               string          `json:"id"`
	SaleID           string          `json:"sale_id"`
	ProductID        string          `json:"product_id"`
	VariantID        string          `json:"variant_id,omitempty"`
	ProductName      string          `json:"product_name"`
	VariantName      string          `json:"variant_name,omitempty"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	CostAmount       decimal.Decimal `json:"cost_amount"`
	RefundedQuantity int             `json:"refunded_quantity"`
	RefundAmount     decimal.Decimal `json:"refund_amount"`
	RefundReason     string          `json:"refund_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// RemainingQuantity is the quantity still eligible for refund.
func (i SaleItem) RemainingQuantity() int {
	return i.Quantity - i.RefundedQuantity
}

type SaleFilter struct {
	StoreType string
	Statuses  []string
	From      time.Time
	To        time.Time
	Limit     int
}

// LineItem is the canonical cart line. Ticket lines, held-sale lines and
// public order lines all convert to and from this shape.
type LineItem struct {
	LineID          string          `json:"line_id"`
	ProductID       string          `json:"product_id"`
	VariantID       string          `json:"variant_id,omitempty"`
	ProductName     string          `json:"product_name"`
	VariantName     string          `json:"variant_name,omitempty"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	Quantity        int             `json:"quantity"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	EarnsPoints     bool            `json:"earns_points"`
}

type TicketSnapshot struct {
	ID                    string          `json:"id"`
	Lines                 []LineItem      `json:"lines"`
	Customer              *Customer       `json:"customer,omitempty"`
	GlobalDiscountPercent decimal.Decimal `json:"global_discount_percent"`
	CouponCode            string          `json:"coupon_code,omitempty"`
	CouponDiscountAmount  decimal.Decimal `json:"coupon_discount_amount"`
	CreatedAt             time.Time       `json:"created_at"`
}

type TicketView struct {
	TerminalID     string           `json:"terminal_id"`
	ActiveTicketID string           `json:"active_ticket_id"`
	Tickets        []TicketSnapshot `json:"tickets"`
}

type Totals struct {
	LineTotals           []decimal.Decimal `json:"line_totals"`
	LineDiscounts        []decimal.Decimal `json:"line_discounts"`
	Subtotal             decimal.Decimal   `json:"subtotal"`
	LineDiscountTotal    decimal.Decimal   `json:"line_discount_total"`
	GlobalDiscountAmount decimal.Decimal   `json:"global_discount_amount"`
	CouponDiscountAmount decimal.Decimal   `json:"coupon_discount_amount"`
	MaxRedeemablePoints  int64             `json:"max_redeemable_points"`
	PointsRedeemed       int64             `json:"points_redeemed"`
	PointsDiscountAmount decimal.Decimal   `json:"points_discount_amount"`
	TotalBeforePoints    decimal.Decimal   `json:"total_before_points"`
	Total                decimal.Decimal   `json:"total"`
	TaxAmount            decimal.Decimal   `json:"tax_amount"`
	NetOfTax             decimal.Decimal   `json:"net_of_tax"`
	PointsEarned         int64             `json:"points_earned"`
}

// StockMovement is a guarded stock change applied inside a commit. Quantity
// is decremented on checkout and incremented on restock.
type StockMovement struct {
	ProductID string
	VariantID string
	Quantity  int
}

// CheckoutCommit is everything a checkout writes, applied as one transaction.
type CheckoutCommit struct {
	Sale           Sale
	Stock          []StockMovement
	CustomerID     string
	PointsEarned   int64
	PointsRedeemed int64
	CouponCode     string
	StoreType      string
}

type RefundCommit struct {
	SaleID      string
	SaleItemID  string
	Quantity    int
	Amount      decimal.Decimal
	Reason      string
	RefundSale  Sale
	Restock     *StockMovement
	CustomerID  string
	PointsDelta int64
	At          time.Time
}

type RefundResult struct {
	Original Sale `json:"original"`
	Refund   Sale `json:"refund"`
}

type AddLineRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
}

type UpdateLineRequest struct {
	Quantity        *int             `json:"quantity,omitempty"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
	EarnsPoints     *bool            `json:"earns_points,omitempty"`
}

type AttachCustomerRequest struct {
	CustomerID string `json:"customer_id"`
}

type GlobalDiscountRequest struct {
	Percent decimal.Decimal `json:"percent"`
}

type ApplyCouponRequest struct {
	Code string `json:"code"`
}

type TotalsRequest struct {
	PointsToRedeem int64 `json:"points_to_redeem"`
}

type CheckoutRequest struct {
	PaymentMethod  string `json:"payment_method"`
	PointsToRedeem int64  `json:"points_to_redeem"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

type CheckoutResponse struct {
	Sale      Sale   `json:"sale"`
	Totals    Totals `json:"totals"`
	Duplicate bool   `json:"duplicate"`
}

type HoldRequest struct {
	Notes string `json:"notes,omitempty"`
}

type RefundRequest struct {
	SaleItemID string `json:"sale_item_id"`
	Quantity   int    `json:"quantity"`
	Reason     string `json:"reason"`
}

type PublicOrderLine struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type PublicOrderRequest struct {
	StoreType  string            `json:"store_type"`
	FullName   string            `json:"full_name"`
	Phone      string            `json:"phone"`
	Email      string            `json:"email,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	CouponCode string            `json:"coupon_code,omitempty"`
	Items      []PublicOrderLine `json:"items"`
}

type CouponValidateRequest struct {
	StoreType  string          `json:"store_type"`
	Code       string          `json:"code"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	CustomerID string          `json:"customer_id,omitempty"`
}

type CouponValidateResponse struct {
	Code           string          `json:"code"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

type OrderNotification struct {
	SaleID       string          `json:"sale_id"`
	TicketNumber int64           `json:"ticket_number"`
	StoreType    string          `json:"store_type"`
	CustomerInfo string          `json:"customer_info"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	CreatedAt    time.Time       `json:"created_at"`
}

type DailySales struct {
	Date  string          `json:"date"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

type ProductSales struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type LowStockItem struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
}

type Dashboard struct {
	StoreType           string          `json:"store_type"`
	TodaySales          decimal.Decimal `json:"today_sales"`
	TodaySaleCount      int             `json:"today_sale_count"`
	MonthSales          decimal.Decimal `json:"month_sales"`
	MonthCost           decimal.Decimal `json:"month_cost"`
	MonthDiscounts      decimal.Decimal `json:"month_discounts"`
	MonthPointsRedeemed int64           `json:"month_points_redeemed"`
	SalesByDay          []DailySales    `json:"sales_by_day"`
	TopProducts         []ProductSales  `json:"top_products"`
	LowStock            []LowStockItem  `json:"low_stock"`
	PendingOrders       int             `json:"pending_orders"`
	GeneratedAt         time.Time       `json:"generated_at"`
	Cached              bool            `json:"cached"`
}

type ReceiptResponse struct {
	SaleID string   `json:"sale_id"`
	Lines  []string `json:"lines"`
	Text   string   `json:"text"`
	ESCPOS string   `json:"escpos_base64"`
}

type QuoteResponse struct {
	Folio        string   `json:"folio"`
	Lines        []string `json:"lines"`
	Text         string   `json:"text"`
	ShareMessage string   `json:"share_message"`
	ShareURL     string   `json:"share_url"`
	Totals       Totals   `json:"totals"`
}
