package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/apperr"
	"tiendapos/backend/internal/domain"
)

// ValidateCoupon checks a looked-up coupon against the ticket it is being
// applied to. coupon is nil when the code did not resolve. now must already be
// in the store's timezone.
func ValidateCoupon(coupon *domain.Coupon, code string, storeType string, subtotal decimal.Decimal, customer *domain.Customer, now time.Time) error {
	code = NormalizeCode(code)
	if coupon == nil || !coupon.Active || coupon.StoreType != storeType {
		return apperr.Coupon(code, apperr.ErrCouponInvalid, "")
	}
	if coupon.MaxUses > 0 && coupon.CurrentUses >= coupon.MaxUses {
		return apperr.Coupon(code, apperr.ErrCouponExhausted, "")
	}
	if subtotal.LessThan(coupon.MinPurchaseAmount) {
		return apperr.Coupon(code, apperr.ErrCouponMinimumNotMet, "minimum purchase "+coupon.MinPurchaseAmount.StringFixed(2))
	}
	if coupon.BirthdayOnly {
		if customer == nil || customer.BirthDate == nil {
			return apperr.Coupon(code, apperr.ErrCouponBirthdayRestricted, "customer with birth date required")
		}
		if customer.BirthDate.Month() != now.Month() {
			return apperr.Coupon(code, apperr.ErrCouponBirthdayRestricted, "")
		}
	}
	return nil
}

// CouponDiscount is the currency amount a coupon takes off subtotal, never
// more than subtotal itself.
func CouponDiscount(coupon domain.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch coupon.DiscountType {
	case domain.DiscountPercentage:
		amount = Round(subtotal.Mul(coupon.DiscountValue).Div(hundred))
	default:
		amount = coupon.DiscountValue
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return Round(decimal.Min(amount, subtotal))
}
