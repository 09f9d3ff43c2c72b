// Package pricing computes ticket totals, coupon discounts, loyalty points and
// tax, and converts between cart lines and persisted sale items.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Round rounds a currency value to cents, half away from zero.
func Round(value decimal.Decimal) decimal.Decimal {
	return value.Round(2)
}

type Input struct {
	Lines                 []domain.LineItem
	GlobalDiscountPercent decimal.Decimal
	CouponDiscountAmount  decimal.Decimal
	// Customer is nil when no customer is attached; points are neither
	// redeemable nor earned in that case.
	Customer       *domain.Customer
	PointsToRedeem int64
	Settings       domain.Settings
}

// LineAmounts returns the discounted line total and the line discount for a
// single cart line.
func LineAmounts(line domain.LineItem) (total decimal.Decimal, discount decimal.Decimal) {
	gross := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
	factor := decimal.NewFromInt(1).Sub(line.DiscountPercent.Div(hundred))
	total = Round(gross.Mul(factor))
	discount = Round(gross).Sub(total)
	return total, discount
}

// Compute applies line discounts, the global discount, the coupon amount and
// points redemption in that order and extracts the tax included in the total.
func Compute(in Input) domain.Totals {
	totals := domain.Totals{
		LineTotals:    make([]decimal.Decimal, 0, len(in.Lines)),
		LineDiscounts: make([]decimal.Decimal, 0, len(in.Lines)),
	}

	earningSubtotal := decimal.Zero
	for _, line := range in.Lines {
		lineTotal, lineDiscount := LineAmounts(line)
		totals.LineTotals = append(totals.LineTotals, lineTotal)
		totals.LineDiscounts = append(totals.LineDiscounts, lineDiscount)
		totals.Subtotal = totals.Subtotal.Add(lineTotal)
		totals.LineDiscountTotal = totals.LineDiscountTotal.Add(lineDiscount)
		if line.EarnsPoints {
			earningSubtotal = earningSubtotal.Add(lineTotal)
		}
	}

	totals.GlobalDiscountAmount = Round(totals.Subtotal.Mul(in.GlobalDiscountPercent).Div(hundred))
	totals.CouponDiscountAmount = Round(in.CouponDiscountAmount)

	afterDiscounts := totals.Subtotal.Sub(totals.GlobalDiscountAmount).Sub(totals.CouponDiscountAmount)
	if afterDiscounts.IsNegative() {
		afterDiscounts = decimal.Zero
	}
	totals.TotalBeforePoints = afterDiscounts

	pointValue := PointValue(in.Settings)
	if in.Customer != nil {
		totals.MaxRedeemablePoints = MaxRedeemablePoints(in.Customer.PointsBalance, afterDiscounts, pointValue)
	}
	totals.PointsRedeemed = clampPoints(in.PointsToRedeem, totals.MaxRedeemablePoints)
	totals.PointsDiscountAmount = Round(decimal.NewFromInt(totals.PointsRedeemed).Mul(pointValue))

	totals.Total = afterDiscounts.Sub(totals.PointsDiscountAmount)
	if totals.Total.IsNegative() {
		totals.Total = decimal.Zero
	}
	totals.TaxAmount = TaxIncluded(totals.Total, in.Settings.VATRate)
	totals.NetOfTax = totals.Total.Sub(totals.TaxAmount)

	if in.Customer != nil && totals.PointsRedeemed == 0 && totals.Subtotal.IsPositive() {
		earnable := totals.Total
		if !earningSubtotal.Equal(totals.Subtotal) {
			earnable = totals.Total.Mul(earningSubtotal).Div(totals.Subtotal)
		}
		totals.PointsEarned = PointsEarned(earnable, in.Settings.PointsEarningPercentage)
	}
	return totals
}

// PointValue is the currency value of one redeemed point. Unset or
// non-positive values fall back to 1.
func PointValue(settings domain.Settings) decimal.Decimal {
	if !settings.CurrencyPerPointRedemption.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return settings.CurrencyPerPointRedemption
}

// MaxRedeemablePoints never exceeds balance.
func MaxRedeemablePoints(balance int64, amount decimal.Decimal, pointValue decimal.Decimal) int64 {
	if balance <= 0 || !amount.IsPositive() || !pointValue.IsPositive() {
		return 0
	}
	affordable := amount.Div(pointValue).Floor()
	if affordable.LessThan(decimal.NewFromInt(balance)) {
		return affordable.IntPart()
	}
	return balance
}

func clampPoints(requested int64, max int64) int64 {
	if requested <= 0 {
		return 0
	}
	if requested > max {
		return max
	}
	return requested
}

// TaxIncluded extracts the VAT already contained in a tax-inclusive amount.
func TaxIncluded(total decimal.Decimal, vatRate decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() || !vatRate.IsPositive() {
		return decimal.Zero
	}
	divisor := decimal.NewFromInt(1).Add(vatRate.Div(hundred))
	return Round(total.Sub(total.Div(divisor)))
}

func PointsEarned(amount decimal.Decimal, earningPercent decimal.Decimal) int64 {
	if !amount.IsPositive() || !earningPercent.IsPositive() {
		return 0
	}
	return amount.Mul(earningPercent).Div(hundred).Floor().IntPart()
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
