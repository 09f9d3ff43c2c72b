package pricing

import (
	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/xid"
)

// SaleItemsFromLines converts cart lines into sale items. The global discount
// is spread over the lines proportionally: each item's subtotal is its line
// total reduced by globalPercent and its discount is the line discount plus
// that share.
func SaleItemsFromLines(lines []domain.LineItem, globalPercent decimal.Decimal) []domain.SaleItem {
	items := make([]domain.SaleItem, 0, len(lines))
	for _, line := range lines {
		lineTotal, lineDiscount := LineAmounts(line)
		globalShare := Round(lineTotal.Mul(globalPercent).Div(hundred))
		items = append(items, domain.SaleItem{
			ID:             xid.New("sitem"),
			ProductID:      line.ProductID,
			VariantID:      line.VariantID,
			ProductName:    line.ProductName,
			VariantName:    line.VariantName,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			Subtotal:       lineTotal.Sub(globalShare),
			DiscountAmount: lineDiscount.Add(globalShare),
			CostAmount:     Round(line.UnitCost.Mul(decimal.NewFromInt(int64(line.Quantity)))),
			RefundAmount:   decimal.Zero,
		})
	}
	return items
}

// LinesFromSaleItems rebuilds cart lines from stored sale items. The line
// discount percentage is recovered from the stored discount amount, so it is
// only as precise as the cents that were persisted.
func LinesFromSaleItems(items []domain.SaleItem) []domain.LineItem {
	lines := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			continue
		}
		qty := decimal.NewFromInt(int64(item.Quantity))
		gross := item.UnitPrice.Mul(qty)
		percent := decimal.Zero
		if gross.IsPositive() && item.DiscountAmount.IsPositive() {
			percent = item.DiscountAmount.Div(gross).Mul(hundred).Round(2)
		}
		lines = append(lines, domain.LineItem{
			LineID:          xid.New("line"),
			ProductID:       item.ProductID,
			VariantID:       item.VariantID,
			ProductName:     item.ProductName,
			VariantName:     item.VariantName,
			UnitPrice:       item.UnitPrice,
			UnitCost:        item.CostAmount.Div(qty),
			Quantity:        item.Quantity,
			DiscountPercent: percent,
			EarnsPoints:     true,
		})
	}
	return lines
}

// RecoveredTicket is the ticket state recovered from a held sale.
type RecoveredTicket struct {
	Lines                 []domain.LineItem
	GlobalDiscountPercent decimal.Decimal
	CouponCode            string
	CouponDiscountAmount  decimal.Decimal
}

// RecoverTicket reverses a held sale into ticket state. Whatever part of the
// sale discount the line discounts do not explain becomes the coupon amount
// when the sale carries a coupon code, otherwise a global percentage.
func RecoverTicket(sale domain.Sale) RecoveredTicket {
	recovered := RecoveredTicket{
		Lines:      LinesFromSaleItems(sale.Items),
		CouponCode: sale.CouponCode,
	}

	lineDiscounts := decimal.Zero
	subtotal := decimal.Zero
	for _, line := range recovered.Lines {
		total, discount := LineAmounts(line)
		lineDiscounts = lineDiscounts.Add(discount)
		subtotal = subtotal.Add(total)
	}
	remaining := sale.DiscountAmount.Sub(lineDiscounts)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	if sale.CouponCode != "" {
		recovered.CouponDiscountAmount = Round(remaining)
		return recovered
	}
	if subtotal.IsPositive() && remaining.IsPositive() {
		recovered.GlobalDiscountPercent = remaining.Div(subtotal).Mul(hundred).Round(2)
	}
	return recovered
}
