package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/apperr"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/pricing"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

// Refund returns quantity units of one item of a completed sale. A refund
// sale with a negative total is recorded and linked to the original. Stock
// and points are only touched when the refund policy flags ask for it.
func (s *Service) Refund(ctx context.Context, saleID string, req domain.RefundRequest) (domain.RefundResult, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.RefundResult{}, err
	}
	if req.Quantity < 1 {
		return domain.RefundResult{}, apperr.Validation("quantity", "must be at least 1")
	}
	itemID := strings.TrimSpace(req.SaleItemID)
	if itemID == "" {
		return domain.RefundResult{}, apperr.Validation("sale_item_id", "is required")
	}

	original, err := s.repo.GetSale(ctx, strings.TrimSpace(saleID))
	if err != nil {
		return domain.RefundResult{}, wrapStorage("get sale", err)
	}
	if original.Status != domain.SaleCompleted {
		return domain.RefundResult{}, &apperr.TransitionError{From: original.Status, To: domain.SaleRefund}
	}
	idx := slices.IndexFunc(original.Items, func(item domain.SaleItem) bool {
		return item.ID == itemID
	})
	if idx < 0 {
		return domain.RefundResult{}, store.ErrNotFound
	}
	item := original.Items[idx]
	if remaining := item.RemainingQuantity(); req.Quantity > remaining {
		return domain.RefundResult{}, apperr.Validation("quantity", "must be between 1 and %d", remaining)
	}

	now := s.now().UTC()
	reason := strings.TrimSpace(req.Reason)
	amount := pricing.Round(item.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity))))

	commit := domain.RefundCommit{
		SaleID:     original.ID,
		SaleItemID: item.ID,
		Quantity:   req.Quantity,
		Amount:     amount,
		Reason:     reason,
		At:         now,
		RefundSale: domain.Sale{
			ID:            xid.New("sale"),
			UserID:        actor.Username,
			CustomerID:    original.CustomerID,
			TerminalID:    original.TerminalID,
			TotalAmount:   amount.Neg(),
			PaymentMethod: original.PaymentMethod,
			Status:        domain.SaleRefund,
			RefundStatus:  domain.RefundNone,
			Source:        domain.SourcePOS,
			CustomerInfo:  original.CustomerInfo,
			Notes:         reason,
			StoreType:     original.StoreType,
			CreatedAt:     now,
			Items: []domain.SaleItem{{
				ID:           xid.New("sitem"),
				ProductID:    item.ProductID,
				VariantID:    item.VariantID,
				ProductName:  item.ProductName,
				VariantName:  item.VariantName,
				Quantity:     req.Quantity,
				UnitPrice:    item.UnitPrice,
				Subtotal:     amount.Neg(),
				RefundReason: reason,
			}},
		},
	}
	if s.refundRestock {
		commit.Restock = &domain.StockMovement{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: req.Quantity}
	}
	if s.refundReversePoints && original.CustomerID != "" {
		commit.CustomerID = original.CustomerID
		commit.PointsDelta = -reversedPoints(original.PointsEarned, amount, original.TotalAmount)
	}

	result, err := s.repo.CommitRefund(ctx, commit)
	if err != nil {
		return domain.RefundResult{}, wrapStorage("commit refund", err)
	}

	s.logAudit(ctx, original.StoreType, "refund", "sale", original.ID,
		fmt.Sprintf("item=%s,qty=%d,amount=%s,refund_sale=%s,restock=%t,points=%d,reason=%s",
			item.ID, req.Quantity, amount.StringFixed(2), result.Refund.ID, commit.Restock != nil, commit.PointsDelta, reason))
	return *result, nil
}

// reversedPoints is the share of earned points attributable to the refunded
// amount, rounded down.
func reversedPoints(earned int64, refundAmount decimal.Decimal, saleTotal decimal.Decimal) int64 {
	if earned <= 0 || !saleTotal.IsPositive() {
		return 0
	}
	share := decimal.NewFromInt(earned).Mul(refundAmount).Div(saleTotal).Floor()
	if share.GreaterThan(decimal.NewFromInt(earned)) {
		return earned
	}
	return share.IntPart()
}
