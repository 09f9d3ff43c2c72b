package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tiendapos/backend/internal/apperr"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/pricing"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

const (
	maxOrderLines    = 100
	maxOrderQuantity = 999
	ordersLimit      = 200
)

// SubmitOrder records a storefront cart as a sale with status order. Prices
// come from the catalog, the coupon is validated but not consumed, and no
// stock or points move until the order is checked out at a terminal.
func (s *Service) SubmitOrder(ctx context.Context, req domain.PublicOrderRequest) (domain.Sale, error) {
	storeType, err := s.resolveStoreType(req.StoreType)
	if err != nil {
		return domain.Sale{}, err
	}
	name := strings.TrimSpace(req.FullName)
	phone := strings.TrimSpace(req.Phone)
	if name == "" {
		return domain.Sale{}, apperr.Validation("full_name", "is required")
	}
	if phone == "" {
		return domain.Sale{}, apperr.Validation("phone", "is required")
	}
	if len(req.Items) == 0 {
		return domain.Sale{}, apperr.Validation("items", "order is empty")
	}
	if len(req.Items) > maxOrderLines {
		return domain.Sale{}, apperr.Validation("items", "at most %d lines per order", maxOrderLines)
	}

	lines := make([]domain.LineItem, 0, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity < 1 || item.Quantity > maxOrderQuantity {
			return domain.Sale{}, apperr.Validation(fmt.Sprintf("items[%d].quantity", i), "must be between 1 and %d", maxOrderQuantity)
		}
		line, _, err := s.catalogLine(ctx, storeType, item.ProductID, item.VariantID)
		if err != nil {
			return domain.Sale{}, err
		}
		line.Quantity = item.Quantity
		lines = append(lines, line)
	}
	subtotal := pricing.Compute(pricing.Input{Lines: lines}).Subtotal

	customer, err := s.repo.FindCustomerByPhone(ctx, storeType, phone)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.Sale{}, wrapStorage("find customer", err)
	}

	couponCode := pricing.NormalizeCode(req.CouponCode)
	couponAmount := decimal.Zero
	if couponCode != "" {
		if couponAmount, err = s.resolveCoupon(ctx, storeType, couponCode, subtotal, customer); err != nil {
			return domain.Sale{}, err
		}
	}

	if customer == nil {
		customer, err = s.repo.CreateCustomer(ctx, domain.Customer{
			ID:        xid.New("cust"),
			FullName:  name,
			Email:     strings.TrimSpace(req.Email),
			Phone:     phone,
			StoreType: storeType,
			CreatedAt: s.now().UTC(),
		})
		if err != nil {
			return domain.Sale{}, wrapStorage("create customer", err)
		}
	}

	total := subtotal.Sub(couponAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	lineDiscounts := decimal.Zero
	for _, line := range lines {
		_, discount := pricing.LineAmounts(line)
		lineDiscounts = lineDiscounts.Add(discount)
	}

	created, err := s.repo.CreateSale(ctx, domain.Sale{
		ID:             xid.New("sale"),
		CustomerID:     customer.ID,
		TotalAmount:    total,
		PaymentMethod:  domain.PaymentPending,
		Status:         domain.SaleOrder,
		DiscountAmount: lineDiscounts.Add(couponAmount),
		CouponCode:     couponCode,
		RefundStatus:   domain.RefundNone,
		Source:         domain.SourceSharedStore,
		CustomerInfo:   name + " - " + phone,
		Notes:          strings.TrimSpace(req.Notes),
		StoreType:      storeType,
		CreatedAt:      s.now().UTC(),
		Items:          pricing.SaleItemsFromLines(lines, decimal.Zero),
	})
	if err != nil {
		return domain.Sale{}, wrapStorage("create order", err)
	}

	if err := s.notifier.Publish(ctx, domain.OrderNotification{
		SaleID:       created.ID,
		TicketNumber: created.TicketNumber,
		StoreType:    created.StoreType,
		CustomerInfo: created.CustomerInfo,
		TotalAmount:  created.TotalAmount,
		CreatedAt:    created.CreatedAt,
	}); err != nil {
		s.logger.Warn("order notification failed", zap.String("sale_id", created.ID), zap.Error(err))
	}
	s.logAudit(ctx, storeType, "order_submit", "sale", created.ID,
		fmt.Sprintf("ticket=%d,total=%s,customer=%s,coupon=%s", created.TicketNumber, created.TotalAmount.StringFixed(2), customer.ID, couponCode))
	return *created, nil
}

func (s *Service) ListOrders(ctx context.Context, storeType string) ([]domain.Sale, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	storeType, err := s.resolveStoreType(storeType)
	if err != nil {
		return nil, err
	}
	orders, err := s.repo.ListSales(ctx, domain.SaleFilter{
		StoreType: storeType,
		Statuses:  []string{domain.SaleOrder},
		Limit:     ordersLimit,
	})
	return orders, wrapStorage("list orders", err)
}

// AcceptOrder moves an order into the held list so a terminal can restore
// and check it out.
func (s *Service) AcceptOrder(ctx context.Context, saleID string) (domain.Sale, error) {
	return s.transitionOrder(ctx, saleID, domain.SaleHeld, "order_accept")
}

func (s *Service) RejectOrder(ctx context.Context, saleID string) (domain.Sale, error) {
	return s.transitionOrder(ctx, saleID, domain.SaleCancelled, "order_reject")
}

func (s *Service) transitionOrder(ctx context.Context, saleID string, to string, action string) (domain.Sale, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Sale{}, err
	}
	saleID = strings.TrimSpace(saleID)

	sale, err := s.repo.TransitionSaleStatus(ctx, saleID, domain.SaleOrder, to)
	if errors.Is(err, store.ErrInvalidTransition) {
		current, getErr := s.repo.GetSale(ctx, saleID)
		if getErr != nil {
			return domain.Sale{}, wrapStorage("get sale", getErr)
		}
		return domain.Sale{}, &apperr.TransitionError{From: current.Status, To: to}
	}
	if err != nil {
		return domain.Sale{}, wrapStorage("transition order", err)
	}

	s.logAudit(ctx, sale.StoreType, action, "sale", sale.ID, "status="+domain.SaleOrder+"->"+to)
	return *sale, nil
}

func (s *Service) PendingOrderCount(ctx context.Context, storeType string) (int, error) {
	storeType, err := s.resolveStoreType(storeType)
	if err != nil {
		return 0, err
	}
	count, err := s.repo.CountSales(ctx, storeType, domain.SaleOrder)
	return count, wrapStorage("count orders", err)
}

// SubscribeOrders streams notifications for new orders until ctx ends or
// cancel is called. Delivery is best-effort; clients refresh the pending
// count on reconnect.
func (s *Service) SubscribeOrders(ctx context.Context) (<-chan domain.OrderNotification, func(), error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, nil, err
	}
	return s.notifier.Subscribe(ctx)
}
