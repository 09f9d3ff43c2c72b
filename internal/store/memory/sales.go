package memory

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

func (s *Store) CommitCheckout(_ context.Context, commit domain.CheckoutCommit) (*domain.Sale, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale := commit.Sale
	if key := sale.IdempotencyKey; key != "" {
		if existingID, ok := s.salesByIdem[key]; ok {
			existing := cloneSale(s.sales[existingID])
			return &existing, true, nil
		}
	}
	if len(sale.Items) == 0 {
		return nil, false, store.ErrInvalidInput
	}

	// Validate every guarded write before applying any of them.
	products, variants, err := s.stageStock(commit.Stock, -1)
	if err != nil {
		return nil, false, err
	}

	var customer domain.Customer
	if commit.CustomerID != "" {
		existing, ok := s.customers[commit.CustomerID]
		if !ok {
			return nil, false, store.ErrNotFound
		}
		if existing.PointsBalance < commit.PointsRedeemed {
			return nil, false, store.ErrInsufficientPoints
		}
		customer = existing
		customer.PointsBalance += commit.PointsEarned - commit.PointsRedeemed
	}

	var coupon domain.Coupon
	if commit.CouponCode != "" {
		existing, ok := s.couponByCode(commit.StoreType, commit.CouponCode)
		if !ok {
			return nil, false, store.ErrNotFound
		}
		if existing.MaxUses > 0 && existing.CurrentUses >= existing.MaxUses {
			return nil, false, store.ErrCouponExhausted
		}
		coupon = existing
		coupon.CurrentUses++
	}

	for id, p := range products {
		s.products[id] = p
	}
	for id, v := range variants {
		s.variants[id] = v
	}
	if commit.CustomerID != "" {
		s.customers[customer.ID] = customer
	}
	if commit.CouponCode != "" {
		s.coupons[coupon.ID] = coupon
	}

	saved := s.insertSale(sale)
	if sale.IdempotencyKey != "" {
		s.salesByIdem[sale.IdempotencyKey] = saved.ID
	}
	return &saved, false, nil
}

// stageStock applies movements to copies of the affected rows. sign is -1 for
// a sale and +1 for a restock. Nothing is written to the store.
func (s *Store) stageStock(movements []domain.StockMovement, sign int) (map[string]domain.Product, map[string]domain.Variant, error) {
	products := map[string]domain.Product{}
	variants := map[string]domain.Variant{}
	for _, m := range movements {
		if m.Quantity < 1 {
			return nil, nil, store.ErrInvalidInput
		}
		delta := sign * m.Quantity
		if m.VariantID != "" {
			v, ok := variants[m.VariantID]
			if !ok {
				if v, ok = s.variants[m.VariantID]; !ok {
					return nil, nil, store.ErrNotFound
				}
			}
			if v.Stock+delta < 0 {
				return nil, nil, store.ErrInsufficientStock
			}
			v.Stock += delta
			variants[v.ID] = v
			continue
		}
		p, ok := products[m.ProductID]
		if !ok {
			if p, ok = s.products[m.ProductID]; !ok {
				return nil, nil, store.ErrNotFound
			}
		}
		if p.Stock+delta < 0 {
			return nil, nil, store.ErrInsufficientStock
		}
		p.Stock += delta
		products[p.ID] = p
	}
	return products, variants, nil
}

func (s *Store) insertSale(sale domain.Sale) domain.Sale {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.RefundStatus == "" {
		sale.RefundStatus = domain.RefundNone
	}
	s.nextTicket++
	sale.TicketNumber = s.nextTicket
	sale.Items = slices.Clone(sale.Items)
	for i := range sale.Items {
		if sale.Items[i].ID == "" {
			sale.Items[i].ID = xid.New("sitem")
		}
		sale.Items[i].SaleID = sale.ID
		sale.Items[i].CreatedAt = sale.CreatedAt
	}
	s.sales[sale.ID] = sale
	return cloneSale(sale)
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.Status == "" || sale.StoreType == "" {
		return nil, store.ErrInvalidInput
	}
	saved := s.insertSale(sale)
	return &saved, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	result := cloneSale(sale)
	return &result, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 64)
	for _, sale := range s.sales {
		if filter.StoreType != "" && sale.StoreType != filter.StoreType {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, sale.Status) {
			continue
		}
		if !filter.From.IsZero() && sale.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !sale.CreatedAt.Before(filter.To) {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.TicketNumber > b.TicketNumber {
			return -1
		}
		if a.TicketNumber < b.TicketNumber {
			return 1
		}
		return 0
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) CountSales(_ context.Context, storeType string, status string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sale := range s.sales {
		if (storeType == "" || sale.StoreType == storeType) && sale.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *Store) TransitionSaleStatus(_ context.Context, id string, from string, to string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Status != from {
		return nil, store.ErrInvalidTransition
	}
	sale.Status = to
	s.sales[id] = sale
	result := cloneSale(sale)
	return &result, nil
}

func (s *Store) PopHeldSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Status != domain.SaleHeld {
		return nil, store.ErrInvalidTransition
	}
	delete(s.sales, id)
	result := cloneSale(sale)
	return &result, nil
}

func (s *Store) DeleteSale(_ context.Context, id string, statuses ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[id]
	if !exists {
		return store.ErrNotFound
	}
	if len(statuses) > 0 && !slices.Contains(statuses, sale.Status) {
		return store.ErrInvalidTransition
	}
	delete(s.sales, id)
	return nil
}

func (s *Store) CommitRefund(_ context.Context, commit domain.RefundCommit) (*domain.RefundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, exists := s.sales[commit.SaleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if original.Status != domain.SaleCompleted {
		return nil, store.ErrInvalidTransition
	}
	original = cloneSale(original)
	idx := slices.IndexFunc(original.Items, func(item domain.SaleItem) bool {
		return item.ID == commit.SaleItemID
	})
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	item := original.Items[idx]
	if commit.Quantity < 1 || commit.Quantity > item.RemainingQuantity() {
		return nil, store.ErrInvalidInput
	}

	var products map[string]domain.Product
	var variants map[string]domain.Variant
	if commit.Restock != nil {
		var err error
		products, variants, err = s.stageStock([]domain.StockMovement{*commit.Restock}, 1)
		if err != nil {
			return nil, err
		}
	}

	item.RefundedQuantity += commit.Quantity
	item.RefundAmount = item.RefundAmount.Add(commit.Amount)
	item.RefundReason = commit.Reason
	original.Items[idx] = item
	original.RefundedAmount = original.RefundedAmount.Add(commit.Amount)
	original.RefundStatus = refundStatus(original.Items)

	for id, p := range products {
		s.products[id] = p
	}
	for id, v := range variants {
		s.variants[id] = v
	}
	if commit.CustomerID != "" && commit.PointsDelta != 0 {
		if customer, ok := s.customers[commit.CustomerID]; ok {
			customer.PointsBalance = max(0, customer.PointsBalance+commit.PointsDelta)
			s.customers[customer.ID] = customer
		}
	}
	s.sales[original.ID] = original

	refund := commit.RefundSale
	refund.RefundRelatedSaleID = original.ID
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = commit.At
	}
	saved := s.insertSale(refund)
	return &domain.RefundResult{Original: cloneSale(original), Refund: saved}, nil
}

func refundStatus(items []domain.SaleItem) string {
	refunded, complete := false, true
	for _, item := range items {
		if item.RefundedQuantity > 0 {
			refunded = true
		}
		if item.RemainingQuantity() > 0 {
			complete = false
		}
	}
	switch {
	case !refunded:
		return domain.RefundNone
	case complete:
		return domain.RefundFull
	default:
		return domain.RefundPartial
	}
}

func (s *Store) TopProducts(_ context.Context, storeType string, from time.Time, limit int) ([]domain.ProductSales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProduct := map[string]*domain.ProductSales{}
	for _, sale := range s.sales {
		if sale.Status != domain.SaleCompleted || sale.CreatedAt.Before(from) {
			continue
		}
		if storeType != "" && sale.StoreType != storeType {
			continue
		}
		for _, item := range sale.Items {
			entry, ok := byProduct[item.ProductID]
			if !ok {
				entry = &domain.ProductSales{ProductID: item.ProductID, ProductName: item.ProductName, Revenue: decimal.Zero}
				byProduct[item.ProductID] = entry
			}
			entry.Quantity += item.RemainingQuantity()
			entry.Revenue = entry.Revenue.Add(item.Subtotal).Sub(item.RefundAmount)
		}
	}

	result := make([]domain.ProductSales, 0, len(byProduct))
	for _, entry := range byProduct {
		result = append(result, *entry)
	}
	slices.SortFunc(result, func(a, b domain.ProductSales) int {
		if a.Quantity != b.Quantity {
			return b.Quantity - a.Quantity
		}
		return cmpString(a.ProductName, b.ProductName)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
