package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"tiendapos/backend/internal/apperr"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/insights"
	"tiendapos/backend/internal/receipt"
	"tiendapos/backend/internal/store"
)

const (
	defaultSalesLimit = 100
	maxSalesLimit     = 500
	// dashboardSalesLimit bounds the sales loaded for one dashboard window.
	dashboardSalesLimit = 20000
)

var saleStatuses = []string{domain.SaleCompleted, domain.SaleHeld, domain.SaleOrder, domain.SaleCancelled, domain.SaleRefund}

// ListSales is the receipts history. Without statuses it lists completed
// and refund sales.
func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	storeType, err := s.resolveStoreType(filter.StoreType)
	if err != nil {
		return nil, err
	}
	filter.StoreType = storeType

	statuses := make([]string, 0, len(filter.Statuses))
	for _, status := range filter.Statuses {
		status = strings.ToLower(strings.TrimSpace(status))
		if status == "" {
			continue
		}
		if !slices.Contains(saleStatuses, status) {
			return nil, apperr.Validation("status", "unknown sale status %q", status)
		}
		statuses = append(statuses, status)
	}
	if len(statuses) == 0 {
		statuses = []string{domain.SaleCompleted, domain.SaleRefund}
	}
	filter.Statuses = statuses

	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, apperr.Validation("to", "must not be before from")
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultSalesLimit
	}
	if filter.Limit > maxSalesLimit {
		filter.Limit = maxSalesLimit
	}

	sales, err := s.repo.ListSales(ctx, filter)
	return sales, wrapStorage("list sales", err)
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, wrapStorage("get sale", err)
	}
	return *sale, nil
}

// Receipt projects a persisted sale into a printable receipt.
func (s *Service) Receipt(ctx context.Context, saleID string) (domain.ReceiptResponse, error) {
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}
	settings, err := s.settingsFor(ctx, sale.StoreType)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	var customer *domain.Customer
	if sale.CustomerID != "" {
		found, err := s.repo.GetCustomer(ctx, sale.CustomerID)
		switch {
		case err == nil:
			customer = found
		case !errors.Is(err, store.ErrNotFound):
			return domain.ReceiptResponse{}, wrapStorage("get customer", err)
		}
	}

	return receipt.Build(receipt.Input{
		Sale:        sale,
		Settings:    settings,
		Customer:    customer,
		CashierName: sale.UserID,
		Location:    s.location,
	}), nil
}

// Dashboard returns the store-type metrics, cached for a short TTL.
func (s *Service) Dashboard(ctx context.Context, storeType string) (domain.Dashboard, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Dashboard{}, err
	}
	storeType, err := s.resolveStoreType(storeType)
	if err != nil {
		return domain.Dashboard{}, err
	}

	now := s.now()
	return s.insights.Dashboard(ctx, storeType, now, func(ctx context.Context, from time.Time) (insights.Source, error) {
		return s.dashboardSource(ctx, storeType, now, from)
	})
}

func (s *Service) dashboardSource(ctx context.Context, storeType string, now time.Time, from time.Time) (insights.Source, error) {
	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{
		StoreType: storeType,
		Statuses:  []string{domain.SaleCompleted, domain.SaleRefund},
		From:      from,
		Limit:     dashboardSalesLimit,
	})
	if err != nil {
		return insights.Source{}, wrapStorage("list dashboard sales", err)
	}
	products, err := s.repo.ListProducts(ctx, domain.ProductFilter{StoreType: storeType})
	if err != nil {
		return insights.Source{}, wrapStorage("list products", err)
	}

	local := now.In(s.location)
	trendStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location).AddDate(0, 0, -(insights.TrendDays - 1))
	top, err := s.repo.TopProducts(ctx, storeType, trendStart, 5)
	if err != nil {
		return insights.Source{}, wrapStorage("top products", err)
	}
	settings, err := s.settingsFor(ctx, storeType)
	if err != nil {
		return insights.Source{}, err
	}
	pending, err := s.repo.CountSales(ctx, storeType, domain.SaleOrder)
	if err != nil {
		return insights.Source{}, wrapStorage("count orders", err)
	}

	return insights.Source{
		Sales:             sales,
		Products:          products,
		TopProducts:       top,
		LowStockThreshold: settings.LowStockThreshold,
		PendingOrders:     pending,
	}, nil
}
