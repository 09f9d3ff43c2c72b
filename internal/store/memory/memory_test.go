package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	return NewSeeded(nil, "admin-test-pass", "cashier-test-pass")
}

func saleWithItem(productID string, variantID string, qty int, price string) domain.Sale {
	unit := decimal.RequireFromString(price)
	subtotal := unit.Mul(decimal.NewFromInt(int64(qty)))
	return domain.Sale{
		Status:        domain.SaleCompleted,
		StoreType:     domain.StoreRetail,
		PaymentMethod: domain.PaymentCash,
		TotalAmount:   subtotal,
		Items: []domain.SaleItem{{
			ProductID:   productID,
			VariantID:   variantID,
			ProductName: productID,
			Quantity:    qty,
			UnitPrice:   unit,
			Subtotal:    subtotal,
		}},
	}
}

func TestCommitCheckoutAppliesAllWrites(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	sale := saleWithItem("prod_cafe", "", 2, "120")
	sale.CustomerID = "cust_ana"
	sale.CouponCode = "FIJO50"
	saved, duplicate, err := s.CommitCheckout(ctx, domain.CheckoutCommit{
		Sale:           sale,
		Stock:          []domain.StockMovement{{ProductID: "prod_cafe", Quantity: 2}, {ProductID: "prod_playera", VariantID: "var_playera_m", Quantity: 1}},
		CustomerID:     "cust_ana",
		PointsRedeemed: 20,
		CouponCode:     "fijo50",
		StoreType:      domain.StoreRetail,
	})
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, int64(1), saved.TicketNumber)
	assert.Equal(t, saved.ID, saved.Items[0].SaleID)

	product, err := s.GetProduct(ctx, "prod_cafe")
	require.NoError(t, err)
	assert.Equal(t, 38, product.Stock)
	variant, err := s.GetVariant(ctx, "var_playera_m")
	require.NoError(t, err)
	assert.Equal(t, 7, variant.Stock)
	customer, err := s.GetCustomer(ctx, "cust_ana")
	require.NoError(t, err)
	assert.Equal(t, int64(100), customer.PointsBalance)
	coupon, err := s.GetCoupon(ctx, "cpn_fijo")
	require.NoError(t, err)
	assert.Equal(t, 1, coupon.CurrentUses)
}

func TestCommitCheckoutIsAllOrNothing(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	_, _, err := s.CommitCheckout(ctx, domain.CheckoutCommit{
		Sale:       saleWithItem("prod_cafe", "", 1, "120"),
		Stock:      []domain.StockMovement{{ProductID: "prod_cafe", Quantity: 1}, {ProductID: "prod_jabon", Quantity: 4}},
		CustomerID: "cust_ana",
		StoreType:  domain.StoreRetail,
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	product, err := s.GetProduct(ctx, "prod_cafe")
	require.NoError(t, err)
	assert.Equal(t, 40, product.Stock)
	sales, err := s.ListSales(ctx, domain.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestCommitCheckoutAggregatesRepeatedProduct(t *testing.T) {
	s := seeded(t)
	_, _, err := s.CommitCheckout(context.Background(), domain.CheckoutCommit{
		Sale:      saleWithItem("prod_jabon", "", 2, "35"),
		Stock:     []domain.StockMovement{{ProductID: "prod_jabon", Quantity: 2}, {ProductID: "prod_jabon", Quantity: 2}},
		StoreType: domain.StoreRetail,
	})
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
}

func TestCommitCheckoutGuards(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	_, _, err := s.CommitCheckout(ctx, domain.CheckoutCommit{
		Sale:           saleWithItem("prod_pan", "", 1, "12.50"),
		Stock:          []domain.StockMovement{{ProductID: "prod_pan", Quantity: 1}},
		CustomerID:     "cust_luis",
		PointsRedeemed: 1,
		StoreType:      domain.StoreRetail,
	})
	assert.ErrorIs(t, err, store.ErrInsufficientPoints)

	_, _, err = s.CommitCheckout(ctx, domain.CheckoutCommit{
		Sale:       saleWithItem("prod_pan", "", 1, "12.50"),
		Stock:      []domain.StockMovement{{ProductID: "prod_pan", Quantity: 1}},
		CouponCode: "AGOTADO",
		StoreType:  domain.StoreRetail,
	})
	assert.ErrorIs(t, err, store.ErrCouponExhausted)

	product, err := s.GetProduct(ctx, "prod_pan")
	require.NoError(t, err)
	assert.Equal(t, 120, product.Stock)
}

func TestCommitCheckoutIdempotencyKey(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	sale := saleWithItem("prod_leche", "", 1, "28")
	sale.IdempotencyKey = "idem-1"
	commit := domain.CheckoutCommit{Sale: sale, Stock: []domain.StockMovement{{ProductID: "prod_leche", Quantity: 1}}, StoreType: domain.StoreRetail}

	first, duplicate, err := s.CommitCheckout(ctx, commit)
	require.NoError(t, err)
	require.False(t, duplicate)

	second, duplicate, err := s.CommitCheckout(ctx, commit)
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, first.ID, second.ID)

	product, err := s.GetProduct(ctx, "prod_leche")
	require.NoError(t, err)
	assert.Equal(t, 59, product.Stock)
}

func TestRefundUpdatesItemAndCreatesLinkedSale(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	original, _, err := s.CommitCheckout(ctx, domain.CheckoutCommit{
		Sale:      saleWithItem("prod_pan", "", 3, "25"),
		Stock:     []domain.StockMovement{{ProductID: "prod_pan", Quantity: 3}},
		StoreType: domain.StoreRetail,
	})
	require.NoError(t, err)
	itemID := original.Items[0].ID

	result, err := s.CommitRefund(ctx, domain.RefundCommit{
		SaleID:     original.ID,
		SaleItemID: itemID,
		Quantity:   1,
		Amount:     decimal.NewFromInt(25),
		Reason:     "damaged",
		RefundSale: domain.Sale{Status: domain.SaleRefund, StoreType: domain.StoreRetail, TotalAmount: decimal.NewFromInt(-25)},
		Restock:    &domain.StockMovement{ProductID: "prod_pan", Quantity: 1},
		At:         time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Original.Items[0].RefundedQuantity)
	assert.Equal(t, "25.00", result.Original.Items[0].RefundAmount.StringFixed(2))
	assert.Equal(t, domain.RefundPartial, result.Original.RefundStatus)
	assert.Equal(t, "-25.00", result.Refund.TotalAmount.StringFixed(2))
	assert.Equal(t, original.ID, result.Refund.RefundRelatedSaleID)

	product, err := s.GetProduct(ctx, "prod_pan")
	require.NoError(t, err)
	assert.Equal(t, 118, product.Stock)

	_, err = s.CommitRefund(ctx, domain.RefundCommit{SaleID: original.ID, SaleItemID: itemID, Quantity: 3, Amount: decimal.NewFromInt(75)})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	result, err = s.CommitRefund(ctx, domain.RefundCommit{
		SaleID:     original.ID,
		SaleItemID: itemID,
		Quantity:   2,
		Amount:     decimal.NewFromInt(50),
		RefundSale: domain.Sale{Status: domain.SaleRefund, StoreType: domain.StoreRetail, TotalAmount: decimal.NewFromInt(-50)},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundFull, result.Original.RefundStatus)
	assert.Equal(t, "75.00", result.Original.RefundedAmount.StringFixed(2))

	_, err = s.CommitRefund(ctx, domain.RefundCommit{SaleID: result.Refund.ID, SaleItemID: itemID, Quantity: 1})
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestHeldSaleLifecycle(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	held := saleWithItem("prod_cafe", "", 1, "120")
	held.Status = domain.SaleHeld
	saved, err := s.CreateSale(ctx, held)
	require.NoError(t, err)

	count, err := s.CountSales(ctx, domain.StoreRetail, domain.SaleHeld)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = s.TransitionSaleStatus(ctx, saved.ID, domain.SaleOrder, domain.SaleCancelled)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	popped, err := s.PopHeldSale(ctx, saved.ID)
	require.NoError(t, err)
	assert.Len(t, popped.Items, 1)

	_, err = s.PopHeldSale(ctx, saved.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteSaleRespectsStatuses(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	completed, err := s.CreateSale(ctx, saleWithItem("prod_cafe", "", 1, "120"))
	require.NoError(t, err)
	assert.ErrorIs(t, s.DeleteSale(ctx, completed.ID, domain.SaleHeld), store.ErrInvalidTransition)

	held := saleWithItem("prod_cafe", "", 1, "120")
	held.Status = domain.SaleHeld
	savedHeld, err := s.CreateSale(ctx, held)
	require.NoError(t, err)
	assert.NoError(t, s.DeleteSale(ctx, savedHeld.ID, domain.SaleHeld))
}

func TestCouponCodesAreUniquePerStoreType(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	_, err := s.CreateCoupon(ctx, domain.Coupon{Code: "fijo50", StoreType: domain.StoreRetail, DiscountType: domain.DiscountFixed})
	assert.ErrorIs(t, err, store.ErrConflict)

	created, err := s.CreateCoupon(ctx, domain.Coupon{Code: " fijo50 ", StoreType: domain.StoreWholesale, DiscountType: domain.DiscountFixed})
	require.NoError(t, err)
	assert.Equal(t, "FIJO50", created.Code)

	found, err := s.GetCouponByCode(ctx, domain.StoreRetail, "Fijo50")
	require.NoError(t, err)
	assert.Equal(t, "cpn_fijo", found.ID)
}

func TestAdjustPointsNeverNegative(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	_, err := s.AdjustCustomerPoints(ctx, "cust_ana", -121)
	assert.ErrorIs(t, err, store.ErrInsufficientPoints)

	customer, err := s.AdjustCustomerPoints(ctx, "cust_ana", -20)
	require.NoError(t, err)
	assert.Equal(t, int64(100), customer.PointsBalance)
}

func TestListProductsFilters(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	retail, err := s.ListProducts(ctx, domain.ProductFilter{StoreType: domain.StoreRetail})
	require.NoError(t, err)
	assert.Len(t, retail, 5)

	found, err := s.ListProducts(ctx, domain.ProductFilter{StoreType: domain.StoreRetail, Search: "playera"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Len(t, found[0].Variants, 2)

	product, err := s.GetProduct(ctx, "prod_jabon")
	require.NoError(t, err)
	product.Active = false
	_, err = s.UpdateProduct(ctx, *product)
	require.NoError(t, err)

	active, err := s.ListProducts(ctx, domain.ProductFilter{StoreType: domain.StoreRetail, Category: "limpieza"})
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := s.ListProducts(ctx, domain.ProductFilter{StoreType: domain.StoreRetail, Category: "limpieza", IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSettingsUnsetReturnsNotFound(t *testing.T) {
	s := seeded(t)
	_, err := s.GetSettings(context.Background(), domain.StoreWholesale)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
