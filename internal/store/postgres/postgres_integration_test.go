package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("TIENDAPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TIENDAPOS_TEST_DATABASE_URL to run postgres integration test")
	}
	require.NoError(t, MigrateUp(databaseURL))

	s, err := New(context.Background(), databaseURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestMigrationURLRewritesPostgresScheme(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/pos", migrationURL("postgres://u:p@localhost:5432/pos"))
	assert.Equal(t, "pgx5://u@db/pos?sslmode=disable", migrationURL("postgresql://u@db/pos?sslmode=disable"))
	assert.Equal(t, "pgx5://already", migrationURL("pgx5://already"))
}

func TestCheckoutAndRefundRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	storeType := domain.StoreRetail

	product, err := s.CreateProduct(ctx, domain.Product{
		Name: fmt.Sprintf("Cafe IT %d", stamp), Category: "Abarrotes",
		Price: decimal.NewFromInt(100), Cost: decimal.NewFromInt(60), Stock: 5,
		Active: true, StoreType: storeType,
	})
	require.NoError(t, err)
	customer, err := s.CreateCustomer(ctx, domain.Customer{
		FullName: "Cliente IT", Phone: fmt.Sprintf("55%d", stamp%100000000), PointsBalance: 50, StoreType: storeType,
	})
	require.NoError(t, err)
	coupon, err := s.CreateCoupon(ctx, domain.Coupon{
		Code: fmt.Sprintf("it%d", stamp), DiscountType: domain.DiscountFixed,
		DiscountValue: decimal.NewFromInt(10), MaxUses: 1, Active: true, StoreType: storeType,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE customer_id = $1 AND refund_related_sale_id IS NOT NULL`, customer.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE customer_id = $1`, customer.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, customer.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, coupon.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
	})

	key := fmt.Sprintf("idem-it-%d", stamp)
	commit := domain.CheckoutCommit{
		Sale: domain.Sale{
			CustomerID: customer.ID, TotalAmount: decimal.NewFromInt(180), PaymentMethod: domain.PaymentCash,
			Status: domain.SaleCompleted, DiscountAmount: decimal.NewFromInt(20), CouponCode: coupon.Code,
			PointsRedeemed: 10, PointsDiscountAmount: decimal.NewFromInt(10), StoreType: storeType,
			IdempotencyKey: key,
			Items: []domain.SaleItem{{
				ProductID: product.ID, ProductName: product.Name, Quantity: 2,
				UnitPrice: decimal.NewFromInt(100), Subtotal: decimal.NewFromInt(190),
				DiscountAmount: decimal.NewFromInt(10), CostAmount: decimal.NewFromInt(120),
			}},
		},
		Stock:          []domain.StockMovement{{ProductID: product.ID, Quantity: 2}},
		CustomerID:     customer.ID,
		PointsRedeemed: 10,
		CouponCode:     coupon.Code,
		StoreType:      storeType,
	}

	sale, duplicate, err := s.CommitCheckout(ctx, commit)
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Positive(t, sale.TicketNumber)
	require.Len(t, sale.Items, 1)

	again, duplicate, err := s.CommitCheckout(ctx, commit)
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, sale.ID, again.ID)

	stored, err := s.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Stock)
	storedCustomer, err := s.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), storedCustomer.PointsBalance)
	storedCoupon, err := s.GetCoupon(ctx, coupon.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, storedCoupon.CurrentUses)

	commit.Sale.IdempotencyKey = key + "-b"
	_, _, err = s.CommitCheckout(ctx, commit)
	assert.True(t, errors.Is(err, store.ErrCouponExhausted))
	stored, err = s.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Stock, "failed checkout must not move stock")

	result, err := s.CommitRefund(ctx, domain.RefundCommit{
		SaleID: sale.ID, SaleItemID: sale.Items[0].ID, Quantity: 1, Amount: decimal.NewFromInt(95),
		Reason: "dañado",
		RefundSale: domain.Sale{
			CustomerID: customer.ID, TotalAmount: decimal.NewFromInt(-95), PaymentMethod: domain.PaymentCash,
			Status: domain.SaleRefund, StoreType: storeType,
		},
		Restock: &domain.StockMovement{ProductID: product.ID, Quantity: 1},
		At:      time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundPartial, result.Original.RefundStatus)
	assert.Equal(t, sale.ID, result.Refund.RefundRelatedSaleID)

	stored, err = s.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Stock)

	_, err = s.CommitRefund(ctx, domain.RefundCommit{
		SaleID: sale.ID, SaleItemID: sale.Items[0].ID, Quantity: 5, Amount: decimal.NewFromInt(1),
		RefundSale: domain.Sale{Status: domain.SaleRefund, StoreType: storeType, PaymentMethod: domain.PaymentCash},
	})
	assert.True(t, errors.Is(err, store.ErrInvalidInput))
}

func TestPopHeldSaleDeletesOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	held, err := s.CreateSale(ctx, domain.Sale{
		TotalAmount: decimal.NewFromInt(12), PaymentMethod: domain.PaymentPending,
		Status: domain.SaleHeld, StoreType: domain.StoreRetail,
		Items: []domain.SaleItem{{
			ProductID: "prod_it_held", ProductName: "Pan", Quantity: 1,
			UnitPrice: decimal.NewFromInt(12), Subtotal: decimal.NewFromInt(12),
		}},
	})
	require.NoError(t, err)

	popped, err := s.PopHeldSale(ctx, held.ID)
	require.NoError(t, err)
	require.Len(t, popped.Items, 1)

	_, err = s.PopHeldSale(ctx, held.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
