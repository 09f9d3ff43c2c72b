package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiendapos/backend/internal/apperr"
	"tiendapos/backend/internal/cache"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/insights"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/store/memory"
)

var testNow = time.Date(2026, time.March, 15, 17, 0, 0, 0, time.UTC)

var (
	adminCtx   = WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
	cashierCtx = WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier})
	caja1      = Scope{TerminalID: "term_caja1"}
	caja2      = Scope{TerminalID: "term_caja2"}
)

func newTestService(t *testing.T, configure ...func(*Options)) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded(nil, "admin-test-pass", "cashier-test-pass")
	opts := Options{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	}
	for _, fn := range configure {
		fn(&opts)
	}
	return New(repo, opts), repo
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

func addLines(t *testing.T, svc *Service, scope Scope, productID string, variantID string, times int) domain.TicketSnapshot {
	t.Helper()
	var snap domain.TicketSnapshot
	for i := 0; i < times; i++ {
		var err error
		snap, err = svc.AddLine(cashierCtx, scope, domain.AddLineRequest{ProductID: productID, VariantID: variantID})
		require.NoError(t, err)
	}
	return snap
}

func activeSnapshot(t *testing.T, svc *Service, scope Scope) domain.TicketSnapshot {
	t.Helper()
	view, err := svc.Tickets(cashierCtx, scope)
	require.NoError(t, err)
	for _, snap := range view.Tickets {
		if snap.ID == view.ActiveTicketID {
			return snap
		}
	}
	t.Fatalf("active ticket %s not in view", view.ActiveTicketID)
	return domain.TicketSnapshot{}
}

func TestCheckoutCommitsSaleStockAndPoints(t *testing.T) {
	svc, repo := newTestService(t)

	snap := addLines(t, svc, caja1, "prod_cafe", "", 2)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 2, snap.Lines[0].Quantity)

	percent := dec("10")
	_, err := svc.UpdateLine(cashierCtx, caja1, snap.Lines[0].LineID, domain.UpdateLineRequest{DiscountPercent: &percent})
	require.NoError(t, err)
	_, err = svc.AttachCustomer(cashierCtx, caja1, "cust_ana")
	require.NoError(t, err)

	resp, err := svc.Checkout(cashierCtx, caja1, domain.CheckoutRequest{PaymentMethod: "cash"})
	require.NoError(t, err)
	assert.False(t, resp.Duplicate)

	sale := resp.Sale
	assert.Equal(t, domain.SaleCompleted, sale.Status)
	assert.Equal(t, "cashier", sale.UserID)
	assert.Equal(t, "term_caja1", sale.TerminalID)
	assert.Equal(t, "cust_ana", sale.CustomerID)
	assertDecimal(t, "216", sale.TotalAmount)
	assertDecimal(t, "24", sale.DiscountAmount)
	assert.Equal(t, int64(21), sale.PointsEarned)
	assert.Zero(t, sale.PointsRedeemed)
	assertDecimal(t, "29.79", resp.Totals.TaxAmount)
	require.Len(t, sale.Items, 1)
	assertDecimal(t, "216", sale.Items[0].Subtotal)
	assertDecimal(t, "140", sale.Items[0].CostAmount)

	product, err := repo.GetProduct(context.Background(), "prod_cafe")
	require.NoError(t, err)
	assert.Equal(t, 38, product.Stock)

	customer, err := repo.GetCustomer(context.Background(), "cust_ana")
	require.NoError(t, err)
	assert.Equal(t, int64(141), customer.PointsBalance)

	assert.Empty(t, activeSnapshot(t, svc, caja1).Lines)

	logs, err := svc.ListAuditLogs(adminCtx, "", time.Time{}, time.Time{}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "checkout", logs[0].Action)
	assert.Equal(t, sale.ID, logs[0].EntityID)
}

func TestCheckoutRequiresOperator(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Checkout(context.Background(), caja1, domain.CheckoutRequest{PaymentMethod: "cash"})
	var authErr *apperr.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.False(t, authErr.Forbidden)
}

func TestCheckoutRejectsEmptyTicketAndBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	var validation *apperr.ValidationError

	_, err := svc.Checkout(cashierCtx, caja1, domain.CheckoutRequest{PaymentMethod: "cash"})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "lines", validation.Field)

	addLines(t, svc, caja1, "prod_pan", "", 1)
	_, err = svc.Checkout(cashierCtx, caja1, domain.CheckoutRequest{PaymentMethod: "bitcoin"})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "payment_method", validation.Field)

	_, err = svc.Checkout(cashierCtx, caja1, domain.CheckoutRequest{PaymentMethod: "cash", PointsToRedeem: -1})
	require.ErrorAs(t, err, &validation)

	_, err = svc.Checkout(cashierCtx, caja1, domain.CheckoutRequest{PaymentMethod: "points"})
	require.ErrorAs(t, err, &validation)
	assert.Len(t, activeSnapshot(t, svc, caja1).Lines, 1)
}

func TestCheckoutFailureKeepsTicket(t *testing.T) {
	svc, repo := newTestService(t)

	addLines(t, svc, caja1, "prod_jabon", "", 2)
	_, err := svc.AttachCustomer(cashierCtx, caja1, "cust_ana")
	require.NoError(t, err)

	stock := 1
	_, err = svc.UpdateProduct(adminCtx, "prod_jabon", domain.ProductUpdateRequest{Stock: &stock})
	require.NoError(t, err)

	_, err = svc.Checkout(cashierCtx, caja1, domain.CheckoutRequest{PaymentMethod: "cash"})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	snap := activeSnapshot(t, svc, caja1)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 2, snap.Lines[0].Quantity)

	customer, err := repo.GetCustomer(context.Background(), "cust_ana")
	require.NoError(t, err)
	assert.Equal(t, int64(120), customer.PointsBalance)
	sales, err := repo.ListSales(context.Background(), domain.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestCheckoutRedeemsClampedPointsWithoutEarning(t *testing.T) {
	svc, repo := newTestService(t)

	addLines(t, svc, caja1, "prod_leche", "", 1)
	_, err := svc.AttachCustomer(cashierCtx, caja1, "cust_ana")
	require.NoError(t, err)

	totals, err := svc.Totals(cashierCtx, caja1, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(28), totals.MaxRedeemablePoints)
	assert.Equal(t, int64(28), totals.PointsRedeemed)
	assert.True(t, totals.Total.IsZero())

	resp, err := svc.Checkout(cashierCtx, caja1, domain.CheckoutRequest{PaymentMethod: "points", PointsToRedeem: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(28), resp.Sale.PointsRedeemed)
	assert.Zero(t, resp.Sale.PointsEarned)
	assertDecimal(t, "28", resp.Sale.PointsDiscountAmount)

	customer, err := repo.GetCustomer(context.Background(), "cust_ana")
	require.NoError(t, err)
	assert.Equal(t, int64(92), customer.PointsBalance)
}

func TestCheckoutIdempotencyKeyReplaysFirstSale(t *testing.T) {
	svc, _ := newTestService(t)

	addLines(t, svc, caja1, "prod_pan", "", 1)
	first, err := svc.Checkout(cashierCtx, caja1, domain.CheckoutRequest{PaymentMethod: "cash", IdempotencyKey: "retry-1"})
	require.NoError(t, err)

	addLines(t, svc, caja1, "prod_pan", "", 1)
	second, err := svc.Checkout(cashierCtx, caja1, domain.CheckoutRequest{PaymentMethod: "cash", IdempotencyKey: "retry-1"})
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Sale.ID, second.Sale.ID)
	assert.Len(t, activeSnapshot(t, svc, caja1).Lines, 1, "a replayed key leaves the unsold cart in place")
}

func TestTicketStaysWithItsStoreType(t *testing.T) {
	svc, repo := newTestService(t)
	wholesale := Scope{TerminalID: caja1.TerminalID, StoreType: domain.StoreWholesale}

	addLines(t, svc, caja1, "prod_cafe", "", 1)

	_, err := svc.Checkout(cashierCtx, wholesale, domain.CheckoutRequest{PaymentMethod: "cash"})
	var validation *apperr.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Empty(t, activeSnapshot(t, svc, wholesale).Lines)

	resp, err := svc.Checkout(cashierCtx, caja1, domain.CheckoutRequest{PaymentMethod: "cash"})
	require.NoError(t, err)
	assert.Equal(t, domain.StoreRetail, resp.Sale.StoreType)

	sales, err := repo.ListSales(context.Background(), domain.SaleFilter{})
	require.NoError(t, err)
	require.Len(t, sales, 1)
}

func TestTotalsUseCurrentPointsBalance(t *testing.T) {
	svc, repo := newTestService(t)

	addLines(t, svc, caja1, "prod_leche", "", 1)
	_, err := svc.AttachCustomer(cashierCtx, caja1, "cust_ana")
	require.NoError(t, err)

	_, err = repo.AdjustCustomerPoints(context.Background(), "cust_ana", -100)
	require.NoError(t, err)

	totals, err := svc.Totals(cashierCtx, caja1, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(20), totals.MaxRedeemablePoints)

	resp, err := svc.Checkout(cashierCtx, caja1, domain.CheckoutRequest{PaymentMethod: "cash", PointsToRedeem: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(20), resp.Sale.PointsRedeemed)
}

func TestCouponAmountIsFixedWhenApplied(t *testing.T) {
	svc, repo := newTestService(t)

	addLines(t, svc, caja1, "prod_cafe", "", 1)
	snap, err := svc.ApplyCoupon(cashierCtx, caja1, " bienvenido10 ")
	require.NoError(t, err)
	assert.Equal(t, "BIENVENIDO10", snap.CouponCode)
	assertDecimal(t, "12", snap.CouponDiscountAmount)

	snap = addLines(t, svc, caja1, "prod_pan", "", 1)
	assertDecimal(t, "12", snap.CouponDiscountAmount)

	totals, err := svc.Totals(cashierCtx, caja1, 0)
	require.NoError(t, err)
	assertDecimal(t, "132.50", totals.Subtotal)
	assertDecimal(t, "120.50", totals.Total)

	resp, err := svc.Checkout(cashierCtx, caja1, domain.CheckoutRequest{PaymentMethod: "card"})
	require.NoError(t, err)
	assert.Equal(t, "BIENVENIDO10", resp.Sale.CouponCode)
	assertDecimal(t, "12", resp.Sale.DiscountAmount)

	coupon, err := repo.GetCoupon(context.Background(), "cpn_bienvenido")
	require.NoError(t, err)
	assert.Equal(t, 1, coupon.CurrentUses)
}

func TestApplyCouponFailures(t *testing.T) {
	svc, _ := newTestService(t)

	addLines(t, svc, caja2, "prod_leche", "", 1)

	_, err := svc.ApplyCoupon(cashierCtx, caja2, "AGOTADO")
	assert.ErrorIs(t, err, apperr.ErrCouponExhausted)

	_, err = svc.ApplyCoupon(cashierCtx, caja2, "BIENVENIDO10")
	assert.ErrorIs(t, err, apperr.ErrCouponMinimumNotMet)

	_, err = svc.ApplyCoupon(cashierCtx, caja2, "nope")
	assert.ErrorIs(t, err, apperr.ErrCouponInvalid)
	var couponErr *apperr.CouponError
	require.ErrorAs(t, err, &couponErr)
	assert.Equal(t, "NOPE", couponErr.Code)

	_, err = svc.ApplyCoupon(cashierCtx, caja2, "CUMPLE")
	assert.ErrorIs(t, err, apperr.ErrCouponBirthdayRestricted)

	_, err = svc.AttachCustomer(cashierCtx, caja2, "cust_luis")
	require.NoError(t, err)
	_, err = svc.ApplyCoupon(cashierCtx, caja2, "CUMPLE")
	assert.ErrorIs(t, err, apperr.ErrCouponBirthdayRestricted)

	_, err = svc.AttachCustomer(cashierCtx, caja2, "cust_ana")
	require.NoError(t, err)
	snap, err := svc.ApplyCoupon(cashierCtx, caja2, "CUMPLE")
	require.NoError(t, err)
	assertDecimal(t, "28", snap.CouponDiscountAmount)

	snap, err = svc.RemoveCoupon(cashierCtx, caja2)
	require.NoError(t, err)
	assert.Empty(t, snap.CouponCode)
}

func TestValidateCouponCodeDoesNotConsumeUse(t *testing.T) {
	svc, repo := newTestService(t)

	resp, err := svc.ValidateCouponCode(context.Background(), domain.CouponValidateRequest{Code: "bienvenido10", Subtotal: dec("200")})
	require.NoError(t, err)
	assert.Equal(t, "BIENVENIDO10", resp.Code)
	assertDecimal(t, "20", resp.DiscountAmount)

	coupon, err := repo.GetCoupon(context.Background(), "cpn_bienvenido")
	require.NoError(t, err)
	assert.Zero(t, coupon.CurrentUses)
}

func TestHoldAndRestoreReproducesTotals(t *testing.T) {
	svc, _ := newTestService(t)

	snap := addLines(t, svc, caja1, "prod_cafe", "", 1)
	percent := dec("10")
	_, err := svc.UpdateLine(cashierCtx, caja1, snap.Lines[0].LineID, domain.UpdateLineRequest{DiscountPercent: &percent})
	require.NoError(t, err)
	addLines(t, svc, caja1, "prod_pan", "", 1)
	_, err = svc.SetGlobalDiscount(cashierCtx, caja1, dec("5"))
	require.NoError(t, err)
	_, err = svc.AttachCustomer(cashierCtx, caja1, "cust_ana")
	require.NoError(t, err)

	before, err := svc.Totals(cashierCtx, caja1, 0)
	require.NoError(t, err)
	assertDecimal(t, "114.47", before.Total)

	held, err := svc.Hold(cashierCtx, caja1, domain.HoldRequest{Notes: "vuelve en 5 min"})
	require.NoError(t, err)
	assert.Equal(t, domain.SaleHeld, held.Status)
	assertDecimal(t, "18.03", held.DiscountAmount)
	assert.Empty(t, activeSnapshot(t, svc, caja1).Lines)

	heldSales, err := svc.ListHeldSales(cashierCtx, "")
	require.NoError(t, err)
	require.Len(t, heldSales, 1)

	view, err := svc.RestoreHeld(cashierCtx, caja1, held.ID)
	require.NoError(t, err)
	assert.Len(t, view.Tickets, 1)

	restored := activeSnapshot(t, svc, caja1)
	require.Len(t, restored.Lines, 2)
	require.NotNil(t, restored.Customer)
	assert.Equal(t, "cust_ana", restored.Customer.ID)
	assertDecimal(t, "5", restored.GlobalDiscountPercent)

	after, err := svc.Totals(cashierCtx, caja1, 0)
	require.NoError(t, err)
	assertDecimal(t, before.Total.String(), after.Total)

	heldSales, err = svc.ListHeldSales(cashierCtx, "")
	require.NoError(t, err)
	assert.Empty(t, heldSales)

	_, err = svc.RestoreHeld(cashierCtx, caja1, held.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRestoreIntoBusyTicketOpensNewOne(t *testing.T) {
	svc, _ := newTestService(t)

	addLines(t, svc, caja1, "prod_pan", "", 1)
	held, err := svc.Hold(cashierCtx, caja1, domain.HoldRequest{})
	require.NoError(t, err)

	addLines(t, svc, caja1, "prod_leche", "", 1)
	view, err := svc.RestoreHeld(cashierCtx, caja1, held.ID)
	require.NoError(t, err)
	assert.Len(t, view.Tickets, 2)
	restored := activeSnapshot(t, svc, caja1)
	require.Len(t, restored.Lines, 1)
	assert.Equal(t, "prod_pan", restored.Lines[0].ProductID)
}

func TestPublicOrderLifecycle(t *testing.T) {
	svc, repo := newTestService(t)

	updates, cancel, err := svc.SubscribeOrders(cashierCtx)
	require.NoError(t, err)
	defer cancel()

	order, err := svc.SubmitOrder(context.Background(), domain.PublicOrderRequest{
		FullName:   "Marta Ruiz",
		Phone:      "5559990000",
		CouponCode: "fijo50",
		Items:      []domain.PublicOrderLine{{ProductID: "prod_cafe", Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SaleOrder, order.Status)
	assert.Equal(t, domain.SourceSharedStore, order.Source)
	assert.Equal(t, domain.PaymentPending, order.PaymentMethod)
	assert.Equal(t, "Marta Ruiz - 5559990000", order.CustomerInfo)
	assertDecimal(t, "190", order.TotalAmount)
	assertDecimal(t, "50", order.DiscountAmount)

	select {
	case n := <-updates:
		assert.Equal(t, order.ID, n.SaleID)
	case <-time.After(time.Second):
		t.Fatal("no order notification")
	}

	customer, err := repo.FindCustomerByPhone(context.Background(), domain.StoreRetail, "5559990000")
	require.NoError(t, err)
	assert.Equal(t, customer.ID, order.CustomerID)
	coupon, err := repo.GetCoupon(context.Background(), "cpn_fijo")
	require.NoError(t, err)
	assert.Zero(t, coupon.CurrentUses)
	product, err := repo.GetProduct(context.Background(), "prod_cafe")
	require.NoError(t, err)
	assert.Equal(t, 40, product.Stock)

	count, err := svc.PendingOrderCount(cashierCtx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = svc.AcceptOrder(cashierCtx, order.ID)
	var authErr *apperr.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, authErr.Forbidden)

	accepted, err := svc.AcceptOrder(adminCtx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleHeld, accepted.Status)

	_, err = svc.RejectOrder(adminCtx, order.ID)
	var transition *apperr.TransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, domain.SaleHeld, transition.From)

	_, err = svc.RestoreHeld(cashierCtx, caja1, order.ID)
	require.NoError(t, err)
	snap := activeSnapshot(t, svc, caja1)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 2, snap.Lines[0].Quantity)
	assert.Equal(t, "FIJO50", snap.CouponCode)
	assertDecimal(t, "50", snap.CouponDiscountAmount)
	require.NotNil(t, snap.Customer)
	assert.Equal(t, "Marta Ruiz", snap.Customer.FullName)
}

func TestSubmitOrderValidationAndCustomerReuse(t *testing.T) {
	svc, _ := newTestService(t)
	var validation *apperr.ValidationError

	_, err := svc.SubmitOrder(context.Background(), domain.PublicOrderRequest{
		FullName: "Sin Telefono",
		Items:    []domain.PublicOrderLine{{ProductID: "prod_pan", Quantity: 1}},
	})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "phone", validation.Field)

	_, err = svc.SubmitOrder(context.Background(), domain.PublicOrderRequest{FullName: "Ana", Phone: "5550001111"})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "items", validation.Field)

	order, err := svc.SubmitOrder(context.Background(), domain.PublicOrderRequest{
		FullName: "Ana T.",
		Phone:    "5550001111",
		Items:    []domain.PublicOrderLine{{ProductID: "prod_pan", Quantity: 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, "cust_ana", order.CustomerID)
	assertDecimal(t, "50", order.TotalAmount)

	rejected, err := svc.RejectOrder(adminCtx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleCancelled, rejected.Status)
	count, err := svc.PendingOrderCount(cashierCtx, "")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func checkoutPan(t *testing.T, svc *Service, customerID string, qty int) domain.Sale {
	t.Helper()
	addLines(t, svc, caja1, "prod_pan", "", qty)
	if customerID != "" {
		_, err := svc.AttachCustomer(cashierCtx, caja1, customerID)
		require.NoError(t, err)
	}
	resp, err := svc.Checkout(cashierCtx, caja1, domain.CheckoutRequest{PaymentMethod: "cash"})
	require.NoError(t, err)
	return resp.Sale
}

func TestRefundWithRestockAndPointReversal(t *testing.T) {
	svc, repo := newTestService(t, func(o *Options) {
		o.RefundRestock = true
		o.RefundReversePoints = true
	})

	sale := checkoutPan(t, svc, "cust_luis", 3)
	assertDecimal(t, "37.50", sale.TotalAmount)
	assert.Equal(t, int64(3), sale.PointsEarned)

	result, err := svc.Refund(adminCtx, sale.ID, domain.RefundRequest{SaleItemID: sale.Items[0].ID, Quantity: 1, Reason: "producto dañado"})
	require.NoError(t, err)
	assert.Equal(t, domain.SaleRefund, result.Refund.Status)
	assertDecimal(t, "-12.50", result.Refund.TotalAmount)
	assert.Equal(t, sale.ID, result.Refund.RefundRelatedSaleID)
	assert.Equal(t, domain.RefundPartial, result.Original.RefundStatus)
	assert.Equal(t, 1, result.Original.Items[0].RefundedQuantity)
	assertDecimal(t, "12.50", result.Original.RefundedAmount)

	luis, err := repo.GetCustomer(context.Background(), "cust_luis")
	require.NoError(t, err)
	assert.Equal(t, int64(2), luis.PointsBalance)
	pan, err := repo.GetProduct(context.Background(), "prod_pan")
	require.NoError(t, err)
	assert.Equal(t, 118, pan.Stock)

	var validation *apperr.ValidationError
	_, err = svc.Refund(adminCtx, sale.ID, domain.RefundRequest{SaleItemID: sale.Items[0].ID, Quantity: 3})
	require.ErrorAs(t, err, &validation)

	result, err = svc.Refund(adminCtx, sale.ID, domain.RefundRequest{SaleItemID: sale.Items[0].ID, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundFull, result.Original.RefundStatus)

	luis, err = repo.GetCustomer(context.Background(), "cust_luis")
	require.NoError(t, err)
	assert.Zero(t, luis.PointsBalance)
}

func TestRefundDefaultPolicyLeavesStockAndPoints(t *testing.T) {
	svc, repo := newTestService(t)

	sale := checkoutPan(t, svc, "cust_luis", 2)
	_, err := svc.Refund(cashierCtx, sale.ID, domain.RefundRequest{SaleItemID: sale.Items[0].ID, Quantity: 1})
	var authErr *apperr.AuthError
	require.ErrorAs(t, err, &authErr)

	_, err = svc.Refund(adminCtx, sale.ID, domain.RefundRequest{SaleItemID: sale.Items[0].ID, Quantity: 1})
	require.NoError(t, err)

	pan, err := repo.GetProduct(context.Background(), "prod_pan")
	require.NoError(t, err)
	assert.Equal(t, 118, pan.Stock)
	luis, err := repo.GetCustomer(context.Background(), "cust_luis")
	require.NoError(t, err)
	assert.Equal(t, sale.PointsEarned, luis.PointsBalance)
}

func TestRefundRequiresCompletedSale(t *testing.T) {
	svc, _ := newTestService(t)

	addLines(t, svc, caja1, "prod_pan", "", 1)
	held, err := svc.Hold(cashierCtx, caja1, domain.HoldRequest{})
	require.NoError(t, err)

	_, err = svc.Refund(adminCtx, held.ID, domain.RefundRequest{SaleItemID: held.Items[0].ID, Quantity: 1})
	var transition *apperr.TransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, domain.SaleHeld, transition.From)
}

func TestAddLineUsesCatalogSnapshot(t *testing.T) {
	svc, _ := newTestService(t)
	var validation *apperr.ValidationError

	_, err := svc.AddLine(cashierCtx, caja1, domain.AddLineRequest{ProductID: "prod_playera"})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "variant_id", validation.Field)

	snap, err := svc.AddLine(cashierCtx, caja1, domain.AddLineRequest{ProductID: "prod_playera", VariantID: "var_playera_g"})
	require.NoError(t, err)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "Grande", snap.Lines[0].VariantName)
	assertDecimal(t, "219", snap.Lines[0].UnitPrice)

	snap = addLines(t, svc, caja1, "prod_playera", "var_playera_m", 1)
	assert.Len(t, snap.Lines, 2)

	addLines(t, svc, caja1, "prod_jabon", "", 3)
	_, err = svc.AddLine(cashierCtx, caja1, domain.AddLineRequest{ProductID: "prod_jabon"})
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	_, err = svc.AddLine(cashierCtx, caja1, domain.AddLineRequest{ProductID: "prod_cafe_caja"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTicketsAreScopedPerTerminal(t *testing.T) {
	svc, _ := newTestService(t)

	addLines(t, svc, caja1, "prod_pan", "", 1)
	assert.Empty(t, activeSnapshot(t, svc, caja2).Lines)

	view, err := svc.NewTicket(cashierCtx, caja1)
	require.NoError(t, err)
	require.Len(t, view.Tickets, 2)
	assert.Empty(t, activeSnapshot(t, svc, caja1).Lines)

	view, err = svc.ActivateTicket(cashierCtx, caja1, view.Tickets[0].ID)
	require.NoError(t, err)
	assert.Len(t, activeSnapshot(t, svc, caja1).Lines, 1)

	_, err = svc.Tickets(cashierCtx, Scope{TerminalID: "term_missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Tickets(context.Background(), caja1)
	var authErr *apperr.AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestSettingsDefaultsAndCacheInvalidation(t *testing.T) {
	svc, _ := newTestService(t, func(o *Options) {
		o.SettingsCache = cache.NewMemory[domain.Settings](func() time.Time { return testNow })
	})

	settings, err := svc.Settings(cashierCtx, domain.StoreWholesale)
	require.NoError(t, err)
	assertDecimal(t, "16", settings.VATRate)
	assert.Equal(t, 5, settings.LowStockThreshold)

	settings.VATRate = dec("8")
	settings.StoreName = "Bodega Central"
	_, err = svc.UpdateSettings(cashierCtx, domain.StoreWholesale, settings)
	var authErr *apperr.AuthError
	require.ErrorAs(t, err, &authErr)

	saved, err := svc.UpdateSettings(adminCtx, domain.StoreWholesale, settings)
	require.NoError(t, err)
	assert.Equal(t, domain.StoreWholesale, saved.StoreType)

	settings, err = svc.Settings(cashierCtx, domain.StoreWholesale)
	require.NoError(t, err)
	assertDecimal(t, "8", settings.VATRate)

	info, err := svc.StoreInfo(context.Background(), domain.StoreWholesale)
	require.NoError(t, err)
	assert.Equal(t, "Bodega Central", info.StoreName)

	settings.VATRate = dec("120")
	var validation *apperr.ValidationError
	_, err = svc.UpdateSettings(adminCtx, domain.StoreWholesale, settings)
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "vat_rate", validation.Field)

	_, err = svc.Settings(cashierCtx, "outlet")
	require.ErrorAs(t, err, &validation)
}

func TestCatalogAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateProduct(cashierCtx, domain.ProductCreateRequest{Name: "Galletas", Price: dec("18")})
	var authErr *apperr.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, authErr.Forbidden)

	var validation *apperr.ValidationError
	_, err = svc.CreateProduct(adminCtx, domain.ProductCreateRequest{Name: "Galletas", Price: dec("-1")})
	require.ErrorAs(t, err, &validation)

	cost := dec("9")
	created, err := svc.CreateProduct(adminCtx, domain.ProductCreateRequest{Name: " Galletas ", Category: "Abarrotes", Price: dec("18"), Cost: &cost, Stock: 24})
	require.NoError(t, err)
	assert.Equal(t, "Galletas", created.Name)
	assert.Equal(t, domain.StoreRetail, created.StoreType)
	assert.True(t, created.Active)

	catalog, err := svc.PublicCatalog(context.Background(), "", "", "galletas")
	require.NoError(t, err)
	require.Len(t, catalog, 1)
	assert.True(t, catalog[0].Cost.IsZero())

	_, err = svc.DeactivateProduct(adminCtx, created.ID)
	require.NoError(t, err)
	catalog, err = svc.PublicCatalog(context.Background(), "", "", "galletas")
	require.NoError(t, err)
	assert.Empty(t, catalog)

	all, err := svc.ListProducts(adminCtx, domain.ProductFilter{Search: "galletas", IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)
	hidden, err := svc.ListProducts(cashierCtx, domain.ProductFilter{Search: "galletas", IncludeInactive: true})
	require.NoError(t, err)
	assert.Empty(t, hidden)

	variant, err := svc.CreateVariant(adminCtx, "prod_playera", domain.VariantCreateRequest{Name: "Chica", Price: dec("189"), Stock: 4})
	require.NoError(t, err)
	archived, err := svc.ArchiveVariant(adminCtx, variant.ID)
	require.NoError(t, err)
	assert.False(t, archived.Active)
}

func TestCouponAdminNormalizesAndValidates(t *testing.T) {
	svc, _ := newTestService(t)
	var validation *apperr.ValidationError

	_, err := svc.CreateCoupon(adminCtx, domain.CouponCreateRequest{Code: "mitad", DiscountType: "percentage", DiscountValue: dec("150")})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "discount_value", validation.Field)

	created, err := svc.CreateCoupon(adminCtx, domain.CouponCreateRequest{Code: " mitad ", DiscountType: "Percentage", DiscountValue: dec("50")})
	require.NoError(t, err)
	assert.Equal(t, "MITAD", created.Code)
	assert.Equal(t, domain.DiscountPercentage, created.DiscountType)

	_, err = svc.CreateCoupon(adminCtx, domain.CouponCreateRequest{Code: "MITAD", DiscountType: "fixed", DiscountValue: dec("5")})
	assert.ErrorIs(t, err, store.ErrConflict)

	inactive := false
	updated, err := svc.UpdateCoupon(adminCtx, created.ID, domain.CouponUpdateRequest{Active: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.Active)

	require.NoError(t, svc.DeleteCoupon(adminCtx, created.ID))
}

func TestAdjustPointsRefusesNegativeBalance(t *testing.T) {
	svc, _ := newTestService(t)

	customer, err := svc.AdjustPoints(adminCtx, "cust_ana", domain.PointsAdjustRequest{Delta: 30, Reason: "promo"})
	require.NoError(t, err)
	assert.Equal(t, int64(150), customer.PointsBalance)

	_, err = svc.AdjustPoints(adminCtx, "cust_ana", domain.PointsAdjustRequest{Delta: -151})
	assert.ErrorIs(t, err, store.ErrInsufficientPoints)
}

func TestDashboardAggregatesAndCaches(t *testing.T) {
	clock := func() time.Time { return testNow }
	svc, _ := newTestService(t, func(o *Options) {
		o.Insights = insights.NewEngine(cache.NewMemory[domain.Dashboard](clock), time.Minute, time.UTC, nil)
	})

	addLines(t, svc, caja1, "prod_cafe", "", 1)
	_, err := svc.Checkout(cashierCtx, caja1, domain.CheckoutRequest{PaymentMethod: "cash"})
	require.NoError(t, err)

	_, err = svc.Dashboard(cashierCtx, "")
	var authErr *apperr.AuthError
	require.ErrorAs(t, err, &authErr)

	dashboard, err := svc.Dashboard(adminCtx, "")
	require.NoError(t, err)
	assert.False(t, dashboard.Cached)
	assertDecimal(t, "120", dashboard.TodaySales)
	assert.Equal(t, 1, dashboard.TodaySaleCount)
	require.NotEmpty(t, dashboard.TopProducts)
	assert.Equal(t, "prod_cafe", dashboard.TopProducts[0].ProductID)

	lowStock := map[string]bool{}
	for _, item := range dashboard.LowStock {
		lowStock[item.ProductID] = true
	}
	assert.True(t, lowStock["prod_jabon"])

	again, err := svc.Dashboard(adminCtx, "")
	require.NoError(t, err)
	assert.True(t, again.Cached)
}

func TestReceiptProjectsPersistedSale(t *testing.T) {
	svc, _ := newTestService(t)

	sale := checkoutPan(t, svc, "cust_ana", 2)
	rec, err := svc.Receipt(cashierCtx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.ID, rec.SaleID)
	assert.Contains(t, rec.Text, "Tienda La Esquina")
	assert.Contains(t, rec.Text, "Ana Torres")
	assert.Contains(t, rec.Text, "TOTAL")
	assert.NotEmpty(t, rec.ESCPOS)

	_, err = svc.Receipt(cashierCtx, "sale_missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestQuoteDoesNotTouchTicketOrStock(t *testing.T) {
	svc, repo := newTestService(t)

	addLines(t, svc, caja1, "prod_leche", "", 2)
	quote, err := svc.Quote(cashierCtx, caja1)
	require.NoError(t, err)
	assert.Contains(t, quote.Folio, "COT-")
	assert.Contains(t, quote.ShareURL, "https://wa.me/?text=")
	assertDecimal(t, "56", quote.Totals.Total)

	assert.Len(t, activeSnapshot(t, svc, caja1).Lines, 1)
	product, err := repo.GetProduct(context.Background(), "prod_leche")
	require.NoError(t, err)
	assert.Equal(t, 60, product.Stock)
}
