package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiendapos/backend/internal/apperr"
	"tiendapos/backend/internal/domain"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2))
}

func line(price string, qty int, discount string) domain.LineItem {
	return domain.LineItem{
		LineID:          "line_" + price,
		ProductID:       "prod_" + price,
		ProductName:     "Item " + price,
		UnitPrice:       dec(price),
		UnitCost:        dec(price).Div(decimal.NewFromInt(2)),
		Quantity:        qty,
		DiscountPercent: dec(discount),
		EarnsPoints:     true,
	}
}

func defaultSettings() domain.Settings {
	return domain.DefaultSettings(domain.StoreRetail)
}

func TestComputeLineDiscountAndTaxExtraction(t *testing.T) {
	totals := Compute(Input{
		Lines:    []domain.LineItem{line("100", 2, "10")},
		Settings: defaultSettings(),
	})

	require.Len(t, totals.LineTotals, 1)
	assertMoney(t, "180.00", totals.LineTotals[0])
	assertMoney(t, "20.00", totals.LineDiscounts[0])
	assertMoney(t, "180.00", totals.Subtotal)
	assertMoney(t, "180.00", totals.Total)
	assertMoney(t, "24.83", totals.TaxAmount)
	assertMoney(t, "155.17", totals.NetOfTax)
	assert.Zero(t, totals.PointsEarned, "no customer attached")
}

func TestCouponDiscountFixedIsCappedAtSubtotal(t *testing.T) {
	coupon := domain.Coupon{DiscountType: domain.DiscountFixed, DiscountValue: dec("50")}

	assertMoney(t, "50.00", CouponDiscount(coupon, dec("500")))
	assertMoney(t, "40.00", CouponDiscount(coupon, dec("40")))
}

func TestCouponDiscountPercentage(t *testing.T) {
	cases := []struct {
		value    string
		subtotal string
		want     string
	}{
		{value: "10", subtotal: "250", want: "25.00"},
		{value: "15", subtotal: "33.33", want: "5.00"},
		{value: "150", subtotal: "80", want: "80.00"},
		{value: "20", subtotal: "0", want: "0.00"},
	}
	for _, tc := range cases {
		coupon := domain.Coupon{DiscountType: domain.DiscountPercentage, DiscountValue: dec(tc.value)}
		assertMoney(t, tc.want, CouponDiscount(coupon, dec(tc.subtotal)))
	}
}

func TestPointsRedemptionWithFractionalPointValue(t *testing.T) {
	settings := defaultSettings()
	settings.CurrencyPerPointRedemption = dec("0.1")
	customer := &domain.Customer{ID: "cust_1", PointsBalance: 30}

	totals := Compute(Input{
		Lines:          []domain.LineItem{line("200", 1, "0")},
		Customer:       customer,
		PointsToRedeem: 30,
		Settings:       settings,
	})

	assert.Equal(t, int64(30), totals.MaxRedeemablePoints)
	assert.Equal(t, int64(30), totals.PointsRedeemed)
	assertMoney(t, "3.00", totals.PointsDiscountAmount)
	assertMoney(t, "200.00", totals.TotalBeforePoints)
	assertMoney(t, "197.00", totals.Total)
	assert.Zero(t, totals.PointsEarned)
}

func TestMaxRedeemableNeverExceedsBalance(t *testing.T) {
	customer := &domain.Customer{ID: "cust_1", PointsBalance: 12}
	totals := Compute(Input{
		Lines:          []domain.LineItem{line("5000", 1, "0")},
		Customer:       customer,
		PointsToRedeem: 999,
		Settings:       defaultSettings(),
	})

	assert.Equal(t, int64(12), totals.MaxRedeemablePoints)
	assert.Equal(t, int64(12), totals.PointsRedeemed, "requests above the maximum are clamped")
}

func TestMaxRedeemableLimitedByAmount(t *testing.T) {
	assert.Equal(t, int64(45), MaxRedeemablePoints(100, dec("45.90"), dec("1")))
	assert.Equal(t, int64(0), MaxRedeemablePoints(100, dec("0"), dec("1")))
	assert.Equal(t, int64(0), MaxRedeemablePoints(0, dec("45"), dec("1")))
}

func TestPointsEarnedAndRedeemedAreExclusive(t *testing.T) {
	customer := &domain.Customer{ID: "cust_1", PointsBalance: 50}
	base := Input{
		Lines:    []domain.LineItem{line("100", 2, "10")},
		Customer: customer,
		Settings: defaultSettings(),
	}

	earning := Compute(base)
	assert.Equal(t, int64(18), earning.PointsEarned)
	assert.Zero(t, earning.PointsRedeemed)

	base.PointsToRedeem = 10
	redeeming := Compute(base)
	assert.Equal(t, int64(10), redeeming.PointsRedeemed)
	assert.Zero(t, redeeming.PointsEarned)
}

func TestPointsEarnedOnlyFromEarningLines(t *testing.T) {
	noPoints := line("50", 2, "0")
	noPoints.EarnsPoints = false
	totals := Compute(Input{
		Lines:    []domain.LineItem{line("100", 1, "0"), noPoints},
		Customer: &domain.Customer{ID: "cust_1"},
		Settings: defaultSettings(),
	})

	assertMoney(t, "200.00", totals.Total)
	assert.Equal(t, int64(10), totals.PointsEarned)
}

func TestComputeStacksDiscountsAndFloorsAtZero(t *testing.T) {
	totals := Compute(Input{
		Lines:                 []domain.LineItem{line("100", 1, "0")},
		GlobalDiscountPercent: dec("50"),
		CouponDiscountAmount:  dec("80"),
		Settings:              defaultSettings(),
	})

	assertMoney(t, "50.00", totals.GlobalDiscountAmount)
	assertMoney(t, "80.00", totals.CouponDiscountAmount)
	assertMoney(t, "0.00", totals.Total)
	assertMoney(t, "0.00", totals.TaxAmount)
}

func TestComputeIsDeterministic(t *testing.T) {
	in := Input{
		Lines:                 []domain.LineItem{line("19.99", 3, "7.5"), line("4.35", 7, "0")},
		GlobalDiscountPercent: dec("3"),
		CouponDiscountAmount:  dec("2.10"),
		Customer:              &domain.Customer{ID: "cust_1", PointsBalance: 20},
		PointsToRedeem:        5,
		Settings:              defaultSettings(),
	}
	assert.Equal(t, Compute(in), Compute(in))
}

func TestValidateCouponFailureOrder(t *testing.T) {
	now := time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)
	active := domain.Coupon{
		Code:              "SAVE10",
		DiscountType:      domain.DiscountPercentage,
		DiscountValue:     dec("10"),
		MaxUses:           5,
		CurrentUses:       1,
		MinPurchaseAmount: dec("100"),
		Active:            true,
		StoreType:         domain.StoreRetail,
	}

	err := ValidateCoupon(nil, "missing", domain.StoreRetail, dec("500"), nil, now)
	assert.ErrorIs(t, err, apperr.ErrCouponInvalid)

	inactive := active
	inactive.Active = false
	assert.ErrorIs(t, ValidateCoupon(&inactive, "save10", domain.StoreRetail, dec("500"), nil, now), apperr.ErrCouponInvalid)
	assert.ErrorIs(t, ValidateCoupon(&active, "save10", domain.StoreWholesale, dec("500"), nil, now), apperr.ErrCouponInvalid)

	exhausted := active
	exhausted.CurrentUses = 5
	assert.ErrorIs(t, ValidateCoupon(&exhausted, "save10", domain.StoreRetail, dec("10"), nil, now), apperr.ErrCouponExhausted)

	assert.ErrorIs(t, ValidateCoupon(&active, "save10", domain.StoreRetail, dec("99.99"), nil, now), apperr.ErrCouponMinimumNotMet)
	assert.NoError(t, ValidateCoupon(&active, "save10", domain.StoreRetail, dec("100"), nil, now))

	unlimited := active
	unlimited.MaxUses = 0
	unlimited.CurrentUses = 900
	assert.NoError(t, ValidateCoupon(&unlimited, "save10", domain.StoreRetail, dec("100"), nil, now))
}

func TestValidateBirthdayCoupon(t *testing.T) {
	now := time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)
	coupon := domain.Coupon{
		Code:          "BDAY",
		DiscountType:  domain.DiscountFixed,
		DiscountValue: dec("50"),
		BirthdayOnly:  true,
		Active:        true,
		StoreType:     domain.StoreRetail,
	}
	march := time.Date(1990, time.March, 3, 0, 0, 0, 0, time.UTC)
	october := time.Date(1990, time.October, 30, 0, 0, 0, 0, time.UTC)

	err := ValidateCoupon(&coupon, "bday", domain.StoreRetail, dec("10"), &domain.Customer{BirthDate: &march}, now)
	assert.ErrorIs(t, err, apperr.ErrCouponBirthdayRestricted)

	var couponErr *apperr.CouponError
	require.ErrorAs(t, err, &couponErr)
	assert.Equal(t, "BDAY", couponErr.Code)

	assert.ErrorIs(t, ValidateCoupon(&coupon, "bday", domain.StoreRetail, dec("10"), nil, now), apperr.ErrCouponBirthdayRestricted)
	assert.ErrorIs(t, ValidateCoupon(&coupon, "bday", domain.StoreRetail, dec("10"), &domain.Customer{}, now), apperr.ErrCouponBirthdayRestricted)
	assert.NoError(t, ValidateCoupon(&coupon, "bday", domain.StoreRetail, dec("10"), &domain.Customer{BirthDate: &october}, now))
}

func TestSaleItemsSpreadGlobalDiscount(t *testing.T) {
	items := SaleItemsFromLines([]domain.LineItem{line("100", 2, "10"), line("50", 1, "0")}, dec("10"))

	require.Len(t, items, 2)
	assertMoney(t, "162.00", items[0].Subtotal)
	assertMoney(t, "38.00", items[0].DiscountAmount)
	assertMoney(t, "100.00", items[0].CostAmount)
	assertMoney(t, "45.00", items[1].Subtotal)
	assertMoney(t, "5.00", items[1].DiscountAmount)
	assert.NotEqual(t, items[0].ID, items[1].ID)
}

func holdSale(lines []domain.LineItem, global decimal.Decimal, couponCode string, couponAmount decimal.Decimal) domain.Sale {
	totals := Compute(Input{Lines: lines, GlobalDiscountPercent: global, CouponDiscountAmount: couponAmount, Settings: defaultSettings()})
	return domain.Sale{
		Status:         domain.SaleHeld,
		CouponCode:     couponCode,
		TotalAmount:    totals.Total,
		DiscountAmount: totals.LineDiscountTotal.Add(totals.GlobalDiscountAmount).Add(totals.CouponDiscountAmount),
		Items:          SaleItemsFromLines(lines, decimal.Zero),
	}
}

func TestRecoverTicketRoundTripsGlobalDiscount(t *testing.T) {
	lines := []domain.LineItem{line("100", 2, "10"), line("50", 1, "0")}
	sale := holdSale(lines, dec("5"), "", decimal.Zero)

	recovered := RecoverTicket(sale)
	require.Len(t, recovered.Lines, 2)
	assertMoney(t, "10.00", recovered.Lines[0].DiscountPercent)
	assertMoney(t, "0.00", recovered.Lines[1].DiscountPercent)
	assertMoney(t, "5.00", recovered.GlobalDiscountPercent)
	assert.True(t, recovered.CouponDiscountAmount.IsZero())

	again := Compute(Input{Lines: recovered.Lines, GlobalDiscountPercent: recovered.GlobalDiscountPercent, Settings: defaultSettings()})
	assertMoney(t, sale.TotalAmount.StringFixed(2), again.Total)
}

func TestRecoverTicketRoundTripsCoupon(t *testing.T) {
	lines := []domain.LineItem{line("80", 1, "25"), line("12.50", 4, "0")}
	sale := holdSale(lines, decimal.Zero, "SAVE40", dec("40"))

	recovered := RecoverTicket(sale)
	assert.Equal(t, "SAVE40", recovered.CouponCode)
	assertMoney(t, "40.00", recovered.CouponDiscountAmount)
	assert.True(t, recovered.GlobalDiscountPercent.IsZero())

	again := Compute(Input{Lines: recovered.Lines, CouponDiscountAmount: recovered.CouponDiscountAmount, Settings: defaultSettings()})
	assertMoney(t, sale.TotalAmount.StringFixed(2), again.Total)
}

func TestRecoverTicketIsLossyForRepeatingPercentages(t *testing.T) {
	lines := []domain.LineItem{line("10", 1, "33.333")}
	sale := holdSale(lines, decimal.Zero, "", decimal.Zero)

	recovered := RecoverTicket(sale)
	assertMoney(t, "33.30", recovered.Lines[0].DiscountPercent)

	again := Compute(Input{Lines: recovered.Lines, Settings: defaultSettings()})
	assertMoney(t, sale.TotalAmount.StringFixed(2), again.Total)
}
