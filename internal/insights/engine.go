package insights

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tiendapos/backend/internal/cache"
	"tiendapos/backend/internal/domain"
)

// TrendDays is the length of the sales-by-day and top-products windows.
const TrendDays = 30

const topProductLimit = 5

// Source is the raw data a dashboard is computed from.
type Source struct {
	// Sales holds completed and refund sales created at or after Window().
	Sales             []domain.Sale
	Products          []domain.Product
	TopProducts       []domain.ProductSales
	LowStockThreshold int
	PendingOrders     int
}

// Loader fetches the Source for a store type; from is the earliest sale time needed.
type Loader func(ctx context.Context, from time.Time) (Source, error)

type Engine struct {
	cache    cache.Cache[domain.Dashboard]
	cacheTTL time.Duration
	location *time.Location
	logger   *zap.Logger
}

func NewEngine(cacheStore cache.Cache[domain.Dashboard], cacheTTL time.Duration, location *time.Location, logger *zap.Logger) *Engine {
	if cacheStore == nil {
		cacheStore = cache.Noop[domain.Dashboard]{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		location: location,
		logger:   logger.Named("insights"),
	}
}

// Window returns the earliest instant any dashboard metric looks at.
func (e *Engine) Window(now time.Time) time.Time {
	local := now.In(e.location)
	dayStart := startOfDay(local)
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, e.location)
	trendStart := dayStart.AddDate(0, 0, -(TrendDays - 1))
	if monthStart.Before(trendStart) {
		return monthStart
	}
	return trendStart
}

func (e *Engine) Dashboard(ctx context.Context, storeType string, now time.Time, load Loader) (domain.Dashboard, error) {
	cacheKey := buildCacheKey(storeType, now.In(e.location))
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		cached.Cached = true
		return *cached, nil
	} else if err != nil {
		e.logger.Warn("dashboard cache read failed", zap.Error(err))
	}

	source, err := load(ctx, e.Window(now))
	if err != nil {
		return domain.Dashboard{}, err
	}
	dashboard := e.Compute(storeType, now, source)

	if err := e.cache.Set(ctx, cacheKey, &dashboard, e.cacheTTL); err != nil {
		e.logger.Warn("dashboard cache write failed", zap.Error(err))
	}
	return dashboard, nil
}

// Compute is the uncached dashboard projection of source at now.
func (e *Engine) Compute(storeType string, now time.Time, source Source) domain.Dashboard {
	local := now.In(e.location)
	dayStart := startOfDay(local)
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, e.location)
	trendStart := dayStart.AddDate(0, 0, -(TrendDays - 1))

	dashboard := domain.Dashboard{
		StoreType:      storeType,
		TodaySales:     decimal.Zero,
		MonthSales:     decimal.Zero,
		MonthCost:      decimal.Zero,
		MonthDiscounts: decimal.Zero,
		PendingOrders:  source.PendingOrders,
		TopProducts:    source.TopProducts,
		GeneratedAt:    now.UTC(),
	}
	if dashboard.TopProducts == nil {
		dashboard.TopProducts = []domain.ProductSales{}
	}
	if len(dashboard.TopProducts) > topProductLimit {
		dashboard.TopProducts = dashboard.TopProducts[:topProductLimit]
	}

	byDay := make(map[string]*domain.DailySales, TrendDays)
	dashboard.SalesByDay = make([]domain.DailySales, TrendDays)
	for i := range dashboard.SalesByDay {
		day := trendStart.AddDate(0, 0, i).Format(time.DateOnly)
		dashboard.SalesByDay[i] = domain.DailySales{Date: day, Total: decimal.Zero}
		byDay[day] = &dashboard.SalesByDay[i]
	}

	for _, sale := range source.Sales {
		if sale.Status != domain.SaleCompleted && sale.Status != domain.SaleRefund {
			continue
		}
		created := sale.CreatedAt.In(e.location)
		completed := sale.Status == domain.SaleCompleted

		if !created.Before(dayStart) {
			dashboard.TodaySales = dashboard.TodaySales.Add(sale.TotalAmount)
			if completed {
				dashboard.TodaySaleCount++
			}
		}
		if !created.Before(monthStart) {
			dashboard.MonthSales = dashboard.MonthSales.Add(sale.TotalAmount)
			if completed {
				dashboard.MonthCost = dashboard.MonthCost.Add(retainedCost(sale.Items))
				dashboard.MonthDiscounts = dashboard.MonthDiscounts.Add(sale.DiscountAmount)
				dashboard.MonthPointsRedeemed += sale.PointsRedeemed
			}
		}
		if entry, ok := byDay[created.Format(time.DateOnly)]; ok {
			entry.Total = entry.Total.Add(sale.TotalAmount)
			if completed {
				entry.Count++
			}
		}
	}

	dashboard.LowStock = lowStock(source.Products, source.LowStockThreshold)
	return dashboard
}

// retainedCost is the cost of the units that were not refunded.
func retainedCost(items []domain.SaleItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.Quantity < 1 {
			continue
		}
		remaining := decimal.NewFromInt(int64(item.RemainingQuantity()))
		total = total.Add(item.CostAmount.Mul(remaining).Div(decimal.NewFromInt(int64(item.Quantity))).Round(2))
	}
	return total
}

func lowStock(products []domain.Product, threshold int) []domain.LowStockItem {
	result := make([]domain.LowStockItem, 0, 8)
	for _, product := range products {
		if !product.Active {
			continue
		}
		activeVariants := 0
		for _, variant := range product.Variants {
			if !variant.Active {
				continue
			}
			activeVariants++
			if variant.Stock <= threshold {
				result = append(result, domain.LowStockItem{
					ProductID: product.ID,
					VariantID: variant.ID,
					Name:      product.Name + " (" + variant.Name + ")",
					Stock:     variant.Stock,
					Threshold: threshold,
				})
			}
		}
		if activeVariants == 0 && product.Stock <= threshold {
			result = append(result, domain.LowStockItem{
				ProductID: product.ID,
				Name:      product.Name,
				Stock:     product.Stock,
				Threshold: threshold,
			})
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Stock != result[j].Stock {
			return result[i].Stock < result[j].Stock
		}
		return result[i].Name < result[j].Name
	})
	return result
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func buildCacheKey(storeType string, local time.Time) string {
	parts := []string{storeType, local.Format(time.DateOnly), local.Location().String()}
	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return "pos:dashboard:" + hex.EncodeToString(hash[:])
}
