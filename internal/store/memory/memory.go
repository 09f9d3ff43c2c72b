package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	categories      map[string]domain.Category
	products        map[string]domain.Product
	variants        map[string]domain.Variant
	customers       map[string]domain.Customer
	coupons         map[string]domain.Coupon
	discounts       map[string]domain.Discount
	settings        map[string]domain.Settings
	terminals       map[string]domain.Terminal
	sales           map[string]domain.Sale
	salesByIdem     map[string]string
	nextTicket      int64
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// New returns an empty store. Tests that need a known catalog use NewSeeded.
func New() *Store {
	return &Store{
		categories:      make(map[string]domain.Category),
		products:        make(map[string]domain.Product),
		variants:        make(map[string]domain.Variant),
		customers:       make(map[string]domain.Customer),
		coupons:         make(map[string]domain.Coupon),
		discounts:       make(map[string]domain.Discount),
		settings:        make(map[string]domain.Settings),
		terminals:       make(map[string]domain.Terminal),
		sales:           make(map[string]domain.Sale),
		salesByIdem:     make(map[string]string),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Empty passwords fall back to hardcoded dev defaults with a warning. These
// credentials are never used in production (the backend uses PostgreSQL when
// DATABASE_URL is set).
func seedUsers(logger *zap.Logger, adminPwd string, cashierPwd string) map[string]domain.UserAccount {
	if adminPwd == "" || cashierPwd == "" {
		logger.Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}
	if adminPwd == "" {
		adminPwd = "admin123"
	}
	if cashierPwd == "" {
		cashierPwd = "cashier123"
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("failed to hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func money(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

// NewSeeded returns a store with a small demo catalog, customers, coupons,
// terminals and the admin/cashier accounts.
func NewSeeded(logger *zap.Logger, adminPwd string, cashierPwd string) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()
	now := time.Now().UTC()

	for _, c := range []domain.Category{
		{ID: "cat_abarrotes", Name: "Abarrotes", StoreType: domain.StoreRetail},
		{ID: "cat_lacteos", Name: "Lacteos", StoreType: domain.StoreRetail},
		{ID: "cat_ropa", Name: "Ropa", StoreType: domain.StoreRetail},
		{ID: "cat_limpieza", Name: "Limpieza", StoreType: domain.StoreRetail},
		{ID: "cat_mayoreo", Name: "Cajas", StoreType: domain.StoreWholesale},
	} {
		c.CreatedAt = now
		s.categories[c.ID] = c
	}

	for _, p := range []domain.Product{
		{ID: "prod_cafe", Name: "Cafe de Olla 500g", Category: "Abarrotes", Price: money("120"), Cost: money("70"), Stock: 40},
		{ID: "prod_pan", Name: "Pan Dulce", Category: "Abarrotes", Price: money("12.50"), Cost: money("6"), Stock: 120},
		{ID: "prod_leche", Name: "Leche Entera 1L", Category: "Lacteos", Price: money("28"), Cost: money("21"), Stock: 60},
		{ID: "prod_playera", Name: "Playera Basica", Category: "Ropa", Price: money("199"), Cost: money("90"), Stock: 0},
		{ID: "prod_jabon", Name: "Jabon de Lavanda", Category: "Limpieza", Price: money("35"), Cost: money("15"), Stock: 3},
		{ID: "prod_cafe_caja", Name: "Cafe de Olla caja 12pz", Category: "Cajas", Price: money("1250"), Cost: money("800"), Stock: 10, StoreType: domain.StoreWholesale},
	} {
		if p.StoreType == "" {
			p.StoreType = domain.StoreRetail
		}
		p.Active = true
		p.CreatedAt = now
		s.products[p.ID] = p
	}
	for _, v := range []domain.Variant{
		{ID: "var_playera_m", ProductID: "prod_playera", Name: "Mediana", Price: money("199"), Cost: money("90"), Stock: 8},
		{ID: "var_playera_g", ProductID: "prod_playera", Name: "Grande", Price: money("219"), Cost: money("95"), Stock: 5},
	} {
		v.Active = true
		s.variants[v.ID] = v
	}

	anaBirth := time.Date(1990, time.March, 3, 0, 0, 0, 0, time.UTC)
	luisBirth := time.Date(1985, time.October, 21, 0, 0, 0, 0, time.UTC)
	for _, c := range []domain.Customer{
		{ID: "cust_ana", FullName: "Ana Torres", Email: "ana@example.com", Phone: "5550001111", BirthDate: &anaBirth, PointsBalance: 120},
		{ID: "cust_luis", FullName: "Luis Perez", Phone: "5550002222", BirthDate: &luisBirth, PointsBalance: 0},
	} {
		c.StoreType = domain.StoreRetail
		c.CreatedAt = now
		s.customers[c.ID] = c
	}

	for _, c := range []domain.Coupon{
		{ID: "cpn_bienvenido", Code: "BIENVENIDO10", DiscountType: domain.DiscountPercentage, DiscountValue: money("10"), MinPurchaseAmount: money("100")},
		{ID: "cpn_fijo", Code: "FIJO50", DiscountType: domain.DiscountFixed, DiscountValue: money("50"), MaxUses: 100},
		{ID: "cpn_cumple", Code: "CUMPLE", DiscountType: domain.DiscountFixed, DiscountValue: money("100"), BirthdayOnly: true},
		{ID: "cpn_agotado", Code: "AGOTADO", DiscountType: domain.DiscountFixed, DiscountValue: money("20"), MaxUses: 1, CurrentUses: 1},
	} {
		c.Active = true
		c.StoreType = domain.StoreRetail
		c.CreatedAt = now
		s.coupons[c.ID] = c
	}

	for _, d := range []domain.Discount{
		{ID: "dsc_empleado", Name: "Empleado", Type: domain.DiscountPercentage, Value: money("10"), StoreType: domain.StoreRetail},
		{ID: "dsc_mayoreo", Name: "Mayoreo", Type: domain.DiscountPercentage, Value: money("5"), StoreType: domain.StoreWholesale},
	} {
		d.CreatedAt = now
		s.discounts[d.ID] = d
	}

	retail := domain.DefaultSettings(domain.StoreRetail)
	retail.StoreName = "Tienda La Esquina"
	retail.BusinessAddress = "Av. Juarez 120, Centro"
	retail.BusinessPhone = "5551234567"
	retail.QuoteNotes = "Precios sujetos a cambio sin previo aviso."
	retail.UpdatedAt = now
	s.settings[domain.StoreRetail] = retail

	for _, t := range []domain.Terminal{
		{ID: "term_caja1", Name: "Caja 1", Location: "Mostrador"},
		{ID: "term_caja2", Name: "Caja 2", Location: "Entrada"},
	} {
		t.Status = domain.TerminalActive
		t.CreatedAt = now
		s.terminals[t.ID] = t
	}

	s.usersByUsername = seedUsers(logger, adminPwd, cashierPwd)
	return s
}

func (s *Store) ListCategories(_ context.Context, storeType string) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if storeType != "" && c.StoreType != storeType {
			continue
		}
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b domain.Category) int {
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(category.Name) == "" || category.StoreType == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.categories {
		if existing.StoreType == category.StoreType && strings.EqualFold(existing.Name, category.Name) {
			return nil, store.ErrConflict
		}
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active && !filter.IncludeInactive {
			continue
		}
		if filter.StoreType != "" && p.StoreType != filter.StoreType {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(p.Category, filter.Category) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		p.Variants = s.variantsOf(p.ID, filter.IncludeInactive)
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.Variants = s.variantsOf(id, true)
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(product.Name) == "" || product.StoreType == "" || product.Price.IsNegative() || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Variants = nil
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.StoreType = existing.StoreType
	product.CreatedAt = existing.CreatedAt
	product.Variants = nil
	s.products[product.ID] = product
	updated := product
	updated.Variants = s.variantsOf(product.ID, true)
	return &updated, nil
}

func (s *Store) GetVariant(_ context.Context, id string) (*domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	variant, exists := s.variants[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &variant, nil
}

func (s *Store) CreateVariant(_ context.Context, variant domain.Variant) (*domain.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(variant.Name) == "" || variant.Price.IsNegative() || variant.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[variant.ProductID]; !exists {
		return nil, store.ErrNotFound
	}
	if variant.ID == "" {
		variant.ID = xid.New("var")
	}
	s.variants[variant.ID] = variant
	created := variant
	return &created, nil
}

func (s *Store) UpdateVariant(_ context.Context, variant domain.Variant) (*domain.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(variant.Name) == "" || variant.Price.IsNegative() || variant.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	existing, exists := s.variants[variant.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	variant.ProductID = existing.ProductID
	s.variants[variant.ID] = variant
	updated := variant
	return &updated, nil
}

func (s *Store) variantsOf(productID string, includeInactive bool) []domain.Variant {
	var result []domain.Variant
	for _, v := range s.variants {
		if v.ProductID != productID || (!v.Active && !includeInactive) {
			continue
		}
		result = append(result, v)
	}
	slices.SortFunc(result, func(a, b domain.Variant) int {
		return cmpString(a.Name, b.Name)
	})
	return result
}

func (s *Store) ListCustomers(_ context.Context, storeType string, search string, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(strings.TrimSpace(search))
	result := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if storeType != "" && c.StoreType != storeType {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.FullName), search) && !strings.Contains(c.Phone, search) {
			continue
		}
		result = append(result, cloneCustomer(c))
	}
	slices.SortFunc(result, func(a, b domain.Customer) int {
		return cmpString(a.FullName, b.FullName)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	result := cloneCustomer(customer)
	return &result, nil
}

func (s *Store) FindCustomerByPhone(_ context.Context, storeType string, phone string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	phone = strings.TrimSpace(phone)
	for _, c := range s.customers {
		if c.StoreType == storeType && phone != "" && c.Phone == phone {
			result := cloneCustomer(c)
			return &result, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(customer.FullName) == "" || customer.StoreType == "" || customer.PointsBalance < 0 {
		return nil, store.ErrInvalidInput
	}
	if customer.Phone != "" {
		for _, existing := range s.customers {
			if existing.StoreType == customer.StoreType && existing.Phone == customer.Phone {
				return nil, store.ErrConflict
			}
		}
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = cloneCustomer(customer)
	created := cloneCustomer(customer)
	return &created, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(customer.FullName) == "" {
		return nil, store.ErrInvalidInput
	}
	existing, exists := s.customers[customer.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if customer.Phone != "" {
		for _, other := range s.customers {
			if other.ID != customer.ID && other.StoreType == existing.StoreType && other.Phone == customer.Phone {
				return nil, store.ErrConflict
			}
		}
	}
	customer.StoreType = existing.StoreType
	customer.CreatedAt = existing.CreatedAt
	customer.PointsBalance = existing.PointsBalance
	s.customers[customer.ID] = cloneCustomer(customer)
	updated := cloneCustomer(customer)
	return &updated, nil
}

func (s *Store) AdjustCustomerPoints(_ context.Context, id string, delta int64) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if customer.PointsBalance+delta < 0 {
		return nil, store.ErrInsufficientPoints
	}
	customer.PointsBalance += delta
	s.customers[id] = customer
	result := cloneCustomer(customer)
	return &result, nil
}

func (s *Store) ListCoupons(_ context.Context, storeType string) ([]domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Coupon, 0, len(s.coupons))
	for _, c := range s.coupons {
		if storeType != "" && c.StoreType != storeType {
			continue
		}
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b domain.Coupon) int {
		return cmpString(a.Code, b.Code)
	})
	return result, nil
}

func (s *Store) GetCoupon(_ context.Context, id string) (*domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coupon, exists := s.coupons[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &coupon, nil
}

func (s *Store) GetCouponByCode(_ context.Context, storeType string, code string) (*domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if coupon, ok := s.couponByCode(storeType, code); ok {
		return &coupon, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) couponByCode(storeType string, code string) (domain.Coupon, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range s.coupons {
		if c.StoreType == storeType && c.Code == code {
			return c, true
		}
	}
	return domain.Coupon{}, false
}

func (s *Store) CreateCoupon(_ context.Context, coupon domain.Coupon) (*domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	if coupon.Code == "" || coupon.StoreType == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.couponByCode(coupon.StoreType, coupon.Code); exists {
		return nil, store.ErrConflict
	}
	if coupon.ID == "" {
		coupon.ID = xid.New("cpn")
	}
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = time.Now().UTC()
	}
	s.coupons[coupon.ID] = coupon
	created := coupon
	return &created, nil
}

func (s *Store) UpdateCoupon(_ context.Context, coupon domain.Coupon) (*domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.coupons[coupon.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	coupon.Code = existing.Code
	coupon.StoreType = existing.StoreType
	coupon.CurrentUses = existing.CurrentUses
	coupon.CreatedAt = existing.CreatedAt
	s.coupons[coupon.ID] = coupon
	updated := coupon
	return &updated, nil
}

func (s *Store) DeleteCoupon(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.coupons[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.coupons, id)
	return nil
}

func (s *Store) ListDiscounts(_ context.Context, storeType string) ([]domain.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Discount, 0, len(s.discounts))
	for _, d := range s.discounts {
		if storeType != "" && d.StoreType != storeType {
			continue
		}
		result = append(result, d)
	}
	slices.SortFunc(result, func(a, b domain.Discount) int {
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) CreateDiscount(_ context.Context, discount domain.Discount) (*domain.Discount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(discount.Name) == "" || discount.StoreType == "" || discount.Value.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if discount.ID == "" {
		discount.ID = xid.New("dsc")
	}
	if discount.CreatedAt.IsZero() {
		discount.CreatedAt = time.Now().UTC()
	}
	s.discounts[discount.ID] = discount
	created := discount
	return &created, nil
}

func (s *Store) DeleteDiscount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.discounts[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.discounts, id)
	return nil
}

func (s *Store) GetSettings(_ context.Context, storeType string) (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, exists := s.settings[storeType]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &settings, nil
}

func (s *Store) UpsertSettings(_ context.Context, settings domain.Settings) (*domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.StoreType == "" {
		return nil, store.ErrInvalidInput
	}
	settings.UpdatedAt = time.Now().UTC()
	s.settings[settings.StoreType] = settings
	saved := settings
	return &saved, nil
}

func (s *Store) ListTerminals(_ context.Context) ([]domain.Terminal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Terminal, 0, len(s.terminals))
	for _, t := range s.terminals {
		result = append(result, t)
	}
	slices.SortFunc(result, func(a, b domain.Terminal) int {
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) GetTerminal(_ context.Context, id string) (*domain.Terminal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terminal, exists := s.terminals[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &terminal, nil
}

func (s *Store) CreateTerminal(_ context.Context, terminal domain.Terminal) (*domain.Terminal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(terminal.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if terminal.ID == "" {
		terminal.ID = xid.New("term")
	}
	if terminal.Status == "" {
		terminal.Status = domain.TerminalActive
	}
	if terminal.CreatedAt.IsZero() {
		terminal.CreatedAt = time.Now().UTC()
	}
	s.terminals[terminal.ID] = terminal
	created := terminal
	return &created, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeType string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeType != "" && entry.StoreType != storeType {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneCustomer(src domain.Customer) domain.Customer {
	dup := src
	if src.BirthDate != nil {
		birth := *src.BirthDate
		dup.BirthDate = &birth
	}
	return dup
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}
