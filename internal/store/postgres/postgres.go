package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger.Named("postgres")}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListCategories(ctx context.Context, storeType string) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, store_type, created_at
		FROM categories
		WHERE ($1 = '' OR store_type = $1)
		ORDER BY name
	`, storeType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.StoreType, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if strings.TrimSpace(category.Name) == "" || category.StoreType == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, store_type, created_at)
		VALUES ($1,$2,$3,$4)
	`, category.ID, category.Name, category.StoreType, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

const productColumns = `id, name, category, price, cost, stock, image_url, is_active, store_type, created_at`

func scanProduct(row scanner) (domain.Product, error) {
	var p domain.Product
	var imageURL sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Cost, &p.Stock, &imageURL, &p.Active, &p.StoreType, &p.CreatedAt)
	p.ImageURL = imageURL.String
	p.CreatedAt = p.CreatedAt.UTC()
	return p, err
}

const variantColumns = `id, product_id, name, price, cost, stock, image_url, is_active`

func scanVariant(row scanner) (domain.Variant, error) {
	var v domain.Variant
	var imageURL sql.NullString
	err := row.Scan(&v.ID, &v.ProductID, &v.Name, &v.Price, &v.Cost, &v.Stock, &imageURL, &v.Active)
	v.ImageURL = imageURL.String
	return v, err
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE ($1 = '' OR store_type = $1)
			AND ($2 = '' OR lower(category) = lower($2))
			AND ($3 = '' OR name ILIKE '%' || $3 || '%')
			AND ($4 OR is_active = true)
		ORDER BY category, name
	`, filter.StoreType, filter.Category, strings.TrimSpace(filter.Search), filter.IncludeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	ids := make([]string, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return products, nil
	}

	variants, err := s.variantsFor(ctx, s.db, ids, filter.IncludeInactive)
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Variants = variants[products[i].ID]
	}
	return products, nil
}

func (s *Store) variantsFor(ctx context.Context, q queryer, productIDs []string, includeInactive bool) (map[string][]domain.Variant, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+variantColumns+`
		FROM product_variants
		WHERE product_id = ANY($1) AND ($2 OR is_active = true)
		ORDER BY name
	`, productIDs, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]domain.Variant, len(productIDs))
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		result[v.ProductID] = append(result[v.ProductID], v)
	}
	return result, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	variants, err := s.variantsFor(ctx, s.db, []string{id}, true)
	if err != nil {
		return nil, err
	}
	p.Variants = variants[id]
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.StoreType == "" || product.Price.IsNegative() || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, product.ID, product.Name, product.Category, product.Price, product.Cost, product.Stock,
		nullIfEmpty(product.ImageURL), product.Active, product.StoreType, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	product.Variants = nil
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price = $4, cost = $5, stock = $6, image_url = $7, is_active = $8
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.Price, product.Cost, product.Stock,
		nullIfEmpty(product.ImageURL), product.Active)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) GetVariant(ctx context.Context, id string) (*domain.Variant, error) {
	v, err := scanVariant(s.db.QueryRowContext(ctx, `SELECT `+variantColumns+` FROM product_variants WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

func (s *Store) CreateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error) {
	if strings.TrimSpace(variant.Name) == "" || variant.Price.IsNegative() || variant.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if variant.ID == "" {
		variant.ID = xid.New("var")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_variants (`+variantColumns+`)
		SELECT $1,$2,$3,$4,$5,$6,$7,$8
		WHERE EXISTS (SELECT 1 FROM products WHERE id = $2)
	`, variant.ID, variant.ProductID, variant.Name, variant.Price, variant.Cost, variant.Stock,
		nullIfEmpty(variant.ImageURL), variant.Active)
	if err != nil {
		return nil, err
	}
	return s.GetVariant(ctx, variant.ID)
}

func (s *Store) UpdateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error) {
	if strings.TrimSpace(variant.Name) == "" || variant.Price.IsNegative() || variant.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE product_variants
		SET name = $2, price = $3, cost = $4, stock = $5, image_url = $6, is_active = $7
		WHERE id = $1
	`, variant.ID, variant.Name, variant.Price, variant.Cost, variant.Stock, nullIfEmpty(variant.ImageURL), variant.Active)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return s.GetVariant(ctx, variant.ID)
}

const customerColumns = `id, full_name, email, phone, birth_date, points_balance, store_type, created_at`

func scanCustomer(row scanner) (domain.Customer, error) {
	var c domain.Customer
	var email, phone sql.NullString
	var birth sql.NullTime
	err := row.Scan(&c.ID, &c.FullName, &email, &phone, &birth, &c.PointsBalance, &c.StoreType, &c.CreatedAt)
	c.Email = email.String
	c.Phone = phone.String
	if birth.Valid {
		date := time.Date(birth.Time.Year(), birth.Time.Month(), birth.Time.Day(), 0, 0, 0, 0, time.UTC)
		c.BirthDate = &date
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, err
}

func (s *Store) ListCustomers(ctx context.Context, storeType string, search string, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE ($1 = '' OR store_type = $1)
			AND ($2 = '' OR full_name ILIKE '%' || $2 || '%' OR phone LIKE '%' || $2 || '%')
		ORDER BY full_name
		LIMIT $3
	`, storeType, strings.TrimSpace(search), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Customer, 0, 32)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) FindCustomerByPhone(ctx context.Context, storeType string, phone string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE store_type = $1 AND phone = $2
	`, storeType, strings.TrimSpace(phone)))
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.FullName) == "" || customer.StoreType == "" || customer.PointsBalance < 0 {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, customer.ID, customer.FullName, nullIfEmpty(customer.Email), nullIfEmpty(customer.Phone),
		nullTime(customer.BirthDate), customer.PointsBalance, customer.StoreType, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.FullName) == "" {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET full_name = $2, email = $3, phone = $4, birth_date = $5
		WHERE id = $1
	`, customer.ID, customer.FullName, nullIfEmpty(customer.Email), nullIfEmpty(customer.Phone), nullTime(customer.BirthDate))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return s.GetCustomer(ctx, customer.ID)
}

func (s *Store) AdjustCustomerPoints(ctx context.Context, id string, delta int64) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET points_balance = points_balance + $2
		WHERE id = $1 AND points_balance + $2 >= 0
		RETURNING `+customerColumns, id, delta))
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if _, err := s.GetCustomer(ctx, id); err != nil {
		return nil, err
	}
	return nil, store.ErrInsufficientPoints
}

const couponColumns = `id, code, discount_type, discount_value, max_uses, current_uses, min_purchase_amount, is_birthday_coupon, active, store_type, created_at`

func scanCoupon(row scanner) (domain.Coupon, error) {
	var c domain.Coupon
	err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.MaxUses, &c.CurrentUses,
		&c.MinPurchaseAmount, &c.BirthdayOnly, &c.Active, &c.StoreType, &c.CreatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, err
}

func (s *Store) ListCoupons(ctx context.Context, storeType string) ([]domain.Coupon, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+couponColumns+`
		FROM coupons
		WHERE ($1 = '' OR store_type = $1)
		ORDER BY code
	`, storeType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Coupon, 0, 16)
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) GetCoupon(ctx context.Context, id string) (*domain.Coupon, error) {
	c, err := scanCoupon(s.db.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) GetCouponByCode(ctx context.Context, storeType string, code string) (*domain.Coupon, error) {
	c, err := scanCoupon(s.db.QueryRowContext(ctx, `
		SELECT `+couponColumns+`
		FROM coupons
		WHERE store_type = $1 AND code = upper($2)
	`, storeType, strings.TrimSpace(code)))
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) CreateCoupon(ctx context.Context, coupon domain.Coupon) (*domain.Coupon, error) {
	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	if coupon.Code == "" || coupon.StoreType == "" {
		return nil, store.ErrInvalidInput
	}
	if coupon.ID == "" {
		coupon.ID = xid.New("cpn")
	}
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coupons (`+couponColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, coupon.ID, coupon.Code, coupon.DiscountType, coupon.DiscountValue, coupon.MaxUses, coupon.CurrentUses,
		coupon.MinPurchaseAmount, coupon.BirthdayOnly, coupon.Active, coupon.StoreType, coupon.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &coupon, nil
}

// UpdateCoupon never touches code, store_type or current_uses.
func (s *Store) UpdateCoupon(ctx context.Context, coupon domain.Coupon) (*domain.Coupon, error) {
	c, err := scanCoupon(s.db.QueryRowContext(ctx, `
		UPDATE coupons
		SET discount_type = $2, discount_value = $3, max_uses = $4, min_purchase_amount = $5,
			is_birthday_coupon = $6, active = $7
		WHERE id = $1
		RETURNING `+couponColumns,
		coupon.ID, coupon.DiscountType, coupon.DiscountValue, coupon.MaxUses, coupon.MinPurchaseAmount,
		coupon.BirthdayOnly, coupon.Active))
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) DeleteCoupon(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) ListDiscounts(ctx context.Context, storeType string) ([]domain.Discount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, value, store_type, created_at
		FROM discounts
		WHERE ($1 = '' OR store_type = $1)
		ORDER BY name
	`, storeType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Discount, 0, 16)
	for rows.Next() {
		var d domain.Discount
		if err := rows.Scan(&d.ID, &d.Name, &d.Type, &d.Value, &d.StoreType, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.CreatedAt = d.CreatedAt.UTC()
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *Store) CreateDiscount(ctx context.Context, discount domain.Discount) (*domain.Discount, error) {
	if strings.TrimSpace(discount.Name) == "" || discount.StoreType == "" || discount.Value.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if discount.ID == "" {
		discount.ID = xid.New("dsc")
	}
	if discount.CreatedAt.IsZero() {
		discount.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discounts (id, name, type, value, store_type, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, discount.ID, discount.Name, discount.Type, discount.Value, discount.StoreType, discount.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &discount, nil
}

func (s *Store) DeleteDiscount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM discounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

const settingsColumns = `store_type, vat_rate, points_earning_percentage, currency_per_point_redemption,
	points_per_currency_unit, low_stock_threshold, store_name, business_address, business_phone,
	business_logo_url, ticket_header, ticket_footer, terms_of_use, privacy_policy, quote_notes,
	order_notification_sound, updated_at`

func scanSettings(row scanner) (domain.Settings, error) {
	var st domain.Settings
	err := row.Scan(&st.StoreType, &st.VATRate, &st.PointsEarningPercentage, &st.CurrencyPerPointRedemption,
		&st.PointsPerCurrencyUnit, &st.LowStockThreshold, &st.StoreName, &st.BusinessAddress, &st.BusinessPhone,
		&st.BusinessLogoURL, &st.TicketHeader, &st.TicketFooter, &st.TermsOfUse, &st.PrivacyPolicy, &st.QuoteNotes,
		&st.OrderNotificationSound, &st.UpdatedAt)
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, err
}

func (s *Store) GetSettings(ctx context.Context, storeType string) (*domain.Settings, error) {
	st, err := scanSettings(s.db.QueryRowContext(ctx, `SELECT `+settingsColumns+` FROM settings WHERE store_type = $1`, storeType))
	if err != nil {
		return nil, notFound(err)
	}
	return &st, nil
}

func (s *Store) UpsertSettings(ctx context.Context, st domain.Settings) (*domain.Settings, error) {
	if st.StoreType == "" {
		return nil, store.ErrInvalidInput
	}
	saved, err := scanSettings(s.db.QueryRowContext(ctx, `
		INSERT INTO settings (`+settingsColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now())
		ON CONFLICT (store_type) DO UPDATE SET
			vat_rate = EXCLUDED.vat_rate,
			points_earning_percentage = EXCLUDED.points_earning_percentage,
			currency_per_point_redemption = EXCLUDED.currency_per_point_redemption,
			points_per_currency_unit = EXCLUDED.points_per_currency_unit,
			low_stock_threshold = EXCLUDED.low_stock_threshold,
			store_name = EXCLUDED.store_name,
			business_address = EXCLUDED.business_address,
			business_phone = EXCLUDED.business_phone,
			business_logo_url = EXCLUDED.business_logo_url,
			ticket_header = EXCLUDED.ticket_header,
			ticket_footer = EXCLUDED.ticket_footer,
			terms_of_use = EXCLUDED.terms_of_use,
			privacy_policy = EXCLUDED.privacy_policy,
			quote_notes = EXCLUDED.quote_notes,
			order_notification_sound = EXCLUDED.order_notification_sound,
			updated_at = now()
		RETURNING `+settingsColumns,
		st.StoreType, st.VATRate, st.PointsEarningPercentage, st.CurrencyPerPointRedemption,
		st.PointsPerCurrencyUnit, st.LowStockThreshold, st.StoreName, st.BusinessAddress, st.BusinessPhone,
		st.BusinessLogoURL, st.TicketHeader, st.TicketFooter, st.TermsOfUse, st.PrivacyPolicy, st.QuoteNotes,
		st.OrderNotificationSound))
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) ListTerminals(ctx context.Context) ([]domain.Terminal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, location, status, created_at
		FROM terminals
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Terminal, 0, 8)
	for rows.Next() {
		var t domain.Terminal
		if err := rows.Scan(&t.ID, &t.Name, &t.Location, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) GetTerminal(ctx context.Context, id string) (*domain.Terminal, error) {
	var t domain.Terminal
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, location, status, created_at
		FROM terminals
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Location, &t.Status, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func (s *Store) CreateTerminal(ctx context.Context, terminal domain.Terminal) (*domain.Terminal, error) {
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO terminals (id, name, location, status, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, terminal.ID, terminal.Name, terminal.Location, terminal.Status, terminal.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &terminal, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_type, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreType, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeType string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_type, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR store_type = $1)
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeType, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreType, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
