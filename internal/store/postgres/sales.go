package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

const saleColumns = `id, ticket_number, user_id, customer_id, terminal_id, total_amount, payment_method, status,
	discount_amount, coupon_code, points_earned, points_redeemed, points_discount_amount, refunded_amount,
	refund_status, refund_related_sale_id, source, customer_info, notes, store_type, created_at`

const saleItemColumns = `id, sale_id, product_id, variant_id, product_name, variant_name, quantity, unit_price,
	subtotal, discount_amount, cost_amount, refunded_quantity, refund_amount, refund_reason, created_at`

func scanSale(row scanner) (domain.Sale, error) {
	var sale domain.Sale
	var userID, customerID, terminalID, couponCode, relatedID, customerInfo, notes sql.NullString
	err := row.Scan(&sale.ID, &sale.TicketNumber, &userID, &customerID, &terminalID, &sale.TotalAmount,
		&sale.PaymentMethod, &sale.Status, &sale.DiscountAmount, &couponCode, &sale.PointsEarned,
		&sale.PointsRedeemed, &sale.PointsDiscountAmount, &sale.RefundedAmount, &sale.RefundStatus, &relatedID,
		&sale.Source, &customerInfo, &notes, &sale.StoreType, &sale.CreatedAt)
	sale.UserID = userID.String
	sale.CustomerID = customerID.String
	sale.TerminalID = terminalID.String
	sale.CouponCode = couponCode.String
	sale.RefundRelatedSaleID = relatedID.String
	sale.CustomerInfo = customerInfo.String
	sale.Notes = notes.String
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, err
}

func scanSaleItem(row scanner) (domain.SaleItem, error) {
	var item domain.SaleItem
	var variantID, variantName, reason sql.NullString
	err := row.Scan(&item.ID, &item.SaleID, &item.ProductID, &variantID, &item.ProductName, &variantName,
		&item.Quantity, &item.UnitPrice, &item.Subtotal, &item.DiscountAmount, &item.CostAmount,
		&item.RefundedQuantity, &item.RefundAmount, &reason, &item.CreatedAt)
	item.VariantID = variantID.String
	item.VariantName = variantName.String
	item.RefundReason = reason.String
	item.CreatedAt = item.CreatedAt.UTC()
	return item, err
}

func (s *Store) CommitCheckout(ctx context.Context, commit domain.CheckoutCommit) (*domain.Sale, bool, error) {
	sale := commit.Sale
	if len(sale.Items) == 0 {
		return nil, false, store.ErrInvalidInput
	}

	if sale.IdempotencyKey != "" {
		existing, err := s.saleByIdempotencyKey(ctx, s.db, sale.IdempotencyKey)
		if err == nil {
			return existing, true, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := applyStock(ctx, tx, commit.Stock, -1); err != nil {
		return nil, false, err
	}

	if commit.CustomerID != "" {
		res, err := tx.ExecContext(ctx, `
			UPDATE customers
			SET points_balance = points_balance + $2 - $3
			WHERE id = $1 AND points_balance >= $3
		`, commit.CustomerID, commit.PointsEarned, commit.PointsRedeemed)
		if err != nil {
			return nil, false, err
		}
		if affected, err := res.RowsAffected(); err != nil {
			return nil, false, err
		} else if affected == 0 {
			if err := rowExists(ctx, tx, `SELECT 1 FROM customers WHERE id = $1`, commit.CustomerID); err != nil {
				return nil, false, err
			}
			return nil, false, store.ErrInsufficientPoints
		}
	}

	if commit.CouponCode != "" {
		res, err := tx.ExecContext(ctx, `
			UPDATE coupons
			SET current_uses = current_uses + 1
			WHERE store_type = $1 AND code = upper($2) AND (max_uses = 0 OR current_uses < max_uses)
		`, commit.StoreType, commit.CouponCode)
		if err != nil {
			return nil, false, err
		}
		if affected, err := res.RowsAffected(); err != nil {
			return nil, false, err
		} else if affected == 0 {
			if err := rowExists(ctx, tx, `SELECT 1 FROM coupons WHERE store_type = $1 AND code = upper($2)`, commit.StoreType, commit.CouponCode); err != nil {
				return nil, false, err
			}
			return nil, false, store.ErrCouponExhausted
		}
	}

	saved, err := insertSale(ctx, tx, sale)
	if err != nil {
		if isUniqueViolation(err) && sale.IdempotencyKey != "" {
			// A concurrent checkout with the same key won the race.
			_ = tx.Rollback()
			existing, lookupErr := s.saleByIdempotencyKey(ctx, s.db, sale.IdempotencyKey)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			return existing, true, nil
		}
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	s.logger.Debug("checkout committed", zap.String("sale_id", saved.ID), zap.Int64("ticket_number", saved.TicketNumber))
	return saved, false, nil
}

// applyStock applies guarded movements. sign is -1 for a sale and +1 for a restock.
func applyStock(ctx context.Context, tx *sql.Tx, movements []domain.StockMovement, sign int) error {
	for _, m := range movements {
		if m.Quantity < 1 {
			return store.ErrInvalidInput
		}
		delta := sign * m.Quantity
		table, id := "products", m.ProductID
		if m.VariantID != "" {
			table, id = "product_variants", m.VariantID
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE `+table+`
			SET stock = stock + $2
			WHERE id = $1 AND stock + $2 >= 0
		`, id, delta)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			if err := rowExists(ctx, tx, `SELECT 1 FROM `+table+` WHERE id = $1`, id); err != nil {
				return err
			}
			return store.ErrInsufficientStock
		}
	}
	return nil
}

func rowExists(ctx context.Context, q queryer, query string, args ...any) error {
	var one int
	return notFound(q.QueryRowContext(ctx, query, args...).Scan(&one))
}

func insertSale(ctx context.Context, q queryer, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.RefundStatus == "" {
		sale.RefundStatus = domain.RefundNone
	}
	if sale.Source == "" {
		sale.Source = domain.SourcePOS
	}

	err := q.QueryRowContext(ctx, `
		INSERT INTO sales (
			id, user_id, customer_id, terminal_id, total_amount, payment_method, status, discount_amount,
			coupon_code, points_earned, points_redeemed, points_discount_amount, refunded_amount, refund_status,
			refund_related_sale_id, source, customer_info, notes, store_type, idempotency_key, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		RETURNING ticket_number
	`, sale.ID, nullIfEmpty(sale.UserID), nullIfEmpty(sale.CustomerID), nullIfEmpty(sale.TerminalID),
		sale.TotalAmount, sale.PaymentMethod, sale.Status, sale.DiscountAmount, nullIfEmpty(sale.CouponCode),
		sale.PointsEarned, sale.PointsRedeemed, sale.PointsDiscountAmount, sale.RefundedAmount, sale.RefundStatus,
		nullIfEmpty(sale.RefundRelatedSaleID), sale.Source, nullIfEmpty(sale.CustomerInfo), nullIfEmpty(sale.Notes),
		sale.StoreType, nullIfEmpty(sale.IdempotencyKey), sale.CreatedAt,
	).Scan(&sale.TicketNumber)
	if err != nil {
		return nil, err
	}

	items := make([]domain.SaleItem, len(sale.Items))
	for i, item := range sale.Items {
		if item.ID == "" {
			item.ID = xid.New("sitem")
		}
		item.SaleID = sale.ID
		item.CreatedAt = sale.CreatedAt
		_, err := q.ExecContext(ctx, `
			INSERT INTO sale_items (`+saleItemColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		`, item.ID, item.SaleID, item.ProductID, nullIfEmpty(item.VariantID), item.ProductName,
			nullIfEmpty(item.VariantName), item.Quantity, item.UnitPrice, item.Subtotal, item.DiscountAmount,
			item.CostAmount, item.RefundedQuantity, item.RefundAmount, nullIfEmpty(item.RefundReason), item.CreatedAt)
		if err != nil {
			return nil, err
		}
		items[i] = item
	}
	sale.Items = items
	return &sale, nil
}

func (s *Store) saleByIdempotencyKey(ctx context.Context, q queryer, key string) (*domain.Sale, error) {
	sale, err := scanSale(q.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE idempotency_key = $1`, key))
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.attachItems(ctx, q, []*domain.Sale{&sale}); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) attachItems(ctx context.Context, q queryer, sales []*domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sales))
	byID := make(map[string]*domain.Sale, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
		byID[sale.ID] = sale
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+saleItemColumns+`
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY created_at, id
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanSaleItem(rows)
		if err != nil {
			return err
		}
		if sale, ok := byID[item.SaleID]; ok {
			sale.Items = append(sale.Items, item)
		}
	}
	return rows.Err()
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.Status == "" || sale.StoreType == "" {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	saved, err := insertSale(ctx, tx, sale)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.getSale(ctx, s.db, id, false)
}

func (s *Store) getSale(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	sale, err := scanSale(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.attachItems(ctx, q, []*domain.Sale{&sale}); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}
	statuses := filter.Statuses
	if statuses == nil {
		statuses = []string{}
	}
	var from, to any
	if !filter.From.IsZero() {
		from = filter.From
	}
	if !filter.To.IsZero() {
		to = filter.To
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE ($1 = '' OR store_type = $1)
			AND (cardinality($2::text[]) = 0 OR status = ANY($2))
			AND ($3::timestamptz IS NULL OR created_at >= $3)
			AND ($4::timestamptz IS NULL OR created_at < $4)
		ORDER BY ticket_number DESC
		LIMIT $5
	`, filter.StoreType, statuses, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*domain.Sale, len(sales))
	for i := range sales {
		ptrs[i] = &sales[i]
	}
	if err := s.attachItems(ctx, s.db, ptrs); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) CountSales(ctx context.Context, storeType string, status string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM sales
		WHERE ($1 = '' OR store_type = $1) AND status = $2
	`, storeType, status).Scan(&count)
	return count, err
}

func (s *Store) TransitionSaleStatus(ctx context.Context, id string, from string, to string) (*domain.Sale, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE sales SET status = $3 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if err := rowExists(ctx, s.db, `SELECT 1 FROM sales WHERE id = $1`, id); err != nil {
			return nil, err
		}
		return nil, store.ErrInvalidTransition
	}
	return s.GetSale(ctx, id)
}

func (s *Store) PopHeldSale(ctx context.Context, id string) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := s.getSale(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if sale.Status != domain.SaleHeld {
		return nil, store.ErrInvalidTransition
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string, statuses ...string) error {
	if statuses == nil {
		statuses = []string{}
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sales
		WHERE id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
	`, id, statuses)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if err := rowExists(ctx, s.db, `SELECT 1 FROM sales WHERE id = $1`, id); err != nil {
			return err
		}
		return store.ErrInvalidTransition
	}
	return nil
}

func (s *Store) CommitRefund(ctx context.Context, commit domain.RefundCommit) (*domain.RefundResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	original, err := s.getSale(ctx, tx, commit.SaleID, true)
	if err != nil {
		return nil, err
	}
	if original.Status != domain.SaleCompleted {
		return nil, store.ErrInvalidTransition
	}

	idx := -1
	for i, item := range original.Items {
		if item.ID == commit.SaleItemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	item := original.Items[idx]
	if commit.Quantity < 1 || commit.Quantity > item.RemainingQuantity() {
		return nil, store.ErrInvalidInput
	}

	if commit.Restock != nil {
		if err := applyStock(ctx, tx, []domain.StockMovement{*commit.Restock}, 1); err != nil {
			return nil, err
		}
	}

	item.RefundedQuantity += commit.Quantity
	item.RefundAmount = item.RefundAmount.Add(commit.Amount)
	item.RefundReason = commit.Reason
	original.Items[idx] = item
	original.RefundedAmount = original.RefundedAmount.Add(commit.Amount)
	original.RefundStatus = refundStatus(original.Items)

	if _, err := tx.ExecContext(ctx, `
		UPDATE sale_items
		SET refunded_quantity = $2, refund_amount = $3, refund_reason = $4
		WHERE id = $1
	`, item.ID, item.RefundedQuantity, item.RefundAmount, nullIfEmpty(item.RefundReason)); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sales
		SET refunded_amount = $2, refund_status = $3
		WHERE id = $1
	`, original.ID, original.RefundedAmount, original.RefundStatus); err != nil {
		return nil, err
	}

	if commit.CustomerID != "" && commit.PointsDelta != 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE customers
			SET points_balance = GREATEST(0, points_balance + $2)
			WHERE id = $1
		`, commit.CustomerID, commit.PointsDelta); err != nil {
			return nil, err
		}
	}

	refund := commit.RefundSale
	refund.RefundRelatedSaleID = original.ID
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = commit.At
	}
	saved, err := insertSale(ctx, tx, refund)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &domain.RefundResult{Original: *original, Refund: *saved}, nil
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

func (s *Store) TopProducts(ctx context.Context, storeType string, from time.Time, limit int) ([]domain.ProductSales, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT si.product_id, min(si.product_name),
			COALESCE(sum(si.quantity - si.refunded_quantity), 0),
			COALESCE(sum(si.subtotal - si.refund_amount), 0)
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.status = 'completed'
			AND ($1 = '' OR s.store_type = $1)
			AND s.created_at >= $2
		GROUP BY si.product_id
		ORDER BY 3 DESC, 2 ASC
		LIMIT $3
	`, storeType, from, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ProductSales, 0, limit)
	for rows.Next() {
		var entry domain.ProductSales
		if err := rows.Scan(&entry.ProductID, &entry.ProductName, &entry.Quantity, &entry.Revenue); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
