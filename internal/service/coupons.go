package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/apperr"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/pricing"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

var hundred = decimal.NewFromInt(100)

func (s *Service) ListCoupons(ctx context.Context, storeType string) ([]domain.Coupon, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	storeType, err := s.resolveStoreType(storeType)
	if err != nil {
		return nil, err
	}
	coupons, err := s.repo.ListCoupons(ctx, storeType)
	return coupons, wrapStorage("list coupons", err)
}

func (s *Service) CreateCoupon(ctx context.Context, req domain.CouponCreateRequest) (domain.Coupon, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Coupon{}, err
	}
	storeType, err := s.resolveStoreType(req.StoreType)
	if err != nil {
		return domain.Coupon{}, err
	}

	coupon := domain.Coupon{
		ID:                xid.New("cpn"),
		Code:              pricing.NormalizeCode(req.Code),
		DiscountType:      strings.ToLower(strings.TrimSpace(req.DiscountType)),
		DiscountValue:     req.DiscountValue,
		MaxUses:           req.MaxUses,
		MinPurchaseAmount: req.MinPurchaseAmount,
		BirthdayOnly:      req.BirthdayOnly,
		Active:            true,
		StoreType:         storeType,
		CreatedAt:         s.now().UTC(),
	}
	if coupon.Code == "" {
		return domain.Coupon{}, apperr.Validation("code", "is required")
	}
	if err := validateCouponTerms(coupon); err != nil {
		return domain.Coupon{}, err
	}

	created, err := s.repo.CreateCoupon(ctx, coupon)
	if err != nil {
		return domain.Coupon{}, wrapStorage("create coupon", err)
	}
	s.logAudit(ctx, storeType, "coupon_create", "coupon", created.ID,
		fmt.Sprintf("code=%s,type=%s,value=%s,max_uses=%d", created.Code, created.DiscountType, created.DiscountValue.String(), created.MaxUses))
	return *created, nil
}

func (s *Service) UpdateCoupon(ctx context.Context, id string, req domain.CouponUpdateRequest) (domain.Coupon, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Coupon{}, err
	}
	existing, err := s.repo.GetCoupon(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Coupon{}, wrapStorage("get coupon", err)
	}

	updated := *existing
	if req.DiscountType != nil {
		updated.DiscountType = strings.ToLower(trimmed(req.DiscountType))
	}
	if req.DiscountValue != nil {
		updated.DiscountValue = *req.DiscountValue
	}
	if req.MaxUses != nil {
		updated.MaxUses = *req.MaxUses
	}
	if req.MinPurchaseAmount != nil {
		updated.MinPurchaseAmount = *req.MinPurchaseAmount
	}
	if req.BirthdayOnly != nil {
		updated.BirthdayOnly = *req.BirthdayOnly
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if err := validateCouponTerms(updated); err != nil {
		return domain.Coupon{}, err
	}

	saved, err := s.repo.UpdateCoupon(ctx, updated)
	if err != nil {
		return domain.Coupon{}, wrapStorage("update coupon", err)
	}
	s.logAudit(ctx, saved.StoreType, "coupon_update", "coupon", saved.ID,
		fmt.Sprintf("code=%s,value=%s,active=%t", saved.Code, saved.DiscountValue.String(), saved.Active))
	return *saved, nil
}

func (s *Service) DeleteCoupon(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteCoupon(ctx, strings.TrimSpace(id)); err != nil {
		return wrapStorage("delete coupon", err)
	}
	s.logAudit(ctx, "", "coupon_delete", "coupon", id, "")
	return nil
}

// ValidateCouponCode checks a code for the storefront without consuming a
// use. The customer is optional and only matters for birthday coupons.
func (s *Service) ValidateCouponCode(ctx context.Context, req domain.CouponValidateRequest) (domain.CouponValidateResponse, error) {
	storeType, err := s.resolveStoreType(req.StoreType)
	if err != nil {
		return domain.CouponValidateResponse{}, err
	}
	code := pricing.NormalizeCode(req.Code)
	if code == "" {
		return domain.CouponValidateResponse{}, apperr.Validation("code", "is required")
	}
	if req.Subtotal.IsNegative() {
		return domain.CouponValidateResponse{}, apperr.Validation("subtotal", "must not be negative")
	}

	var customer *domain.Customer
	if id := strings.TrimSpace(req.CustomerID); id != "" {
		found, err := s.repo.GetCustomer(ctx, id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.CouponValidateResponse{}, wrapStorage("get customer", err)
		}
		customer = found
	}

	amount, err := s.resolveCoupon(ctx, storeType, code, req.Subtotal, customer)
	if err != nil {
		return domain.CouponValidateResponse{}, err
	}
	return domain.CouponValidateResponse{Code: code, DiscountAmount: amount}, nil
}

// resolveCoupon looks the code up and validates it against subtotal,
// returning the discount the coupon is worth right now.
func (s *Service) resolveCoupon(ctx context.Context, storeType string, code string, subtotal decimal.Decimal, customer *domain.Customer) (decimal.Decimal, error) {
	coupon, err := s.repo.GetCouponByCode(ctx, storeType, code)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, wrapStorage("get coupon", err)
	}
	if err := pricing.ValidateCoupon(coupon, code, storeType, subtotal, customer, s.now().In(s.location)); err != nil {
		return decimal.Zero, err
	}
	return pricing.CouponDiscount(*coupon, subtotal), nil
}

func validateCouponTerms(coupon domain.Coupon) error {
	switch coupon.DiscountType {
	case domain.DiscountPercentage:
		if coupon.DiscountValue.IsNegative() || coupon.DiscountValue.GreaterThan(hundred) {
			return apperr.Validation("discount_value", "percentage must be between 0 and 100")
		}
	case domain.DiscountFixed:
		if coupon.DiscountValue.IsNegative() {
			return apperr.Validation("discount_value", "must not be negative")
		}
	default:
		return apperr.Validation("discount_type", "must be percentage or fixed")
	}
	if coupon.MaxUses < 0 {
		return apperr.Validation("max_uses", "must not be negative")
	}
	if coupon.MinPurchaseAmount.IsNegative() {
		return apperr.Validation("min_purchase_amount", "must not be negative")
	}
	return nil
}

func (s *Service) ListDiscounts(ctx context.Context, storeType string) ([]domain.Discount, error) {
	storeType, err := s.resolveStoreType(storeType)
	if err != nil {
		return nil, err
	}
	discounts, err := s.repo.ListDiscounts(ctx, storeType)
	return discounts, wrapStorage("list discounts", err)
}

func (s *Service) CreateDiscount(ctx context.Context, req domain.DiscountCreateRequest) (domain.Discount, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Discount{}, err
	}
	storeType, err := s.resolveStoreType(req.StoreType)
	if err != nil {
		return domain.Discount{}, err
	}

	discount := domain.Discount{
		ID:        xid.New("dsc"),
		Name:      strings.TrimSpace(req.Name),
		Type:      strings.ToLower(strings.TrimSpace(req.Type)),
		Value:     req.Value,
		StoreType: storeType,
		CreatedAt: s.now().UTC(),
	}
	if discount.Name == "" {
		return domain.Discount{}, apperr.Validation("name", "is required")
	}
	if err := validateCouponTerms(domain.Coupon{DiscountType: discount.Type, DiscountValue: discount.Value}); err != nil {
		return domain.Discount{}, err
	}

	created, err := s.repo.CreateDiscount(ctx, discount)
	if err != nil {
		return domain.Discount{}, wrapStorage("create discount", err)
	}
	s.logAudit(ctx, storeType, "discount_create", "discount", created.ID,
		fmt.Sprintf("name=%s,type=%s,value=%s", created.Name, created.Type, created.Value.String()))
	return *created, nil
}

func (s *Service) DeleteDiscount(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteDiscount(ctx, strings.TrimSpace(id)); err != nil {
		return wrapStorage("delete discount", err)
	}
	s.logAudit(ctx, "", "discount_delete", "discount", id, "")
	return nil
}
