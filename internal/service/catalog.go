package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/apperr"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/xid"
)

func (s *Service) ListCategories(ctx context.Context, storeType string) ([]domain.Category, error) {
	storeType, err := s.resolveStoreType(storeType)
	if err != nil {
		return nil, err
	}
	categories, err := s.repo.ListCategories(ctx, storeType)
	return categories, wrapStorage("list categories", err)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}
	storeType, err := s.resolveStoreType(req.StoreType)
	if err != nil {
		return domain.Category{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, apperr.Validation("name", "is required")
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{
		ID:        xid.New("cat"),
		Name:      name,
		StoreType: storeType,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.Category{}, wrapStorage("create category", err)
	}
	s.logAudit(ctx, storeType, "category_create", "category", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, strings.TrimSpace(id)); err != nil {
		return wrapStorage("delete category", err)
	}
	s.logAudit(ctx, "", "category_delete", "category", id, "")
	return nil
}

// ListProducts lists the catalog for operators. Inactive products and
// variants are only returned to admins that ask for them.
func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	storeType, err := s.resolveStoreType(filter.StoreType)
	if err != nil {
		return nil, err
	}
	filter.StoreType = storeType
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Category = strings.TrimSpace(filter.Category)
	if filter.IncludeInactive {
		if actor, ok := ActorFromContext(ctx); !ok || actor.Role != domain.RoleAdmin {
			filter.IncludeInactive = false
		}
	}
	products, err := s.repo.ListProducts(ctx, filter)
	return products, wrapStorage("list products", err)
}

// PublicCatalog is the storefront view: active products and variants only.
func (s *Service) PublicCatalog(ctx context.Context, storeType string, category string, search string) ([]domain.Product, error) {
	storeType, err := s.resolveStoreType(storeType)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx, domain.ProductFilter{
		StoreType: storeType,
		Category:  strings.TrimSpace(category),
		Search:    strings.TrimSpace(search),
	})
	if err != nil {
		return nil, wrapStorage("list catalog", err)
	}
	for i := range products {
		products[i].Cost = decimal.Zero
		for j := range products[i].Variants {
			products[i].Variants[j].Cost = decimal.Zero
		}
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, wrapStorage("get product", err)
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	storeType, err := s.resolveStoreType(req.StoreType)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:        xid.New("prod"),
		Name:      strings.TrimSpace(req.Name),
		Category:  strings.TrimSpace(req.Category),
		Price:     req.Price,
		Stock:     req.Stock,
		ImageURL:  strings.TrimSpace(req.ImageURL),
		Active:    true,
		StoreType: storeType,
		CreatedAt: s.now().UTC(),
	}
	if req.Cost != nil {
		product.Cost = *req.Cost
	}
	if err := validateProduct(product.Name, product.Price, product.Cost, product.Stock); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, wrapStorage("create product", err)
	}
	s.logAudit(ctx, storeType, "product_create", "product", created.ID,
		fmt.Sprintf("name=%s,price=%s,stock=%d", created.Name, created.Price.StringFixed(2), created.Stock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, wrapStorage("get product", err)
	}

	updated := *existing
	updated.Variants = nil
	if req.Name != nil {
		updated.Name = trimmed(req.Name)
	}
	if req.Category != nil {
		updated.Category = trimmed(req.Category)
	}
	if req.Price != nil {
		updated.Price = *req.Price
	}
	if req.Cost != nil {
		updated.Cost = *req.Cost
	}
	if req.Stock != nil {
		updated.Stock = *req.Stock
	}
	if req.ImageURL != nil {
		updated.ImageURL = trimmed(req.ImageURL)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if err := validateProduct(updated.Name, updated.Price, updated.Cost, updated.Stock); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, wrapStorage("update product", err)
	}
	s.logAudit(ctx, saved.StoreType, "product_update", "product", saved.ID,
		fmt.Sprintf("price=%s->%s,stock=%d->%d,active=%t", existing.Price.StringFixed(2), saved.Price.StringFixed(2), existing.Stock, saved.Stock, saved.Active))
	return *saved, nil
}

// DeactivateProduct is the catalog delete. Products are never removed so
// historical sale items keep resolving.
func (s *Service) DeactivateProduct(ctx context.Context, id string) (domain.Product, error) {
	inactive := false
	return s.UpdateProduct(ctx, id, domain.ProductUpdateRequest{Active: &inactive})
}

func (s *Service) CreateVariant(ctx context.Context, productID string, req domain.VariantCreateRequest) (domain.Variant, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Variant{}, err
	}
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Variant{}, wrapStorage("get product", err)
	}

	variant := domain.Variant{
		ID:        xid.New("var"),
		ProductID: product.ID,
		Name:      strings.TrimSpace(req.Name),
		Price:     req.Price,
		Stock:     req.Stock,
		ImageURL:  strings.TrimSpace(req.ImageURL),
		Active:    true,
	}
	if req.Cost != nil {
		variant.Cost = *req.Cost
	}
	if err := validateProduct(variant.Name, variant.Price, variant.Cost, variant.Stock); err != nil {
		return domain.Variant{}, err
	}

	created, err := s.repo.CreateVariant(ctx, variant)
	if err != nil {
		return domain.Variant{}, wrapStorage("create variant", err)
	}
	s.logAudit(ctx, product.StoreType, "variant_create", "variant", created.ID,
		fmt.Sprintf("product=%s,name=%s,price=%s", product.ID, created.Name, created.Price.StringFixed(2)))
	return *created, nil
}

func (s *Service) UpdateVariant(ctx context.Context, id string, req domain.VariantUpdateRequest) (domain.Variant, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Variant{}, err
	}
	existing, err := s.repo.GetVariant(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Variant{}, wrapStorage("get variant", err)
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = trimmed(req.Name)
	}
	if req.Price != nil {
		updated.Price = *req.Price
	}
	if req.Cost != nil {
		updated.Cost = *req.Cost
	}
	if req.Stock != nil {
		updated.Stock = *req.Stock
	}
	if req.ImageURL != nil {
		updated.ImageURL = trimmed(req.ImageURL)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if err := validateProduct(updated.Name, updated.Price, updated.Cost, updated.Stock); err != nil {
		return domain.Variant{}, err
	}

	saved, err := s.repo.UpdateVariant(ctx, updated)
	if err != nil {
		return domain.Variant{}, wrapStorage("update variant", err)
	}
	s.logAudit(ctx, "", "variant_update", "variant", saved.ID,
		fmt.Sprintf("price=%s,stock=%d,active=%t", saved.Price.StringFixed(2), saved.Stock, saved.Active))
	return *saved, nil
}

func (s *Service) ArchiveVariant(ctx context.Context, id string) (domain.Variant, error) {
	inactive := false
	return s.UpdateVariant(ctx, id, domain.VariantUpdateRequest{Active: &inactive})
}

func validateProduct(name string, price decimal.Decimal, cost decimal.Decimal, stock int) error {
	if name == "" {
		return apperr.Validation("name", "is required")
	}
	if price.IsNegative() {
		return apperr.Validation("price", "must not be negative")
	}
	if cost.IsNegative() {
		return apperr.Validation("cost", "must not be negative")
	}
	if stock < 0 {
		return apperr.Validation("stock", "must not be negative")
	}
	return nil
}
