package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tiendapos/backend/internal/apperr"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/xid"
)

const birthDateLayout = "2006-01-02"

func (s *Service) ListCustomers(ctx context.Context, storeType string, search string, limit int) ([]domain.Customer, error) {
	storeType, err := s.resolveStoreType(storeType)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	customers, err := s.repo.ListCustomers(ctx, storeType, strings.TrimSpace(search), limit)
	return customers, wrapStorage("list customers", err)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, wrapStorage("get customer", err)
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Customer{}, err
	}
	storeType, err := s.resolveStoreType(req.StoreType)
	if err != nil {
		return domain.Customer{}, err
	}

	customer := domain.Customer{
		ID:        xid.New("cust"),
		FullName:  strings.TrimSpace(req.FullName),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		StoreType: storeType,
		CreatedAt: s.now().UTC(),
	}
	if customer.FullName == "" {
		return domain.Customer{}, apperr.Validation("full_name", "is required")
	}
	if customer.BirthDate, err = parseBirthDate(req.BirthDate); err != nil {
		return domain.Customer{}, err
	}

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, wrapStorage("create customer", err)
	}
	s.logAudit(ctx, storeType, "customer_create", "customer", created.ID, "name="+created.FullName)
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Customer{}, err
	}
	existing, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, wrapStorage("get customer", err)
	}

	updated := *existing
	if req.FullName != nil {
		updated.FullName = trimmed(req.FullName)
		if updated.FullName == "" {
			return domain.Customer{}, apperr.Validation("full_name", "is required")
		}
	}
	if req.Email != nil {
		updated.Email = trimmed(req.Email)
	}
	if req.Phone != nil {
		updated.Phone = trimmed(req.Phone)
	}
	if req.BirthDate != nil {
		if updated.BirthDate, err = parseBirthDate(*req.BirthDate); err != nil {
			return domain.Customer{}, err
		}
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, wrapStorage("update customer", err)
	}
	s.logAudit(ctx, saved.StoreType, "customer_update", "customer", saved.ID, "name="+saved.FullName)
	return *saved, nil
}

// AdjustPoints is the manual points manager. The repository refuses any
// delta that would leave a negative balance.
func (s *Service) AdjustPoints(ctx context.Context, id string, req domain.PointsAdjustRequest) (domain.Customer, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Customer{}, err
	}
	if req.Delta == 0 {
		return domain.Customer{}, apperr.Validation("delta", "must not be zero")
	}

	customer, err := s.repo.AdjustCustomerPoints(ctx, strings.TrimSpace(id), req.Delta)
	if err != nil {
		return domain.Customer{}, wrapStorage("adjust points", err)
	}
	s.logAudit(ctx, customer.StoreType, "points_adjust", "customer", customer.ID,
		fmt.Sprintf("delta=%d,balance=%d,reason=%s", req.Delta, customer.PointsBalance, strings.TrimSpace(req.Reason)))
	return *customer, nil
}

func parseBirthDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(birthDateLayout, value)
	if err != nil {
		return nil, apperr.Validation("birth_date", "must use YYYY-MM-DD")
	}
	return &parsed, nil
}
