package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/apperr"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/pricing"
	"tiendapos/backend/internal/receipt"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/ticket"
)

// Scope addresses the ticket collection of one terminal selling one store
// type's catalog.
type Scope struct {
	TerminalID string
	StoreType  string
}

type scoped struct {
	terminal  domain.Terminal
	storeType string
	tickets   *ticket.Collection
}

// withTickets runs fn with exclusive access to the terminal's tickets for the
// scope's store type. Each store type keeps its own collection per terminal,
// so a cart is always priced and sold under the store it was built in.
func (s *Service) withTickets(ctx context.Context, scope Scope, fn func(scoped) error) error {
	if _, err := requireActor(ctx); err != nil {
		return err
	}
	storeType, err := s.resolveStoreType(scope.StoreType)
	if err != nil {
		return err
	}
	terminal, err := s.activeTerminal(ctx, scope.TerminalID)
	if err != nil {
		return err
	}
	return s.tickets.Do(terminal.ID+"/"+storeType, func(c *ticket.Collection) error {
		return fn(scoped{terminal: terminal, storeType: storeType, tickets: c})
	})
}

func (s *Service) Tickets(ctx context.Context, scope Scope) (domain.TicketView, error) {
	var view domain.TicketView
	err := s.withTickets(ctx, scope, func(sc scoped) error {
		view = sc.tickets.View(sc.terminal.ID)
		return nil
	})
	return view, err
}

func (s *Service) NewTicket(ctx context.Context, scope Scope) (domain.TicketView, error) {
	var view domain.TicketView
	err := s.withTickets(ctx, scope, func(sc scoped) error {
		sc.tickets.NewTicket()
		view = sc.tickets.View(sc.terminal.ID)
		return nil
	})
	return view, err
}

func (s *Service) ActivateTicket(ctx context.Context, scope Scope, ticketID string) (domain.TicketView, error) {
	var view domain.TicketView
	err := s.withTickets(ctx, scope, func(sc scoped) error {
		if err := sc.tickets.Activate(ticketID); err != nil {
			return err
		}
		view = sc.tickets.View(sc.terminal.ID)
		return nil
	})
	return view, err
}

func (s *Service) CloseTicket(ctx context.Context, scope Scope, ticketID string) (domain.TicketView, error) {
	var view domain.TicketView
	err := s.withTickets(ctx, scope, func(sc scoped) error {
		if err := sc.tickets.Close(ticketID); err != nil {
			return err
		}
		view = sc.tickets.View(sc.terminal.ID)
		return nil
	})
	return view, err
}

// mutateActive applies fn to the active ticket and returns its snapshot.
func (s *Service) mutateActive(ctx context.Context, scope Scope, fn func(scoped, *ticket.Ticket) error) (domain.TicketSnapshot, error) {
	var snap domain.TicketSnapshot
	err := s.withTickets(ctx, scope, func(sc scoped) error {
		active := sc.tickets.Active()
		if err := fn(sc, active); err != nil {
			return err
		}
		snap = active.Snapshot()
		return nil
	})
	return snap, err
}

// AddLine adds one unit of a catalog product, or of one of its variants, to
// the active ticket. Price, cost and names are snapshotted from the catalog.
func (s *Service) AddLine(ctx context.Context, scope Scope, req domain.AddLineRequest) (domain.TicketSnapshot, error) {
	return s.mutateActive(ctx, scope, func(sc scoped, active *ticket.Ticket) error {
		line, stock, err := s.catalogLine(ctx, sc.storeType, req.ProductID, req.VariantID)
		if err != nil {
			return err
		}
		inTicket := 0
		for _, existing := range active.Snapshot().Lines {
			if existing.ProductID == line.ProductID && existing.VariantID == line.VariantID {
				inTicket = existing.Quantity
			}
		}
		if inTicket+1 > stock {
			return store.ErrInsufficientStock
		}
		active.AddLine(line)
		return nil
	})
}

// catalogLine builds a ticket line from the current catalog and returns the
// stock available for it.
func (s *Service) catalogLine(ctx context.Context, storeType string, productID string, variantID string) (domain.LineItem, int, error) {
	productID = strings.TrimSpace(productID)
	variantID = strings.TrimSpace(variantID)
	if productID == "" {
		return domain.LineItem{}, 0, apperr.Validation("product_id", "is required")
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.LineItem{}, 0, wrapStorage("get product", err)
	}
	if !product.Active || product.StoreType != storeType {
		return domain.LineItem{}, 0, store.ErrNotFound
	}

	line := domain.LineItem{
		ProductID:       product.ID,
		ProductName:     product.Name,
		UnitPrice:       product.Price,
		UnitCost:        product.Cost,
		DiscountPercent: decimal.Zero,
		EarnsPoints:     true,
	}
	if variantID == "" {
		for _, v := range product.Variants {
			if v.Active {
				return domain.LineItem{}, 0, apperr.Validation("variant_id", "product %s requires a variant", product.ID)
			}
		}
		return line, product.Stock, nil
	}

	variant, err := s.repo.GetVariant(ctx, variantID)
	if err != nil {
		return domain.LineItem{}, 0, wrapStorage("get variant", err)
	}
	if !variant.Active || variant.ProductID != product.ID {
		return domain.LineItem{}, 0, store.ErrNotFound
	}
	line.VariantID = variant.ID
	line.VariantName = variant.Name
	line.UnitPrice = variant.Price
	line.UnitCost = variant.Cost
	return line, variant.Stock, nil
}

func (s *Service) UpdateLine(ctx context.Context, scope Scope, lineID string, req domain.UpdateLineRequest) (domain.TicketSnapshot, error) {
	return s.mutateActive(ctx, scope, func(_ scoped, active *ticket.Ticket) error {
		return active.UpdateLine(lineID, ticket.LinePatch{
			Quantity:        req.Quantity,
			DiscountPercent: req.DiscountPercent,
			EarnsPoints:     req.EarnsPoints,
		})
	})
}

func (s *Service) RemoveLine(ctx context.Context, scope Scope, lineID string) (domain.TicketSnapshot, error) {
	return s.mutateActive(ctx, scope, func(_ scoped, active *ticket.Ticket) error {
		return active.RemoveLine(lineID)
	})
}

func (s *Service) ClearTicket(ctx context.Context, scope Scope) (domain.TicketSnapshot, error) {
	return s.mutateActive(ctx, scope, func(_ scoped, active *ticket.Ticket) error {
		active.Clear()
		return nil
	})
}

func (s *Service) AttachCustomer(ctx context.Context, scope Scope, customerID string) (domain.TicketSnapshot, error) {
	return s.mutateActive(ctx, scope, func(sc scoped, active *ticket.Ticket) error {
		customerID = strings.TrimSpace(customerID)
		if customerID == "" {
			return apperr.Validation("customer_id", "is required")
		}
		customer, err := s.repo.GetCustomer(ctx, customerID)
		if err != nil {
			return wrapStorage("get customer", err)
		}
		if customer.StoreType != sc.storeType {
			return store.ErrNotFound
		}
		active.AttachCustomer(*customer)
		return nil
	})
}

func (s *Service) DetachCustomer(ctx context.Context, scope Scope) (domain.TicketSnapshot, error) {
	return s.mutateActive(ctx, scope, func(_ scoped, active *ticket.Ticket) error {
		active.DetachCustomer()
		return nil
	})
}

func (s *Service) SetGlobalDiscount(ctx context.Context, scope Scope, percent decimal.Decimal) (domain.TicketSnapshot, error) {
	return s.mutateActive(ctx, scope, func(_ scoped, active *ticket.Ticket) error {
		return active.SetGlobalDiscount(percent)
	})
}

// ApplyCoupon validates code against the active ticket and fixes the coupon
// discount at the current subtotal. Later edits do not recompute it.
func (s *Service) ApplyCoupon(ctx context.Context, scope Scope, code string) (domain.TicketSnapshot, error) {
	return s.mutateActive(ctx, scope, func(sc scoped, active *ticket.Ticket) error {
		code = pricing.NormalizeCode(code)
		if code == "" {
			return apperr.Validation("code", "is required")
		}
		snap := active.Snapshot()
		subtotal := pricing.Compute(pricing.Input{Lines: snap.Lines}).Subtotal
		amount, err := s.resolveCoupon(ctx, sc.storeType, code, subtotal, snap.Customer)
		if err != nil {
			return err
		}
		active.SetCoupon(code, amount)
		return nil
	})
}

func (s *Service) RemoveCoupon(ctx context.Context, scope Scope) (domain.TicketSnapshot, error) {
	return s.mutateActive(ctx, scope, func(_ scoped, active *ticket.Ticket) error {
		active.ClearCoupon()
		return nil
	})
}

// Totals prices the active ticket. pointsToRedeem above what the customer
// may redeem is clamped.
func (s *Service) Totals(ctx context.Context, scope Scope, pointsToRedeem int64) (domain.Totals, error) {
	if pointsToRedeem < 0 {
		return domain.Totals{}, apperr.Validation("points_to_redeem", "must not be negative")
	}
	var totals domain.Totals
	err := s.withTickets(ctx, scope, func(sc scoped) error {
		settings, err := s.settingsFor(ctx, sc.storeType)
		if err != nil {
			return err
		}
		snap, err := s.refreshedSnapshot(ctx, sc.tickets.Active())
		if err != nil {
			return err
		}
		totals = priceSnapshot(snap, settings, pointsToRedeem)
		return nil
	})
	return totals, err
}

// Quote renders the active ticket as a shareable quote without touching
// stock, points or coupon usage.
func (s *Service) Quote(ctx context.Context, scope Scope) (domain.QuoteResponse, error) {
	var quote domain.QuoteResponse
	err := s.withTickets(ctx, scope, func(sc scoped) error {
		snap := sc.tickets.Active().Snapshot()
		if len(snap.Lines) == 0 {
			return apperr.Validation("lines", "ticket is empty")
		}
		settings, err := s.settingsFor(ctx, sc.storeType)
		if err != nil {
			return err
		}
		quote = receipt.Quote(receipt.QuoteInput{
			Lines:    snap.Lines,
			Totals:   priceSnapshot(snap, settings, 0),
			Settings: settings,
			Customer: snap.Customer,
			Now:      s.now(),
			Location: s.location,
		})
		return nil
	})
	return quote, err
}

// refreshedSnapshot re-reads the attached customer so redeemable points are
// limited by the current balance rather than the one seen at attach time.
func (s *Service) refreshedSnapshot(ctx context.Context, active *ticket.Ticket) (domain.TicketSnapshot, error) {
	snap := active.Snapshot()
	if snap.Customer == nil {
		return snap, nil
	}
	customer, err := s.repo.GetCustomer(ctx, snap.Customer.ID)
	if err != nil {
		return domain.TicketSnapshot{}, wrapStorage("get customer", err)
	}
	active.AttachCustomer(*customer)
	snap.Customer = customer
	return snap, nil
}

func priceSnapshot(snap domain.TicketSnapshot, settings domain.Settings, pointsToRedeem int64) domain.Totals {
	return pricing.Compute(pricing.Input{
		Lines:                 snap.Lines,
		GlobalDiscountPercent: snap.GlobalDiscountPercent,
		CouponDiscountAmount:  snap.CouponDiscountAmount,
		Customer:              snap.Customer,
		PointsToRedeem:        pointsToRedeem,
		Settings:              settings,
	})
}
