package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tiendapos/backend/internal/apperr"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/pricing"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/ticket"
	"tiendapos/backend/internal/xid"
)

const heldSalesLimit = 200

// Checkout turns the active ticket into a completed sale. Stock, points,
// coupon usage and the sale itself are committed together; on any failure
// nothing is written and the ticket stays as it was.
func (s *Service) Checkout(ctx context.Context, scope Scope, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if !domain.IsPaymentMethod(method) {
		return domain.CheckoutResponse{}, apperr.Validation("payment_method", "must be cash, card, transfer or points")
	}
	if req.PointsToRedeem < 0 {
		return domain.CheckoutResponse{}, apperr.Validation("points_to_redeem", "must not be negative")
	}

	var response domain.CheckoutResponse
	err = s.withTickets(ctx, scope, func(sc scoped) error {
		active := sc.tickets.Active()
		if active.IsEmpty() {
			return apperr.Validation("lines", "ticket is empty")
		}
		settings, err := s.settingsFor(ctx, sc.storeType)
		if err != nil {
			return err
		}
		snap, err := s.refreshedSnapshot(ctx, active)
		if err != nil {
			return err
		}

		totals := priceSnapshot(snap, settings, req.PointsToRedeem)
		if method == domain.PaymentPoints && totals.Total.IsPositive() {
			return apperr.Validation("payment_method", "points do not cover the total")
		}

		commit := checkoutCommit(snap, totals, sc, actor, method, req)
		commit.Sale.CreatedAt = s.now().UTC()
		sale, duplicate, err := s.repo.CommitCheckout(ctx, commit)
		if err != nil {
			return wrapStorage("commit checkout", err)
		}
		// A replayed key returns the earlier sale; the current cart was not sold.
		if !duplicate {
			sc.tickets.ResetActive()
		}
		response = domain.CheckoutResponse{Sale: *sale, Totals: totals, Duplicate: duplicate}
		return nil
	})
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	if response.Duplicate {
		s.logger.Info("checkout replayed", zap.String("sale_id", response.Sale.ID))
		return response, nil
	}
	sale := response.Sale
	s.logAudit(ctx, sale.StoreType, "checkout", "sale", sale.ID,
		fmt.Sprintf("ticket=%d,total=%s,method=%s,coupon=%s,points_earned=%d,points_redeemed=%d",
			sale.TicketNumber, sale.TotalAmount.StringFixed(2), sale.PaymentMethod, sale.CouponCode, sale.PointsEarned, sale.PointsRedeemed))
	return response, nil
}

func checkoutCommit(snap domain.TicketSnapshot, totals domain.Totals, sc scoped, actor domain.Actor, method string, req domain.CheckoutRequest) domain.CheckoutCommit {
	sale := domain.Sale{
		ID:                   xid.New("sale"),
		UserID:               actor.Username,
		TerminalID:           sc.terminal.ID,
		TotalAmount:          totals.Total,
		PaymentMethod:        method,
		Status:               domain.SaleCompleted,
		DiscountAmount:       saleDiscountAmount(totals),
		CouponCode:           snap.CouponCode,
		PointsEarned:         totals.PointsEarned,
		PointsRedeemed:       totals.PointsRedeemed,
		PointsDiscountAmount: totals.PointsDiscountAmount,
		RefundStatus:         domain.RefundNone,
		Source:               domain.SourcePOS,
		Notes:                strings.TrimSpace(req.Notes),
		StoreType:            sc.storeType,
		IdempotencyKey:       strings.TrimSpace(req.IdempotencyKey),
		Items:                pricing.SaleItemsFromLines(snap.Lines, snap.GlobalDiscountPercent),
	}

	commit := domain.CheckoutCommit{
		Sale:       sale,
		Stock:      stockMovements(snap.Lines),
		CouponCode: snap.CouponCode,
		StoreType:  sc.storeType,
	}
	if snap.Customer != nil {
		commit.Sale.CustomerID = snap.Customer.ID
		commit.Sale.CustomerInfo = snap.Customer.FullName
		commit.CustomerID = snap.Customer.ID
		commit.PointsEarned = totals.PointsEarned
		commit.PointsRedeemed = totals.PointsRedeemed
	}
	return commit
}

// saleDiscountAmount aggregates line, global and coupon discounts. Points are
// reported separately on the sale.
func saleDiscountAmount(totals domain.Totals) decimal.Decimal {
	return totals.LineDiscountTotal.Add(totals.GlobalDiscountAmount).Add(totals.CouponDiscountAmount)
}

func stockMovements(lines []domain.LineItem) []domain.StockMovement {
	type key struct{ product, variant string }
	index := map[key]int{}
	movements := make([]domain.StockMovement, 0, len(lines))
	for _, line := range lines {
		k := key{line.ProductID, line.VariantID}
		if i, ok := index[k]; ok {
			movements[i].Quantity += line.Quantity
			continue
		}
		index[k] = len(movements)
		movements = append(movements, domain.StockMovement{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
		})
	}
	return movements
}

// Hold parks the active ticket as a held sale and clears it. Items store the
// line total and line discount only so a restore can reverse them.
func (s *Service) Hold(ctx context.Context, scope Scope, req domain.HoldRequest) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	var held domain.Sale
	err = s.withTickets(ctx, scope, func(sc scoped) error {
		snap := sc.tickets.Active().Snapshot()
		if len(snap.Lines) == 0 {
			return apperr.Validation("lines", "ticket is empty")
		}
		settings, err := s.settingsFor(ctx, sc.storeType)
		if err != nil {
			return err
		}
		totals := priceSnapshot(snap, settings, 0)

		sale := domain.Sale{
			ID:             xid.New("sale"),
			UserID:         actor.Username,
			TerminalID:     sc.terminal.ID,
			TotalAmount:    totals.Total,
			PaymentMethod:  domain.PaymentPending,
			Status:         domain.SaleHeld,
			DiscountAmount: saleDiscountAmount(totals),
			CouponCode:     snap.CouponCode,
			RefundStatus:   domain.RefundNone,
			Source:         domain.SourcePOS,
			Notes:          strings.TrimSpace(req.Notes),
			StoreType:      sc.storeType,
			CreatedAt:      s.now().UTC(),
			Items:          pricing.SaleItemsFromLines(snap.Lines, decimal.Zero),
		}
		if snap.Customer != nil {
			sale.CustomerID = snap.Customer.ID
			sale.CustomerInfo = snap.Customer.FullName
		}

		created, err := s.repo.CreateSale(ctx, sale)
		if err != nil {
			return wrapStorage("hold ticket", err)
		}
		sc.tickets.ResetActive()
		held = *created
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, held.StoreType, "ticket_hold", "sale", held.ID,
		fmt.Sprintf("ticket=%d,total=%s,items=%d", held.TicketNumber, held.TotalAmount.StringFixed(2), len(held.Items)))
	return held, nil
}

func (s *Service) ListHeldSales(ctx context.Context, storeType string) ([]domain.Sale, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	storeType, err := s.resolveStoreType(storeType)
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{
		StoreType: storeType,
		Statuses:  []string{domain.SaleHeld},
		Limit:     heldSalesLimit,
	})
	return sales, wrapStorage("list held sales", err)
}

// RestoreHeld loads a held sale back into a ticket on the terminal and
// deletes the held row. The active ticket is reused when it is empty.
func (s *Service) RestoreHeld(ctx context.Context, scope Scope, saleID string) (domain.TicketView, error) {
	var view domain.TicketView
	err := s.withTickets(ctx, scope, func(sc scoped) error {
		sale, err := s.repo.GetSale(ctx, strings.TrimSpace(saleID))
		if err != nil {
			return wrapStorage("get held sale", err)
		}
		if sale.Status != domain.SaleHeld {
			return &apperr.TransitionError{From: sale.Status, To: "restored"}
		}
		if sale.StoreType != sc.storeType {
			return store.ErrNotFound
		}

		var customer *domain.Customer
		if sale.CustomerID != "" {
			found, err := s.repo.GetCustomer(ctx, sale.CustomerID)
			if err != nil {
				return wrapStorage("get customer", err)
			}
			customer = found
		}

		popped, err := s.repo.PopHeldSale(ctx, sale.ID)
		if err != nil {
			return wrapStorage("pop held sale", err)
		}
		recovered := pricing.RecoverTicket(*popped)

		target := sc.tickets.Active()
		if !target.IsEmpty() {
			target = sc.tickets.NewTicket()
		}
		target.Load(ticket.State{
			Lines:                 recovered.Lines,
			Customer:              customer,
			GlobalDiscountPercent: recovered.GlobalDiscountPercent,
			CouponCode:            recovered.CouponCode,
			CouponDiscountAmount:  recovered.CouponDiscountAmount,
		})
		if err := sc.tickets.Activate(target.ID()); err != nil {
			return err
		}
		view = sc.tickets.View(sc.terminal.ID)
		return nil
	})
	if err != nil {
		return domain.TicketView{}, err
	}

	s.logAudit(ctx, "", "ticket_restore", "sale", saleID, "terminal="+scope.TerminalID)
	return view, nil
}

func (s *Service) DeleteHeldSale(ctx context.Context, saleID string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	saleID = strings.TrimSpace(saleID)
	if err := s.repo.DeleteSale(ctx, saleID, domain.SaleHeld); err != nil {
		return wrapStorage("delete held sale", err)
	}
	s.logAudit(ctx, "", "held_sale_delete", "sale", saleID, "")
	return nil
}
