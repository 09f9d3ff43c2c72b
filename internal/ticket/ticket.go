// Package ticket holds the in-memory carts a terminal is working on.
package ticket

import (
	"errors"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/apperr"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/xid"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrLineNotFound   = errors.New("ticket line not found")
)

var hundred = decimal.NewFromInt(100)

// Ticket is a mutable cart. It is not safe for concurrent use; Registry
// serializes access per terminal.
type Ticket struct {
	id                    string
	lines                 []domain.LineItem
	customer              *domain.Customer
	globalDiscountPercent decimal.Decimal
	couponCode            string
	couponDiscountAmount  decimal.Decimal
	createdAt             time.Time
}

// LinePatch updates a subset of a line's fields. Nil fields are left alone.
type LinePatch struct {
	Quantity        *int
	DiscountPercent *decimal.Decimal
	EarnsPoints     *bool
}

// State replaces a ticket's contents wholesale, e.g. when a held sale is restored.
type State struct {
	Lines                 []domain.LineItem
	Customer              *domain.Customer
	GlobalDiscountPercent decimal.Decimal
	CouponCode            string
	CouponDiscountAmount  decimal.Decimal
}

func New(now time.Time) *Ticket {
	return &Ticket{id: xid.New("tkt"), createdAt: now.UTC()}
}

func (t *Ticket) ID() string {
	return t.id
}

func (t *Ticket) IsEmpty() bool {
	return len(t.lines) == 0
}

func (t *Ticket) Customer() *domain.Customer {
	return t.customer
}

// AddLine adds one unit of the product or variant in line. An existing line
// for the same product and variant gets its quantity bumped instead.
func (t *Ticket) AddLine(line domain.LineItem) domain.LineItem {
	for i := range t.lines {
		if t.lines[i].ProductID == line.ProductID && t.lines[i].VariantID == line.VariantID {
			t.lines[i].Quantity++
			return t.lines[i]
		}
	}
	line.LineID = xid.New("line")
	line.Quantity = 1
	t.lines = append(t.lines, line)
	return line
}

// UpdateQuantity sets a line's quantity. Anything below 1 removes the line.
func (t *Ticket) UpdateQuantity(lineID string, quantity int) error {
	idx := t.indexOf(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}
	if quantity < 1 {
		t.lines = slices.Delete(t.lines, idx, idx+1)
		return nil
	}
	t.lines[idx].Quantity = quantity
	return nil
}

func (t *Ticket) UpdateLine(lineID string, patch LinePatch) error {
	idx := t.indexOf(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}
	if patch.DiscountPercent != nil {
		if err := validatePercent("discount_percent", *patch.DiscountPercent); err != nil {
			return err
		}
		t.lines[idx].DiscountPercent = *patch.DiscountPercent
	}
	if patch.EarnsPoints != nil {
		t.lines[idx].EarnsPoints = *patch.EarnsPoints
	}
	if patch.Quantity != nil {
		return t.UpdateQuantity(lineID, *patch.Quantity)
	}
	return nil
}

func (t *Ticket) RemoveLine(lineID string) error {
	idx := t.indexOf(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}
	t.lines = slices.Delete(t.lines, idx, idx+1)
	return nil
}

func (t *Ticket) Clear() {
	t.lines = nil
}

func (t *Ticket) AttachCustomer(customer domain.Customer) {
	t.customer = &customer
}

func (t *Ticket) DetachCustomer() {
	t.customer = nil
}

func (t *Ticket) SetGlobalDiscount(percent decimal.Decimal) error {
	if err := validatePercent("percent", percent); err != nil {
		return err
	}
	t.globalDiscountPercent = percent
	return nil
}

// SetCoupon replaces any coupon already applied. amount is computed by the
// caller when the code is validated and is not recomputed on later edits.
func (t *Ticket) SetCoupon(code string, amount decimal.Decimal) {
	t.couponCode = code
	t.couponDiscountAmount = amount
}

func (t *Ticket) ClearCoupon() {
	t.couponCode = ""
	t.couponDiscountAmount = decimal.Zero
}

func (t *Ticket) Load(state State) {
	t.lines = make([]domain.LineItem, 0, len(state.Lines))
	for _, line := range state.Lines {
		if line.Quantity < 1 {
			continue
		}
		if line.LineID == "" {
			line.LineID = xid.New("line")
		}
		t.lines = append(t.lines, line)
	}
	t.customer = nil
	if state.Customer != nil {
		customer := *state.Customer
		t.customer = &customer
	}
	t.globalDiscountPercent = state.GlobalDiscountPercent
	t.couponCode = state.CouponCode
	t.couponDiscountAmount = state.CouponDiscountAmount
}

// Snapshot returns a copy that does not alias the ticket's internal state.
func (t *Ticket) Snapshot() domain.TicketSnapshot {
	snap := domain.TicketSnapshot{
		ID:                    t.id,
		Lines:                 slices.Clone(t.lines),
		GlobalDiscountPercent: t.globalDiscountPercent,
		CouponCode:            t.couponCode,
		CouponDiscountAmount:  t.couponDiscountAmount,
		CreatedAt:             t.createdAt,
	}
	if snap.Lines == nil {
		snap.Lines = []domain.LineItem{}
	}
	if t.customer != nil {
		customer := *t.customer
		snap.Customer = &customer
	}
	return snap
}

func (t *Ticket) indexOf(lineID string) int {
	return slices.IndexFunc(t.lines, func(line domain.LineItem) bool {
		return line.LineID == lineID
	})
}

func validatePercent(field string, value decimal.Decimal) error {
	if value.IsNegative() || value.GreaterThan(hundred) {
		return apperr.Validation(field, "must be between 0 and 100")
	}
	return nil
}
