package httpapi

import (
	"errors"
	"io"
	"net/http"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/service"
)

const ticketsPath = "/api/v1/terminals/{terminalID}/tickets"

type restoreHeldRequest struct {
	TerminalID string `json:"terminal_id"`
	StoreType  string `json:"store_type"`
}

func (a *API) registerTicketRoutes(mux *http.ServeMux, roles []string) {
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, a.requireAuth(h, roles...))
	}

	route("GET "+ticketsPath, a.handleTickets)
	route("POST "+ticketsPath, a.handleNewTicket)
	route("POST "+ticketsPath+"/{ticketID}/activate", a.handleActivateTicket)
	route("DELETE "+ticketsPath+"/{ticketID}", a.handleCloseTicket)

	active := ticketsPath + "/active"
	route("POST "+active+"/lines", a.handleAddLine)
	route("DELETE "+active+"/lines", a.handleClearTicket)
	route("PATCH "+active+"/lines/{lineID}", a.handleUpdateLine)
	route("DELETE "+active+"/lines/{lineID}", a.handleRemoveLine)
	route("PUT "+active+"/customer", a.handleAttachCustomer)
	route("DELETE "+active+"/customer", a.handleDetachCustomer)
	route("PUT "+active+"/global-discount", a.handleGlobalDiscount)
	route("PUT "+active+"/coupon", a.handleApplyCoupon)
	route("DELETE "+active+"/coupon", a.handleRemoveCoupon)
	route("POST "+active+"/totals", a.handleTotals)
	route("POST "+active+"/quote", a.handleQuote)
	route("POST "+active+"/hold", a.handleHold)
	route("POST "+active+"/checkout", a.handleCheckout)
}

func scopeOf(r *http.Request) service.Scope {
	return service.Scope{TerminalID: r.PathValue("terminalID"), StoreType: storeTypeParam(r)}
}

// decodeOptional is decode for endpoints whose body may be omitted.
func (a *API) decodeOptional(w http.ResponseWriter, r *http.Request, dest any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return true
	}
	err := decodeJSON(r, dest)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	a.writeError(w, r, http.StatusBadRequest, err)
	return false
}

func (a *API) writeView(w http.ResponseWriter, r *http.Request, status int, view domain.TicketView, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, status, view)
}

func (a *API) writeSnapshot(w http.ResponseWriter, r *http.Request, snap domain.TicketSnapshot, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket": snap})
}

func (a *API) handleTickets(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.Tickets(r.Context(), scopeOf(r))
	a.writeView(w, r, http.StatusOK, view, err)
}

func (a *API) handleNewTicket(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.NewTicket(r.Context(), scopeOf(r))
	a.writeView(w, r, http.StatusCreated, view, err)
}

func (a *API) handleActivateTicket(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.ActivateTicket(r.Context(), scopeOf(r), r.PathValue("ticketID"))
	a.writeView(w, r, http.StatusOK, view, err)
}

func (a *API) handleCloseTicket(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.CloseTicket(r.Context(), scopeOf(r), r.PathValue("ticketID"))
	a.writeView(w, r, http.StatusOK, view, err)
}

func (a *API) handleAddLine(w http.ResponseWriter, r *http.Request) {
	var req domain.AddLineRequest
	if !a.decode(w, r, &req) {
		return
	}
	snap, err := a.service.AddLine(r.Context(), scopeOf(r), req)
	a.writeSnapshot(w, r, snap, err)
}

func (a *API) handleClearTicket(w http.ResponseWriter, r *http.Request) {
	snap, err := a.service.ClearTicket(r.Context(), scopeOf(r))
	a.writeSnapshot(w, r, snap, err)
}

func (a *API) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateLineRequest
	if !a.decode(w, r, &req) {
		return
	}
	snap, err := a.service.UpdateLine(r.Context(), scopeOf(r), r.PathValue("lineID"), req)
	a.writeSnapshot(w, r, snap, err)
}

func (a *API) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	snap, err := a.service.RemoveLine(r.Context(), scopeOf(r), r.PathValue("lineID"))
	a.writeSnapshot(w, r, snap, err)
}

func (a *API) handleAttachCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.AttachCustomerRequest
	if !a.decode(w, r, &req) {
		return
	}
	snap, err := a.service.AttachCustomer(r.Context(), scopeOf(r), req.CustomerID)
	a.writeSnapshot(w, r, snap, err)
}

func (a *API) handleDetachCustomer(w http.ResponseWriter, r *http.Request) {
	snap, err := a.service.DetachCustomer(r.Context(), scopeOf(r))
	a.writeSnapshot(w, r, snap, err)
}

func (a *API) handleGlobalDiscount(w http.ResponseWriter, r *http.Request) {
	var req domain.GlobalDiscountRequest
	if !a.decode(w, r, &req) {
		return
	}
	snap, err := a.service.SetGlobalDiscount(r.Context(), scopeOf(r), req.Percent)
	a.writeSnapshot(w, r, snap, err)
}

func (a *API) handleApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req domain.ApplyCouponRequest
	if !a.decode(w, r, &req) {
		return
	}
	snap, err := a.service.ApplyCoupon(r.Context(), scopeOf(r), req.Code)
	a.writeSnapshot(w, r, snap, err)
}

func (a *API) handleRemoveCoupon(w http.ResponseWriter, r *http.Request) {
	snap, err := a.service.RemoveCoupon(r.Context(), scopeOf(r))
	a.writeSnapshot(w, r, snap, err)
}

func (a *API) handleTotals(w http.ResponseWriter, r *http.Request) {
	var req domain.TotalsRequest
	if !a.decodeOptional(w, r, &req) {
		return
	}
	totals, err := a.service.Totals(r.Context(), scopeOf(r), req.PointsToRedeem)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"totals": totals})
}

func (a *API) handleQuote(w http.ResponseWriter, r *http.Request) {
	quote, err := a.service.Quote(r.Context(), scopeOf(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (a *API) handleHold(w http.ResponseWriter, r *http.Request) {
	var req domain.HoldRequest
	if !a.decodeOptional(w, r, &req) {
		return
	}
	sale, err := a.service.Hold(r.Context(), scopeOf(r), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	resp, err := a.service.Checkout(r.Context(), scopeOf(r), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleListHeldSales(w http.ResponseWriter, r *http.Request) {
	sales, err := a.service.ListHeldSales(r.Context(), storeTypeParam(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleRestoreHeld(w http.ResponseWriter, r *http.Request) {
	var req restoreHeldRequest
	if !a.decode(w, r, &req) {
		return
	}
	scope := service.Scope{TerminalID: req.TerminalID, StoreType: req.StoreType}
	view, err := a.service.RestoreHeld(r.Context(), scope, r.PathValue("saleID"))
	a.writeView(w, r, http.StatusOK, view, err)
}

func (a *API) handleDeleteHeld(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteHeldSale(r.Context(), r.PathValue("saleID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
