package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"tiendapos/backend/internal/domain"
)

func (a *API) handlePublicCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := a.service.PublicCatalog(r.Context(), storeTypeParam(r), q.Get("category"), q.Get("search"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleStoreInfo(w http.ResponseWriter, r *http.Request) {
	info, err := a.service.StoreInfo(r.Context(), storeTypeParam(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"store": info})
}

func (a *API) handleCouponValidate(w http.ResponseWriter, r *http.Request) {
	var req domain.CouponValidateRequest
	if !a.decode(w, r, &req) {
		return
	}
	resp, err := a.service.ValidateCouponCode(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	if !a.orderLimiter.Allow(clientKey(r)) {
		a.writeError(w, r, http.StatusTooManyRequests, errors.New("too many orders"))
		return
	}
	var req domain.PublicOrderRequest
	if !a.decode(w, r, &req) {
		return
	}
	order, err := a.service.SubmitOrder(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (a *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.service.ListCategories(r.Context(), storeTypeParam(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (a *API) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	category, err := a.service.CreateCategory(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"category": category})
}

func (a *API) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteCategory(r.Context(), r.PathValue("categoryID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := a.service.ListProducts(r.Context(), domain.ProductFilter{
		StoreType:       storeTypeParam(r),
		Category:        q.Get("category"),
		Search:          q.Get("search"),
		IncludeInactive: q.Get("include_inactive") == "true",
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), r.PathValue("productID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), r.PathValue("productID"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleDeactivateProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.DeactivateProduct(r.Context(), r.PathValue("productID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleCreateVariant(w http.ResponseWriter, r *http.Request) {
	var req domain.VariantCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	variant, err := a.service.CreateVariant(r.Context(), r.PathValue("productID"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"variant": variant})
}

func (a *API) handleUpdateVariant(w http.ResponseWriter, r *http.Request) {
	var req domain.VariantUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	variant, err := a.service.UpdateVariant(r.Context(), r.PathValue("variantID"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"variant": variant})
}

func (a *API) handleArchiveVariant(w http.ResponseWriter, r *http.Request) {
	variant, err := a.service.ArchiveVariant(r.Context(), r.PathValue("variantID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"variant": variant})
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	customers, err := a.service.ListCustomers(r.Context(), storeTypeParam(r), q.Get("search"), parsePositiveLimit(q.Get("limit"), 50, 200))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	customer, err := a.service.CreateCustomer(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
}

func (a *API) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := a.service.GetCustomer(r.Context(), r.PathValue("customerID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	customer, err := a.service.UpdateCustomer(r.Context(), r.PathValue("customerID"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleAdjustPoints(w http.ResponseWriter, r *http.Request) {
	var req domain.PointsAdjustRequest
	if !a.decode(w, r, &req) {
		return
	}
	customer, err := a.service.AdjustPoints(r.Context(), r.PathValue("customerID"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := a.service.ListCoupons(r.Context(), storeTypeParam(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"coupons": coupons})
}

func (a *API) handleCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req domain.CouponCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	coupon, err := a.service.CreateCoupon(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"coupon": coupon})
}

func (a *API) handleUpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req domain.CouponUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	coupon, err := a.service.UpdateCoupon(r.Context(), r.PathValue("couponID"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"coupon": coupon})
}

func (a *API) handleDeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteCoupon(r.Context(), r.PathValue("couponID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListDiscounts(w http.ResponseWriter, r *http.Request) {
	discounts, err := a.service.ListDiscounts(r.Context(), storeTypeParam(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"discounts": discounts})
}

func (a *API) handleCreateDiscount(w http.ResponseWriter, r *http.Request) {
	var req domain.DiscountCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	discount, err := a.service.CreateDiscount(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"discount": discount})
}

func (a *API) handleDeleteDiscount(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteDiscount(r.Context(), r.PathValue("discountID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.service.Settings(r.Context(), storeTypeParam(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

func (a *API) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req domain.Settings
	if !a.decode(w, r, &req) {
		return
	}
	storeType := storeTypeParam(r)
	if storeType == "" {
		storeType = req.StoreType
	}
	settings, err := a.service.UpdateSettings(r.Context(), storeType, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

func (a *API) handleListTerminals(w http.ResponseWriter, r *http.Request) {
	terminals, err := a.service.ListTerminals(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"terminals": terminals})
}

func (a *API) handleCreateTerminal(w http.ResponseWriter, r *http.Request) {
	var req domain.TerminalCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	terminal, err := a.service.CreateTerminal(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"terminal": terminal})
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.service.ListOrders(r.Context(), storeTypeParam(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	count, err := a.service.PendingOrderCount(r.Context(), storeTypeParam(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

func (a *API) handleAcceptOrder(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.AcceptOrder(r.Context(), r.PathValue("saleID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleRejectOrder(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.RejectOrder(r.Context(), r.PathValue("saleID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTimeParam("from", q.Get("from"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	to, err := parseTimeParam("to", q.Get("to"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var statuses []string
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		statuses = strings.Split(raw, ",")
	}

	sales, err := a.service.ListSales(r.Context(), domain.SaleFilter{
		StoreType: storeTypeParam(r),
		Statuses:  statuses,
		From:      from,
		To:        to,
		Limit:     parsePositiveLimit(q.Get("limit"), 100, 500),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), r.PathValue("saleID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleReceipt(w http.ResponseWriter, r *http.Request) {
	rec, err := a.service.Receipt(r.Context(), r.PathValue("saleID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(rec.Text))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req domain.RefundRequest
	if !a.decode(w, r, &req) {
		return
	}
	result, err := a.service.Refund(r.Context(), r.PathValue("saleID"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := a.service.Dashboard(r.Context(), storeTypeParam(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTimeParam("from", q.Get("from"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	to, err := parseTimeParam("to", q.Get("to"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	logs, err := a.service.ListAuditLogs(r.Context(), storeTypeParam(r), from, to, parsePositiveLimit(q.Get("limit"), 100, 500))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleListCashiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers(r.Context())})
}

func (a *API) handleCreateCashier(w http.ResponseWriter, r *http.Request) {
	var req domain.CashierCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	cashier, err := a.auth.CreateCashier(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
}
