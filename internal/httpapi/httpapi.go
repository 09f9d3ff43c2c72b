// Package httpapi exposes the POS service as a JSON REST API under /api/v1.
package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tiendapos/backend/internal/apperr"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/service"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/ticket"
)

const maxBodyBytes = 1 << 20

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
	orderLimiter  *attemptLimiter
	csrfSecret    []byte
	logger        *zap.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		logger.Warn("crypto/rand failed, using fallback CSRF secret", zap.Error(err))
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		orderLimiter:  newAttemptLimiter(20, time.Minute),
		csrfSecret:    csrfSecret,
		logger:        logger.Named("http"),
	}
}

// csrfTokenForHour computes the hex HMAC-SHA256 token of an hour bucket
// (Unix time truncated to the hour).
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts the current and the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	current := time.Now().UTC().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current-3600)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	staff := []string{domain.RoleCashier, domain.RoleAdmin}
	admin := []string{domain.RoleAdmin}

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/v1/auth/csrf-token", a.handleCSRFToken)
	mux.HandleFunc("POST /api/v1/auth/elevate", a.requireAuth(a.handleElevate, staff...))

	mux.HandleFunc("GET /api/v1/public/catalog", a.handlePublicCatalog)
	mux.HandleFunc("GET /api/v1/public/store-info", a.handleStoreInfo)
	mux.HandleFunc("POST /api/v1/public/coupons/validate", a.handleCouponValidate)
	mux.HandleFunc("POST /api/v1/public/orders", a.handleSubmitOrder)

	mux.HandleFunc("GET /api/v1/categories", a.requireAuth(a.handleListCategories, staff...))
	mux.HandleFunc("POST /api/v1/categories", a.requireAuth(a.handleCreateCategory, admin...))
	mux.HandleFunc("DELETE /api/v1/categories/{categoryID}", a.requireAuth(a.handleDeleteCategory, admin...))

	mux.HandleFunc("GET /api/v1/products", a.requireAuth(a.handleListProducts, staff...))
	mux.HandleFunc("POST /api/v1/products", a.requireAuth(a.handleCreateProduct, admin...))
	mux.HandleFunc("GET /api/v1/products/{productID}", a.requireAuth(a.handleGetProduct, staff...))
	mux.HandleFunc("PATCH /api/v1/products/{productID}", a.requireAuth(a.handleUpdateProduct, admin...))
	mux.HandleFunc("DELETE /api/v1/products/{productID}", a.requireAuth(a.handleDeactivateProduct, admin...))
	mux.HandleFunc("POST /api/v1/products/{productID}/variants", a.requireAuth(a.handleCreateVariant, admin...))
	mux.HandleFunc("PATCH /api/v1/variants/{variantID}", a.requireAuth(a.handleUpdateVariant, admin...))
	mux.HandleFunc("DELETE /api/v1/variants/{variantID}", a.requireAuth(a.handleArchiveVariant, admin...))

	mux.HandleFunc("GET /api/v1/customers", a.requireAuth(a.handleListCustomers, staff...))
	mux.HandleFunc("POST /api/v1/customers", a.requireAuth(a.handleCreateCustomer, staff...))
	mux.HandleFunc("GET /api/v1/customers/{customerID}", a.requireAuth(a.handleGetCustomer, staff...))
	mux.HandleFunc("PATCH /api/v1/customers/{customerID}", a.requireAuth(a.handleUpdateCustomer, admin...))
	mux.HandleFunc("POST /api/v1/customers/{customerID}/points", a.requireAuth(a.handleAdjustPoints, admin...))

	mux.HandleFunc("GET /api/v1/coupons", a.requireAuth(a.handleListCoupons, admin...))
	mux.HandleFunc("POST /api/v1/coupons", a.requireAuth(a.handleCreateCoupon, admin...))
	mux.HandleFunc("PATCH /api/v1/coupons/{couponID}", a.requireAuth(a.handleUpdateCoupon, admin...))
	mux.HandleFunc("DELETE /api/v1/coupons/{couponID}", a.requireAuth(a.handleDeleteCoupon, admin...))

	mux.HandleFunc("GET /api/v1/discounts", a.requireAuth(a.handleListDiscounts, staff...))
	mux.HandleFunc("POST /api/v1/discounts", a.requireAuth(a.handleCreateDiscount, admin...))
	mux.HandleFunc("DELETE /api/v1/discounts/{discountID}", a.requireAuth(a.handleDeleteDiscount, admin...))

	mux.HandleFunc("GET /api/v1/settings", a.requireAuth(a.handleGetSettings, staff...))
	mux.HandleFunc("PUT /api/v1/settings", a.requireAuth(a.handleUpdateSettings, admin...))
	mux.HandleFunc("GET /api/v1/terminals", a.requireAuth(a.handleListTerminals, staff...))
	mux.HandleFunc("POST /api/v1/terminals", a.requireAuth(a.handleCreateTerminal, admin...))

	a.registerTicketRoutes(mux, staff)

	mux.HandleFunc("GET /api/v1/held-sales", a.requireAuth(a.handleListHeldSales, staff...))
	mux.HandleFunc("POST /api/v1/held-sales/{saleID}/restore", a.requireAuth(a.handleRestoreHeld, staff...))
	mux.HandleFunc("DELETE /api/v1/held-sales/{saleID}", a.requireAuth(a.handleDeleteHeld, admin...))

	mux.HandleFunc("GET /api/v1/orders", a.requireAuth(a.handleListOrders, admin...))
	mux.HandleFunc("GET /api/v1/orders/pending-count", a.requireAuth(a.handlePendingCount, staff...))
	mux.HandleFunc("GET /api/v1/orders/stream", a.requireAuth(a.handleOrderStream, staff...))
	mux.HandleFunc("POST /api/v1/orders/{saleID}/accept", a.requireAuth(a.handleAcceptOrder, admin...))
	mux.HandleFunc("POST /api/v1/orders/{saleID}/reject", a.requireAuth(a.handleRejectOrder, admin...))

	mux.HandleFunc("GET /api/v1/sales", a.requireAuth(a.handleListSales, staff...))
	mux.HandleFunc("GET /api/v1/sales/{saleID}", a.requireAuth(a.handleGetSale, staff...))
	mux.HandleFunc("GET /api/v1/sales/{saleID}/receipt", a.requireAuth(a.handleReceipt, staff...))
	mux.HandleFunc("POST /api/v1/sales/{saleID}/refunds", a.requireAuth(a.handleRefund, admin...))

	mux.HandleFunc("GET /api/v1/dashboard", a.requireAuth(a.handleDashboard, admin...))
	mux.HandleFunc("GET /api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, admin...))
	mux.HandleFunc("GET /api/v1/users/cashiers", a.requireAuth(a.handleListCashiers, admin...))
	mux.HandleFunc("POST /api/v1/users/cashiers", a.requireAuth(a.handleCreateCashier, admin...))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, r, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, r, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			a.writeError(w, r, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, r, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if !a.decode(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleElevate(w http.ResponseWriter, r *http.Request) {
	if !a.pinLimiter.Allow(clientKey(r)) {
		a.writeError(w, r, http.StatusTooManyRequests, errors.New("too many PIN attempts"))
		return
	}

	var req domain.ElevateRequest
	if !a.decode(w, r, &req) {
		return
	}

	actor, _ := service.ActorFromContext(r.Context())
	resp, err := a.auth.Elevate(actor, req.ManagerPIN)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token for the X-CSRF-Token header of
// mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// Login and the storefront endpoints carry no session, so they skip CSRF.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

const publicPrefix = "/api/v1/public/"

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	if strings.HasPrefix(r.URL.Path, publicPrefix) {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	if !a.validateCSRFToken(strings.TrimSpace(r.Header.Get("X-CSRF-Token"))) {
		a.writeError(w, r, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(startedAt)))
	})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var validation *apperr.ValidationError
	var authErr *apperr.AuthError
	var couponErr *apperr.CouponError
	var transition *apperr.TransitionError
	var maxBytes *http.MaxBytesError

	switch {
	case errors.As(err, &validation), errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &authErr):
		if authErr.Forbidden {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound), errors.Is(err, ticket.ErrTicketNotFound), errors.Is(err, ticket.ErrLineNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrCouponExhausted):
		return http.StatusConflict
	case errors.As(err, &couponErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &transition),
		errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrInsufficientPoints),
		errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	a.writeError(w, r, statusFor(err), err)
}

// decode reads a JSON body, answering 400 on failure.
func (a *API) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			a.writeError(w, r, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
			return false
		}
		a.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return false
	}
	return true
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates.
func parseTimeParam(field string, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Validation(field, "must be RFC 3339 or YYYY-MM-DD")
}

func storeTypeParam(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("store_type"))
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
