package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/duka/internal/core/domain"
	"github.com/rl1809/duka/internal/core/service"
	"github.com/rl1809/duka/internal/logger"
	"github.com/rl1809/duka/internal/metrics"
)

// Services groups the core services exposed over HTTP and gRPC.
type Services struct {
	Identity  *service.IdentityService
	Directory *service.DirectoryService
	Catalog   *service.CatalogService
	Sales     *service.SaleService
	History   *service.HistoryService
	Feeds     *service.FeedService
	Reports   *service.ReportService
}

type HTTPHandler struct {
	svc     Services
	metrics *metrics.Metrics
	log     *zap.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type signInOwnerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInStaffRequest struct {
	ShopCode string `json:"shop_code"`
	StaffID  string `json:"staff_id"`
}

type addStaffRequest struct {
	Name string `json:"name"`
}

type setStaffActiveRequest struct {
	Active *bool `json:"active_status"`
}

type createStockRequest struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type updateStockRequest struct {
	Name    string `json:"name"`
	Count   int    `json:"count"`
	Version int    `json:"version"`
}

type shopCodeResponse struct {
	ShopCode string `json:"shop_code"`
}

var errBadBody = &domain.ValidationError{Msg: "Invalid request body."}

func NewHTTPHandler(svc Services, m *metrics.Metrics, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, metrics: m, log: logger.OrNop(log)}
}

// Routes builds the router. Everything under /api/v1 except registration and
// sign-in needs a bearer token.
func (h *HTTPHandler) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.observe)

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", h.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/shops", h.registerShop)
		r.Post("/auth/owner", h.signInOwner)
		r.Post("/auth/staff", h.signInStaff)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Post("/auth/logout", h.signOut)
			r.Get("/shop", h.getShop)

			r.Get("/staff", h.listStaff)
			r.Post("/staff", h.addStaff)
			r.Patch("/staff/{id}", h.setStaffActive)

			r.Get("/stocks", h.listStocks)
			r.Post("/stocks", h.createStock)
			r.Get("/stocks/{id}", h.getStock)
			r.Put("/stocks/{id}", h.updateStock)
			r.Delete("/stocks/{id}", h.deleteStock)
			r.Get("/stocks/{id}/history", h.stockHistory)
			r.Get("/stocks/{id}/sales", h.stockSales)

			r.Post("/sales", h.sell)
			r.Get("/sales", h.listSales)
			r.Get("/history", h.editHistory)
			r.Post("/reports/sales", h.exportSales)

			r.Get("/feeds/{kind}", h.feed)
		})
	})
	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) registerShop(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterShopRequest
	if !decode(w, r, &req) {
		return
	}
	shop, err := h.svc.Identity.RegisterShop(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, shop)
}

func (h *HTTPHandler) signInOwner(w http.ResponseWriter, r *http.Request) {
	var req signInOwnerRequest
	if !decode(w, r, &req) {
		return
	}
	tok, err := h.svc.Identity.SignInOwner(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (h *HTTPHandler) signInStaff(w http.ResponseWriter, r *http.Request) {
	var req signInStaffRequest
	if !decode(w, r, &req) {
		return
	}
	tok, err := h.svc.Identity.SignInStaff(r.Context(), req.ShopCode, req.StaffID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (h *HTTPHandler) signOut(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Identity.SignOut(r.Context(), sessionFrom(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) getShop(w http.ResponseWriter, r *http.Request) {
	code, err := h.svc.Directory.ShopCode(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shopCodeResponse{ShopCode: code})
}

func (h *HTTPHandler) listStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.svc.Directory.ListStaff(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, staff)
}

func (h *HTTPHandler) addStaff(w http.ResponseWriter, r *http.Request) {
	var req addStaffRequest
	if !decode(w, r, &req) {
		return
	}
	staff, err := h.svc.Directory.AddStaff(r.Context(), sessionFrom(r.Context()), req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, staff)
}

func (h *HTTPHandler) setStaffActive(w http.ResponseWriter, r *http.Request) {
	var req setStaffActiveRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Active == nil {
		h.writeError(w, r, &domain.ValidationError{Msg: "active_status is required."})
		return
	}
	err := h.svc.Directory.SetStaffActive(r.Context(), sessionFrom(r.Context()), chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) listStocks(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	var (
		stocks []domain.Stock
		err    error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		stocks, err = h.svc.Catalog.Search(r.Context(), sess, q)
	} else {
		stocks, err = h.svc.Catalog.List(r.Context(), sess)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stocks)
}

func (h *HTTPHandler) createStock(w http.ResponseWriter, r *http.Request) {
	var req createStockRequest
	if !decode(w, r, &req) {
		return
	}
	stock, err := h.svc.Catalog.Create(r.Context(), sessionFrom(r.Context()), req.Name, req.Count)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stock)
}

func (h *HTTPHandler) getStock(w http.ResponseWriter, r *http.Request) {
	stock, err := h.svc.Catalog.Get(r.Context(), sessionFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stock)
}

func (h *HTTPHandler) updateStock(w http.ResponseWriter, r *http.Request) {
	var req updateStockRequest
	if !decode(w, r, &req) {
		return
	}
	stock, err := h.svc.Catalog.Update(r.Context(), sessionFrom(r.Context()), chi.URLParam(r, "id"), req.Version, req.Name, req.Count)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stock)
}

func (h *HTTPHandler) deleteStock(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Catalog.Delete(r.Context(), sessionFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) stockHistory(w http.ResponseWriter, r *http.Request) {
	edits, err := h.svc.History.StockEdits(r.Context(), sessionFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, edits)
}

func (h *HTTPHandler) stockSales(w http.ResponseWriter, r *http.Request) {
	sales, err := h.svc.History.StockSales(r.Context(), sessionFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (h *HTTPHandler) sell(w http.ResponseWriter, r *http.Request) {
	var req service.SellRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get("Idempotency-Key")
	}
	res, err := h.svc.Sales.Sell(r.Context(), sessionFrom(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *HTTPHandler) listSales(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.svc.History.Sales(r.Context(), sessionFrom(r.Context()), rng)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *HTTPHandler) editHistory(w http.ResponseWriter, r *http.Request) {
	edits, err := h.svc.History.Edits(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, edits)
}

func (h *HTTPHandler) exportSales(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	info, err := h.svc.Reports.ExportSales(r.Context(), sessionFrom(r.Context()), rng)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

type sessionKey struct{}

func withSession(ctx context.Context, sess domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

func sessionFrom(ctx context.Context) domain.Session {
	sess, _ := ctx.Value(sessionKey{}).(domain.Session)
	return sess
}

func bearerToken(header string) (string, bool) {
	tok, ok := strings.CutPrefix(header, "Bearer ")
	tok = strings.TrimSpace(tok)
	return tok, ok && tok != ""
}

func (h *HTTPHandler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			h.writeError(w, r, domain.ErrInvalidToken)
			return
		}
		sess, err := h.svc.Identity.Resolve(r.Context(), tok)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
	})
}

// observe records the duration of every request against its route pattern.
func (h *HTTPHandler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		h.metrics.ObserveHTTP(r.Method, route, status, elapsed)
		h.log.Debug("request served",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
		)
	})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		validation   *domain.ValidationError
		notFound     *domain.NotFoundError
		conflict     *domain.ConflictError
		unauthorized *domain.UnauthorizedError
		forbidden    *domain.ForbiddenError
	)
	switch {
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorResponse{Error: domain.UserMessage(err)})
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errBadBody.Msg})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
