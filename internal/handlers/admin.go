package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fashion-shop/api/internal/domain"
	"github.com/fashion-shop/api/internal/platform/auth"
	"github.com/fashion-shop/api/internal/platform/httpx"
	"github.com/fashion-shop/api/internal/services"
)

const maxAdminBodySize = 16 * 1024

// AdminHandlers exposes operator endpoints over users, orders, the catalog,
// and dashboard reporting. Every route requires the admin role.
type AdminHandlers struct {
	authn   *auth.Authenticator
	admin   services.AdminService
	orders  services.OrderService
	catalog services.CatalogService
}

// NewAdminHandlers constructs handlers for the /admin endpoint group.
func NewAdminHandlers(authn *auth.Authenticator, admin services.AdminService, orders services.OrderService, catalog services.CatalogService) *AdminHandlers {
	return &AdminHandlers{
		authn:   authn,
		admin:   admin,
		orders:  orders,
		catalog: catalog,
	}
}

// Routes wires the /admin endpoints onto the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin))
	}
	r.Get("/users", h.listUsers)
	r.Get("/users/count", h.countUsers)
	r.Get("/users/{userID}", h.getUser)
	r.Post("/users/{userID}/ban", h.banUser)
	r.Post("/users/{userID}/unban", h.unbanUser)
	r.Delete("/users/{userID}", h.deleteUser)

	r.Get("/orders", h.listOrders)
	r.Put("/orders/{orderID}/status", h.setOrderStatus)

	r.Get("/products", h.listProducts)

	r.Get("/reports/summary", h.summary)
	r.Get("/reports/sales-by-day", h.salesByDay)
	r.Get("/reports/top-products", h.topProducts)
}

func (h *AdminHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admin == nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnavailable, "admin service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := services.UserListQuery{}
	if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
		role := domain.Role(strings.ToLower(raw))
		switch role {
		case domain.RoleUser, domain.RoleSeller, domain.RoleAdmin:
			query.Role = &role
		default:
			httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, "role must be user, seller, or admin", http.StatusBadRequest))
			return
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("banned")); raw != "" {
		banned, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, "banned must be true or false", http.StatusBadRequest))
			return
		}
		query.Banned = &banned
	}
	pager, err := parsePager(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest))
		return
	}
	query.Pager = pager

	page, err := h.admin.ListUsers(ctx, query)
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	items := make([]userPayload, 0, len(page.Items))
	for _, user := range page.Items {
		items = append(items, buildUserPayload(user))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items":         items,
		"nextPageToken": page.NextPageToken,
	})
}

func (h *AdminHandlers) countUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := h.admin.CountUsers(ctx)
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"count": count})
}

func (h *AdminHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.admin.GetUser(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildUserPayload(user))
}

type banUserRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminHandlers) banUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req banUserRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(w, r, err)
		return
	}

	user, err := h.admin.BanUser(ctx, services.BanUserCommand{
		UserID: chi.URLParam(r, "userID"),
		Reason: req.Reason,
	})
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildUserPayload(user))
}

func (h *AdminHandlers) unbanUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.admin.UnbanUser(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildUserPayload(user))
}

func (h *AdminHandlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.admin.DeleteUser(ctx, chi.URLParam(r, "userID")); err != nil {
		writeAdminError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnavailable, "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query, err := parseOrderListQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest))
		return
	}

	// An empty user id scopes the listing store-wide.
	page, err := h.orders.ListOrders(ctx, "", query)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListPayload(page))
}

type setOrderStatusRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandlers) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnavailable, "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req setOrderStatusRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	order, err := h.orders.SetStatus(ctx, services.SetOrderStatusCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Status:  domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnavailable, "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query, err := parseProductListQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest))
		return
	}
	query.IncludeHidden = true

	page, err := h.catalog.ListProducts(ctx, query)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items":         items,
		"nextPageToken": page.NextPageToken,
	})
}

func (h *AdminHandlers) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := h.admin.Summary(ctx)
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	byStatus := make(map[string]int64, len(summary.OrdersByStatus))
	for status, count := range summary.OrdersByStatus {
		byStatus[string(status)] = count
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"userCount":      summary.UserCount,
		"orderCount":     summary.OrderCount,
		"revenue":        summary.Revenue,
		"currency":       summary.Currency,
		"ordersByStatus": byStatus,
	})
}

func (h *AdminHandlers) salesByDay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query, err := parseSalesReportQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest))
		return
	}

	days, err := h.admin.SalesByDay(ctx, query)
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	items := make([]map[string]any, 0, len(days))
	for _, day := range days {
		items = append(items, map[string]any{
			"day":     day.Day.UTC().Format("2006-01-02"),
			"orders":  day.Orders,
			"revenue": day.Revenue,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AdminHandlers) topProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query, err := parseSalesReportQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest))
		return
	}

	ranked, err := h.admin.TopProducts(ctx, query)
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	items := make([]map[string]any, 0, len(ranked))
	for _, entry := range ranked {
		items = append(items, map[string]any{
			"productId": entry.ProductID,
			"name":      entry.Name,
			"qty":       entry.Quantity,
			"revenue":   entry.Revenue,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func parseSalesReportQuery(r *http.Request) (services.SalesReportQuery, error) {
	query := services.SalesReportQuery{}

	from, err := queryTime(r, "from")
	if err != nil {
		return services.SalesReportQuery{}, err
	}
	if from != nil {
		query.From = *from
	}
	to, err := queryTime(r, "to")
	if err != nil {
		return services.SalesReportQuery{}, err
	}
	if to != nil {
		query.To = *to
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return services.SalesReportQuery{}, errors.New("limit must be a positive integer")
		}
		query.Limit = limit
	}
	return query, nil
}

func writeAdminError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAdminInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAdminNotFound):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeNotFound, "record not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAdminUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnavailable, "admin service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInternal, "admin operation failed", http.StatusInternalServerError))
	}
}
