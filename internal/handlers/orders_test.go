package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fashion-shop/api/internal/domain"
	"github.com/fashion-shop/api/internal/platform/auth"
	"github.com/fashion-shop/api/internal/services"
)

type stubOrderService struct {
	placeFn     func(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error)
	getFn       func(ctx context.Context, userID, orderID string) (services.Order, error)
	listFn      func(ctx context.Context, userID string, query services.OrderListQuery) (domain.CursorPage[services.Order], error)
	cancelFn    func(ctx context.Context, userID, orderID string) (services.Order, error)
	setStatusFn func(ctx context.Context, cmd services.SetOrderStatusCommand) (services.Order, error)
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
	if s.placeFn == nil {
		return services.Order{}, services.ErrOrderUnavailable
	}
	return s.placeFn(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, userID, orderID string) (services.Order, error) {
	if s.getFn == nil {
		return services.Order{}, services.ErrOrderNotFound
	}
	return s.getFn(ctx, userID, orderID)
}

func (s *stubOrderService) ListOrders(ctx context.Context, userID string, query services.OrderListQuery) (domain.CursorPage[services.Order], error) {
	if s.listFn == nil {
		return domain.CursorPage[services.Order]{}, nil
	}
	return s.listFn(ctx, userID, query)
}

func (s *stubOrderService) CancelOrder(ctx context.Context, userID, orderID string) (services.Order, error) {
	if s.cancelFn == nil {
		return services.Order{}, services.ErrOrderNotFound
	}
	return s.cancelFn(ctx, userID, orderID)
}

func (s *stubOrderService) SetStatus(ctx context.Context, cmd services.SetOrderStatusCommand) (services.Order, error) {
	if s.setStatusFn == nil {
		return services.Order{}, services.ErrOrderNotFound
	}
	return s.setStatusFn(ctx, cmd)
}

var _ services.OrderService = (*stubOrderService)(nil)

func newSessionAuthenticator(t *testing.T) (*auth.Authenticator, string) {
	t.Helper()
	tokens, err := auth.NewTokenManager(auth.TokenManagerDeps{
		Secret:    "order-test-secret",
		AccessTTL: time.Hour,
		ResetTTL:  time.Hour,
	})
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	token, _, err := tokens.IssueAccessToken("user-1", "shopper@example.com", "user")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	return auth.NewAuthenticator(tokens), token
}

func orderTestRouter(h *OrderHandlers) http.Handler {
	r := chi.NewRouter()
	r.Route("/orders", h.Routes)
	return r
}

func TestPlaceOrderRequiresSession(t *testing.T) {
	authn, _ := newSessionAuthenticator(t)
	router := orderTestRouter(NewOrderHandlers(authn, &stubOrderService{}))

	req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(`{"lines":[]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestPlaceOrderReturnsCreatedOrder(t *testing.T) {
	authn, token := newSessionAuthenticator(t)
	svc := &stubOrderService{
		placeFn: func(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
			if cmd.UserID != "user-1" {
				t.Fatalf("expected session user, got %q", cmd.UserID)
			}
			if len(cmd.Lines) != 1 || cmd.Lines[0].ProductID != "prod-1" || cmd.Lines[0].Quantity != 2 {
				t.Fatalf("unexpected lines %+v", cmd.Lines)
			}
			return services.Order{
				ID:     "order-1",
				Number: "FS-2024-000001",
				UserID: cmd.UserID,
				Status: domain.OrderStatusPending,
				Total:  3000,
				Lines: []domain.OrderLine{
					{ProductID: "prod-1", Name: "Tee", Quantity: 2, UnitPrice: 1500},
				},
			}, nil
		},
	}
	router := orderTestRouter(NewOrderHandlers(authn, svc))

	req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(`{"lines":[{"productId":"prod-1","color":"red","size":"M","qty":2}]}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["number"] != "FS-2024-000001" || body["status"] != "pending" {
		t.Fatalf("unexpected payload %v", body)
	}
}

func TestPlaceOrderErrorMapping(t *testing.T) {
	authn, token := newSessionAuthenticator(t)
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"insufficient stock", services.ErrOrderInsufficientStock, http.StatusConflict, "insufficient_stock"},
		{"missing product", services.ErrOrderProductNotFound, http.StatusNotFound, "not_found"},
		{"bad input", services.ErrOrderInvalidInput, http.StatusBadRequest, "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				placeFn: func(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			router := orderTestRouter(NewOrderHandlers(authn, svc))

			req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(`{"lines":[{"productId":"prod-1","qty":1}]}`))
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			if body := decodeBody(t, rec); body["error"] != tc.wantCode {
				t.Fatalf("expected code %q, got %v", tc.wantCode, body["error"])
			}
		})
	}
}

func TestCancelOrderInvalidTransitionMapping(t *testing.T) {
	authn, token := newSessionAuthenticator(t)
	svc := &stubOrderService{
		cancelFn: func(ctx context.Context, userID, orderID string) (services.Order, error) {
			if orderID != "order-1" {
				t.Fatalf("unexpected order id %q", orderID)
			}
			return services.Order{}, services.ErrOrderInvalidTransition
		},
	}
	router := orderTestRouter(NewOrderHandlers(authn, svc))

	req := httptest.NewRequest(http.MethodDelete, "/orders/order-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "invalid_transition" {
		t.Fatalf("unexpected code %v", body["error"])
	}
}

func TestListOrdersParsesQuery(t *testing.T) {
	authn, token := newSessionAuthenticator(t)
	var captured services.OrderListQuery
	svc := &stubOrderService{
		listFn: func(ctx context.Context, userID string, query services.OrderListQuery) (domain.CursorPage[services.Order], error) {
			captured = query
			return domain.CursorPage[services.Order]{
				Items:         []services.Order{{ID: "order-1", Status: domain.OrderStatusShipped}},
				NextPageToken: "next",
			}, nil
		},
	}
	router := orderTestRouter(NewOrderHandlers(authn, svc))

	req := httptest.NewRequest(http.MethodGet, "/orders/?status=Shipped&created_from=2024-05-01&page_size=5", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Status == nil || *captured.Status != domain.OrderStatusShipped {
		t.Fatalf("expected lowercased status filter, got %v", captured.Status)
	}
	if captured.CreatedFrom == nil || !captured.CreatedFrom.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created_from %v", captured.CreatedFrom)
	}
	if captured.Pager.PageSize != 5 {
		t.Fatalf("unexpected pager %+v", captured.Pager)
	}
	body := decodeBody(t, rec)
	if body["nextPageToken"] != "next" {
		t.Fatalf("unexpected page token %v", body["nextPageToken"])
	}
}

func TestGetOrderRejectsBadPageSize(t *testing.T) {
	authn, token := newSessionAuthenticator(t)
	router := orderTestRouter(NewOrderHandlers(authn, &stubOrderService{}))

	req := httptest.NewRequest(http.MethodGet, "/orders/?page_size=nope", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListOrdersRejectsMalformedPageToken(t *testing.T) {
	authn, token := newSessionAuthenticator(t)
	called := false
	svc := &stubOrderService{
		listFn: func(ctx context.Context, userID string, query services.OrderListQuery) (domain.CursorPage[services.Order], error) {
			called = true
			return domain.CursorPage[services.Order]{}, nil
		},
	}
	router := orderTestRouter(NewOrderHandlers(authn, svc))

	req := httptest.NewRequest(http.MethodGet, "/orders/?page_token=!!not-a-cursor", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "invalid_request" {
		t.Fatalf("unexpected code %v", body["error"])
	}
	if called {
		t.Fatalf("expected list to be rejected before reaching the service")
	}
}
