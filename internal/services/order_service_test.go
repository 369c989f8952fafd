package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/fashion-shop/api/internal/domain"
	"github.com/fashion-shop/api/internal/repositories"
)

type repoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repoError) Error() string       { return "repo error" }
func (e *repoError) IsNotFound() bool    { return e.notFound }
func (e *repoError) IsConflict() bool    { return e.conflict }
func (e *repoError) IsUnavailable() bool { return e.unavailable }

type stubOrderRepository struct {
	placeFn        func(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error)
	findFn         func(ctx context.Context, orderID string) (domain.Order, error)
	updateStatusFn func(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error)
	listByUserFn   func(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	listAllFn      func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
}

func (s *stubOrderRepository) Place(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
	if s.placeFn == nil {
		return domain.Order{}, errors.New("unexpected Place")
	}
	return s.placeFn(ctx, req)
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn == nil {
		return domain.Order{}, errors.New("unexpected FindByID")
	}
	return s.findFn(ctx, orderID)
}

func (s *stubOrderRepository) UpdateStatus(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if s.updateStatusFn == nil {
		return domain.Order{}, errors.New("unexpected UpdateStatus")
	}
	return s.updateStatusFn(ctx, orderID, update)
}

func (s *stubOrderRepository) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listByUserFn == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("unexpected ListByUser")
	}
	return s.listByUserFn(ctx, userID, filter)
}

func (s *stubOrderRepository) ListAll(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listAllFn == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("unexpected ListAll")
	}
	return s.listAllFn(ctx, filter)
}

type stubCartRepository struct {
	getFn     func(ctx context.Context, userID string) (domain.Cart, error)
	replaceFn func(ctx context.Context, userID string, lines []domain.CartLine) (domain.Cart, error)
	pullFn    func(ctx context.Context, userID string, keys []domain.VariantKey) error
	clearFn   func(ctx context.Context, userID string) error
}

func (s *stubCartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFn == nil {
		return domain.Cart{UserID: userID}, nil
	}
	return s.getFn(ctx, userID)
}

func (s *stubCartRepository) ReplaceLines(ctx context.Context, userID string, lines []domain.CartLine) (domain.Cart, error) {
	if s.replaceFn == nil {
		return domain.Cart{UserID: userID, Lines: lines}, nil
	}
	return s.replaceFn(ctx, userID, lines)
}

func (s *stubCartRepository) PullLines(ctx context.Context, userID string, keys []domain.VariantKey) error {
	if s.pullFn == nil {
		return nil
	}
	return s.pullFn(ctx, userID, keys)
}

func (s *stubCartRepository) Clear(ctx context.Context, userID string) error {
	if s.clearFn == nil {
		return nil
	}
	return s.clearFn(ctx, userID)
}

type stubOrderEventPublisher struct {
	events []OrderEvent
	err    error
}

func (s *stubOrderEventPublisher) PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error) {
	s.events = append(s.events, event)
	return "msg-1", s.err
}

var _ repositories.OrderRepository = (*stubOrderRepository)(nil)
var _ repositories.CartRepository = (*stubCartRepository)(nil)

func newOrderServiceForTest(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func TestPlaceOrderCommitsAndPrunesCart(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var gotReq repositories.PlaceOrderRequest
	var pulledKeys []domain.VariantKey

	orders := &stubOrderRepository{
		placeFn: func(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
			gotReq = req
			placed := req.Order
			placed.Number = "FS-2024-000042"
			placed.Total = 2 * 1500
			placed.Currency = "USD"
			for i := range placed.Lines {
				placed.Lines[i].UnitPrice = 1500
				placed.Lines[i].Name = "Tee"
			}
			return placed, nil
		},
	}
	carts := &stubCartRepository{
		pullFn: func(ctx context.Context, userID string, keys []domain.VariantKey) error {
			pulledKeys = keys
			return nil
		},
	}
	events := &stubOrderEventPublisher{}

	svc := newOrderServiceForTest(t, OrderServiceDeps{
		Orders:      orders,
		Carts:       carts,
		Events:      events,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "order-1" },
	})

	placed, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID: "user-1",
		Lines: []OrderLineInput{
			{ProductID: " prod-1 ", Color: "red", Size: "M", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	if gotReq.CounterID != "orders-2024" {
		t.Fatalf("expected counter orders-2024, got %s", gotReq.CounterID)
	}
	if gotReq.NumberPrefix != "FS-2024-" {
		t.Fatalf("expected number prefix FS-2024-, got %s", gotReq.NumberPrefix)
	}
	if gotReq.Order.ID != "order-1" || gotReq.Order.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected order envelope: %+v", gotReq.Order)
	}
	if gotReq.Order.Lines[0].ProductID != "prod-1" {
		t.Fatalf("expected trimmed product id, got %q", gotReq.Order.Lines[0].ProductID)
	}
	if placed.Number != "FS-2024-000042" || placed.Total != 3000 {
		t.Fatalf("unexpected placed order: %+v", placed)
	}
	if len(pulledKeys) != 1 || pulledKeys[0] != (domain.VariantKey{ProductID: "prod-1", Color: "red", Size: "M"}) {
		t.Fatalf("expected ordered line pruned from cart, got %+v", pulledKeys)
	}
	if len(events.events) != 1 || events.events[0].Type != OrderEventPlaced {
		t.Fatalf("expected one placed event, got %+v", events.events)
	}
}

func TestPlaceOrderCartPruneFailureDoesNotFailOrder(t *testing.T) {
	orders := &stubOrderRepository{
		placeFn: func(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
			return req.Order, nil
		},
	}
	carts := &stubCartRepository{
		pullFn: func(ctx context.Context, userID string, keys []domain.VariantKey) error {
			return errors.New("firestore down")
		},
	}

	svc := newOrderServiceForTest(t, OrderServiceDeps{Orders: orders, Carts: carts})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID: "user-1",
		Lines:  []OrderLineInput{{ProductID: "prod-1", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("expected committed order despite prune failure, got %v", err)
	}
}

func TestPlaceOrderTranslatesStockErrors(t *testing.T) {
	cases := []struct {
		name string
		code repositories.StockErrorCode
		want error
	}{
		{"insufficient", repositories.StockErrorInsufficient, ErrOrderInsufficientStock},
		{"missing product", repositories.StockErrorProductNotFound, ErrOrderProductNotFound},
		{"invalid input", repositories.StockErrorInvalidInput, ErrOrderInvalidInput},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orders := &stubOrderRepository{
				placeFn: func(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
					return domain.Order{}, &repositories.StockError{Code: tc.code, ProductID: "prod-1"}
				},
			}
			svc := newOrderServiceForTest(t, OrderServiceDeps{Orders: orders, Carts: &stubCartRepository{}})

			_, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
				UserID: "user-1",
				Lines:  []OrderLineInput{{ProductID: "prod-1", Quantity: 1}},
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	svc := newOrderServiceForTest(t, OrderServiceDeps{Orders: &stubOrderRepository{}, Carts: &stubCartRepository{}})

	if _, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for empty user, got %v", err)
	}
	if _, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{UserID: "u"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for empty lines, got %v", err)
	}
	_, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID: "u",
		Lines:  []OrderLineInput{{ProductID: "p", Quantity: 0}},
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for zero quantity, got %v", err)
	}
}

func TestGetOrderScopesToOwner(t *testing.T) {
	orders := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "owner"}, nil
		},
	}
	svc := newOrderServiceForTest(t, OrderServiceDeps{Orders: orders, Carts: &stubCartRepository{}})

	if _, err := svc.GetOrder(context.Background(), "someone-else", "o-1"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found for foreign order, got %v", err)
	}
	order, err := svc.GetOrder(context.Background(), "owner", "o-1")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if order.ID != "o-1" {
		t.Fatalf("unexpected order: %+v", order)
	}
	if _, err := svc.GetOrder(context.Background(), "", "o-1"); err != nil {
		t.Fatalf("expected store-wide read to succeed, got %v", err)
	}
}

func TestCancelOrderOnlyWhilePending(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	shipped := domain.Order{ID: "o-1", UserID: "owner", Status: domain.OrderStatusShipped}

	orders := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return shipped, nil
		},
	}
	svc := newOrderServiceForTest(t, OrderServiceDeps{
		Orders: orders,
		Carts:  &stubCartRepository{},
		Clock:  func() time.Time { return now },
	})

	if _, err := svc.CancelOrder(context.Background(), "owner", "o-1"); !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected invalid transition for shipped order, got %v", err)
	}
	if _, err := svc.CancelOrder(context.Background(), "other", "o-1"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found for foreign order, got %v", err)
	}
}

func TestCancelOrderPinsPendingStatus(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var gotUpdate repositories.OrderStatusUpdate

	orders := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "owner", Status: domain.OrderStatusPending}, nil
		},
		updateStatusFn: func(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
			gotUpdate = update
			return domain.Order{ID: orderID, UserID: "owner", Status: update.Status}, nil
		},
	}
	events := &stubOrderEventPublisher{}
	svc := newOrderServiceForTest(t, OrderServiceDeps{
		Orders: orders,
		Carts:  &stubCartRepository{},
		Events: events,
		Clock:  func() time.Time { return now },
	})

	cancelled, err := svc.CancelOrder(context.Background(), "owner", "o-1")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if gotUpdate.ExpectStatus == nil || *gotUpdate.ExpectStatus != domain.OrderStatusPending {
		t.Fatalf("expected update pinned to pending, got %+v", gotUpdate)
	}
	if gotUpdate.CancelledAt == nil || !gotUpdate.CancelledAt.Equal(now) {
		t.Fatalf("expected cancelledAt %s, got %+v", now, gotUpdate.CancelledAt)
	}
	if len(events.events) != 1 || events.events[0].PreviousStatus != domain.OrderStatusPending {
		t.Fatalf("expected status change event from pending, got %+v", events.events)
	}
}

func TestCancelOrderConcurrentChangeIsInvalidTransition(t *testing.T) {
	orders := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "owner", Status: domain.OrderStatusPending}, nil
		},
		updateStatusFn: func(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
			return domain.Order{}, &repoError{conflict: true}
		},
	}
	svc := newOrderServiceForTest(t, OrderServiceDeps{Orders: orders, Carts: &stubCartRepository{}})

	if _, err := svc.CancelOrder(context.Background(), "owner", "o-1"); !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected invalid transition on conflict, got %v", err)
	}
}

func TestSetStatusSameStatusIsNoOp(t *testing.T) {
	updateCalls := 0
	orders := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, Status: domain.OrderStatusConfirmed}, nil
		},
		updateStatusFn: func(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
			updateCalls++
			return domain.Order{}, nil
		},
	}
	svc := newOrderServiceForTest(t, OrderServiceDeps{Orders: orders, Carts: &stubCartRepository{}})

	order, err := svc.SetStatus(context.Background(), SetOrderStatusCommand{OrderID: "o-1", Status: domain.OrderStatusConfirmed})
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected stored order back, got %+v", order)
	}
	if updateCalls != 0 {
		t.Fatalf("expected no repository update for same status")
	}
}

func TestSetStatusTerminalOrdersAreFrozen(t *testing.T) {
	orders := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, Status: domain.OrderStatusRefunded}, nil
		},
	}
	svc := newOrderServiceForTest(t, OrderServiceDeps{Orders: orders, Carts: &stubCartRepository{}})

	if _, err := svc.SetStatus(context.Background(), SetOrderStatusCommand{OrderID: "o-1", Status: domain.OrderStatusConfirmed}); !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected invalid transition out of refunded, got %v", err)
	}
}

func TestSetStatusStampsLifecycleTimestamp(t *testing.T) {
	now := time.Date(2024, 6, 2, 8, 30, 0, 0, time.UTC)
	var gotUpdate repositories.OrderStatusUpdate
	orders := &stubOrderRepository{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, Status: domain.OrderStatusConfirmed}, nil
		},
		updateStatusFn: func(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
			gotUpdate = update
			return domain.Order{ID: orderID, Status: update.Status}, nil
		},
	}
	svc := newOrderServiceForTest(t, OrderServiceDeps{
		Orders: orders,
		Carts:  &stubCartRepository{},
		Clock:  func() time.Time { return now },
	})

	if _, err := svc.SetStatus(context.Background(), SetOrderStatusCommand{OrderID: "o-1", Status: domain.OrderStatusShipped}); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if gotUpdate.ShippedAt == nil || !gotUpdate.ShippedAt.Equal(now) {
		t.Fatalf("expected shippedAt stamped, got %+v", gotUpdate)
	}
	if gotUpdate.ExpectStatus == nil || *gotUpdate.ExpectStatus != domain.OrderStatusConfirmed {
		t.Fatalf("expected update pinned to confirmed, got %+v", gotUpdate)
	}
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	svc := newOrderServiceForTest(t, OrderServiceDeps{Orders: &stubOrderRepository{}, Carts: &stubCartRepository{}})

	if _, err := svc.SetStatus(context.Background(), SetOrderStatusCommand{OrderID: "o-1", Status: "teleported"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}
}

func TestListOrdersScopesByUser(t *testing.T) {
	orders := &stubOrderRepository{
		listByUserFn: func(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			return domain.CursorPage[domain.Order]{Items: []domain.Order{{ID: "mine", UserID: userID}}}, nil
		},
		listAllFn: func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			return domain.CursorPage[domain.Order]{Items: []domain.Order{{ID: "a"}, {ID: "b"}}}, nil
		},
	}
	svc := newOrderServiceForTest(t, OrderServiceDeps{Orders: orders, Carts: &stubCartRepository{}})

	mine, err := svc.ListOrders(context.Background(), "user-1", OrderListQuery{})
	if err != nil {
		t.Fatalf("ListOrders scoped: %v", err)
	}
	if len(mine.Items) != 1 || mine.Items[0].UserID != "user-1" {
		t.Fatalf("unexpected scoped page: %+v", mine)
	}

	all, err := svc.ListOrders(context.Background(), "", OrderListQuery{})
	if err != nil {
		t.Fatalf("ListOrders store-wide: %v", err)
	}
	if len(all.Items) != 2 {
		t.Fatalf("unexpected store-wide page: %+v", all)
	}

	bogus := domain.OrderStatus("lost")
	if _, err := svc.ListOrders(context.Background(), "user-1", OrderListQuery{Status: &bogus}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for unknown status filter, got %v", err)
	}
}
