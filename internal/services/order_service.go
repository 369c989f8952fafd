package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/fashion-shop/api/internal/domain"
	"github.com/fashion-shop/api/internal/repositories"
)

// ErrOrderInvalidInput indicates the caller supplied malformed input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderNotFound indicates the order does not exist or belongs to another user.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderProductNotFound indicates a requested line references a missing product.
var ErrOrderProductNotFound = errors.New("order service: product not found")

// ErrOrderInsufficientStock indicates a requested quantity exceeds available stock.
var ErrOrderInsufficientStock = errors.New("order service: insufficient stock")

// ErrOrderInvalidTransition indicates a status change the lifecycle forbids.
var ErrOrderInvalidTransition = errors.New("order service: invalid transition")

// ErrOrderUnavailable indicates a backend failure.
var ErrOrderUnavailable = errors.New("order service: unavailable")

const defaultOrderNumberPrefix = "FS"

// OrderServiceDeps wires the order workflow collaborators.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Carts        repositories.CartRepository
	Events       OrderEventPublisher
	Clock        func() time.Time
	IDGenerator  func() string
	NumberPrefix string
	Logger       func(context.Context, string, map[string]any)
}

type orderService struct {
	orders repositories.OrderRepository
	carts  repositories.CartRepository
	events OrderEventPublisher
	now    func() time.Time
	newID  func() string
	prefix string
	logger func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return ulid.Make().String() }
	}
	prefix := strings.TrimSpace(deps.NumberPrefix)
	if prefix == "" {
		prefix = defaultOrderNumberPrefix
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	clock := deps.Clock
	return &orderService{
		orders: deps.Orders,
		carts:  deps.Carts,
		events: deps.Events,
		now:    func() time.Time { return clock().UTC() },
		newID:  deps.IDGenerator,
		prefix: prefix,
		logger: logger,
	}, nil
}

// PlaceOrder turns the requested lines into a committed pending order. Stock
// checks, decrements, price capture, and the order write share one
// transaction: a single failing line aborts everything. After the commit, the
// matching cart lines are pruned; unordered lines stay in the cart.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: at least one line is required", ErrOrderInvalidInput)
	}

	now := s.now()
	lines := make([]domain.OrderLine, 0, len(cmd.Lines))
	keys := make([]domain.VariantKey, 0, len(cmd.Lines))
	for _, input := range cmd.Lines {
		key := normalizeKey(input.ProductID, input.Color, input.Size)
		if key.ProductID == "" {
			return Order{}, fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
		}
		if input.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: quantity for %s must be > 0", ErrOrderInvalidInput, key.ProductID)
		}
		lines = append(lines, domain.OrderLine{
			ProductID: key.ProductID,
			Color:     key.Color,
			Size:      key.Size,
			Quantity:  input.Quantity,
		})
		keys = append(keys, key)
	}

	year := now.Year()
	order := domain.Order{
		ID:        s.newID(),
		UserID:    userID,
		Lines:     lines,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	placed, err := s.orders.Place(ctx, repositories.PlaceOrderRequest{
		Order:        order,
		CounterID:    fmt.Sprintf("orders-%d", year),
		NumberPrefix: fmt.Sprintf("%s-%d-", s.prefix, year),
	})
	if err != nil {
		return Order{}, s.translatePlacementError(err)
	}

	// Pruning runs outside the transaction. A failure here leaves stale cart
	// lines behind but never undoes the committed order.
	if err := s.carts.PullLines(ctx, userID, keys); err != nil {
		s.logger(ctx, "order.cart_prune_failed", map[string]any{
			"orderId": placed.ID,
			"userId":  userID,
			"error":   err.Error(),
		})
	}

	s.publish(ctx, OrderEvent{
		Type:        OrderEventPlaced,
		OrderID:     placed.ID,
		OrderNumber: placed.Number,
		UserID:      placed.UserID,
		Status:      placed.Status,
		OccurredAt:  now,
	})
	s.logger(ctx, "order.placed", map[string]any{
		"orderId": placed.ID,
		"number":  placed.Number,
		"userId":  userID,
		"total":   placed.Total,
	})
	return placed, nil
}

// GetOrder loads one order. A non-empty userID restricts the read to the
// owner; other users' orders surface as not found.
func (s *orderService) GetOrder(ctx context.Context, userID string, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if userID = strings.TrimSpace(userID); userID != "" && order.UserID != userID {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// ListOrders pages order history. A non-empty userID scopes the listing to
// that user; an empty one lists across all users for operators.
func (s *orderService) ListOrders(ctx context.Context, userID string, query OrderListQuery) (domain.CursorPage[Order], error) {
	filter := repositories.OrderListFilter{
		Status: query.Status,
		Pager:  query.Pager,
	}
	if query.Status != nil && !domain.ValidOrderStatus(*query.Status) {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, *query.Status)
	}
	filter.Created.From = query.CreatedFrom
	filter.Created.To = query.CreatedTo

	var page domain.CursorPage[Order]
	var err error
	if userID = strings.TrimSpace(userID); userID != "" {
		page, err = s.orders.ListByUser(ctx, userID, filter)
	} else {
		page, err = s.orders.ListAll(ctx, filter)
	}
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

// CancelOrder is the owner-initiated cancellation, permitted only while the
// order is pending. The restock happens inside the status transaction.
func (s *orderService) CancelOrder(ctx context.Context, userID string, orderID string) (Order, error) {
	userID = strings.TrimSpace(userID)
	orderID = strings.TrimSpace(orderID)
	if userID == "" || orderID == "" {
		return Order{}, fmt.Errorf("%w: user id and order id are required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if order.UserID != userID {
		return Order{}, ErrOrderNotFound
	}
	if order.Status != domain.OrderStatusPending {
		return Order{}, fmt.Errorf("%w: order is %s, only pending orders can be cancelled", ErrOrderInvalidTransition, order.Status)
	}

	now := s.now()
	pending := domain.OrderStatusPending
	updated, err := s.orders.UpdateStatus(ctx, orderID, repositories.OrderStatusUpdate{
		Status:       domain.OrderStatusCancelled,
		ExpectStatus: &pending,
		UpdatedAt:    now,
		CancelledAt:  &now,
	})
	if err != nil {
		if isRepoConflict(err) {
			return Order{}, fmt.Errorf("%w: order left pending concurrently", ErrOrderInvalidTransition)
		}
		return Order{}, s.translateRepoError(err)
	}

	s.publish(ctx, OrderEvent{
		Type:           OrderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.Number,
		UserID:         updated.UserID,
		Status:         updated.Status,
		PreviousStatus: order.Status,
		OccurredAt:     now,
	})
	return updated, nil
}

// SetStatus is the operator override. It may move between any statuses except
// out of a terminal one, and setting the current status again is a no-op that
// succeeds. Entering a cancel-like status from a non-cancel-like one restocks
// every line exactly once.
func (s *orderService) SetStatus(ctx context.Context, cmd SetOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !domain.ValidOrderStatus(cmd.Status) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if order.Status == cmd.Status {
		return order, nil
	}
	if order.Status.Terminal() {
		return Order{}, fmt.Errorf("%w: order is already %s", ErrOrderInvalidTransition, order.Status)
	}

	now := s.now()
	update := repositories.OrderStatusUpdate{
		Status:       cmd.Status,
		ExpectStatus: &order.Status,
		UpdatedAt:    now,
	}
	switch cmd.Status {
	case domain.OrderStatusConfirmed:
		update.ConfirmedAt = &now
	case domain.OrderStatusShipped:
		update.ShippedAt = &now
	case domain.OrderStatusCompleted:
		update.CompletedAt = &now
	case domain.OrderStatusCancelled:
		update.CancelledAt = &now
	case domain.OrderStatusRefunded:
		update.RefundedAt = &now
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID, update)
	if err != nil {
		if isRepoConflict(err) {
			return Order{}, fmt.Errorf("%w: order changed concurrently", ErrOrderInvalidTransition)
		}
		return Order{}, s.translateRepoError(err)
	}

	s.publish(ctx, OrderEvent{
		Type:           OrderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.Number,
		UserID:         updated.UserID,
		Status:         updated.Status,
		PreviousStatus: order.Status,
		OccurredAt:     now,
	})
	s.logger(ctx, "order.status_changed", map[string]any{
		"orderId": updated.ID,
		"from":    string(order.Status),
		"to":      string(updated.Status),
	})
	return updated, nil
}

// publish delivers order events best-effort; failures are logged, never
// surfaced to the caller whose order already committed.
func (s *orderService) publish(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"orderId": event.OrderID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) translatePlacementError(err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: product %s has %d left", ErrOrderInsufficientStock, stockErr.ProductID, stockErr.Remaining)
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: product %s", ErrOrderProductNotFound, stockErr.ProductID)
		case repositories.StockErrorInvalidInput:
			return fmt.Errorf("%w: %s", ErrOrderInvalidInput, stockErr.Message)
		}
		return ErrOrderUnavailable
	}
	return s.translateRepoError(err)
}

func (s *orderService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrOrderNotFound
		}
		return ErrOrderUnavailable
	}
	return ErrOrderUnavailable
}
