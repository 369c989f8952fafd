package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/fashion-shop/api/internal/domain"
	pfirestore "github.com/fashion-shop/api/internal/platform/firestore"
	"github.com/fashion-shop/api/internal/platform/pagination"
	"github.com/fashion-shop/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists orders in Firestore. Order placement and
// cancellation adjust product stock inside the same transaction as the order
// write, so an order can never commit against stock that was not decremented
// and a cancellation can never restock twice.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productDocument]
	counters *CounterRepository
}

// NewOrderRepository constructs a Firestore-backed order repository. The
// counter repository allocates order numbers inside placement transactions.
func NewOrderRepository(provider *pfirestore.Provider, counters *CounterRepository) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	if counters == nil {
		return nil, errors.New("order repository requires counter repository")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	products := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &OrderRepository{provider: provider, base: base, products: products, counters: counters}, nil
}

// Place commits the order in one transaction: every line's stock is checked
// and decremented, the order number is allocated and the order document is
// created. Any failing line aborts the whole transaction.
func (r *OrderRepository) Place(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	order := req.Order
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("order placement: order id is required")
	}
	if len(order.Lines) == 0 {
		return domain.Order{}, &repositories.StockError{
			Code:    repositories.StockErrorInvalidInput,
			Message: "order placement: at least one line is required",
		}
	}
	counterID := strings.TrimSpace(req.CounterID)
	if counterID == "" {
		return domain.Order{}, errors.New("order placement: counter id is required")
	}

	// Lines of the same product share one stock pool regardless of variant.
	demand := make(map[string]int64, len(order.Lines))
	productOrder := make([]string, 0, len(order.Lines))
	for _, line := range order.Lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return domain.Order{}, &repositories.StockError{
				Code:    repositories.StockErrorInvalidInput,
				Message: "order placement: product id is required",
			}
		}
		if line.Quantity <= 0 {
			return domain.Order{}, &repositories.StockError{
				Code:      repositories.StockErrorInvalidInput,
				Message:   fmt.Sprintf("order placement: quantity for %s must be > 0", productID),
				ProductID: productID,
			}
		}
		if _, seen := demand[productID]; !seen {
			productOrder = append(productOrder, productID)
		}
		demand[productID] += line.Quantity
	}

	var placed domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		type stockedProduct struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		stocked := make([]stockedProduct, 0, len(productOrder))
		read := make(map[string]productDocument, len(productOrder))
		for _, productID := range productOrder {
			ref, err := r.products.DocumentRef(ctx, productID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return &repositories.StockError{
						Code:      repositories.StockErrorProductNotFound,
						Message:   fmt.Sprintf("product %s not found", productID),
						ProductID: productID,
						Err:       err,
					}
				}
				return err
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", productID, err)
			}
			if doc.Stock < demand[productID] {
				return &repositories.StockError{
					Code:      repositories.StockErrorInsufficient,
					Message:   fmt.Sprintf("insufficient stock for %s", productID),
					ProductID: productID,
					Remaining: doc.Stock,
				}
			}
			stocked = append(stocked, stockedProduct{ref: ref, doc: doc})
			read[productID] = doc
		}

		// Last read in the transaction; the counter helper writes too, so
		// nothing may read after this point.
		sequence, err := r.counters.NextInTx(ctx, tx, counterID, 1)
		if err != nil {
			return err
		}
		order.Number = fmt.Sprintf("%s%06d", req.NumberPrefix, sequence)

		// Prices are captured from the same snapshot the stock check ran
		// against, so the stored order reflects the catalog at commit time.
		lines := make([]domain.OrderLine, len(order.Lines))
		copy(lines, order.Lines)
		var total int64
		for i := range lines {
			product := read[strings.TrimSpace(lines[i].ProductID)]
			lines[i].Name = product.Name
			lines[i].UnitPrice = product.Price
			total += product.Price * lines[i].Quantity
			if order.Currency == "" && product.Currency != "" {
				order.Currency = product.Currency
			}
		}
		order.Lines = lines
		order.Total = total

		now := order.CreatedAt.UTC()
		for i := range stocked {
			productID := stocked[i].ref.ID
			stocked[i].doc.Stock -= demand[productID]
			stocked[i].doc.UpdatedAt = now
			if err := tx.Set(stocked[i].ref, stocked[i].doc); err != nil {
				return err
			}
		}

		orderRef, err := r.base.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		doc := fromDomainOrder(order)
		if err := tx.Create(orderRef, doc); err != nil {
			return err
		}
		placed = doc.toDomain(order.ID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.place", err)
	}
	return placed, nil
}

// FindByID loads an order by its document ID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// UpdateStatus transitions the order in one transaction. The stored status is
// re-read inside the transaction: a matching status is a no-op, a mismatch
// against ExpectStatus is a conflict, and a transition from a non-cancel-like
// to a cancel-like status restocks every line in the same transaction.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	if !domain.ValidOrderStatus(update.Status) {
		return domain.Order{}, fmt.Errorf("order status %q is not valid", update.Status)
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		current := domain.OrderStatus(doc.Status)
		if current == update.Status {
			updated = doc.toDomain(orderID)
			return nil
		}
		if update.ExpectStatus != nil && current != *update.ExpectStatus {
			return pfirestore.NewConflictError("orders.updateStatus",
				fmt.Errorf("order %s is %s, expected %s", orderID, current, *update.ExpectStatus))
		}

		restock := !current.CancelLike() && update.Status.CancelLike()
		if restock {
			if err := r.restockLines(ctx, tx, doc.Lines, update.UpdatedAt.UTC()); err != nil {
				return err
			}
		}

		doc.Status = string(update.Status)
		doc.UpdatedAt = update.UpdatedAt.UTC()
		if update.ConfirmedAt != nil {
			doc.ConfirmedAt = update.ConfirmedAt
		}
		if update.ShippedAt != nil {
			doc.ShippedAt = update.ShippedAt
		}
		if update.CompletedAt != nil {
			doc.CompletedAt = update.CompletedAt
		}
		if update.CancelledAt != nil {
			doc.CancelledAt = update.CancelledAt
		}
		if update.RefundedAt != nil {
			doc.RefundedAt = update.RefundedAt
		}

		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		updated = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.updateStatus", err)
	}
	return updated, nil
}

// restockLines returns line quantities to their products. Products removed
// from the catalog since the order was placed are skipped. Reads happen
// before any write so the method must run before status writes.
func (r *OrderRepository) restockLines(ctx context.Context, tx *firestore.Transaction, lines []orderLineDocument, now time.Time) error {
	returned := make(map[string]int64, len(lines))
	productOrder := make([]string, 0, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" || line.Quantity <= 0 {
			continue
		}
		if _, seen := returned[productID]; !seen {
			productOrder = append(productOrder, productID)
		}
		returned[productID] += line.Quantity
	}

	type stockedProduct struct {
		ref *firestore.DocumentRef
		doc productDocument
	}
	stocked := make([]stockedProduct, 0, len(productOrder))
	for _, productID := range productOrder {
		ref, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				continue
			}
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", productID, err)
		}
		stocked = append(stocked, stockedProduct{ref: ref, doc: doc})
	}

	for i := range stocked {
		productID := stocked[i].ref.ID
		stocked[i].doc.Stock += returned[productID]
		stocked[i].doc.UpdatedAt = now
		if err := tx.Set(stocked[i].ref, stocked[i].doc); err != nil {
			return err
		}
	}
	return nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order user id is required")
	}
	return r.list(ctx, filter, userID)
}

// ListAll returns orders across all users, newest first.
func (r *OrderRepository) ListAll(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	return r.list(ctx, filter, "")
}

func (r *OrderRepository) list(ctx context.Context, filter repositories.OrderListFilter, userID string) (domain.CursorPage[domain.Order], error) {
	pageSize := normalizePageSize(filter.Pager.PageSize)

	cursor, err := pagination.DecodeToken(filter.Pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		if filter.Created.From != nil {
			q = q.Where("createdAt", ">=", filter.Created.From.UTC())
		}
		if filter.Created.To != nil {
			q = q.Where("createdAt", "<=", filter.Created.To.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(cursor.StartAfter) == 2 {
			if after, ok := cursorTime(cursor.StartAfter[0]); ok {
				q = q.StartAfter(after, cursor.StartAfter[1])
			}
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextToken, err = pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

type orderDocument struct {
	Number      string              `firestore:"number"`
	UserID      string              `firestore:"userId"`
	Lines       []orderLineDocument `firestore:"lines"`
	Total       int64               `firestore:"total"`
	Currency    string              `firestore:"currency"`
	Status      string              `firestore:"status"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	UpdatedAt   time.Time           `firestore:"updatedAt"`
	ConfirmedAt *time.Time          `firestore:"confirmedAt,omitempty"`
	ShippedAt   *time.Time          `firestore:"shippedAt,omitempty"`
	CompletedAt *time.Time          `firestore:"completedAt,omitempty"`
	CancelledAt *time.Time          `firestore:"cancelledAt,omitempty"`
	RefundedAt  *time.Time          `firestore:"refundedAt,omitempty"`
}

type orderLineDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Color     string `firestore:"color"`
	Size      string `firestore:"size"`
	Quantity  int64  `firestore:"qty"`
	UnitPrice int64  `firestore:"unitPrice"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, len(order.Lines))
	for i, line := range order.Lines {
		lines[i] = orderLineDocument{
			ProductID: strings.TrimSpace(line.ProductID),
			Name:      line.Name,
			Color:     line.Color,
			Size:      line.Size,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}
	}
	return orderDocument{
		Number:      order.Number,
		UserID:      strings.TrimSpace(order.UserID),
		Lines:       lines,
		Total:       order.Total,
		Currency:    order.Currency,
		Status:      string(order.Status),
		CreatedAt:   order.CreatedAt.UTC(),
		UpdatedAt:   order.UpdatedAt.UTC(),
		ConfirmedAt: order.ConfirmedAt,
		ShippedAt:   order.ShippedAt,
		CompletedAt: order.CompletedAt,
		CancelledAt: order.CancelledAt,
		RefundedAt:  order.RefundedAt,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	lines := make([]domain.OrderLine, len(d.Lines))
	for i, line := range d.Lines {
		lines[i] = domain.OrderLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			Color:     line.Color,
			Size:      line.Size,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}
	}
	return domain.Order{
		ID:          id,
		Number:      d.Number,
		UserID:      d.UserID,
		Lines:       lines,
		Total:       d.Total,
		Currency:    d.Currency,
		Status:      domain.OrderStatus(d.Status),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		ConfirmedAt: d.ConfirmedAt,
		ShippedAt:   d.ShippedAt,
		CompletedAt: d.CompletedAt,
		CancelledAt: d.CancelledAt,
		RefundedAt:  d.RefundedAt,
	}
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	var counterErr *repositories.CounterError
	if errors.As(err, &counterErr) {
		return counterErr
	}
	return pfirestore.WrapError(op, err)
}
