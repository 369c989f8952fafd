package repositories

import (
	"context"
	"time"

	domain "github.com/fashion-shop/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Users() UserRepository
	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	Counters() CounterRepository
	PasswordResets() PasswordResetRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UserRepository persists account records.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	Update(ctx context.Context, user domain.User) error
	Delete(ctx context.Context, userID string) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	List(ctx context.Context, filter UserListFilter) (domain.CursorPage[domain.User], error)
	Count(ctx context.Context) (int64, error)
	SetBanned(ctx context.Context, userID string, banned bool, reason string, at time.Time) error
	SetRole(ctx context.Context, userID string, role domain.Role, at time.Time) error
	UpdatePasswordHash(ctx context.Context, userID string, hash string, at time.Time) error
}

// UserListFilter narrows and pages admin user listings.
type UserListFilter struct {
	Role   *domain.Role
	Banned *bool
	Pager  domain.Pagination
}

// ProductRepository persists catalog entries. Stock mutations tied to order
// placement and cancellation live on OrderRepository so they share the order
// transaction.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
}

// ProductListFilter narrows and pages catalog listings.
type ProductListFilter struct {
	Category       string
	Gender         string
	Size           string
	Color          string
	SellerID       string
	Featured       *bool
	IncludeHidden  bool
	Price          domain.RangeQuery[int64]
	NamePrefix     string
	Sort           ProductSort
	SortDescending bool
	Pager          domain.Pagination
}

// ProductSort names the field products are ordered by.
type ProductSort string

const (
	// ProductSortCreatedAt orders by creation time.
	ProductSortCreatedAt ProductSort = "createdAt"
	// ProductSortPrice orders by price.
	ProductSortPrice ProductSort = "price"
	// ProductSortRating orders by aggregate rating.
	ProductSortRating ProductSort = "rating"
)

// CartRepository owns per-user cart persistence. Cart documents are keyed by
// user id and created lazily on first write.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	ReplaceLines(ctx context.Context, userID string, lines []domain.CartLine) (domain.Cart, error)
	PullLines(ctx context.Context, userID string, keys []domain.VariantKey) error
	Clear(ctx context.Context, userID string) error
}

// OrderRepository persists orders and owns the stock-coupled order workflows.
type OrderRepository interface {
	// Place commits the order, decrements stock for every line and allocates
	// the order number inside a single transaction. Any line whose product is
	// missing or short on stock aborts the whole call and leaves every
	// document untouched.
	Place(ctx context.Context, req PlaceOrderRequest) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// UpdateStatus transitions the order status transactionally. When the
	// current status is not cancel-like and the new one is, the lines are
	// restocked in the same transaction. Updating to the current status is a
	// no-op that returns the stored order.
	UpdateStatus(ctx context.Context, orderID string, update OrderStatusUpdate) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListAll(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// PlaceOrderRequest carries a fully priced order plus order number allocation
// inputs. Order.Number is assigned by the repository from the named counter.
type PlaceOrderRequest struct {
	Order        domain.Order
	CounterID    string
	NumberPrefix string
}

// OrderStatusUpdate mutates order status plus the timestamps tracked with it.
// When ExpectStatus is set the update fails with a conflict unless the stored
// status still matches, which lets callers pin the transition they validated.
type OrderStatusUpdate struct {
	Status       domain.OrderStatus
	ExpectStatus *domain.OrderStatus
	UpdatedAt    time.Time
	ConfirmedAt  *time.Time
	ShippedAt    *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
	RefundedAt   *time.Time
}

// OrderListFilter narrows and pages order listings.
type OrderListFilter struct {
	Status  *domain.OrderStatus
	Created domain.RangeQuery[time.Time]
	Pager   domain.Pagination
}

// CounterRepository provides named monotonically increasing counters.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig optionally adjusts counter behaviour.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// PasswordResetRepository tracks issued reset tokens by jti so each can be
// redeemed at most once.
type PasswordResetRepository interface {
	Insert(ctx context.Context, token domain.PasswordResetToken) error
	FindByID(ctx context.Context, jti string) (domain.PasswordResetToken, error)
	// MarkUsed flips the used flag; it fails with a conflict error when the
	// token was already redeemed.
	MarkUsed(ctx context.Context, jti string, at time.Time) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
