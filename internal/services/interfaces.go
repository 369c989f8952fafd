package services

import (
	"context"
	"time"

	domain "github.com/fashion-shop/api/internal/domain"
	"github.com/fashion-shop/api/internal/platform/auth"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Role               = domain.Role
	User               = domain.User
	Product            = domain.Product
	VariantKey         = domain.VariantKey
	Cart               = domain.Cart
	CartLine           = domain.CartLine
	Order              = domain.Order
	OrderLine          = domain.OrderLine
	OrderStatus        = domain.OrderStatus
	SystemHealthReport = domain.SystemHealthReport
)

// AuthSession is the result of a successful credential exchange.
type AuthSession struct {
	User      User
	Token     string
	ExpiresAt time.Time
}

// RegisterCommand creates a new shopper account.
type RegisterCommand struct {
	Email    string
	Password string
	Name     string
}

// LoginCommand exchanges credentials for a session.
type LoginCommand struct {
	Email    string
	Password string
}

// ResetPasswordCommand redeems a reset token for a new credential.
type ResetPasswordCommand struct {
	Token       string
	NewPassword string
}

// AuthService owns registration, credential exchange, and password recovery.
type AuthService interface {
	Register(ctx context.Context, cmd RegisterCommand) (AuthSession, error)
	Login(ctx context.Context, cmd LoginCommand) (AuthSession, error)
	// RequestPasswordReset issues and mails a single-use reset token. It
	// reports success for unknown addresses so the endpoint cannot be used to
	// probe which emails are registered.
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, cmd ResetPasswordCommand) error
	// AccountStatus backs the authentication middleware, cutting off deleted
	// or banned accounts before their session token expires.
	AccountStatus(ctx context.Context, uid string) (auth.AccountStatus, error)
}

// UpdateProfileCommand patches profile fields. Nil fields are left unchanged.
type UpdateProfileCommand struct {
	UserID  string
	Name    *string
	Phone   *string
	Address *string
	City    *string
	Country *string
}

// ChangePasswordCommand swaps a credential after re-verifying the current one.
type ChangePasswordCommand struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
}

// UserService manages the caller's own account.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (User, error)
	UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (User, error)
	ChangePassword(ctx context.Context, cmd ChangePasswordCommand) error
	// BecomeSeller upgrades a shopper to the seller role. Upgrading an
	// account that already sells is a no-op.
	BecomeSeller(ctx context.Context, userID string) (User, error)
	DeleteAccount(ctx context.Context, userID string) error
}

// ProductListQuery narrows public and admin catalog listings.
type ProductListQuery struct {
	Category      string
	Gender        string
	Size          string
	Color         string
	SellerID      string
	Featured      *bool
	IncludeHidden bool
	PriceMin      *int64
	PriceMax      *int64
	Search        string
	Sort          string
	SortOrder     SortOrder
	Pager         Pagination
}

// CreateProductCommand adds a catalog entry owned by the acting seller.
type CreateProductCommand struct {
	SellerID    string
	Name        string
	Description string
	Category    string
	Gender      string
	Price       int64
	Stock       int64
	Sizes       []string
	Colors      []string
	Images      []string
	Discount    int
	Featured    bool
	Hidden      bool
}

// UpdateProductCommand patches a catalog entry. Nil fields are left unchanged.
type UpdateProductCommand struct {
	ProductID   string
	ActorID     string
	ActorRole   Role
	Name        *string
	Description *string
	Category    *string
	Gender      *string
	Price       *int64
	Stock       *int64
	Sizes       *[]string
	Colors      *[]string
	Images      *[]string
	Discount    *int
	Featured    *bool
	Hidden      *bool
}

// DeleteProductCommand removes a catalog entry.
type DeleteProductCommand struct {
	ProductID string
	ActorID   string
	ActorRole Role
}

// ProductImageUploadCommand requests a signed upload slot for a product image.
type ProductImageUploadCommand struct {
	ProductID   string
	ActorID     string
	ActorRole   Role
	FileName    string
	ContentType string
}

// SignedUpload is a pre-authorised upload destination.
type SignedUpload struct {
	URL       string
	Method    string
	Path      string
	Headers   map[string]string
	ExpiresAt time.Time
}

// ProductImageDownloadCommand requests a short-lived fetch link for a stored
// product image.
type ProductImageDownloadCommand struct {
	ProductID string
	ActorID   string
	ActorRole Role
	Path      string
}

// SignedDownload is a pre-authorised, time-limited object fetch.
type SignedDownload struct {
	URL       string
	Method    string
	ExpiresAt time.Time
}

// CatalogService owns the product catalog: public reads plus seller and admin
// mutations.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string, includeHidden bool) (Product, error)
	ListProducts(ctx context.Context, query ProductListQuery) (domain.CursorPage[Product], error)
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error
	ProductImageUploadURL(ctx context.Context, cmd ProductImageUploadCommand) (SignedUpload, error)
	ProductImageDownloadURL(ctx context.Context, cmd ProductImageDownloadCommand) (SignedDownload, error)
}

// CartLineView joins a cart line with its current catalog entry. Product data
// is zero-valued when the product has been removed since the line was added.
type CartLineView struct {
	CartLine
	ProductName  string
	UnitPrice    int64
	Currency     string
	Image        string
	LineTotal    int64
	Unavailable  bool
	ProductStock int64
}

// CartView is the cart joined against the catalog with computed totals.
type CartView struct {
	UserID    string
	Lines     []CartLineView
	Subtotal  int64
	Currency  string
	UpdatedAt time.Time
}

// AddCartLineCommand merges a quantity into the cart.
type AddCartLineCommand struct {
	UserID    string
	ProductID string
	Color     string
	Size      string
	Quantity  int64
}

// UpdateCartLineCommand re-targets or re-sizes an existing cart line. The
// source line is addressed by OldColor/OldSize when given, otherwise by
// Color/Size. A quantity of zero or less deletes the source line.
type UpdateCartLineCommand struct {
	UserID    string
	ProductID string
	Color     string
	Size      string
	OldColor  *string
	OldSize   *string
	Quantity  int64
}

// RemoveCartLineCommand removes one line by exact variant key.
type RemoveCartLineCommand struct {
	UserID    string
	ProductID string
	Color     string
	Size      string
}

// CartService manages per-user cart state keyed by (product, color, size).
type CartService interface {
	GetCart(ctx context.Context, userID string) (CartView, error)
	AddLine(ctx context.Context, cmd AddCartLineCommand) (CartView, error)
	UpdateLine(ctx context.Context, cmd UpdateCartLineCommand) (CartView, error)
	RemoveLine(ctx context.Context, cmd RemoveCartLineCommand) (CartView, error)
	Clear(ctx context.Context, userID string) error
}

// OrderLineInput is one requested line of an order.
type OrderLineInput struct {
	ProductID string
	Color     string
	Size      string
	Quantity  int64
}

// PlaceOrderCommand converts requested lines into a committed order.
type PlaceOrderCommand struct {
	UserID string
	Lines  []OrderLineInput
}

// OrderListQuery narrows and pages order listings.
type OrderListQuery struct {
	Status      *OrderStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Pager       Pagination
}

// SetOrderStatusCommand is the admin status override.
type SetOrderStatusCommand struct {
	OrderID string
	Status  OrderStatus
}

// OrderService owns order placement and the order lifecycle.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	GetOrder(ctx context.Context, userID string, orderID string) (Order, error)
	ListOrders(ctx context.Context, userID string, query OrderListQuery) (domain.CursorPage[Order], error)
	// CancelOrder is the owner-initiated cancellation, permitted only while
	// the order is still pending.
	CancelOrder(ctx context.Context, userID string, orderID string) (Order, error)
	// SetStatus is the admin override. It may move between any non-terminal
	// statuses; setting the current status again is a no-op that succeeds.
	SetStatus(ctx context.Context, cmd SetOrderStatusCommand) (Order, error)
}

// OrderEvent is published after order state changes commit.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	UserID         string
	Status         OrderStatus
	PreviousStatus OrderStatus
	OccurredAt     time.Time
}

// Order event types carried in the event envelope.
const (
	OrderEventPlaced        = "order.placed"
	OrderEventStatusChanged = "order.status_changed"
)

// OrderEventPublisher fans order events out to interested consumers. Publish
// failures are logged, never surfaced to the caller.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// UserListQuery narrows and pages admin user listings.
type UserListQuery struct {
	Role   *Role
	Banned *bool
	Pager  Pagination
}

// BanUserCommand flags an account as banned.
type BanUserCommand struct {
	UserID string
	Reason string
}

// DashboardSummary aggregates storefront counters for the admin dashboard.
// Revenue sums order totals excluding cancelled and refunded orders.
type DashboardSummary struct {
	UserCount      int64
	OrderCount     int64
	Revenue        int64
	Currency       string
	OrdersByStatus map[OrderStatus]int64
}

// DailySales is revenue and order volume for one calendar day (UTC).
type DailySales struct {
	Day     time.Time
	Orders  int64
	Revenue int64
}

// TopProduct ranks a product by quantity sold.
type TopProduct struct {
	ProductID string
	Name      string
	Quantity  int64
	Revenue   int64
}

// SalesReportQuery bounds admin reporting aggregates.
type SalesReportQuery struct {
	From  time.Time
	To    time.Time
	Limit int
}

// AdminService owns operator workflows over users and orders.
type AdminService interface {
	ListUsers(ctx context.Context, query UserListQuery) (domain.CursorPage[User], error)
	CountUsers(ctx context.Context) (int64, error)
	GetUser(ctx context.Context, userID string) (User, error)
	BanUser(ctx context.Context, cmd BanUserCommand) (User, error)
	UnbanUser(ctx context.Context, userID string) (User, error)
	DeleteUser(ctx context.Context, userID string) error
	Summary(ctx context.Context) (DashboardSummary, error)
	SalesByDay(ctx context.Context, query SalesReportQuery) ([]DailySales, error)
	TopProducts(ctx context.Context, query SalesReportQuery) ([]TopProduct, error)
}

// SystemService exposes operational utilities such as health reports.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// MailSender delivers transactional mail. The platform SMTP sender satisfies
// this; tests substitute fakes.
type MailSender interface {
	SendMail(ctx context.Context, to string, subject string, body string) error
}
