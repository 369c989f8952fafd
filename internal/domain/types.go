package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Role identifies the capability tier of an account.
type Role string

const (
	// RoleUser is the default role for registered shoppers.
	RoleUser Role = "user"
	// RoleSeller marks accounts allowed to manage their own products.
	RoleSeller Role = "seller"
	// RoleAdmin marks operator accounts with full access.
	RoleAdmin Role = "admin"
)

// User is a registered account. PasswordHash never leaves the repository layer
// except for credential checks in the auth service.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Phone        string
	Address      string
	City         string
	Country      string
	Role         Role
	Banned       bool
	BanReason    string
	BannedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Product is a catalog entry. Price is in minor currency units. Stock is the
// on-hand count shared by all variants of the product; it never goes negative.
type Product struct {
	ID          string
	SellerID    string
	Name        string
	Description string
	Category    string
	Gender      string
	Price       int64
	Currency    string
	Stock       int64
	Sizes       []string
	Colors      []string
	Images      []string
	Rating      float64
	ReviewCount int
	Discount    int
	Hidden      bool
	Featured    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// VariantKey identifies one cart or order line within a product. Color and
// Size are normalized to the empty string when absent, never left null, so
// key equality is well-defined.
type VariantKey struct {
	ProductID string
	Color     string
	Size      string
}

// CartLine is a single (product, color, size) entry in a cart. Quantity is
// strictly positive; a line whose quantity would drop to zero is deleted
// rather than stored.
type CartLine struct {
	ProductID string
	Color     string
	Size      string
	Quantity  int64
	AddedAt   time.Time
}

// Key returns the identity of the line within its cart.
func (l CartLine) Key() VariantKey {
	return VariantKey{ProductID: l.ProductID, Color: l.Color, Size: l.Size}
}

// Cart holds at most one line per (product, color, size) key. One cart exists
// per user and is created lazily on first add.
type Cart struct {
	UserID    string
	Lines     []CartLine
	UpdatedAt time.Time
}

// OrderLine freezes a purchased line at order-creation time. UnitPrice is the
// catalog price captured when the order was placed, never a client value.
type OrderLine struct {
	ProductID string
	Name      string
	Color     string
	Size      string
	Quantity  int64
	UnitPrice int64
}

// Subtotal returns quantity times the captured unit price.
func (l OrderLine) Subtotal() int64 {
	return l.Quantity * l.UnitPrice
}

// Order is immutable after creation except for Status and the status
// timestamps maintained alongside it. Orders are retained even when the
// owning user is deleted.
type Order struct {
	ID          string
	Number      string
	UserID      string
	Lines       []OrderLine
	Total       int64
	Currency    string
	Status      OrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
	ShippedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
	RefundedAt  *time.Time
}

// PasswordResetToken records a single-use reset token by its JWT ID. Used
// flips exactly once; a second redemption of the same jti is rejected.
type PasswordResetToken struct {
	ID        string
	UserID    string
	Used      bool
	ExpiresAt time.Time
	CreatedAt time.Time
}
