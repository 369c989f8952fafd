package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/fashion-shop/api/internal/domain"
	"github.com/fashion-shop/api/internal/repositories"
)

// ErrAdminInvalidInput indicates the caller supplied malformed input.
var ErrAdminInvalidInput = errors.New("admin service: invalid input")

// ErrAdminNotFound indicates the requested record does not exist.
var ErrAdminNotFound = errors.New("admin service: not found")

// ErrAdminUnavailable indicates a backend failure.
var ErrAdminUnavailable = errors.New("admin service: unavailable")

// reportScanPageSize caps how many orders one aggregation pass reads per page.
const reportScanPageSize = 200

// defaultTopProductLimit bounds the top-products report when no limit is set.
const defaultTopProductLimit = 10

// AdminServiceDeps wires the collaborators for operator workflows.
type AdminServiceDeps struct {
	Users           repositories.UserRepository
	Orders          repositories.OrderRepository
	Carts           repositories.CartRepository
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
}

type adminService struct {
	users    repositories.UserRepository
	orders   repositories.OrderRepository
	carts    repositories.CartRepository
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

var _ AdminService = (*adminService)(nil)

// NewAdminService constructs an AdminService enforcing dependency validation.
func NewAdminService(deps AdminServiceDeps) (AdminService, error) {
	if deps.Users == nil {
		return nil, errors.New("admin service: user repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("admin service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("admin service: cart repository is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.DefaultCurrency == "" {
		deps.DefaultCurrency = "USD"
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	clock := deps.Clock
	return &adminService{
		users:    deps.Users,
		orders:   deps.Orders,
		carts:    deps.Carts,
		now:      func() time.Time { return clock().UTC() },
		currency: deps.DefaultCurrency,
		logger:   logger,
	}, nil
}

// ListUsers pages accounts newest first with optional role and ban filters.
func (s *adminService) ListUsers(ctx context.Context, query UserListQuery) (domain.CursorPage[User], error) {
	page, err := s.users.List(ctx, repositories.UserListFilter{
		Role:   query.Role,
		Banned: query.Banned,
		Pager:  query.Pager,
	})
	if err != nil {
		return domain.CursorPage[User]{}, s.translateUserError(err)
	}
	for i := range page.Items {
		page.Items[i].PasswordHash = ""
	}
	return page, nil
}

func (s *adminService) CountUsers(ctx context.Context) (int64, error) {
	count, err := s.users.Count(ctx)
	if err != nil {
		return 0, s.translateUserError(err)
	}
	return count, nil
}

func (s *adminService) GetUser(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrAdminInvalidInput)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, s.translateUserError(err)
	}
	user.PasswordHash = ""
	return user, nil
}

// BanUser flags the account and records the reason. Banning an already banned
// account rewrites the reason.
func (s *adminService) BanUser(ctx context.Context, cmd BanUserCommand) (User, error) {
	cmd.UserID = strings.TrimSpace(cmd.UserID)
	if cmd.UserID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrAdminInvalidInput)
	}
	if err := s.users.SetBanned(ctx, cmd.UserID, true, strings.TrimSpace(cmd.Reason), s.now()); err != nil {
		return User{}, s.translateUserError(err)
	}
	return s.GetUser(ctx, cmd.UserID)
}

// UnbanUser lifts the ban and clears the recorded reason. Unbanning an account
// that is not banned is a no-op.
func (s *adminService) UnbanUser(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrAdminInvalidInput)
	}
	if err := s.users.SetBanned(ctx, userID, false, "", s.now()); err != nil {
		return User{}, s.translateUserError(err)
	}
	return s.GetUser(ctx, userID)
}

// DeleteUser removes the account and its cart. Orders are retained for record
// keeping and stay queryable by id.
func (s *adminService) DeleteUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrAdminInvalidInput)
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return s.translateUserError(err)
	}
	if err := s.carts.Clear(ctx, userID); err != nil {
		s.logger(ctx, "admin.cart_clear_failed", map[string]any{
			"userId": userID,
			"error":  err.Error(),
		})
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return s.translateUserError(err)
	}
	return nil
}

// Summary aggregates storefront counters. Revenue excludes cancelled and
// refunded orders; the per-status breakdown counts every order.
func (s *adminService) Summary(ctx context.Context) (DashboardSummary, error) {
	userCount, err := s.users.Count(ctx)
	if err != nil {
		return DashboardSummary{}, s.translateUserError(err)
	}

	summary := DashboardSummary{
		UserCount:      userCount,
		Currency:       s.currency,
		OrdersByStatus: map[domain.OrderStatus]int64{},
	}
	err = s.scanOrders(ctx, repositories.OrderListFilter{}, func(order domain.Order) {
		summary.OrderCount++
		summary.OrdersByStatus[order.Status]++
		if !order.Status.CancelLike() {
			summary.Revenue += order.Total
			if order.Currency != "" {
				summary.Currency = order.Currency
			}
		}
	})
	if err != nil {
		return DashboardSummary{}, err
	}
	return summary, nil
}

// SalesByDay buckets completed revenue per UTC calendar day across the query
// window. Cancelled and refunded orders are excluded.
func (s *adminService) SalesByDay(ctx context.Context, query SalesReportQuery) ([]DailySales, error) {
	filter, err := reportFilter(query)
	if err != nil {
		return nil, err
	}

	buckets := map[time.Time]*DailySales{}
	err = s.scanOrders(ctx, filter, func(order domain.Order) {
		if order.Status.CancelLike() {
			return
		}
		day := order.CreatedAt.UTC().Truncate(24 * time.Hour)
		bucket, ok := buckets[day]
		if !ok {
			bucket = &DailySales{Day: day}
			buckets[day] = bucket
		}
		bucket.Orders++
		bucket.Revenue += order.Total
	})
	if err != nil {
		return nil, err
	}

	days := make([]DailySales, 0, len(buckets))
	for _, bucket := range buckets {
		days = append(days, *bucket)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day.Before(days[j].Day) })
	return days, nil
}

// TopProducts ranks products by quantity sold across the query window.
// Cancelled and refunded orders are excluded.
func (s *adminService) TopProducts(ctx context.Context, query SalesReportQuery) ([]TopProduct, error) {
	filter, err := reportFilter(query)
	if err != nil {
		return nil, err
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultTopProductLimit
	}

	totals := map[string]*TopProduct{}
	err = s.scanOrders(ctx, filter, func(order domain.Order) {
		if order.Status.CancelLike() {
			return
		}
		for _, line := range order.Lines {
			entry, ok := totals[line.ProductID]
			if !ok {
				entry = &TopProduct{ProductID: line.ProductID, Name: line.Name}
				totals[line.ProductID] = entry
			}
			if entry.Name == "" {
				entry.Name = line.Name
			}
			entry.Quantity += line.Quantity
			entry.Revenue += line.Subtotal()
		}
	})
	if err != nil {
		return nil, err
	}

	ranked := make([]TopProduct, 0, len(totals))
	for _, entry := range totals {
		ranked = append(ranked, *entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Quantity != ranked[j].Quantity {
			return ranked[i].Quantity > ranked[j].Quantity
		}
		return ranked[i].ProductID < ranked[j].ProductID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// scanOrders walks every order matching the filter page by page.
func (s *adminService) scanOrders(ctx context.Context, filter repositories.OrderListFilter, visit func(domain.Order)) error {
	filter.Pager = domain.Pagination{PageSize: reportScanPageSize}
	for {
		page, err := s.orders.ListAll(ctx, filter)
		if err != nil {
			return s.translateUserError(err)
		}
		for _, order := range page.Items {
			visit(order)
		}
		if page.NextPageToken == "" {
			return nil
		}
		filter.Pager.PageToken = page.NextPageToken
	}
}

func reportFilter(query SalesReportQuery) (repositories.OrderListFilter, error) {
	if !query.From.IsZero() && !query.To.IsZero() && query.To.Before(query.From) {
		return repositories.OrderListFilter{}, fmt.Errorf("%w: report window end precedes start", ErrAdminInvalidInput)
	}
	filter := repositories.OrderListFilter{}
	if !query.From.IsZero() {
		from := query.From.UTC()
		filter.Created.From = &from
	}
	if !query.To.IsZero() {
		to := query.To.UTC()
		filter.Created.To = &to
	}
	return filter, nil
}

func (s *adminService) translateUserError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %v", ErrAdminNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrAdminUnavailable, err)
	}
}
