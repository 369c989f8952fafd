package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/fashion-shop/api/internal/domain"
	"github.com/fashion-shop/api/internal/repositories"
)

func newAdminServiceForTest(t *testing.T, deps AdminServiceDeps) AdminService {
	t.Helper()
	if deps.Users == nil {
		deps.Users = &stubUserRepository{}
	}
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepository{}
	}
	if deps.Carts == nil {
		deps.Carts = &stubCartRepository{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	}
	svc, err := NewAdminService(deps)
	if err != nil {
		t.Fatalf("NewAdminService: %v", err)
	}
	return svc
}

func TestSummaryAggregatesAcrossPages(t *testing.T) {
	day := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)
	pageOne := []domain.Order{
		{ID: "o1", Status: domain.OrderStatusCompleted, Total: 5000, Currency: "EUR", CreatedAt: day},
		{ID: "o2", Status: domain.OrderStatusPending, Total: 2000, Currency: "EUR", CreatedAt: day},
	}
	pageTwo := []domain.Order{
		{ID: "o3", Status: domain.OrderStatusCancelled, Total: 9000, Currency: "EUR", CreatedAt: day},
		{ID: "o4", Status: domain.OrderStatusRefunded, Total: 1000, Currency: "EUR", CreatedAt: day},
	}
	calls := 0
	orders := &stubOrderRepository{
		listAllFn: func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			calls++
			switch filter.Pager.PageToken {
			case "":
				return domain.CursorPage[domain.Order]{Items: pageOne, NextPageToken: "page-2"}, nil
			case "page-2":
				return domain.CursorPage[domain.Order]{Items: pageTwo}, nil
			}
			return domain.CursorPage[domain.Order]{}, errors.New("unexpected page token")
		},
	}
	users := &stubUserRepository{
		countFn: func(ctx context.Context) (int64, error) { return 42, nil },
	}
	svc := newAdminServiceForTest(t, AdminServiceDeps{Users: users, Orders: orders})

	summary, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected two order pages scanned, got %d", calls)
	}
	if summary.UserCount != 42 || summary.OrderCount != 4 {
		t.Fatalf("unexpected counts %+v", summary)
	}
	if summary.Revenue != 7000 {
		t.Fatalf("expected revenue without cancelled and refunded orders, got %d", summary.Revenue)
	}
	if summary.Currency != "EUR" {
		t.Fatalf("expected currency taken from orders, got %q", summary.Currency)
	}
	if summary.OrdersByStatus[domain.OrderStatusCancelled] != 1 || summary.OrdersByStatus[domain.OrderStatusPending] != 1 {
		t.Fatalf("unexpected status breakdown %v", summary.OrdersByStatus)
	}
}

func TestSalesByDayBucketsByCalendarDay(t *testing.T) {
	orders := &stubOrderRepository{
		listAllFn: func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			return domain.CursorPage[domain.Order]{Items: []domain.Order{
				{ID: "o1", Status: domain.OrderStatusCompleted, Total: 1000, CreatedAt: time.Date(2024, 5, 21, 23, 59, 0, 0, time.UTC)},
				{ID: "o2", Status: domain.OrderStatusShipped, Total: 2000, CreatedAt: time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)},
				{ID: "o3", Status: domain.OrderStatusPending, Total: 500, CreatedAt: time.Date(2024, 5, 20, 20, 30, 0, 0, time.UTC)},
				{ID: "o4", Status: domain.OrderStatusCancelled, Total: 9999, CreatedAt: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)},
			}}, nil
		},
	}
	svc := newAdminServiceForTest(t, AdminServiceDeps{Orders: orders})

	days, err := svc.SalesByDay(context.Background(), SalesReportQuery{})
	if err != nil {
		t.Fatalf("SalesByDay: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("expected two day buckets, got %d", len(days))
	}
	if !days[0].Day.Equal(time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected buckets sorted by day, got %v", days[0].Day)
	}
	if days[0].Orders != 2 || days[0].Revenue != 2500 {
		t.Fatalf("unexpected first bucket %+v", days[0])
	}
	if days[1].Orders != 1 || days[1].Revenue != 1000 {
		t.Fatalf("unexpected second bucket %+v", days[1])
	}
}

func TestSalesByDayPassesWindowToFilter(t *testing.T) {
	var captured repositories.OrderListFilter
	orders := &stubOrderRepository{
		listAllFn: func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			captured = filter
			return domain.CursorPage[domain.Order]{}, nil
		},
	}
	svc := newAdminServiceForTest(t, AdminServiceDeps{Orders: orders})

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	if _, err := svc.SalesByDay(context.Background(), SalesReportQuery{From: from, To: to}); err != nil {
		t.Fatalf("SalesByDay: %v", err)
	}
	if captured.Created.From == nil || !captured.Created.From.Equal(from) {
		t.Fatalf("expected window start forwarded, got %v", captured.Created.From)
	}
	if captured.Created.To == nil || !captured.Created.To.Equal(to) {
		t.Fatalf("expected window end forwarded, got %v", captured.Created.To)
	}
}

func TestReportWindowValidation(t *testing.T) {
	svc := newAdminServiceForTest(t, AdminServiceDeps{})

	query := SalesReportQuery{
		From: time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	if _, err := svc.SalesByDay(context.Background(), query); !errors.Is(err, ErrAdminInvalidInput) {
		t.Fatalf("expected invalid input for inverted window, got %v", err)
	}
	if _, err := svc.TopProducts(context.Background(), query); !errors.Is(err, ErrAdminInvalidInput) {
		t.Fatalf("expected invalid input for inverted window, got %v", err)
	}
}

func TestTopProductsRanksByQuantity(t *testing.T) {
	orders := &stubOrderRepository{
		listAllFn: func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			return domain.CursorPage[domain.Order]{Items: []domain.Order{
				{
					ID:     "o1",
					Status: domain.OrderStatusCompleted,
					Lines: []domain.OrderLine{
						{ProductID: "prod_b", Name: "Cap", Quantity: 3, UnitPrice: 900},
						{ProductID: "prod_a", Name: "Tee", Quantity: 1, UnitPrice: 1500},
					},
				},
				{
					ID:     "o2",
					Status: domain.OrderStatusShipped,
					Lines: []domain.OrderLine{
						{ProductID: "prod_a", Name: "Tee", Quantity: 2, UnitPrice: 1500},
						{ProductID: "prod_c", Name: "Belt", Quantity: 3, UnitPrice: 700},
					},
				},
				{
					ID:     "o3",
					Status: domain.OrderStatusRefunded,
					Lines: []domain.OrderLine{
						{ProductID: "prod_z", Name: "Ghost", Quantity: 99, UnitPrice: 100},
					},
				},
			}}, nil
		},
	}
	svc := newAdminServiceForTest(t, AdminServiceDeps{Orders: orders})

	ranked, err := svc.TopProducts(context.Background(), SalesReportQuery{Limit: 2})
	if err != nil {
		t.Fatalf("TopProducts: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected truncation to limit, got %d entries", len(ranked))
	}
	if ranked[0].ProductID != "prod_a" || ranked[0].Quantity != 3 || ranked[0].Revenue != 4500 {
		t.Fatalf("unexpected first entry %+v", ranked[0])
	}
	// prod_b and prod_c tie on quantity; the id breaks the tie.
	if ranked[1].ProductID != "prod_b" {
		t.Fatalf("unexpected second entry %+v", ranked[1])
	}
}

func TestListUsersStripsPasswordHashes(t *testing.T) {
	users := &stubUserRepository{
		listFn: func(ctx context.Context, filter repositories.UserListFilter) (domain.CursorPage[domain.User], error) {
			return domain.CursorPage[domain.User]{Items: []domain.User{
				{ID: "user-1", PasswordHash: "$2a$10$secret"},
			}}, nil
		},
	}
	svc := newAdminServiceForTest(t, AdminServiceDeps{Users: users})

	page, err := svc.ListUsers(context.Background(), UserListQuery{})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if page.Items[0].PasswordHash != "" {
		t.Fatalf("expected hash stripped from listing")
	}
}

func TestBanAndUnbanUser(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	type bannedCall struct {
		banned bool
		reason string
		at     time.Time
	}
	var calls []bannedCall
	users := &stubUserRepository{
		setBannedFn: func(ctx context.Context, userID string, banned bool, reason string, at time.Time) error {
			calls = append(calls, bannedCall{banned, reason, at})
			return nil
		},
		findByIDFn: func(ctx context.Context, userID string) (domain.User, error) {
			return domain.User{ID: userID, Banned: len(calls) > 0 && calls[len(calls)-1].banned}, nil
		},
	}
	svc := newAdminServiceForTest(t, AdminServiceDeps{Users: users, Clock: func() time.Time { return now }})

	ctx := context.Background()
	user, err := svc.BanUser(ctx, BanUserCommand{UserID: " user-1 ", Reason: " fraud "})
	if err != nil {
		t.Fatalf("BanUser: %v", err)
	}
	if !user.Banned {
		t.Fatalf("expected banned user in response")
	}
	if len(calls) != 1 || !calls[0].banned || calls[0].reason != "fraud" || !calls[0].at.Equal(now) {
		t.Fatalf("unexpected ban call %+v", calls)
	}

	user, err = svc.UnbanUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("UnbanUser: %v", err)
	}
	if user.Banned {
		t.Fatalf("expected unbanned user in response")
	}
	if len(calls) != 2 || calls[1].banned || calls[1].reason != "" {
		t.Fatalf("unexpected unban call %+v", calls)
	}
}

func TestDeleteUserClearsCartFirst(t *testing.T) {
	var cleared, deleted string
	users := &stubUserRepository{
		findByIDFn: func(ctx context.Context, userID string) (domain.User, error) {
			return domain.User{ID: userID}, nil
		},
		deleteFn: func(ctx context.Context, userID string) error {
			deleted = userID
			return nil
		},
	}
	carts := &stubCartRepository{
		clearFn: func(ctx context.Context, userID string) error {
			cleared = userID
			return nil
		},
	}
	svc := newAdminServiceForTest(t, AdminServiceDeps{Users: users, Carts: carts})

	if err := svc.DeleteUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if cleared != "user-1" || deleted != "user-1" {
		t.Fatalf("expected cart cleared and account deleted, got cart=%q user=%q", cleared, deleted)
	}
}

func TestDeleteUserSurvivesCartFailure(t *testing.T) {
	deleted := ""
	users := &stubUserRepository{
		findByIDFn: func(ctx context.Context, userID string) (domain.User, error) {
			return domain.User{ID: userID}, nil
		},
		deleteFn: func(ctx context.Context, userID string) error {
			deleted = userID
			return nil
		},
	}
	carts := &stubCartRepository{
		clearFn: func(ctx context.Context, userID string) error {
			return &repoError{unavailable: true}
		},
	}
	svc := newAdminServiceForTest(t, AdminServiceDeps{Users: users, Carts: carts})

	if err := svc.DeleteUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("expected delete to proceed past cart failure, got %v", err)
	}
	if deleted != "user-1" {
		t.Fatalf("expected account deleted")
	}
}

func TestDeleteUserUnknownAccount(t *testing.T) {
	svc := newAdminServiceForTest(t, AdminServiceDeps{})

	if err := svc.DeleteUser(context.Background(), "ghost"); !errors.Is(err, ErrAdminNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := svc.DeleteUser(context.Background(), "   "); !errors.Is(err, ErrAdminInvalidInput) {
		t.Fatalf("expected invalid input for blank id, got %v", err)
	}
}
