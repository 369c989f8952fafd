package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/fashion-shop/api/internal/domain"
	"github.com/fashion-shop/api/internal/repositories"
)

type stubProductRepository struct {
	insertFn func(ctx context.Context, product domain.Product) error
	updateFn func(ctx context.Context, product domain.Product) error
	deleteFn func(ctx context.Context, productID string) error
	findFn   func(ctx context.Context, productID string) (domain.Product, error)
	listFn   func(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error)
}

func (s *stubProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, product)
}

func (s *stubProductRepository) Update(ctx context.Context, product domain.Product) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, product)
}

func (s *stubProductRepository) Delete(ctx context.Context, productID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, productID)
}

func (s *stubProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFn == nil {
		return domain.Product{}, &repoError{notFound: true}
	}
	return s.findFn(ctx, productID)
}

func (s *stubProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("unexpected List")
	}
	return s.listFn(ctx, filter)
}

var _ repositories.ProductRepository = (*stubProductRepository)(nil)

// memoryCartRepository keeps one cart in memory so merge behaviour can be
// asserted through the service API alone.
type memoryCartRepository struct {
	cart domain.Cart
}

func (m *memoryCartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	cart := m.cart
	cart.UserID = userID
	return cart, nil
}

func (m *memoryCartRepository) ReplaceLines(ctx context.Context, userID string, lines []domain.CartLine) (domain.Cart, error) {
	m.cart = domain.Cart{UserID: userID, Lines: lines}
	return m.cart, nil
}

func (m *memoryCartRepository) PullLines(ctx context.Context, userID string, keys []domain.VariantKey) error {
	kept := m.cart.Lines[:0]
	for _, line := range m.cart.Lines {
		drop := false
		for _, key := range keys {
			if line.Key() == key {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, line)
		}
	}
	m.cart.Lines = kept
	return nil
}

func (m *memoryCartRepository) Clear(ctx context.Context, userID string) error {
	m.cart = domain.Cart{UserID: userID}
	return nil
}

var _ repositories.CartRepository = (*memoryCartRepository)(nil)

func catalogWithProducts(products map[string]domain.Product) *stubProductRepository {
	return &stubProductRepository{
		findFn: func(ctx context.Context, productID string) (domain.Product, error) {
			product, ok := products[productID]
			if !ok {
				return domain.Product{}, &repoError{notFound: true}
			}
			return product, nil
		},
	}
}

func newCartServiceForTest(t *testing.T, carts repositories.CartRepository, products repositories.ProductRepository) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{
		Carts:    carts,
		Products: products,
		Clock:    func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return svc
}

func TestAddLineMergesOnVariantKey(t *testing.T) {
	products := catalogWithProducts(map[string]domain.Product{
		"prod-1": {ID: "prod-1", Name: "Tee", Price: 1500, Currency: "USD", Stock: 10},
	})
	carts := &memoryCartRepository{}
	svc := newCartServiceForTest(t, carts, products)

	ctx := context.Background()
	if _, err := svc.AddLine(ctx, AddCartLineCommand{UserID: "u", ProductID: "prod-1", Color: "red", Size: "M", Quantity: 2}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	view, err := svc.AddLine(ctx, AddCartLineCommand{UserID: "u", ProductID: "prod-1", Color: " red ", Size: "M", Quantity: 3})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}

	if len(view.Lines) != 1 {
		t.Fatalf("expected one merged line, got %d", len(view.Lines))
	}
	if view.Lines[0].Quantity != 5 {
		t.Fatalf("expected merged quantity 5, got %d", view.Lines[0].Quantity)
	}
	if view.Subtotal != 5*1500 {
		t.Fatalf("expected subtotal 7500, got %d", view.Subtotal)
	}

	// A different size is a distinct line.
	view, err = svc.AddLine(ctx, AddCartLineCommand{UserID: "u", ProductID: "prod-1", Color: "red", Size: "L", Quantity: 1})
	if err != nil {
		t.Fatalf("third add: %v", err)
	}
	if len(view.Lines) != 2 {
		t.Fatalf("expected two lines for distinct sizes, got %d", len(view.Lines))
	}
}

func TestAddLineRejectsHiddenAndMissingProducts(t *testing.T) {
	products := catalogWithProducts(map[string]domain.Product{
		"hidden": {ID: "hidden", Name: "Ghost", Price: 100, Hidden: true},
	})
	svc := newCartServiceForTest(t, &memoryCartRepository{}, products)

	ctx := context.Background()
	if _, err := svc.AddLine(ctx, AddCartLineCommand{UserID: "u", ProductID: "hidden", Quantity: 1}); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected not found for hidden product, got %v", err)
	}
	if _, err := svc.AddLine(ctx, AddCartLineCommand{UserID: "u", ProductID: "missing", Quantity: 1}); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected not found for missing product, got %v", err)
	}
	if _, err := svc.AddLine(ctx, AddCartLineCommand{UserID: "u", ProductID: "hidden", Quantity: 0}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input for zero quantity, got %v", err)
	}
	if _, err := svc.AddLine(ctx, AddCartLineCommand{UserID: "u", ProductID: "hidden", Quantity: 1000}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input above max quantity, got %v", err)
	}
}

func TestUpdateLineRenamesVariant(t *testing.T) {
	products := catalogWithProducts(map[string]domain.Product{
		"prod-1": {ID: "prod-1", Name: "Tee", Price: 1500, Currency: "USD"},
	})
	carts := &memoryCartRepository{cart: domain.Cart{Lines: []domain.CartLine{
		{ProductID: "prod-1", Color: "red", Size: "M", Quantity: 2},
	}}}
	svc := newCartServiceForTest(t, carts, products)

	oldColor := "red"
	view, err := svc.UpdateLine(context.Background(), UpdateCartLineCommand{
		UserID:    "u",
		ProductID: "prod-1",
		Color:     "blue",
		Size:      "M",
		OldColor:  &oldColor,
		Quantity:  4,
	})
	if err != nil {
		t.Fatalf("UpdateLine: %v", err)
	}
	if len(view.Lines) != 1 {
		t.Fatalf("expected one line, got %d", len(view.Lines))
	}
	if view.Lines[0].Color != "blue" || view.Lines[0].Quantity != 4 {
		t.Fatalf("expected renamed line blue/4, got %+v", view.Lines[0])
	}
}

func TestUpdateLineMergesOntoOccupiedKey(t *testing.T) {
	products := catalogWithProducts(map[string]domain.Product{
		"prod-1": {ID: "prod-1", Name: "Tee", Price: 1500},
	})
	carts := &memoryCartRepository{cart: domain.Cart{Lines: []domain.CartLine{
		{ProductID: "prod-1", Color: "red", Size: "M", Quantity: 2},
		{ProductID: "prod-1", Color: "blue", Size: "M", Quantity: 1},
	}}}
	svc := newCartServiceForTest(t, carts, products)

	oldColor := "red"
	view, err := svc.UpdateLine(context.Background(), UpdateCartLineCommand{
		UserID:    "u",
		ProductID: "prod-1",
		Color:     "blue",
		Size:      "M",
		OldColor:  &oldColor,
		Quantity:  3,
	})
	if err != nil {
		t.Fatalf("UpdateLine: %v", err)
	}
	if len(view.Lines) != 1 {
		t.Fatalf("expected the source merged away, got %d lines", len(view.Lines))
	}
	if view.Lines[0].Color != "blue" || view.Lines[0].Quantity != 4 {
		t.Fatalf("expected blue line with quantity 1+3, got %+v", view.Lines[0])
	}
}

func TestUpdateLineZeroQuantityDeletes(t *testing.T) {
	products := catalogWithProducts(map[string]domain.Product{
		"prod-1": {ID: "prod-1", Name: "Tee", Price: 1500},
	})
	carts := &memoryCartRepository{cart: domain.Cart{Lines: []domain.CartLine{
		{ProductID: "prod-1", Color: "red", Size: "M", Quantity: 2},
	}}}
	svc := newCartServiceForTest(t, carts, products)

	view, err := svc.UpdateLine(context.Background(), UpdateCartLineCommand{
		UserID:    "u",
		ProductID: "prod-1",
		Color:     "red",
		Size:      "M",
		Quantity:  0,
	})
	if err != nil {
		t.Fatalf("UpdateLine: %v", err)
	}
	if len(view.Lines) != 0 {
		t.Fatalf("expected empty cart, got %+v", view.Lines)
	}
}

func TestUpdateLineMissingSource(t *testing.T) {
	svc := newCartServiceForTest(t, &memoryCartRepository{}, catalogWithProducts(nil))

	_, err := svc.UpdateLine(context.Background(), UpdateCartLineCommand{
		UserID:    "u",
		ProductID: "prod-1",
		Quantity:  2,
	})
	if !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected not found for absent source line, got %v", err)
	}
}

func TestRemoveLineIsIdempotent(t *testing.T) {
	products := catalogWithProducts(map[string]domain.Product{
		"prod-1": {ID: "prod-1", Name: "Tee", Price: 1500},
	})
	carts := &memoryCartRepository{cart: domain.Cart{Lines: []domain.CartLine{
		{ProductID: "prod-1", Color: "red", Size: "M", Quantity: 2},
	}}}
	svc := newCartServiceForTest(t, carts, products)

	ctx := context.Background()
	cmd := RemoveCartLineCommand{UserID: "u", ProductID: "prod-1", Color: "red", Size: "M"}

	view, err := svc.RemoveLine(ctx, cmd)
	if err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if len(view.Lines) != 0 {
		t.Fatalf("expected empty cart, got %+v", view.Lines)
	}

	view, err = svc.RemoveLine(ctx, cmd)
	if err != nil {
		t.Fatalf("second remove should succeed, got %v", err)
	}
	if len(view.Lines) != 0 {
		t.Fatalf("expected cart to stay empty, got %+v", view.Lines)
	}
}

func TestGetCartFlagsUnavailableLines(t *testing.T) {
	products := catalogWithProducts(map[string]domain.Product{
		"kept": {ID: "kept", Name: "Tee", Price: 1200, Currency: "EUR", Stock: 4, Images: []string{"img/kept.jpg"}},
	})
	carts := &memoryCartRepository{cart: domain.Cart{Lines: []domain.CartLine{
		{ProductID: "kept", Quantity: 2},
		{ProductID: "gone", Quantity: 1},
	}}}
	svc := newCartServiceForTest(t, carts, products)

	view, err := svc.GetCart(context.Background(), "u")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(view.Lines) != 2 {
		t.Fatalf("expected both lines reported, got %d", len(view.Lines))
	}
	if view.Lines[0].Unavailable || view.Lines[0].LineTotal != 2400 || view.Lines[0].Image != "img/kept.jpg" {
		t.Fatalf("unexpected kept line: %+v", view.Lines[0])
	}
	if !view.Lines[1].Unavailable {
		t.Fatalf("expected removed product flagged unavailable: %+v", view.Lines[1])
	}
	if view.Subtotal != 2400 {
		t.Fatalf("expected unavailable lines excluded from subtotal, got %d", view.Subtotal)
	}
	if view.Currency != "EUR" {
		t.Fatalf("expected currency from catalog, got %s", view.Currency)
	}
}

func TestClearRequiresUser(t *testing.T) {
	svc := newCartServiceForTest(t, &memoryCartRepository{}, catalogWithProducts(nil))

	if err := svc.Clear(context.Background(), " "); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input for blank user, got %v", err)
	}
	if err := svc.Clear(context.Background(), "u"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
}
