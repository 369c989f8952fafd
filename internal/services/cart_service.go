package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/fashion-shop/api/internal/domain"
	"github.com/fashion-shop/api/internal/repositories"
)

// ErrCartInvalidInput indicates the caller supplied malformed input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartNotFound indicates the referenced product or cart line does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartUnavailable indicates a backend failure.
var ErrCartUnavailable = errors.New("cart service: unavailable")

const maxCartLineQuantity = 999

// CartServiceDeps wires the cart and catalog repositories.
type CartServiceDeps struct {
	Carts           repositories.CartRepository
	Products        repositories.ProductRepository
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

var _ CartService = (*cartService)(nil)

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "USD"
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	clock := deps.Clock
	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		now:      func() time.Time { return clock().UTC() },
		currency: currency,
		logger:   logger,
	}, nil
}

// GetCart returns the cart joined against the current catalog.
func (s *cartService) GetCart(ctx context.Context, userID string) (CartView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return CartView{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	return s.buildView(ctx, cart), nil
}

// AddLine merges the quantity into an existing line with the same
// (product, color, size) key, or appends a new line.
func (s *cartService) AddLine(ctx context.Context, cmd AddCartLineCommand) (CartView, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if userID == "" || productID == "" {
		return CartView{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return CartView{}, fmt.Errorf("%w: quantity must be > 0", ErrCartInvalidInput)
	}
	if cmd.Quantity > maxCartLineQuantity {
		return CartView{}, fmt.Errorf("%w: quantity must be at most %d", ErrCartInvalidInput, maxCartLineQuantity)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	if product.Hidden {
		return CartView{}, ErrCartNotFound
	}

	key := normalizeKey(productID, cmd.Color, cmd.Size)

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}

	now := s.now()
	merged := false
	for i := range cart.Lines {
		if cart.Lines[i].Key() == key {
			cart.Lines[i].Quantity += cmd.Quantity
			merged = true
			break
		}
	}
	if !merged {
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID: key.ProductID,
			Color:     key.Color,
			Size:      key.Size,
			Quantity:  cmd.Quantity,
			AddedAt:   now,
		})
	}

	saved, err := s.carts.ReplaceLines(ctx, userID, cart.Lines)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	return s.buildView(ctx, saved), nil
}

// UpdateLine resolves the source line by the explicit old variant when given,
// falling back to the new variant key. A non-positive quantity deletes the
// source. Moving onto an occupied destination key merges the quantities and
// drops the source so no two lines ever share a key.
func (s *cartService) UpdateLine(ctx context.Context, cmd UpdateCartLineCommand) (CartView, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if userID == "" || productID == "" {
		return CartView{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}
	if cmd.Quantity > maxCartLineQuantity {
		return CartView{}, fmt.Errorf("%w: quantity must be at most %d", ErrCartInvalidInput, maxCartLineQuantity)
	}

	destKey := normalizeKey(productID, cmd.Color, cmd.Size)
	sourceKey := destKey
	if cmd.OldColor != nil || cmd.OldSize != nil {
		oldColor := cmd.Color
		if cmd.OldColor != nil {
			oldColor = *cmd.OldColor
		}
		oldSize := cmd.Size
		if cmd.OldSize != nil {
			oldSize = *cmd.OldSize
		}
		sourceKey = normalizeKey(productID, oldColor, oldSize)
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}

	sourceIdx := -1
	destIdx := -1
	for i := range cart.Lines {
		switch cart.Lines[i].Key() {
		case sourceKey:
			sourceIdx = i
		case destKey:
			destIdx = i
		}
	}
	if sourceIdx < 0 {
		return CartView{}, fmt.Errorf("%w: cart line %s/%s/%s", ErrCartNotFound, sourceKey.ProductID, sourceKey.Color, sourceKey.Size)
	}

	switch {
	case cmd.Quantity <= 0:
		cart.Lines = append(cart.Lines[:sourceIdx], cart.Lines[sourceIdx+1:]...)
	case sourceKey == destKey:
		cart.Lines[sourceIdx].Quantity = cmd.Quantity
	case destIdx >= 0:
		cart.Lines[destIdx].Quantity += cmd.Quantity
		cart.Lines = append(cart.Lines[:sourceIdx], cart.Lines[sourceIdx+1:]...)
	default:
		cart.Lines[sourceIdx].Color = destKey.Color
		cart.Lines[sourceIdx].Size = destKey.Size
		cart.Lines[sourceIdx].Quantity = cmd.Quantity
	}

	saved, err := s.carts.ReplaceLines(ctx, userID, cart.Lines)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	return s.buildView(ctx, saved), nil
}

// RemoveLine drops one line by exact variant key. Removing an absent line
// succeeds.
func (s *cartService) RemoveLine(ctx context.Context, cmd RemoveCartLineCommand) (CartView, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if userID == "" || productID == "" {
		return CartView{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}

	key := normalizeKey(productID, cmd.Color, cmd.Size)
	if err := s.carts.PullLines(ctx, userID, []domain.VariantKey{key}); err != nil {
		return CartView{}, s.translateRepoError(err)
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	return s.buildView(ctx, cart), nil
}

// Clear drops every line. Clearing an empty cart succeeds.
func (s *cartService) Clear(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if err := s.carts.Clear(ctx, userID); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartService) buildView(ctx context.Context, cart domain.Cart) CartView {
	view := CartView{
		UserID:    cart.UserID,
		Lines:     make([]CartLineView, 0, len(cart.Lines)),
		Currency:  s.currency,
		UpdatedAt: cart.UpdatedAt,
	}
	for _, line := range cart.Lines {
		lineView := CartLineView{CartLine: line}
		product, err := s.products.FindByID(ctx, line.ProductID)
		if err != nil || product.Hidden {
			lineView.Unavailable = true
			view.Lines = append(view.Lines, lineView)
			continue
		}
		lineView.ProductName = product.Name
		lineView.UnitPrice = product.Price
		lineView.Currency = product.Currency
		lineView.ProductStock = product.Stock
		if len(product.Images) > 0 {
			lineView.Image = product.Images[0]
		}
		lineView.LineTotal = product.Price * line.Quantity
		view.Subtotal += lineView.LineTotal
		if product.Currency != "" {
			view.Currency = product.Currency
		}
		view.Lines = append(view.Lines, lineView)
	}
	return view
}

// normalizeKey trims variant fields so absent colour and size always compare
// as empty strings.
func normalizeKey(productID, color, size string) domain.VariantKey {
	return domain.VariantKey{
		ProductID: strings.TrimSpace(productID),
		Color:     strings.TrimSpace(color),
		Size:      strings.TrimSpace(size),
	}
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrCartNotFound
		}
		return ErrCartUnavailable
	}
	return ErrCartUnavailable
}
