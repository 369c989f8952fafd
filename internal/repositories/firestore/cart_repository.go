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
)

const cartCollection = "carts"

// CartRepository persists per-user carts in Firestore. Each cart is a single
// document keyed by the owning user ID and created lazily on first write.
type CartRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{provider: provider, base: base}, nil
}

// Get loads the cart. A user without a cart document owns an empty cart.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Cart{UserID: userID}, nil
		}
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ReplaceLines overwrites the cart contents and returns the stored cart.
func (r *CartRepository) ReplaceLines(ctx context.Context, userID string, lines []domain.CartLine) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart user id is required")
	}

	doc := newCartDocument(lines, time.Now().UTC())
	if _, err := r.base.Set(ctx, userID, doc); err != nil {
		return domain.Cart{}, err
	}
	return doc.toDomain(userID), nil
}

// PullLines removes the lines matching the given variant keys, leaving any
// others in place. A missing cart or missing keys are not errors.
func (r *CartRepository) PullLines(ctx context.Context, userID string, keys []domain.VariantKey) error {
	if r == nil || r.provider == nil {
		return errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("cart user id is required")
	}
	if len(keys) == 0 {
		return nil
	}

	drop := make(map[domain.VariantKey]struct{}, len(keys))
	for _, key := range keys {
		drop[key] = struct{}{}
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, userID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return err
		}
		var doc cartDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode cart %s: %w", userID, err)
		}

		kept := doc.Lines[:0]
		for _, line := range doc.Lines {
			if _, gone := drop[line.key()]; gone {
				continue
			}
			kept = append(kept, line)
		}
		if len(kept) == len(doc.Lines) {
			return nil
		}
		doc.Lines = kept
		doc.UpdatedAt = time.Now().UTC()
		return tx.Set(ref, doc)
	})
	if err != nil {
		return pfirestore.WrapError("carts.pullLines", err)
	}
	return nil
}

// Clear deletes the cart document. Clearing an absent cart is a no-op.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	ref, err := r.base.DocumentRef(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("carts.clear", err)
	}
	return nil
}

type cartDocument struct {
	Lines     []cartLineDocument `firestore:"lines"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartLineDocument struct {
	ProductID string    `firestore:"productId"`
	Color     string    `firestore:"color"`
	Size      string    `firestore:"size"`
	Quantity  int64     `firestore:"qty"`
	AddedAt   time.Time `firestore:"addedAt"`
}

func (l cartLineDocument) key() domain.VariantKey {
	return domain.VariantKey{ProductID: l.ProductID, Color: l.Color, Size: l.Size}
}

func newCartDocument(lines []domain.CartLine, now time.Time) cartDocument {
	docs := make([]cartLineDocument, len(lines))
	for i, line := range lines {
		docs[i] = cartLineDocument{
			ProductID: line.ProductID,
			Color:     line.Color,
			Size:      line.Size,
			Quantity:  line.Quantity,
			AddedAt:   line.AddedAt.UTC(),
		}
	}
	return cartDocument{Lines: docs, UpdatedAt: now}
}

func (d cartDocument) toDomain(userID string) domain.Cart {
	lines := make([]domain.CartLine, len(d.Lines))
	for i, line := range d.Lines {
		lines[i] = domain.CartLine{
			ProductID: line.ProductID,
			Color:     line.Color,
			Size:      line.Size,
			Quantity:  line.Quantity,
			AddedAt:   line.AddedAt,
		}
	}
	return domain.Cart{UserID: userID, Lines: lines, UpdatedAt: d.UpdatedAt}
}
