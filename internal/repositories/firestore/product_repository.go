package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/fashion-shop/api/internal/domain"
	pfirestore "github.com/fashion-shop/api/internal/platform/firestore"
	"github.com/fashion-shop/api/internal/platform/pagination"
	"github.com/fashion-shop/api/internal/platform/textutil"
	"github.com/fashion-shop/api/internal/repositories"
)

const productCollection = "products"

// ProductRepository persists catalog entries in Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{provider: provider, base: base}, nil
}

// Insert creates the product document.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product id is required")
	}
	ref, err := r.base.DocumentRef(ctx, product.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainProduct(product)); err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

// Update overwrites the product document.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product id is required")
	}
	if _, err := r.base.Set(ctx, product.ID, fromDomainProduct(product)); err != nil {
		return err
	}
	return nil
}

// Delete removes the product document. Deleting a missing product is not an error.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	ref, err := r.base.DocumentRef(ctx, productID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("products.delete", err)
	}
	return nil
}

// FindByID loads a product by its document ID.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns catalog entries matching the filter. Name search matches on
// the folded name prefix, so lookups ignore case and accents. Size and colour
// cannot both be pushed into the query because Firestore allows a single
// array-contains clause, so size is applied in memory when both are set.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := normalizePageSize(filter.Pager.PageSize)

	cursor, err := pagination.DecodeToken(filter.Pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
	}

	sort := filter.Sort
	if sort == "" {
		sort = repositories.ProductSortCreatedAt
	}
	direction := firestore.Asc
	if filter.SortDescending {
		direction = firestore.Desc
	}

	color := strings.TrimSpace(filter.Color)
	size := strings.TrimSpace(filter.Size)
	sizeInMemory := size != "" && color != ""

	namePrefix := textutil.Fold(filter.NamePrefix)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if !filter.IncludeHidden {
			q = q.Where("hidden", "==", false)
		}
		if category := strings.TrimSpace(filter.Category); category != "" {
			q = q.Where("category", "==", category)
		}
		if gender := strings.TrimSpace(filter.Gender); gender != "" {
			q = q.Where("gender", "==", gender)
		}
		if sellerID := strings.TrimSpace(filter.SellerID); sellerID != "" {
			q = q.Where("sellerId", "==", sellerID)
		}
		if filter.Featured != nil {
			q = q.Where("featured", "==", *filter.Featured)
		}
		if color != "" {
			q = q.Where("colors", "array-contains", color)
		} else if size != "" {
			q = q.Where("sizes", "array-contains", size)
		}
		if filter.Price.From != nil {
			q = q.Where("price", ">=", *filter.Price.From)
		}
		if filter.Price.To != nil {
			q = q.Where("price", "<=", *filter.Price.To)
		}
		if namePrefix != "" {
			q = q.Where("nameFold", ">=", namePrefix)
			if bound := textutil.FoldPrefixBound(namePrefix); bound != "" {
				q = q.Where("nameFold", "<", bound)
			}
		}
		q = q.OrderBy(string(sort), direction).OrderBy(firestore.DocumentID, direction)
		if len(cursor.StartAfter) == 2 {
			if after, ok := decodeProductCursor(sort, cursor.StartAfter[0]); ok {
				q = q.StartAfter(after, cursor.StartAfter[1])
			}
		}
		limit := pageSize + 1
		if sizeInMemory {
			// Over-fetch to compensate for rows dropped by the in-memory
			// size filter.
			limit = (pageSize + 1) * 3
		}
		return q.Limit(limit)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		product := doc.Data.toDomain(doc.ID)
		if sizeInMemory && !containsFold(product.Sizes, size) {
			continue
		}
		products = append(products, product)
	}

	hasMore := len(products) > pageSize
	if hasMore {
		products = products[:pageSize]
	}
	var nextToken string
	if hasMore && len(products) > 0 {
		last := products[len(products)-1]
		nextToken, err = pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{encodeProductCursor(sort, last), last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
	}

	return domain.CursorPage[domain.Product]{Items: products, NextPageToken: nextToken}, nil
}

func encodeProductCursor(sort repositories.ProductSort, product domain.Product) any {
	switch sort {
	case repositories.ProductSortPrice:
		return product.Price
	case repositories.ProductSortRating:
		return product.Rating
	default:
		return product.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
}

func decodeProductCursor(sort repositories.ProductSort, value any) (any, bool) {
	switch sort {
	case repositories.ProductSortPrice, repositories.ProductSortRating:
		number, ok := cursorNumber(value)
		return number, ok
	default:
		at, ok := cursorTime(value)
		return at, ok
	}
}

func containsFold(values []string, needle string) bool {
	for _, value := range values {
		if strings.EqualFold(strings.TrimSpace(value), needle) {
			return true
		}
	}
	return false
}

type productDocument struct {
	SellerID    string    `firestore:"sellerId"`
	Name        string    `firestore:"name"`
	NameFold    string    `firestore:"nameFold"`
	Description string    `firestore:"description,omitempty"`
	Category    string    `firestore:"category"`
	Gender      string    `firestore:"gender,omitempty"`
	Price       int64     `firestore:"price"`
	Currency    string    `firestore:"currency"`
	Stock       int64     `firestore:"stock"`
	Sizes       []string  `firestore:"sizes,omitempty"`
	Colors      []string  `firestore:"colors,omitempty"`
	Images      []string  `firestore:"images,omitempty"`
	Rating      float64   `firestore:"rating"`
	ReviewCount int       `firestore:"reviewCount"`
	Discount    int       `firestore:"discount"`
	Hidden      bool      `firestore:"hidden"`
	Featured    bool      `firestore:"featured"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func fromDomainProduct(product domain.Product) productDocument {
	name := strings.TrimSpace(product.Name)
	return productDocument{
		SellerID:    strings.TrimSpace(product.SellerID),
		Name:        name,
		NameFold:    textutil.Fold(name),
		Description: product.Description,
		Category:    strings.TrimSpace(product.Category),
		Gender:      strings.TrimSpace(product.Gender),
		Price:       product.Price,
		Currency:    strings.TrimSpace(product.Currency),
		Stock:       product.Stock,
		Sizes:       product.Sizes,
		Colors:      product.Colors,
		Images:      product.Images,
		Rating:      product.Rating,
		ReviewCount: product.ReviewCount,
		Discount:    product.Discount,
		Hidden:      product.Hidden,
		Featured:    product.Featured,
		CreatedAt:   product.CreatedAt.UTC(),
		UpdatedAt:   product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:          id,
		SellerID:    d.SellerID,
		Name:        d.Name,
		Description: d.Description,
		Category:    d.Category,
		Gender:      d.Gender,
		Price:       d.Price,
		Currency:    d.Currency,
		Stock:       d.Stock,
		Sizes:       d.Sizes,
		Colors:      d.Colors,
		Images:      d.Images,
		Rating:      d.Rating,
		ReviewCount: d.ReviewCount,
		Discount:    d.Discount,
		Hidden:      d.Hidden,
		Featured:    d.Featured,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
