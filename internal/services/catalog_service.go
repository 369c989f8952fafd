package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/fashion-shop/api/internal/domain"
	pauth "github.com/fashion-shop/api/internal/platform/auth"
	pstorage "github.com/fashion-shop/api/internal/platform/storage"
	"github.com/fashion-shop/api/internal/repositories"
)

// ErrCatalogInvalidInput indicates the caller supplied malformed input.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

// ErrCatalogNotFound indicates the product does not exist or is hidden from the caller.
var ErrCatalogNotFound = errors.New("catalog service: not found")

// ErrCatalogForbidden indicates the actor does not own the product.
var ErrCatalogForbidden = errors.New("catalog service: forbidden")

// ErrCatalogConflict indicates a concurrent modification clash.
var ErrCatalogConflict = errors.New("catalog service: conflict")

// ErrCatalogUnavailable indicates a backend failure.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

const (
	maxProductNameLength        = 200
	maxProductDescriptionLength = 10000
)

var allowedImageContentTypes = []string{"image/jpeg", "image/png", "image/webp"}

type imageURLSigner interface {
	SignedURL(ctx context.Context, bucket, object string, opts pstorage.SignedURLOptions) (pstorage.SignedURLResult, error)
}

// CatalogServiceDeps wires repository, sanitiser, and storage collaborators.
type CatalogServiceDeps struct {
	Products        repositories.ProductRepository
	Signer          imageURLSigner
	ImagesBucket    string
	DefaultCurrency string
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(context.Context, string, map[string]any)
}

type catalogService struct {
	products  repositories.ProductRepository
	signer    imageURLSigner
	bucket    string
	currency  string
	now       func() time.Time
	newID     func() string
	sanitizer *bluemonday.Policy
	logger    func(context.Context, string, map[string]any)
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return ulid.Make().String() }
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
	return &catalogService{
		products:  deps.Products,
		signer:    deps.Signer,
		bucket:    strings.TrimSpace(deps.ImagesBucket),
		currency:  currency,
		now:       func() time.Time { return clock().UTC() },
		newID:     deps.IDGenerator,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger,
	}, nil
}

// GetProduct loads one catalog entry. Hidden products surface as not found
// unless the caller may see them.
func (s *catalogService) GetProduct(ctx context.Context, productID string, includeHidden bool) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	if product.Hidden && !includeHidden {
		return Product{}, ErrCatalogNotFound
	}
	return product, nil
}

// ListProducts pages through catalog entries matching the query.
func (s *catalogService) ListProducts(ctx context.Context, query ProductListQuery) (domain.CursorPage[Product], error) {
	filter := repositories.ProductListFilter{
		Category:      strings.TrimSpace(query.Category),
		Gender:        strings.TrimSpace(query.Gender),
		Size:          strings.TrimSpace(query.Size),
		Color:         strings.TrimSpace(query.Color),
		SellerID:      strings.TrimSpace(query.SellerID),
		Featured:      query.Featured,
		IncludeHidden: query.IncludeHidden,
		NamePrefix:    strings.TrimSpace(query.Search),
		Pager:         query.Pager,
	}
	if query.PriceMin != nil {
		if *query.PriceMin < 0 {
			return domain.CursorPage[Product]{}, fmt.Errorf("%w: price bounds must be >= 0", ErrCatalogInvalidInput)
		}
		filter.Price.From = query.PriceMin
	}
	if query.PriceMax != nil {
		if *query.PriceMax < 0 {
			return domain.CursorPage[Product]{}, fmt.Errorf("%w: price bounds must be >= 0", ErrCatalogInvalidInput)
		}
		filter.Price.To = query.PriceMax
	}

	switch strings.TrimSpace(query.Sort) {
	case "", "createdAt", "newest":
		filter.Sort = repositories.ProductSortCreatedAt
		filter.SortDescending = query.SortOrder != domain.SortAsc
	case "price":
		filter.Sort = repositories.ProductSortPrice
		filter.SortDescending = query.SortOrder == domain.SortDesc
	case "rating":
		filter.Sort = repositories.ProductSortRating
		filter.SortDescending = query.SortOrder != domain.SortAsc
	default:
		return domain.CursorPage[Product]{}, fmt.Errorf("%w: unsupported sort %q", ErrCatalogInvalidInput, query.Sort)
	}

	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, s.translateRepoError(err)
	}
	return page, nil
}

// CreateProduct adds a catalog entry owned by the acting seller.
func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	sellerID := strings.TrimSpace(cmd.SellerID)
	if sellerID == "" {
		return Product{}, fmt.Errorf("%w: seller id is required", ErrCatalogInvalidInput)
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" || len(name) > maxProductNameLength {
		return Product{}, fmt.Errorf("%w: name is required and must be at most %d characters", ErrCatalogInvalidInput, maxProductNameLength)
	}
	if strings.TrimSpace(cmd.Category) == "" {
		return Product{}, fmt.Errorf("%w: category is required", ErrCatalogInvalidInput)
	}
	if cmd.Price <= 0 {
		return Product{}, fmt.Errorf("%w: price must be > 0", ErrCatalogInvalidInput)
	}
	if cmd.Stock < 0 {
		return Product{}, fmt.Errorf("%w: stock must be >= 0", ErrCatalogInvalidInput)
	}
	if cmd.Discount < 0 || cmd.Discount > 100 {
		return Product{}, fmt.Errorf("%w: discount must be between 0 and 100", ErrCatalogInvalidInput)
	}
	description, err := s.sanitizeDescription(cmd.Description)
	if err != nil {
		return Product{}, err
	}

	now := s.now()
	product := domain.Product{
		ID:          s.newID(),
		SellerID:    sellerID,
		Name:        name,
		Description: description,
		Category:    strings.TrimSpace(cmd.Category),
		Gender:      strings.TrimSpace(cmd.Gender),
		Price:       cmd.Price,
		Currency:    s.currency,
		Stock:       cmd.Stock,
		Sizes:       normalizeVariantValues(cmd.Sizes),
		Colors:      normalizeVariantValues(cmd.Colors),
		Images:      cmd.Images,
		Discount:    cmd.Discount,
		Featured:    cmd.Featured,
		Hidden:      cmd.Hidden,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.translateRepoError(err)
	}

	s.logger(ctx, "catalog.product_created", map[string]any{
		"productId": product.ID,
		"sellerId":  sellerID,
	})
	return product, nil
}

// UpdateProduct patches a catalog entry. Sellers may only touch their own
// products; admins may touch any.
func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	if err := s.authorizeProductWrite(product, cmd.ActorID, cmd.ActorRole); err != nil {
		return Product{}, err
	}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" || len(name) > maxProductNameLength {
			return Product{}, fmt.Errorf("%w: name is required and must be at most %d characters", ErrCatalogInvalidInput, maxProductNameLength)
		}
		product.Name = name
	}
	if cmd.Description != nil {
		description, err := s.sanitizeDescription(*cmd.Description)
		if err != nil {
			return Product{}, err
		}
		product.Description = description
	}
	if cmd.Category != nil {
		category := strings.TrimSpace(*cmd.Category)
		if category == "" {
			return Product{}, fmt.Errorf("%w: category cannot be empty", ErrCatalogInvalidInput)
		}
		product.Category = category
	}
	if cmd.Gender != nil {
		product.Gender = strings.TrimSpace(*cmd.Gender)
	}
	if cmd.Price != nil {
		if *cmd.Price <= 0 {
			return Product{}, fmt.Errorf("%w: price must be > 0", ErrCatalogInvalidInput)
		}
		product.Price = *cmd.Price
	}
	if cmd.Stock != nil {
		if *cmd.Stock < 0 {
			return Product{}, fmt.Errorf("%w: stock must be >= 0", ErrCatalogInvalidInput)
		}
		product.Stock = *cmd.Stock
	}
	if cmd.Sizes != nil {
		product.Sizes = normalizeVariantValues(*cmd.Sizes)
	}
	if cmd.Colors != nil {
		product.Colors = normalizeVariantValues(*cmd.Colors)
	}
	if cmd.Images != nil {
		product.Images = *cmd.Images
	}
	if cmd.Discount != nil {
		if *cmd.Discount < 0 || *cmd.Discount > 100 {
			return Product{}, fmt.Errorf("%w: discount must be between 0 and 100", ErrCatalogInvalidInput)
		}
		product.Discount = *cmd.Discount
	}
	if cmd.Featured != nil {
		product.Featured = *cmd.Featured
	}
	if cmd.Hidden != nil {
		product.Hidden = *cmd.Hidden
	}
	product.UpdatedAt = s.now()

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.translateRepoError(err)
	}
	return product, nil
}

// DeleteProduct removes a catalog entry subject to ownership rules.
func (s *catalogService) DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return s.translateRepoError(err)
	}
	if err := s.authorizeProductWrite(product, cmd.ActorID, cmd.ActorRole); err != nil {
		return err
	}

	if err := s.products.Delete(ctx, productID); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.product_deleted", map[string]any{
		"productId": productID,
		"actorId":   strings.TrimSpace(cmd.ActorID),
	})
	return nil
}

// ProductImageUploadURL issues a signed upload slot for a product image. The
// returned path is what the client stores back onto the product.
func (s *catalogService) ProductImageUploadURL(ctx context.Context, cmd ProductImageUploadCommand) (SignedUpload, error) {
	if s.signer == nil || s.bucket == "" {
		return SignedUpload{}, fmt.Errorf("%w: image uploads are not configured", ErrCatalogUnavailable)
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return SignedUpload{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return SignedUpload{}, s.translateRepoError(err)
	}
	if err := s.authorizeProductWrite(product, cmd.ActorID, cmd.ActorRole); err != nil {
		return SignedUpload{}, err
	}

	path, err := pstorage.BuildProductImagePath(productID, s.newID(), cmd.FileName)
	if err != nil {
		return SignedUpload{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}

	result, err := s.signer.SignedURL(ctx, s.bucket, path, pstorage.SignedURLOptions{
		Upload: &pstorage.UploadOptions{
			Method:              "PUT",
			ContentType:         strings.TrimSpace(cmd.ContentType),
			AllowedContentTypes: allowedImageContentTypes,
		},
	})
	if err != nil {
		return SignedUpload{}, fmt.Errorf("%w: sign upload url: %v", ErrCatalogInvalidInput, err)
	}

	return SignedUpload{
		URL:       result.URL,
		Method:    result.Method,
		Path:      path,
		Headers:   result.Headers,
		ExpiresAt: result.ExpiresAt,
	}, nil
}

// ProductImageDownloadURL issues a short-lived signed fetch for a stored
// product image. Hidden products stay restricted to their owner and admins.
func (s *catalogService) ProductImageDownloadURL(ctx context.Context, cmd ProductImageDownloadCommand) (SignedDownload, error) {
	if s.signer == nil || s.bucket == "" {
		return SignedDownload{}, fmt.Errorf("%w: image downloads are not configured", ErrCatalogUnavailable)
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return SignedDownload{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	path := strings.TrimSpace(cmd.Path)
	if path == "" {
		return SignedDownload{}, fmt.Errorf("%w: image path is required", ErrCatalogInvalidInput)
	}
	if !strings.HasPrefix(path, "products/"+productID+"/images/") {
		return SignedDownload{}, fmt.Errorf("%w: image path does not belong to this product", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return SignedDownload{}, s.translateRepoError(err)
	}
	if product.Hidden {
		if err := s.authorizeProductWrite(product, cmd.ActorID, cmd.ActorRole); err != nil {
			return SignedDownload{}, err
		}
	}

	opts := pstorage.SignedURLOptions{
		Download: &pstorage.DownloadOptions{
			OwnerID:        product.SellerID,
			AllowAnonymous: !product.Hidden,
		},
	}
	if actorID := strings.TrimSpace(cmd.ActorID); actorID != "" {
		opts.Download.Identity = &pauth.Identity{UID: actorID, Roles: []string{string(cmd.ActorRole)}}
	}

	result, err := s.signer.SignedURL(ctx, s.bucket, path, opts)
	if err != nil {
		if errors.Is(err, pstorage.ErrPermissionDenied) {
			return SignedDownload{}, ErrCatalogForbidden
		}
		return SignedDownload{}, fmt.Errorf("%w: sign download url: %v", ErrCatalogInvalidInput, err)
	}

	return SignedDownload{
		URL:       result.URL,
		Method:    result.Method,
		ExpiresAt: result.ExpiresAt,
	}, nil
}

func (s *catalogService) authorizeProductWrite(product domain.Product, actorID string, role Role) error {
	if role == domain.RoleAdmin {
		return nil
	}
	if role == domain.RoleSeller && strings.TrimSpace(actorID) == product.SellerID {
		return nil
	}
	return ErrCatalogForbidden
}

func (s *catalogService) sanitizeDescription(description string) (string, error) {
	if len(description) > maxProductDescriptionLength {
		return "", fmt.Errorf("%w: description must be at most %d characters", ErrCatalogInvalidInput, maxProductDescriptionLength)
	}
	return strings.TrimSpace(s.sanitizer.Sanitize(description)), nil
}

func normalizeVariantValues(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, dup := seen[strings.ToLower(value)]; dup {
			continue
		}
		seen[strings.ToLower(value)] = struct{}{}
		out = append(out, value)
	}
	return out
}

func (s *catalogService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCatalogNotFound
		case repoErr.IsConflict():
			return ErrCatalogConflict
		default:
			return ErrCatalogUnavailable
		}
	}
	return ErrCatalogUnavailable
}
