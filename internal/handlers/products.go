package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fashion-shop/api/internal/platform/auth"
	"github.com/fashion-shop/api/internal/platform/httpx"
	"github.com/fashion-shop/api/internal/services"
)

const maxProductBodySize = 64 * 1024

// ProductHandlers exposes catalog endpoints: public reads plus seller writes.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewProductHandlers constructs handlers for the /products endpoint group.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{
		authn:   authn,
		catalog: catalog,
	}
}

// Routes wires the /products endpoints onto the provided router. Reads are
// public; mutations require the seller or admin role.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)

	r.Group(func(protected chi.Router) {
		if h.authn != nil {
			protected.Use(h.authn.RequireAuth(auth.RoleSeller, auth.RoleAdmin))
		}
		protected.Post("/", h.createProduct)
		protected.Patch("/{productID}", h.updateProduct)
		protected.Delete("/{productID}", h.deleteProduct)
		protected.Post("/{productID}/images", h.imageUploadURL)
		protected.Get("/{productID}/images", h.imageDownloadURL)
	})
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnavailable, "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query, err := parseProductListQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListProducts(ctx, query)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items":         items,
		"nextPageToken": page.NextPageToken,
	})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnavailable, "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := chi.URLParam(r, "productID")
	product, err := h.catalog.GetProduct(ctx, productID, false)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

type productWriteRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Category    *string   `json:"category"`
	Gender      *string   `json:"gender"`
	Price       *int64    `json:"price"`
	Stock       *int64    `json:"stock"`
	Sizes       *[]string `json:"sizes"`
	Colors      *[]string `json:"colors"`
	Images      *[]string `json:"images"`
	Discount    *int      `json:"discount"`
	Featured    *bool     `json:"featured"`
	Hidden      *bool     `json:"hidden"`
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req productWriteRequest
	if err := decodeJSONBody(r, maxProductBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	cmd := services.CreateProductCommand{SellerID: identity.UID}
	if req.Name != nil {
		cmd.Name = *req.Name
	}
	if req.Description != nil {
		cmd.Description = *req.Description
	}
	if req.Category != nil {
		cmd.Category = *req.Category
	}
	if req.Gender != nil {
		cmd.Gender = *req.Gender
	}
	if req.Price != nil {
		cmd.Price = *req.Price
	}
	if req.Stock != nil {
		cmd.Stock = *req.Stock
	}
	if req.Sizes != nil {
		cmd.Sizes = *req.Sizes
	}
	if req.Colors != nil {
		cmd.Colors = *req.Colors
	}
	if req.Images != nil {
		cmd.Images = *req.Images
	}
	if req.Discount != nil {
		cmd.Discount = *req.Discount
	}
	if req.Featured != nil {
		cmd.Featured = *req.Featured
	}
	if req.Hidden != nil {
		cmd.Hidden = *req.Hidden
	}

	product, err := h.catalog.CreateProduct(ctx, cmd)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildProductPayload(product))
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req productWriteRequest
	if err := decodeJSONBody(r, maxProductBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	product, err := h.catalog.UpdateProduct(ctx, services.UpdateProductCommand{
		ProductID:   chi.URLParam(r, "productID"),
		ActorID:     identity.UID,
		ActorRole:   identityRole(identity),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Gender:      req.Gender,
		Price:       req.Price,
		Stock:       req.Stock,
		Sizes:       req.Sizes,
		Colors:      req.Colors,
		Images:      req.Images,
		Discount:    req.Discount,
		Featured:    req.Featured,
		Hidden:      req.Hidden,
	})
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.catalog.DeleteProduct(ctx, services.DeleteProductCommand{
		ProductID: chi.URLParam(r, "productID"),
		ActorID:   identity.UID,
		ActorRole: identityRole(identity),
	}); err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type imageUploadRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

func (h *ProductHandlers) imageUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req imageUploadRequest
	if err := decodeJSONBody(r, maxAuthBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	upload, err := h.catalog.ProductImageUploadURL(ctx, services.ProductImageUploadCommand{
		ProductID:   chi.URLParam(r, "productID"),
		ActorID:     identity.UID,
		ActorRole:   identityRole(identity),
		FileName:    req.FileName,
		ContentType: req.ContentType,
	})
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"url":       upload.URL,
		"method":    upload.Method,
		"path":      upload.Path,
		"headers":   upload.Headers,
		"expiresAt": formatTime(upload.ExpiresAt),
	})
}

func (h *ProductHandlers) imageDownloadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	download, err := h.catalog.ProductImageDownloadURL(ctx, services.ProductImageDownloadCommand{
		ProductID: chi.URLParam(r, "productID"),
		ActorID:   identity.UID,
		ActorRole: identityRole(identity),
		Path:      strings.TrimSpace(r.URL.Query().Get("path")),
	})
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"url":       download.URL,
		"method":    download.Method,
		"expiresAt": formatTime(download.ExpiresAt),
	})
}

func parseProductListQuery(r *http.Request) (services.ProductListQuery, error) {
	values := r.URL.Query()
	query := services.ProductListQuery{
		Category: strings.TrimSpace(values.Get("category")),
		Gender:   strings.TrimSpace(values.Get("gender")),
		Size:     strings.TrimSpace(values.Get("size")),
		Color:    strings.TrimSpace(values.Get("color")),
		SellerID: strings.TrimSpace(values.Get("seller_id")),
		Search:   strings.TrimSpace(values.Get("q")),
		Sort:     strings.TrimSpace(values.Get("sort")),
	}

	if raw := strings.TrimSpace(values.Get("featured")); raw != "" {
		featured, err := strconv.ParseBool(raw)
		if err != nil {
			return services.ProductListQuery{}, errors.New("featured must be true or false")
		}
		query.Featured = &featured
	}
	for name, target := range map[string]**int64{"price_min": &query.PriceMin, "price_max": &query.PriceMax} {
		raw := strings.TrimSpace(values.Get(name))
		if raw == "" {
			continue
		}
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || price < 0 {
			return services.ProductListQuery{}, errors.New(name + " must be a non-negative integer")
		}
		*target = &price
	}
	switch order := strings.ToLower(strings.TrimSpace(values.Get("order"))); order {
	case "":
	case "asc":
		query.SortOrder = services.SortOrder("asc")
	case "desc":
		query.SortOrder = services.SortOrder("desc")
	default:
		return services.ProductListQuery{}, errors.New("order must be asc or desc")
	}

	pager, err := parsePager(r)
	if err != nil {
		return services.ProductListQuery{}, err
	}
	query.Pager = pager
	return query, nil
}

func (h *ProductHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	writeCatalogError(ctx, w, err)
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeNotFound, "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogForbidden):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnauthorized, "not allowed to manage this product", http.StatusForbidden))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeConflict, "product was modified concurrently", http.StatusConflict))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnavailable, "catalog service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInternal, "catalog operation failed", http.StatusInternalServerError))
	}
}
