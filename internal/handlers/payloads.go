package handlers

import (
	"strings"

	"github.com/fashion-shop/api/internal/services"
)

type userPayload struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	City      string `json:"city,omitempty"`
	Country   string `json:"country,omitempty"`
	Role      string `json:"role"`
	Banned    bool   `json:"banned"`
	BanReason string `json:"banReason,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func buildUserPayload(user services.User) userPayload {
	return userPayload{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Phone:     user.Phone,
		Address:   user.Address,
		City:      user.City,
		Country:   user.Country,
		Role:      string(user.Role),
		Banned:    user.Banned,
		BanReason: user.BanReason,
		CreatedAt: formatTime(user.CreatedAt),
		UpdatedAt: formatTime(user.UpdatedAt),
	}
}

type productPayload struct {
	ID          string   `json:"id"`
	SellerID    string   `json:"sellerId,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	Gender      string   `json:"gender,omitempty"`
	Price       int64    `json:"price"`
	Currency    string   `json:"currency,omitempty"`
	Stock       int64    `json:"stock"`
	Sizes       []string `json:"sizes,omitempty"`
	Colors      []string `json:"colors,omitempty"`
	Images      []string `json:"images,omitempty"`
	Rating      float64  `json:"rating"`
	ReviewCount int      `json:"reviewCount"`
	Discount    int      `json:"discount,omitempty"`
	Hidden      bool     `json:"hidden"`
	Featured    bool     `json:"featured"`
	CreatedAt   string   `json:"createdAt,omitempty"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:          product.ID,
		SellerID:    product.SellerID,
		Name:        product.Name,
		Description: product.Description,
		Category:    product.Category,
		Gender:      product.Gender,
		Price:       product.Price,
		Currency:    strings.ToUpper(strings.TrimSpace(product.Currency)),
		Stock:       product.Stock,
		Sizes:       product.Sizes,
		Colors:      product.Colors,
		Images:      product.Images,
		Rating:      product.Rating,
		ReviewCount: product.ReviewCount,
		Discount:    product.Discount,
		Hidden:      product.Hidden,
		Featured:    product.Featured,
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	}
}

type cartLinePayload struct {
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName,omitempty"`
	Color        string `json:"color,omitempty"`
	Size         string `json:"size,omitempty"`
	Quantity     int64  `json:"qty"`
	UnitPrice    int64  `json:"unitPrice"`
	LineTotal    int64  `json:"lineTotal"`
	Image        string `json:"image,omitempty"`
	Unavailable  bool   `json:"unavailable,omitempty"`
	ProductStock int64  `json:"productStock"`
	AddedAt      string `json:"addedAt,omitempty"`
}

type cartPayload struct {
	UserID    string            `json:"userId"`
	Lines     []cartLinePayload `json:"lines"`
	Subtotal  int64             `json:"subtotal"`
	Currency  string            `json:"currency,omitempty"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
}

func buildCartPayload(view services.CartView) cartPayload {
	lines := make([]cartLinePayload, 0, len(view.Lines))
	for _, line := range view.Lines {
		lines = append(lines, cartLinePayload{
			ProductID:    line.ProductID,
			ProductName:  line.ProductName,
			Color:        line.Color,
			Size:         line.Size,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			LineTotal:    line.LineTotal,
			Image:        line.Image,
			Unavailable:  line.Unavailable,
			ProductStock: line.ProductStock,
			AddedAt:      formatTime(line.AddedAt),
		})
	}
	return cartPayload{
		UserID:    view.UserID,
		Lines:     lines,
		Subtotal:  view.Subtotal,
		Currency:  strings.ToUpper(strings.TrimSpace(view.Currency)),
		UpdatedAt: formatTime(view.UpdatedAt),
	}
}

type orderLinePayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
	Quantity  int64  `json:"qty"`
	UnitPrice int64  `json:"unitPrice"`
	Subtotal  int64  `json:"subtotal"`
}

type orderPayload struct {
	ID          string             `json:"id"`
	Number      string             `json:"number"`
	UserID      string             `json:"userId"`
	Lines       []orderLinePayload `json:"lines"`
	Total       int64              `json:"total"`
	Currency    string             `json:"currency,omitempty"`
	Status      string             `json:"status"`
	CreatedAt   string             `json:"createdAt,omitempty"`
	UpdatedAt   string             `json:"updatedAt,omitempty"`
	ConfirmedAt string             `json:"confirmedAt,omitempty"`
	ShippedAt   string             `json:"shippedAt,omitempty"`
	CompletedAt string             `json:"completedAt,omitempty"`
	CancelledAt string             `json:"cancelledAt,omitempty"`
	RefundedAt  string             `json:"refundedAt,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	lines := make([]orderLinePayload, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLinePayload{
			ProductID: line.ProductID,
			Name:      line.Name,
			Color:     line.Color,
			Size:      line.Size,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.Subtotal(),
		})
	}
	return orderPayload{
		ID:          order.ID,
		Number:      order.Number,
		UserID:      order.UserID,
		Lines:       lines,
		Total:       order.Total,
		Currency:    strings.ToUpper(strings.TrimSpace(order.Currency)),
		Status:      string(order.Status),
		CreatedAt:   formatTime(order.CreatedAt),
		UpdatedAt:   formatTime(order.UpdatedAt),
		ConfirmedAt: formatTimePtr(order.ConfirmedAt),
		ShippedAt:   formatTimePtr(order.ShippedAt),
		CompletedAt: formatTimePtr(order.CompletedAt),
		CancelledAt: formatTimePtr(order.CancelledAt),
		RefundedAt:  formatTimePtr(order.RefundedAt),
	}
}
