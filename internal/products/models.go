package products

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("product not found")
	ErrForbidden = errors.New("product belongs to another seller")
	ErrInvalid   = errors.New("invalid product")
)

// maxPrice is the first value that no longer fits NUMERIC(12, 2).
var maxPrice = decimal.New(1, 10)

type Product struct {
	ID          int64           `json:"id"`
	SellerID    int64           `json:"seller_id"`
	Name        string          `json:"product_name"`
	Description string          `json:"description"`
	CategoryID  *int64          `json:"category"`
	ImageURL    string          `json:"image_url"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	IsAvailable bool            `json:"is_available"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type NewProduct struct {
	Name        string          `json:"product_name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	CategoryID  *int64          `json:"category" validate:"omitempty,min=1"`
	ImageURL    string          `json:"image_url" validate:"omitempty,url"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"gte=0"`
	IsAvailable *bool           `json:"is_available"`
}

// UpdateProduct is a partial update; nil fields are left unchanged.
type UpdateProduct struct {
	Name        *string          `json:"product_name" validate:"omitempty,max=200"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	CategoryID  *int64           `json:"category" validate:"omitempty,min=1"`
	ImageURL    *string          `json:"image_url" validate:"omitempty,url"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock" validate:"omitempty,gte=0"`
	IsAvailable *bool            `json:"is_available"`
}

type Filter struct {
	Name       string
	CategoryID int64
	SellerID   int64
	Limit    int
	Offset   int
}

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// normalize clamps paging to sane bounds.
func (f Filter) normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Apply merges the update into p and restores the availability invariant:
// a product without stock is never available.
func (u UpdateProduct) Apply(p Product) (Product, error) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.CategoryID != nil {
		p.CategoryID = u.CategoryID
	}
	if u.ImageURL != nil {
		p.ImageURL = *u.ImageURL
	}
	if u.Price != nil {
		if err := checkPrice(*u.Price); err != nil {
			return Product{}, err
		}
		p.Price = *u.Price
	}
	if u.Stock != nil {
		if *u.Stock < 0 {
			return Product{}, errors.Join(ErrInvalid, errors.New("stock must not be negative"))
		}
		p.Stock = *u.Stock
	}
	if u.IsAvailable != nil {
		p.IsAvailable = *u.IsAvailable
	}
	if p.Stock == 0 {
		p.IsAvailable = false
	}
	return p, nil
}

// Build turns a create request into a product owned by sellerID.
func (n NewProduct) Build(sellerID int64) (Product, error) {
	if err := checkPrice(n.Price); err != nil {
		return Product{}, err
	}
	if n.Stock < 0 {
		return Product{}, errors.Join(ErrInvalid, errors.New("stock must not be negative"))
	}
	p := Product{
		SellerID:    sellerID,
		Name:        n.Name,
		Description: n.Description,
		CategoryID:  n.CategoryID,
		ImageURL:    n.ImageURL,
		Price:       n.Price,
		Stock:       n.Stock,
		IsAvailable: true,
	}
	if n.IsAvailable != nil {
		p.IsAvailable = *n.IsAvailable
	}
	if p.Stock == 0 {
		p.IsAvailable = false
	}
	return p, nil
}

// checkPrice rejects prices the price column would round or refuse.
func checkPrice(price decimal.Decimal) error {
	switch {
	case price.IsNegative():
		return errors.Join(ErrInvalid, errors.New("price must not be negative"))
	case !price.Equal(price.Round(2)):
		return errors.Join(ErrInvalid, errors.New("price must have at most 2 decimal places"))
	case price.GreaterThanOrEqual(maxPrice):
		return errors.Join(ErrInvalid, errors.New("price must be below 10000000000"))
	}
	return nil
}
