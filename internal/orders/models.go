package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusShipped   Status = "shipped"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessed, StatusShipped, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Contact holds the delivery details supplied with an order.
type Contact struct {
	FirstName string `json:"first_name" validate:"required,max=50"`
	LastName  string `json:"last_name" validate:"required,max=50"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,max=15"`
	District  string `json:"district" validate:"required,max=50"`
	Sector    string `json:"sector" validate:"required,max=50"`
	Cell      string `json:"cell" validate:"max=50"`
}

// Order represents an order row together with its line items
type Order struct {
	ID          int64           `json:"id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	Contact
	IP         string          `json:"ip,omitempty"`
	OrderTotal decimal.Decimal `json:"order_total"`
	Tax        decimal.Decimal `json:"tax"`
	Status     Status          `json:"status"`
	IsOrdered  bool            `json:"is_ordered"`
	Items      []LineItem      `json:"order_products"`
	Payment    *Payment        `json:"payment_details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// LineItem is one purchased product. Price is the unit price at purchase time.
type LineItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"-"`
	ProductID   int64           `json:"product"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"product_price"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Payment struct {
	PaymentID  string          `json:"payment_id"`
	Method     string          `json:"payment_method"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ItemRequest is one requested (product, quantity) pair.
type ItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type NewOrder struct {
	Contact
	Items []ItemRequest `json:"order_items"`
	IP    string        `json:"-"`
}

// ProductSnapshot is the locked view of a product used for validation and pricing.
type ProductSnapshot struct {
	ID          int64
	Name        string
	SellerID    int64
	Price       decimal.Decimal
	Stock       int
	IsAvailable bool
}

// Stats summarises a user's orders. Spending only counts completed orders.
type Stats struct {
	TotalOrders     int             `json:"total_orders"`
	CompletedOrders int             `json:"completed_orders"`
	PendingOrders   int             `json:"pending_orders"`
	TotalSpent      decimal.Decimal `json:"total_spent"`
	AverageOrder    decimal.Decimal `json:"average_order_value"`
	Seller          *SellerStats    `json:"seller_stats,omitempty"`
}

type SellerStats struct {
	OrdersWithMyProducts int             `json:"orders_with_my_products"`
	TotalRevenue         decimal.Decimal `json:"total_revenue"`
}

// FormatOrderNumber renders the human readable number for a persisted order id.
func FormatOrderNumber(id int64) string {
	return fmt.Sprintf("ORD-%06d", id)
}
