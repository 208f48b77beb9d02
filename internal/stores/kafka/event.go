package kafka

import "time"

const (
	TopicOrderPaid      = `shop.order-paid`
	TopicAccountCreated = `shop.account-created`
)

// OrderPaidEvent is published once per line item of a paid order.
type OrderPaidEvent struct {
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      int64     `json:"user_id"`
	ProductID   int64     `json:"product_id"`
	Quantity    int       `json:"quantity"`
	UnitPrice   string    `json:"unit_price"`
	CreatedAt   time.Time `json:"created_at"`
}

type AccountCreatedEvent struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
