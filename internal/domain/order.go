package domain

import (
	"time"

	"github.com/google/uuid"
)

type Order struct {
	ID          int64       `db:"id" json:"id"`
	CustomerID  int64       `db:"customer_id" json:"customer_id"`
	Status      OrderStatus `db:"status" json:"status"`
	CheckoutKey *uuid.UUID  `db:"checkout_key" json:"checkout_key,omitempty"`
	Items       []OrderItem `db:"-" json:"items"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type OrderItem struct {
	ID          int64  `db:"id" json:"id"`
	OrderID     int64  `db:"order_id" json:"order_id"`
	ProductID   int64  `db:"product_id" json:"product_id"`
	ProductName string `db:"name" json:"product_name,omitempty"`
	Quantity    int32  `db:"quantity" json:"quantity"`
	Position    int32  `db:"position" json:"position"`
}

// StatusChange is the outcome of a committed status overwrite.
type StatusChange struct {
	OrderID    int64       `json:"order_id"`
	CustomerID int64       `json:"customer_id"`
	Previous   OrderStatus `json:"previous_status"`
	Current    OrderStatus `json:"status"`
	ChangedAt  time.Time   `json:"changed_at"`
}
