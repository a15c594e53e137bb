package push

import (
	"fmt"
	"strconv"
	"time"

	"github.com/sakashimaa/go-shop-backend/internal/domain"
)

const (
	DataTypeNewOrder     = "new_order"
	DataTypeLowStock     = "low_stock"
	DataTypeStatusUpdate = "order_status_update"
)

func NewOrderMessage(orderID int64) Message {
	return Message{
		Title: "New order",
		Body:  fmt.Sprintf("Order #%d has just been placed.", orderID),
		Data: map[string]string{
			"type":     DataTypeNewOrder,
			"order_id": strconv.FormatInt(orderID, 10),
		},
	}
}

func LowStockMessage(productID int64, name string, remaining int32) Message {
	return Message{
		Title: "Low stock",
		Body:  fmt.Sprintf("Product %q is running low (%d left).", name, remaining),
		Data: map[string]string{
			"type":       DataTypeLowStock,
			"product_id": strconv.FormatInt(productID, 10),
		},
	}
}

// StatusChangeMessage picks the body by the new status and falls back to a
// generic "changed from X to Y" text.
func StatusChangeMessage(change domain.StatusChange) Message {
	id := change.OrderID

	var body string
	switch change.Current {
	case domain.OrderStatusPending:
		body = fmt.Sprintf("Your order #%d is now pending.", id)
	case domain.OrderStatusConfirmed:
		body = fmt.Sprintf("Good news! Your order #%d has been confirmed.", id)
	case domain.OrderStatusShipped:
		body = fmt.Sprintf("Your order #%d has been shipped.", id)
	case domain.OrderStatusDelivered:
		body = fmt.Sprintf("Your order #%d has been delivered.", id)
	default:
		body = fmt.Sprintf("Your order #%d changed from %q to %q.", id, change.Previous, change.Current)
	}

	changedAt := change.ChangedAt
	if changedAt.IsZero() {
		changedAt = time.Now()
	}

	return Message{
		Title: fmt.Sprintf("Update on your order #%d", id),
		Body:  body,
		Data: map[string]string{
			"type":            DataTypeStatusUpdate,
			"order_id":        strconv.FormatInt(id, 10),
			"previous_status": string(change.Previous),
			"status":          string(change.Current),
			"screen":          "order_detail",
			"timestamp":       changedAt.UTC().Format(time.RFC3339),
		},
	}
}
