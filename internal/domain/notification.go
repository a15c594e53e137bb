package domain

import (
	"encoding/json"
	"time"
)

type NotificationType string

const (
	NotificationLowStock    NotificationType = "low_stock"
	NotificationNewOrder    NotificationType = "new_order"
	NotificationOrderStatus NotificationType = "order_status"
	NotificationSystem      NotificationType = "system"
)

func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationLowStock, NotificationNewOrder, NotificationOrderStatus, NotificationSystem:
		return true
	}
	return false
}

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
)

type Notification struct {
	ID          int64                `db:"id" json:"id"`
	Type        NotificationType     `db:"type" json:"type"`
	Title       string               `db:"title" json:"title"`
	Message     string               `db:"message" json:"message"`
	Data        json.RawMessage      `db:"data" json:"data"`
	RecipientID *int64               `db:"recipient_id" json:"recipient_id,omitempty"`
	IsRead      bool                 `db:"is_read" json:"is_read"`
	Priority    NotificationPriority `db:"priority" json:"priority"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
}

type NotificationFilter struct {
	Type       NotificationType
	UnreadOnly bool
	Limit      int
	Offset     int
}

type NotificationStats struct {
	Total    int64 `json:"total"`
	Unread   int64 `json:"unread"`
	Read     int64 `json:"read"`
	LowStock int64 `json:"low_stock"`
	NewOrder int64 `json:"new_order"`
}
