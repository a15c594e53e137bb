package domain

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventUserRegistered     = "UserRegistered"
	EventDeviceRegistered   = "DeviceRegistered"
)

type OrderPlacedEvent struct {
	OrderID    int64             `json:"order_id"`
	CustomerID int64             `json:"customer_id"`
	Items      []OrderPlacedLine `json:"items"`
}

type OrderPlacedLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int32 `json:"quantity"`
}

type OrderStatusChangedEvent struct {
	OrderID        int64       `json:"order_id"`
	CustomerID     int64       `json:"customer_id"`
	PreviousStatus OrderStatus `json:"previous_status"`
	Status         OrderStatus `json:"status"`
}

type UserRegisteredEvent struct {
	EventID int64  `json:"event_id"`
	UserID  int64  `json:"user_id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
}

type DeviceRegisteredEvent struct {
	EventID    int64      `json:"event_id"`
	Token      string     `json:"token"`
	DeviceType DeviceType `json:"device_type"`
	UserID     *int64     `json:"user_id,omitempty"`
	TempID     *string    `json:"temp_id,omitempty"`
}
