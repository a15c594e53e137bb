package domain

import (
	"errors"
	"maps"
	"slices"
	"strings"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
)

var ErrUnknownStatus = errors.New("unknown order status")

var statusLiterals = map[string]OrderStatus{
	"pending":    OrderStatusPending,
	"en_attente": OrderStatusPending,
	"confirmed":  OrderStatusConfirmed,
	"confirmee":  OrderStatusConfirmed,
	"confirmée":  OrderStatusConfirmed,
	"shipped":    OrderStatusShipped,
	"expediee":   OrderStatusShipped,
	"expédiée":   OrderStatusShipped,
	"delivered":  OrderStatusDelivered,
	"livree":     OrderStatusDelivered,
	"livrée":     OrderStatusDelivered,
}

// ParseOrderStatus maps any accepted literal, including the legacy French
// spellings, onto its canonical stored value.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status, ok := statusLiterals[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", ErrUnknownStatus
	}
	return status, nil
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered:
		return true
	}
	return false
}

func (s OrderStatus) String() string {
	return string(s)
}

// AllowedStatusLiterals lists every literal ParseOrderStatus accepts, sorted.
func AllowedStatusLiterals() []string {
	return slices.Sorted(maps.Keys(statusLiterals))
}
