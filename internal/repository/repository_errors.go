package repository

import "errors"

var (
	ErrProductNotFound      = errors.New("product not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrOrderNotFound        = errors.New("order not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrCheckoutKeyConflict  = errors.New("checkout key already used")
)
