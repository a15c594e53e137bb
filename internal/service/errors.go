package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sakashimaa/go-shop-backend/internal/repository"
)

var (
	ErrEmptyOrder         = errors.New("order must contain at least one line")
	ErrInvalidQuantity    = errors.New("line quantity must be at least 1")
	ErrInvalidStatus      = errors.New("invalid order status")
	ErrTransactionFailure = errors.New("transaction failure")
	ErrInvalidDevice      = errors.New("invalid device registration")
	ErrMissingEventID     = errors.New("event_id is missing")
)

type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == repository.ErrProductNotFound
}

// InsufficientStockError names the offending product and what is left of it.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Available int32
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: %d remaining, %d requested", e.Name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == repository.ErrInsufficientStock
}

type InvalidStatusError struct {
	Value   string
	Allowed []string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status %q, allowed: %s", e.Value, strings.Join(e.Allowed, ", "))
}

func (e *InvalidStatusError) Is(target error) bool {
	return target == ErrInvalidStatus
}

func transactionFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransactionFailure, op, err)
}
