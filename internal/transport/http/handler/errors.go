package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-shop-backend/internal/repository"
	"github.com/sakashimaa/go-shop-backend/internal/service"
	"github.com/sony/gobreaker"
)

func mapErrorStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrDeviceNotFound),
		errors.Is(err, repository.ErrNotificationNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrEmptyOrder),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidDevice),
		errors.Is(err, repository.ErrInsufficientStock):
		return fiber.StatusBadRequest
	case errors.Is(err, repository.ErrCheckoutKeyConflict):
		return fiber.StatusConflict
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// errorResponse hides internal failures behind a generic message.
func errorResponse(c *fiber.Ctx, err error) error {
	code := mapErrorStatus(err)

	body := fiber.Map{
		"success": false,
		"error":   err.Error(),
	}

	switch code {
	case fiber.StatusInternalServerError:
		body["error"] = "internal error"
	case fiber.StatusServiceUnavailable:
		body["error"] = "service temporarily unavailable"
	}

	var stockErr *service.InsufficientStockError
	if errors.As(err, &stockErr) {
		body["product_id"] = stockErr.ProductID
		body["available"] = stockErr.Available
		body["requested"] = stockErr.Requested
	}

	var statusErr *service.InvalidStatusError
	if errors.As(err, &statusErr) {
		body["allowed"] = statusErr.Allowed
	}

	var notFound *service.ProductNotFoundError
	if errors.As(err, &notFound) {
		body["product_id"] = notFound.ProductID
	}

	return c.Status(code).JSON(body)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}
