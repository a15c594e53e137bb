package handler

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sakashimaa/go-shop-backend/internal/domain"
	"github.com/sakashimaa/go-shop-backend/internal/push"
	"github.com/sakashimaa/go-shop-backend/internal/service"
	"github.com/sakashimaa/go-shop-backend/internal/transport/http/middleware"
	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"github.com/sakashimaa/go-shop-backend/pkg/utils"
	"go.uber.org/zap"
)

const idempotencyHeader = "Idempotency-Key"

type OrderHandler struct {
	orders   service.OrderService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		validate: validator.New(),
		logger:   logger,
	}
}

type OrderLineInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int32 `json:"quantity" validate:"required,gte=1"`
}

type PlaceOrderInput struct {
	Lines []OrderLineInput `json:"lines" validate:"required,min=1,dive"`
}

type UpdateStatusInput struct {
	Status string `json:"status" validate:"required"`
}

func (h *OrderHandler) Create(c *fiber.Ctx) error {
	ctx := c.UserContext()

	input := new(PlaceOrderInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "failed to parse body in create", zap.Error(err))
		return badRequest(c, "error parsing body")
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "validation failed",
			"fields":  utils.FormatValidationError(err),
		})
	}

	userID, ok := c.Locals(middleware.LocalUserID).(int64)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "userId parsing error"})
	}

	cmd := service.PlaceOrderCommand{
		CustomerID: userID,
		Lines:      make([]service.OrderLine, 0, len(input.Lines)),
	}
	for _, line := range input.Lines {
		cmd.Lines = append(cmd.Lines, service.OrderLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	if raw := strings.TrimSpace(c.Get(idempotencyHeader)); raw != "" {
		key, err := uuid.Parse(raw)
		if err != nil {
			return badRequest(c, idempotencyHeader+" must be a valid UUID")
		}
		cmd.CheckoutKey = &key
	}

	orderID, err := h.orders.PlaceOrder(ctx, cmd)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "create order failed", zap.Int64("user_id", userID), zap.Error(err))
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":  true,
		"message":  "Order placed",
		"order_id": orderID,
	})
}

func (h *OrderHandler) ListMine(c *fiber.Ctx) error {
	userID, ok := c.Locals(middleware.LocalUserID).(int64)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "userId parsing error"})
	}

	orders, err := h.orders.ListCustomerOrders(c.UserContext(), userID, c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"orders":  orders,
	})
}

func (h *OrderHandler) List(c *fiber.Ctx) error {
	orders, err := h.orders.ListOrders(c.UserContext(), c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"orders":  orders,
	})
}

func (h *OrderHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return badRequest(c, "Id is invalid")
	}

	order, err := h.orders.GetOrder(c.UserContext(), id)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"order":   order,
	})
}

func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := parseID(c.Params("id"))
	if err != nil {
		return badRequest(c, "Id is invalid")
	}

	input := new(UpdateStatusInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "error parsing body")
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "validation failed",
			"fields":  utils.FormatValidationError(err),
		})
	}

	change, err := h.orders.UpdateStatus(ctx, id, input.Status)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "update status failed", zap.Int64("order_id", id), zap.Error(err))
		return errorResponse(c, err)
	}

	// The change is committed; a failed re-read must not turn it into an error.
	order, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "re-read after status update failed", zap.Int64("order_id", id), zap.Error(err))
		order = &domain.Order{
			ID:         change.OrderID,
			CustomerID: change.CustomerID,
			Status:     change.Current,
			UpdatedAt:  change.ChangedAt,
		}
	}

	msg := push.StatusChangeMessage(*change)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Order status updated",
		"order":   order,
		"notification": fiber.Map{
			"recipient_id": change.CustomerID,
			"title":        msg.Title,
			"body":         msg.Body,
		},
	})
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.ErrBadRequest
	}
	return id, nil
}
