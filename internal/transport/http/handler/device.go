package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-shop-backend/internal/domain"
	"github.com/sakashimaa/go-shop-backend/internal/service"
	"github.com/sakashimaa/go-shop-backend/internal/transport/http/middleware"
	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"github.com/sakashimaa/go-shop-backend/pkg/utils"
	"go.uber.org/zap"
)

type DeviceHandler struct {
	devices  service.DeviceService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewDeviceHandler(devices service.DeviceService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		devices:  devices,
		validate: validator.New(),
		logger:   logger,
	}
}

type RegisterDeviceInput struct {
	Token      string  `json:"token" validate:"required"`
	DeviceType string  `json:"device_type" validate:"omitempty,oneof=android ios web"`
	UserID     *int64  `json:"user_id" validate:"omitempty,gt=0"`
	TempID     *string `json:"temp_id"`
}

type AssignDeviceInput struct {
	Token string `json:"token" validate:"required"`
}

func (h *DeviceHandler) Register(c *fiber.Ctx) error {
	ctx := c.UserContext()

	input := new(RegisterDeviceInput)
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

	device, err := h.devices.Register(ctx, service.RegisterDeviceCommand{
		Token:  input.Token,
		Type:   domain.DeviceType(input.DeviceType),
		UserID: input.UserID,
		TempID: input.TempID,
	})
	if err != nil {
		mylogger.Warn(ctx, h.logger, "register device failed", zap.Error(err))
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"device":  device,
	})
}

func (h *DeviceHandler) Assign(c *fiber.Ctx) error {
	input := new(AssignDeviceInput)
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

	userID, ok := c.Locals(middleware.LocalUserID).(int64)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "userId parsing error"})
	}

	device, err := h.devices.Assign(c.UserContext(), input.Token, userID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"device":  device,
	})
}

func (h *DeviceHandler) ListByUser(c *fiber.Ctx) error {
	userID, err := parseID(c.Params("user_id"))
	if err != nil {
		return badRequest(c, "user_id is invalid")
	}

	devices, err := h.devices.ListByUser(c.UserContext(), userID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"devices": devices,
	})
}

func (h *DeviceHandler) Delete(c *fiber.Ctx) error {
	if err := h.devices.Delete(c.UserContext(), c.Params("token")); err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Device removed",
	})
}
