package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-shop-backend/internal/domain"
	"github.com/sakashimaa/go-shop-backend/internal/service"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	notifications service.NotificationService
	logger        *zap.Logger
}

func NewNotificationHandler(notifications service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		logger:        logger,
	}
}

func (h *NotificationHandler) list(c *fiber.Ctx, filter domain.NotificationFilter) error {
	filter.Limit = c.QueryInt("limit")
	filter.Offset = c.QueryInt("offset")

	items, total, err := h.notifications.List(c.UserContext(), filter)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"notifications": items,
		"total":         total,
	})
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	return h.list(c, domain.NotificationFilter{
		Type:       domain.NotificationType(c.Query("type")),
		UnreadOnly: c.QueryBool("unread"),
	})
}

func (h *NotificationHandler) ListUnread(c *fiber.Ctx) error {
	return h.list(c, domain.NotificationFilter{UnreadOnly: true})
}

func (h *NotificationHandler) ListByType(c *fiber.Ctx) error {
	t := domain.NotificationType(c.Params("type"))
	if !t.IsValid() {
		return badRequest(c, "unknown notification type")
	}

	return h.list(c, domain.NotificationFilter{Type: t})
}

func (h *NotificationHandler) CountUnread(c *fiber.Ctx) error {
	count, err := h.notifications.CountUnread(c.UserContext())
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"count":   count,
	})
}

func (h *NotificationHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.notifications.Stats(c.UserContext())
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"stats":   stats,
	})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return badRequest(c, "Id is invalid")
	}

	n, err := h.notifications.MarkRead(c.UserContext(), id)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"notification": n,
	})
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	count, err := h.notifications.MarkAllRead(c.UserContext())
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"updated": count,
	})
}

func (h *NotificationHandler) Delete(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return badRequest(c, "Id is invalid")
	}

	if err := h.notifications.Delete(c.UserContext(), id); err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Notification deleted",
	})
}
