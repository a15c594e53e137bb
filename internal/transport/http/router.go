package http

import (
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/sakashimaa/go-shop-backend/internal/metrics"
	"github.com/sakashimaa/go-shop-backend/internal/transport/http/handler"
	"github.com/sakashimaa/go-shop-backend/internal/transport/http/middleware"
)

type Handlers struct {
	Order        *handler.OrderHandler
	Notification *handler.NotificationHandler
	Device       *handler.DeviceHandler
	Health       *handler.HealthHandler
}

type AppConfig struct {
	ReadTimeout     time.Duration
	LimiterMax      int
	LimiterInterval time.Duration
}

func NewApp(cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.ReadTimeout,
		DisableStartupMessage: true,
	})

	app.Use(otelfiber.Middleware())

	if cfg.LimiterMax > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.LimiterMax,
			Expiration: cfg.LimiterInterval,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests. Try again later.",
				})
			},
		}))
	}

	return app
}

func RegisterRoutes(app *fiber.App, h *Handlers, jwtSecret string) {
	authMw := middleware.NewAuthMiddleware(jwtSecret)
	adminMw := middleware.NewRequireAdminMiddleware()

	app.Get("/health", h.Health.Health)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/api")

	order := api.Group("/orders", authMw)
	order.Post("", h.Order.Create)
	order.Get("/mine", h.Order.ListMine)
	order.Get("", adminMw, h.Order.List)
	order.Get("/:id", adminMw, h.Order.Get)
	order.Put("/:id", adminMw, h.Order.UpdateStatus)

	notification := api.Group("/notifications", authMw, adminMw)
	notification.Get("", h.Notification.List)
	notification.Get("/unread", h.Notification.ListUnread)
	notification.Get("/unread/count", h.Notification.CountUnread)
	notification.Get("/stats", h.Notification.Stats)
	notification.Get("/type/:type", h.Notification.ListByType)
	notification.Patch("/read-all", h.Notification.MarkAllRead)
	notification.Patch("/:id/read", h.Notification.MarkRead)
	notification.Delete("/:id", h.Notification.Delete)

	device := api.Group("/devices")
	device.Post("/register", h.Device.Register)
	device.Post("/assign", authMw, h.Device.Assign)
	device.Get("/user/:user_id", authMw, adminMw, h.Device.ListByUser)
	device.Delete("/:token", h.Device.Delete)
}
