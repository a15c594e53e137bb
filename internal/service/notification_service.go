package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sakashimaa/go-shop-backend/internal/domain"
	"github.com/sakashimaa/go-shop-backend/internal/metrics"
	"github.com/sakashimaa/go-shop-backend/internal/repository"
	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const lowStockDedupWindow = 24 * time.Hour

// NotificationRecorder writes the in-app records produced by order activity.
type NotificationRecorder interface {
	RecordNewOrder(ctx context.Context, order *domain.Order) error
	RecordLowStock(ctx context.Context, level domain.StockLevel) (bool, error)
	RecordStatusChange(ctx context.Context, change *domain.StatusChange) error
}

type NotificationService interface {
	NotificationRecorder
	List(ctx context.Context, filter domain.NotificationFilter) ([]domain.Notification, int64, error)
	CountUnread(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, id int64) (*domain.Notification, error)
	MarkAllRead(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*domain.NotificationStats, error)
	SweepLowStock(ctx context.Context) (int, error)
}

type notificationService struct {
	repo     repository.NotificationRepository
	products repository.ProductRepository
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewNotificationService(
	repo repository.NotificationRepository,
	products repository.ProductRepository,
	logger *zap.Logger,
) NotificationService {
	return &notificationService{
		repo:     repo,
		products: products,
		logger:   logger,
		tracer:   otel.Tracer("notification_service"),
		now:      time.Now,
	}
}

func (s *notificationService) RecordNewOrder(ctx context.Context, order *domain.Order) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.RecordNewOrder")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", order.ID))

	data, err := json.Marshal(map[string]any{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
		"created_at":  order.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification data: %w", err)
	}

	n := &domain.Notification{
		Type:     domain.NotificationNewOrder,
		Title:    "New order",
		Message:  fmt.Sprintf("Order #%d has been placed", order.ID),
		Data:     data,
		Priority: domain.PriorityMedium,
	}

	return s.repo.Create(ctx, n)
}

// RecordLowStock writes at most one low stock record per product per 24h.
// It reports whether a record was written.
func (s *notificationService) RecordLowStock(ctx context.Context, level domain.StockLevel) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "NotificationService.RecordLowStock")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", level.ProductID),
		attribute.Int("remaining", int(level.Quantity)),
	)

	threshold := level.LowStockThreshold
	if threshold <= 0 {
		threshold = domain.DefaultLowStockThreshold
	}

	data, err := json.Marshal(map[string]any{
		"product_id":      level.ProductID,
		"product_name":    level.Name,
		"current_stock":   level.Quantity,
		"threshold":       threshold,
		"purchased_count": level.PurchasedCount,
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal notification data: %w", err)
	}

	n := &domain.Notification{
		Type:     domain.NotificationLowStock,
		Title:    "Low stock",
		Message:  fmt.Sprintf("%s: only %d left in stock", level.Name, level.Quantity),
		Data:     data,
		Priority: domain.PriorityHigh,
	}

	created, err := s.repo.CreateLowStockUnlessRecent(ctx, n, level.ProductID, s.now().Add(-lowStockDedupWindow))
	if err != nil {
		return false, err
	}

	if created {
		metrics.LowStockRecords.Inc()
		mylogger.Info(ctx, s.logger, "Low stock recorded",
			zap.Int64("product_id", level.ProductID),
			zap.Int32("remaining", level.Quantity),
		)
	}

	return created, nil
}

func (s *notificationService) RecordStatusChange(ctx context.Context, change *domain.StatusChange) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.RecordStatusChange")
	defer span.End()

	data, err := json.Marshal(map[string]any{
		"order_id":        change.OrderID,
		"previous_status": change.Previous,
		"status":          change.Current,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification data: %w", err)
	}

	recipient := change.CustomerID
	n := &domain.Notification{
		Type:        domain.NotificationOrderStatus,
		Title:       "Order status updated",
		Message:     fmt.Sprintf("Order #%d is now %s", change.OrderID, change.Current),
		Data:        data,
		RecipientID: &recipient,
		Priority:    domain.PriorityMedium,
	}

	return s.repo.Create(ctx, n)
}

func (s *notificationService) List(ctx context.Context, filter domain.NotificationFilter) ([]domain.Notification, int64, error) {
	ctx, span := s.tracer.Start(ctx, "NotificationService.List")
	defer span.End()

	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, 0, fmt.Errorf("unknown notification type %q", filter.Type)
	}

	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)
	return s.repo.List(ctx, filter)
}

func (s *notificationService) CountUnread(ctx context.Context) (int64, error) {
	return s.repo.CountUnread(ctx)
}

func (s *notificationService) MarkRead(ctx context.Context, id int64) (*domain.Notification, error) {
	return s.repo.MarkRead(ctx, id)
}

func (s *notificationService) MarkAllRead(ctx context.Context) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "NotificationService.MarkAllRead")
	defer span.End()

	count, err := s.repo.MarkAllRead(ctx)
	if err != nil {
		return 0, err
	}

	mylogger.Info(ctx, s.logger, "Notifications marked as read", zap.Int64("count", count))
	return count, nil
}

func (s *notificationService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *notificationService) Stats(ctx context.Context) (*domain.NotificationStats, error) {
	return s.repo.Stats(ctx)
}

// SweepLowStock records every product currently at or under its threshold.
// The 24h window keeps repeated sweeps from duplicating records.
func (s *notificationService) SweepLowStock(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "NotificationService.SweepLowStock")
	defer span.End()

	products, err := s.products.ListLowStock(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, p := range products {
		ok, err := s.RecordLowStock(ctx, domain.StockLevel{
			ProductID:         p.ID,
			Name:              p.Name,
			Quantity:          p.Quantity,
			PurchasedCount:    p.PurchasedCount,
			LowStockThreshold: p.LowStockThreshold,
		})
		if err != nil {
			mylogger.Warn(ctx, s.logger, "Failed to record low stock", zap.Int64("product_id", p.ID), zap.Error(err))
			continue
		}
		if ok {
			created++
		}
	}

	span.SetAttributes(attribute.Int("created", created))
	return created, nil
}
