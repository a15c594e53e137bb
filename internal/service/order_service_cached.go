package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/go-shop-backend/internal/domain"
	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"go.uber.org/zap"
)

type cachedOrderService struct {
	next        OrderService
	redisClient *redis.Client
	cacheTTL    time.Duration
	logger      *zap.Logger
}

func orderCacheKey(id int64) string {
	return fmt.Sprintf("order:%d", id)
}

func (s *cachedOrderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (int64, error) {
	return s.next.PlaceOrder(ctx, cmd)
}

func (s *cachedOrderService) UpdateStatus(ctx context.Context, orderID int64, rawStatus string) (*domain.StatusChange, error) {
	change, err := s.next.UpdateStatus(ctx, orderID, rawStatus)
	if err != nil {
		return nil, err
	}

	if err := s.redisClient.Del(ctx, orderCacheKey(orderID)).Err(); err != nil {
		mylogger.Warn(ctx, s.logger, "Failed to invalidate cached order", zap.Int64("order_id", orderID), zap.Error(err))
	}
	return change, nil
}

func (s *cachedOrderService) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	key := orderCacheKey(orderID)

	val, err := s.redisClient.Get(ctx, key).Bytes()
	if err == nil {
		var order domain.Order
		if err := json.Unmarshal(val, &order); err == nil {
			return &order, nil
		}
	}

	order, err := s.next.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(order); err == nil {
		if err := s.redisClient.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
			mylogger.Warn(ctx, s.logger, "Failed to cache order", zap.Int64("order_id", orderID), zap.Error(err))
		}
	}

	return order, nil
}

func (s *cachedOrderService) ListCustomerOrders(ctx context.Context, customerID int64, limit, offset int) ([]domain.Order, error) {
	return s.next.ListCustomerOrders(ctx, customerID, limit, offset)
}

func (s *cachedOrderService) ListOrders(ctx context.Context, limit, offset int) ([]domain.Order, error) {
	return s.next.ListOrders(ctx, limit, offset)
}

func (s *cachedOrderService) HandleUserRegistered(ctx context.Context, event *domain.UserRegisteredEvent) error {
	return s.next.HandleUserRegistered(ctx, event)
}

func NewCachedOrderService(next OrderService, redisClient *redis.Client, cacheTTL time.Duration, logger *zap.Logger) OrderService {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	return &cachedOrderService{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}
