package service

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/go-shop-backend/internal/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubOrderService struct {
	OrderService
	change *domain.StatusChange
}

func (s *stubOrderService) UpdateStatus(context.Context, int64, string) (*domain.StatusChange, error) {
	return s.change, nil
}

func TestCachedUpdateStatus_LogsFailedInvalidation(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	unreachable := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = unreachable.Close() })

	want := &domain.StatusChange{OrderID: 5, CustomerID: 7, Current: domain.OrderStatusShipped}
	svc := NewCachedOrderService(&stubOrderService{change: want}, unreachable, time.Minute, zap.New(core))

	change, err := svc.UpdateStatus(context.Background(), 5, "shipped")

	require.NoError(t, err)
	require.Equal(t, want, change)

	entries := logs.FilterMessage("Failed to invalidate cached order").All()
	require.Len(t, entries, 1)
	require.Equal(t, int64(5), entries[0].ContextMap()["order_id"])
}
