package worker

import (
	"context"
	"time"

	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"go.uber.org/zap"
)

type LowStockSweeper interface {
	SweepLowStock(ctx context.Context) (int, error)
}

type LowStockWorker struct {
	sweeper  LowStockSweeper
	interval time.Duration
	logger   *zap.Logger
}

func NewLowStockWorker(sweeper LowStockSweeper, interval time.Duration, logger *zap.Logger) *LowStockWorker {
	return &LowStockWorker{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
	}
}

// Start sweeps once immediately and then on every tick until ctx is done.
// A zero interval disables the worker.
func (w *LowStockWorker) Start(ctx context.Context) {
	if w.interval <= 0 {
		mylogger.Info(ctx, w.logger, "Low stock sweep disabled")
		return
	}

	mylogger.Info(ctx, w.logger, "Starting low stock sweep", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, w.logger, "Low stock sweep stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *LowStockWorker) sweep(ctx context.Context) {
	created, err := w.sweeper.SweepLowStock(ctx)
	if err != nil {
		mylogger.Error(ctx, w.logger, "Low stock sweep failed", zap.Error(err))
		return
	}

	if created > 0 {
		mylogger.Info(ctx, w.logger, "Low stock sweep recorded products", zap.Int("created", created))
	}
}
