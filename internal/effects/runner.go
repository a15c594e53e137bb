package effects

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sakashimaa/go-shop-backend/internal/metrics"
	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"go.uber.org/zap"
)

// Effect is one post-commit side effect. Its failure is logged and never
// reaches the caller that committed the transaction.
type Effect struct {
	Name string
	Run  func(ctx context.Context) error
}

type Runner struct {
	logger      *zap.Logger
	timeout     time.Duration
	synchronous bool
	wg          sync.WaitGroup
}

type Option func(*Runner)

// Synchronous makes Go block until all effects have run.
func Synchronous() Option {
	return func(r *Runner) {
		r.synchronous = true
	}
}

func NewRunner(logger *zap.Logger, timeout time.Duration, opts ...Option) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := &Runner{
		logger:  logger,
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Go runs effects in order on a context detached from the request.
func (r *Runner) Go(ctx context.Context, effects ...Effect) {
	if len(effects) == 0 {
		return
	}

	detached := context.WithoutCancel(ctx)

	if r.synchronous {
		r.run(detached, effects)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(detached, effects)
	}()
}

// Wait blocks until every scheduled effect finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("post-commit effects still running: %w", ctx.Err())
	}
}

func (r *Runner) run(ctx context.Context, effects []Effect) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	for _, effect := range effects {
		r.runOne(ctx, effect)
	}
}

func (r *Runner) runOne(ctx context.Context, effect Effect) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.EffectFailures.WithLabelValues(effect.Name).Inc()
			mylogger.Error(ctx, r.logger, "Post-commit effect panicked",
				zap.String("effect", effect.Name),
				zap.Any("panic", rec),
			)
		}
	}()

	if err := effect.Run(ctx); err != nil {
		metrics.EffectFailures.WithLabelValues(effect.Name).Inc()
		mylogger.Error(ctx, r.logger, "Post-commit effect failed",
			zap.String("effect", effect.Name),
			zap.Error(err),
		)
	}
}
