package push

import (
	"context"
	"strings"

	"github.com/sakashimaa/go-shop-backend/internal/metrics"
	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"github.com/sakashimaa/go-shop-backend/pkg/utils"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Result describes what happened to one dispatch. Err is informational only.
type Result struct {
	Skipped bool
	Sent    int
	Failed  int
	Pruned  []string
	Err     error
}

type Dispatcher struct {
	transport Transport
	store     TokenStore
	logger    *zap.Logger
	cb        *gobreaker.CircuitBreaker
	tracer    trace.Tracer
}

func NewDispatcher(transport Transport, store TokenStore, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		store:     store,
		logger:    logger,
		cb:        utils.NewBreaker("PushTransport", utils.DefaultBreakerConfig(), logger),
		tracer:    otel.Tracer("push_dispatcher"),
	}
}

// NormalizeTokens trims tokens, drops blanks and duplicates, and keeps first-seen order.
func NormalizeTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	result := make([]string, 0, len(tokens))

	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		result = append(result, token)
	}

	return result
}

// Dispatch never fails from the caller's point of view. Transport errors are
// logged, and tokens reported permanently invalid are removed from the store.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, msg Message) Result {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.Dispatch")
	defer span.End()

	clean := NormalizeTokens(tokens)
	span.SetAttributes(
		attribute.Int("tokens_requested", len(tokens)),
		attribute.Int("tokens_sent", len(clean)),
	)

	if len(clean) == 0 {
		metrics.PushMessages.WithLabelValues("skipped").Inc()
		mylogger.Debug(ctx, d.logger, "No device tokens to notify", zap.String("title", msg.Title))
		return Result{Skipped: true}
	}

	batch, err := utils.ExecuteWithBreaker(d.cb, func() (*BatchResult, error) {
		return d.transport.SendBatch(ctx, clean, msg)
	})
	if err != nil {
		span.RecordError(err)
		metrics.PushMessages.WithLabelValues("error").Add(float64(len(clean)))
		mylogger.Error(
			ctx,
			d.logger,
			"Push dispatch failed",
			zap.String("title", msg.Title),
			zap.Int("tokens", len(clean)),
			zap.Error(err),
		)
		return Result{Err: err}
	}

	if batch == nil {
		return Result{}
	}

	result := Result{
		Sent:   batch.SuccessCount,
		Failed: batch.FailureCount,
	}
	metrics.PushMessages.WithLabelValues("sent").Add(float64(batch.SuccessCount))
	metrics.PushMessages.WithLabelValues("failed").Add(float64(batch.FailureCount))

	var invalid []string
	for _, r := range batch.Responses {
		if r.Success {
			continue
		}
		if r.Reason == ReasonInvalidToken {
			invalid = append(invalid, r.Token)
			continue
		}
		mylogger.Warn(ctx, d.logger, "Transient push failure", zap.Error(r.Err))
	}

	if len(invalid) == 0 {
		return result
	}

	removed, err := d.store.DeleteByTokens(ctx, invalid)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, d.logger, "Failed to prune invalid device tokens", zap.Int("tokens", len(invalid)), zap.Error(err))
		return result
	}

	result.Pruned = invalid
	metrics.PrunedTokens.Add(float64(removed))
	mylogger.Info(ctx, d.logger, "Pruned invalid device tokens", zap.Int64("removed", removed))

	return result
}
