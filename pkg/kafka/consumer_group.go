package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// HandlerFunc processes one record. A nil error commits the offset; any
// error leaves it uncommitted so the record is redelivered after a rebalance.
type HandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

type GroupOption func(*ConsumerGroup)

// WithInitialOffset selects where a group with no committed offset starts.
func WithInitialOffset(offset int64) GroupOption {
	return func(c *ConsumerGroup) {
		c.initialOffset = offset
	}
}

// WithRetryBackoff sets the pause between failed Consume sessions.
func WithRetryBackoff(d time.Duration) GroupOption {
	return func(c *ConsumerGroup) {
		if d > 0 {
			c.retryBackoff = d
		}
	}
}

type ConsumerGroup struct {
	brokers       []string
	groupID       string
	topics        []string
	handler       HandlerFunc
	logger        *zap.Logger
	initialOffset int64
	retryBackoff  time.Duration
}

func NewConsumerGroup(
	brokers []string,
	groupID string,
	topics []string,
	handler HandlerFunc,
	logger *zap.Logger,
	opts ...GroupOption,
) *ConsumerGroup {
	c := &ConsumerGroup{
		brokers:       brokers,
		groupID:       groupID,
		topics:        topics,
		handler:       handler,
		logger:        logger,
		initialOffset: sarama.OffsetOldest,
		retryBackoff:  2 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *ConsumerGroup) saramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_0_0_0
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = c.initialOffset
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}

	return cfg
}

// Run joins the group and consumes until ctx is cancelled.
func (c *ConsumerGroup) Run(ctx context.Context) error {
	if len(c.topics) == 0 {
		return errors.New("consumer group has no topics")
	}

	group, err := sarama.NewConsumerGroup(c.brokers, c.groupID, c.saramaConfig())
	if err != nil {
		return fmt.Errorf("failed to create consumer group %s: %w", c.groupID, err)
	}
	defer func() {
		if err := group.Close(); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to close consumer group", zap.Error(err))
		}
	}()

	go func() {
		for err := range group.Errors() {
			mylogger.Warn(ctx, c.logger, "Consumer group error", zap.String("group", c.groupID), zap.Error(err))
		}
	}()

	claimHandler := &groupHandler{
		handler: c.handler,
		logger:  c.logger,
		tracer:  otel.Tracer("pkg/kafka/consumer"),
	}

	mylogger.Info(ctx, c.logger, "Consumer group started",
		zap.String("group", c.groupID),
		zap.Strings("topics", c.topics),
	)

	for {
		err := group.Consume(ctx, c.topics, claimHandler)
		switch {
		case errors.Is(err, sarama.ErrClosedConsumerGroup):
			return nil
		case err != nil:
			mylogger.Error(ctx, c.logger, "Consume session failed", zap.String("group", c.groupID), zap.Error(err))

			select {
			case <-ctx.Done():
			case <-time.After(c.retryBackoff):
			}
		}

		if ctx.Err() != nil {
			mylogger.Info(ctx, c.logger, "Consumer group stopped", zap.String("group", c.groupID))
			return nil
		}
	}
}

type groupHandler struct {
	handler HandlerFunc
	logger  *zap.Logger
	tracer  trace.Tracer
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		h.handle(session, msg)
	}

	return nil
}

func (h *groupHandler) handle(session sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) {
	ctx := otel.GetTextMapPropagator().Extract(session.Context(), headerCarrier{msg: msg})

	ctx, span := h.tracer.Start(ctx, "Kafka.Consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int64("messaging.kafka.partition", int64(msg.Partition)),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	if err := h.handler(ctx, msg); err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			h.logger,
			"Failed to process message",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return
	}

	session.MarkMessage(msg, "")
}

// headerCarrier exposes record headers as a propagation.TextMapCarrier.
type headerCarrier struct {
	msg *sarama.ConsumerMessage
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	c.msg.Headers = append(c.msg.Headers, &sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		if h != nil {
			keys = append(keys, string(h.Key))
		}
	}
	return keys
}
