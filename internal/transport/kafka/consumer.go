package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/go-shop-backend/internal/domain"
	"github.com/sakashimaa/go-shop-backend/pkg/kafka"
	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"github.com/sakashimaa/go-shop-backend/pkg/outbox"
	"go.uber.org/zap"
)

type UserEventHandler interface {
	HandleUserRegistered(ctx context.Context, event *domain.UserRegisteredEvent) error
}

type DeviceEventHandler interface {
	HandleDeviceRegistered(ctx context.Context, event *domain.DeviceRegisteredEvent) error
}

type Consumer struct {
	users   UserEventHandler
	devices DeviceEventHandler
	logger  *zap.Logger
}

func NewConsumer(users UserEventHandler, devices DeviceEventHandler, logger *zap.Logger) *Consumer {
	return &Consumer{
		users:   users,
		devices: devices,
		logger:  logger,
	}
}

func (c *Consumer) Start(ctx context.Context, brokers []string, groupID string, topics []string) error {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		groupID,
		topics,
		c.processMessage,
		c.logger,
	)

	return consumerGroup.Run(ctx)
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	mylogger.Info(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", msg.Topic),
	)

	var wrapper outbox.Envelope
	if err := json.Unmarshal(msg.Value, &wrapper); err != nil {
		mylogger.Error(ctx, c.logger, "Error unmarshalling wrapper", zap.Error(err))
		return err
	}

	switch wrapper.Event {
	case domain.EventUserRegistered:
		var event domain.UserRegisteredEvent
		if err := json.Unmarshal(wrapper.Payload, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to unmarshal event", zap.Error(err))
			return err
		}
		if event.EventID == 0 {
			event.EventID = wrapper.EventID
		}

		if err := c.users.HandleUserRegistered(ctx, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to handle register event", zap.Error(err))
			return err
		}
	case domain.EventDeviceRegistered:
		var event domain.DeviceRegisteredEvent
		if err := json.Unmarshal(wrapper.Payload, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to unmarshal event", zap.Error(err))
			return err
		}
		if event.EventID == 0 {
			event.EventID = wrapper.EventID
		}

		if err := c.devices.HandleDeviceRegistered(ctx, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to handle device event", zap.Error(err))
			return err
		}
	default:
		mylogger.Debug(ctx, c.logger, "Ignored event type", zap.String("event_type", wrapper.Event))
	}

	return nil
}
