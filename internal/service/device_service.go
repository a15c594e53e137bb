package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/go-shop-backend/internal/domain"
	"github.com/sakashimaa/go-shop-backend/internal/repository"
	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"github.com/sakashimaa/go-shop-backend/pkg/outbox"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type RegisterDeviceCommand struct {
	Token  string
	Type   domain.DeviceType
	UserID *int64
	TempID *string
}

type DeviceService interface {
	Register(ctx context.Context, cmd RegisterDeviceCommand) (*domain.Device, error)
	Assign(ctx context.Context, token string, userID int64) (*domain.Device, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Device, error)
	Delete(ctx context.Context, token string) error
	HandleDeviceRegistered(ctx context.Context, event *domain.DeviceRegisteredEvent) error
}

// PoolDB is what the device service needs from *pgxpool.Pool: plain queries
// for direct registrations and transactions for deduplicated events.
type PoolDB interface {
	repository.Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type deviceService struct {
	db     PoolDB
	repo   repository.DeviceRepository
	logger *zap.Logger
	tracer trace.Tracer
}

func NewDeviceService(db PoolDB, repo repository.DeviceRepository, logger *zap.Logger) DeviceService {
	return &deviceService{
		db:     db,
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer("device_service"),
	}
}

func normalizeDevice(cmd RegisterDeviceCommand) (*domain.Device, error) {
	token := strings.TrimSpace(cmd.Token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidDevice)
	}

	if cmd.Type != "" && !cmd.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown device type %q", ErrInvalidDevice, cmd.Type)
	}

	return &domain.Device{
		Token:  token,
		Type:   cmd.Type,
		UserID: cmd.UserID,
		TempID: cmd.TempID,
	}, nil
}

func (s *deviceService) Register(ctx context.Context, cmd RegisterDeviceCommand) (*domain.Device, error) {
	ctx, span := s.tracer.Start(ctx, "DeviceService.Register")
	defer span.End()

	device, err := normalizeDevice(cmd)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("device_type", string(device.Type)))

	saved, err := s.repo.Upsert(ctx, s.db, device)
	if err != nil {
		return nil, err
	}

	mylogger.Info(ctx, s.logger, "Device registered", zap.Int64("device_id", saved.ID))
	return saved, nil
}

func (s *deviceService) Assign(ctx context.Context, token string, userID int64) (*domain.Device, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidDevice)
	}

	return s.repo.Assign(ctx, token, userID)
}

func (s *deviceService) ListByUser(ctx context.Context, userID int64) ([]domain.Device, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *deviceService) Delete(ctx context.Context, token string) error {
	return s.repo.DeleteByToken(ctx, strings.TrimSpace(token))
}

func (s *deviceService) HandleDeviceRegistered(ctx context.Context, event *domain.DeviceRegisteredEvent) error {
	ctx, span := s.tracer.Start(ctx, "DeviceService.HandleDeviceRegistered")
	defer span.End()

	if event.EventID == 0 {
		return ErrMissingEventID
	}

	device, err := normalizeDevice(RegisterDeviceCommand{
		Token:  event.Token,
		Type:   event.DeviceType,
		UserID: event.UserID,
		TempID: event.TempID,
	})
	if err != nil {
		return err
	}

	return outbox.ProcessOnce(ctx, s.db, s.logger, event.EventID, func(ctx context.Context, tx pgx.Tx) error {
		_, err := s.repo.Upsert(ctx, tx, device)
		return err
	})
}
