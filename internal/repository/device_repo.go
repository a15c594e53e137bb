package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-shop-backend/internal/domain"
	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type DeviceRepository interface {
	Upsert(ctx context.Context, q Querier, device *domain.Device) (*domain.Device, error)
	Assign(ctx context.Context, token string, userID int64) (*domain.Device, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Device, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByTokens(ctx context.Context, tokens []string) (int64, error)
	TokensByUser(ctx context.Context, userID int64) ([]string, error)
	TokensByRole(ctx context.Context, role string) ([]string, error)
}

type deviceRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewDeviceRepository(pool *pgxpool.Pool, logger *zap.Logger) DeviceRepository {
	return &deviceRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("device_repository"),
	}
}

const deviceColumns = `id, token, device_type, user_id, temp_id, created_at, updated_at`

func scanDevice(row pgx.Row, d *domain.Device) error {
	return row.Scan(
		&d.ID,
		&d.Token,
		&d.Type,
		&d.UserID,
		&d.TempID,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
}

// Upsert registers a token. When the token already exists, fields left empty
// on device keep their stored values.
func (r *deviceRepo) Upsert(ctx context.Context, q Querier, device *domain.Device) (*domain.Device, error) {
	ctx, span := r.tracer.Start(ctx, "DeviceRepository.Upsert")
	defer span.End()

	var deviceType *string
	if device.Type != "" {
		t := string(device.Type)
		deviceType = &t
	}

	query := `
		INSERT INTO user_devices (token, device_type, user_id, temp_id)
		VALUES ($1, COALESCE($2::varchar, 'android'), $3, $4)
		ON CONFLICT (token) DO UPDATE
		SET device_type = COALESCE($2::varchar, user_devices.device_type),
			user_id = COALESCE($3, user_devices.user_id),
			temp_id = COALESCE($4, user_devices.temp_id),
			updated_at = NOW()
		RETURNING ` + deviceColumns

	var saved domain.Device
	err := scanDevice(q.QueryRow(ctx, query, device.Token, deviceType, device.UserID, device.TempID), &saved)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to upsert device", zap.Error(err))
		return nil, fmt.Errorf("failed to upsert device: %w", err)
	}

	span.SetAttributes(attribute.Int64("device_id", saved.ID))
	return &saved, nil
}

func (r *deviceRepo) Assign(ctx context.Context, token string, userID int64) (*domain.Device, error) {
	ctx, span := r.tracer.Start(ctx, "DeviceRepository.Assign")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	query := `
		UPDATE user_devices
		SET user_id = $2, temp_id = NULL, updated_at = NOW()
		WHERE token = $1
		RETURNING ` + deviceColumns

	var saved domain.Device
	if err := scanDevice(r.pool.QueryRow(ctx, query, token, userID), &saved); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(ctx, r.logger, "Device not found", zap.Int64("user_id", userID))
			return nil, ErrDeviceNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to assign device", zap.Error(err))
		return nil, fmt.Errorf("failed to assign device: %w", err)
	}

	return &saved, nil
}

func (r *deviceRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Device, error) {
	ctx, span := r.tracer.Start(ctx, "DeviceRepository.ListByUser")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+deviceColumns+` FROM user_devices WHERE user_id = $1 ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []domain.Device
	for rows.Next() {
		var d domain.Device
		if err := scanDevice(rows, &d); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	return devices, nil
}

func (r *deviceRepo) DeleteByToken(ctx context.Context, token string) error {
	ctx, span := r.tracer.Start(ctx, "DeviceRepository.DeleteByToken")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `DELETE FROM user_devices WHERE token = $1`, token)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete device: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

func (r *deviceRepo) DeleteByTokens(ctx context.Context, tokens []string) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "DeviceRepository.DeleteByTokens")
	defer span.End()

	span.SetAttributes(attribute.Int("tokens_count", len(tokens)))

	if len(tokens) == 0 {
		return 0, nil
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM user_devices WHERE token = ANY($1)`, tokens)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to delete devices", zap.Error(err))
		return 0, fmt.Errorf("failed to delete devices: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *deviceRepo) TokensByUser(ctx context.Context, userID int64) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "DeviceRepository.TokensByUser")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	return r.collectTokens(ctx, span, `SELECT token FROM user_devices WHERE user_id = $1`, userID)
}

func (r *deviceRepo) TokensByRole(ctx context.Context, role string) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "DeviceRepository.TokensByRole")
	defer span.End()

	span.SetAttributes(attribute.String("role", role))

	query := `
		SELECT d.token
		FROM user_devices d
		JOIN users u ON u.id = d.user_id
		WHERE u.role = $1
	`

	return r.collectTokens(ctx, span, query, role)
}

func (r *deviceRepo) collectTokens(ctx context.Context, span trace.Span, query string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to query device tokens", zap.Error(err))
		return nil, fmt.Errorf("failed to query device tokens: %w", err)
	}

	tokens, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to collect device tokens: %w", err)
	}

	return tokens, nil
}
