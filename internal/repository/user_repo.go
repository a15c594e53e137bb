package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/go-shop-backend/internal/domain"
	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type UserRepository interface {
	SaveUser(ctx context.Context, q Querier, user *domain.User) error
	IncrementOrderCount(ctx context.Context, tx pgx.Tx, userID int64) error
}

type userRepo struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewUserRepository(logger *zap.Logger) UserRepository {
	return &userRepo{
		logger: logger,
		tracer: otel.Tracer("user_repository"),
	}
}

// SaveUser mirrors an account owned by the identity service. Replays overwrite
// email and role but never the order counter.
func (r *userRepo) SaveUser(ctx context.Context, q Querier, user *domain.User) error {
	ctx, span := r.tracer.Start(ctx, "UserRepository.SaveUser")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", user.ID),
		attribute.String("role", user.Role),
	)

	role := user.Role
	if role == "" {
		role = domain.RoleClient
	}

	query := `
		INSERT INTO users (id, email, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email,
			role = EXCLUDED.role
	`

	if _, err := q.Exec(ctx, query, user.ID, user.Email, role); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error inserting into users", zap.Int64("user_id", user.ID), zap.Error(err))
		return fmt.Errorf("failed to save user: %w", err)
	}

	return nil
}

func (r *userRepo) IncrementOrderCount(ctx context.Context, tx pgx.Tx, userID int64) error {
	ctx, span := r.tracer.Start(ctx, "UserRepository.IncrementOrderCount")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	tag, err := tx.Exec(ctx, `UPDATE users SET order_count = order_count + 1 WHERE id = $1`, userID)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to increment order count", zap.Int64("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to increment order count: %w", err)
	}

	if tag.RowsAffected() == 0 {
		mylogger.Warn(ctx, r.logger, "User not found", zap.Int64("user_id", userID))
		return ErrUserNotFound
	}

	return nil
}
