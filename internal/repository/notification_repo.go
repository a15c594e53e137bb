package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-shop-backend/internal/domain"
	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	CreateLowStockUnlessRecent(ctx context.Context, n *domain.Notification, productID int64, since time.Time) (bool, error)
	List(ctx context.Context, filter domain.NotificationFilter) ([]domain.Notification, int64, error)
	CountUnread(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, id int64) (*domain.Notification, error)
	MarkAllRead(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*domain.NotificationStats, error)
}

type notificationRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewNotificationRepository(pool *pgxpool.Pool, logger *zap.Logger) NotificationRepository {
	return &notificationRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("notification_repository"),
	}
}

// lowStockLockSpace is the first key of the two-key advisory lock taken per product.
const lowStockLockSpace int32 = 0x4c53

const notificationColumns = `id, type, title, message, data, recipient_id, is_read, priority, created_at`

func scanNotification(row pgx.Row, n *domain.Notification) error {
	return row.Scan(
		&n.ID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.Data,
		&n.RecipientID,
		&n.IsRead,
		&n.Priority,
		&n.CreatedAt,
	)
}

func dataOrEmpty(n *domain.Notification) []byte {
	if len(n.Data) == 0 {
		return []byte("{}")
	}
	return n.Data
}

func (r *notificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	ctx, span := r.tracer.Start(ctx, "NotificationRepository.Create")
	defer span.End()

	span.SetAttributes(attribute.String("type", string(n.Type)))

	query := `
		INSERT INTO notifications (type, title, message, data, recipient_id, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, is_read, created_at
	`

	err := r.pool.QueryRow(
		ctx,
		query,
		string(n.Type),
		n.Title,
		n.Message,
		dataOrEmpty(n),
		n.RecipientID,
		string(n.Priority),
	).Scan(&n.ID, &n.IsRead, &n.CreatedAt)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to insert notification", zap.Error(err))
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}

// CreateLowStockUnlessRecent inserts n only when no low_stock record for
// productID was created at or after since. It reports whether a row was written.
func (r *notificationRepo) CreateLowStockUnlessRecent(ctx context.Context, n *domain.Notification, productID int64, since time.Time) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "NotificationRepository.CreateLowStockUnlessRecent")
	defer span.End()

	span.SetAttributes(attribute.Int64("product_id", productID))

	query := `
		INSERT INTO notifications (type, title, message, data, recipient_id, priority)
		SELECT $1::varchar, $2::varchar, $3::text, $4::jsonb, $5::bigint, $6::varchar
		WHERE NOT EXISTS (
			SELECT 1 FROM notifications
			WHERE type = $1
				AND data->>'product_id' = $7::text
				AND created_at >= $8::timestamptz
		)
		RETURNING id, is_read, created_at
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(cleanupCtx, r.logger, "Failed to rollback transaction", zap.Error(err))
		}
	}()

	// Serialises concurrent writers for the same product until commit, so the
	// NOT EXISTS check below sees any row a competing transaction inserted.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, lowStockLockSpace, int32(productID)); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to lock low stock record: %w", err)
	}

	err = tx.QueryRow(
		ctx,
		query,
		string(domain.NotificationLowStock),
		n.Title,
		n.Message,
		dataOrEmpty(n),
		n.RecipientID,
		string(n.Priority),
		fmt.Sprintf("%d", productID),
		since,
	).Scan(&n.ID, &n.IsRead, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to insert low stock notification", zap.Error(err))
		return false, fmt.Errorf("failed to insert low stock notification: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to commit low stock notification", zap.Error(err))
		return false, fmt.Errorf("failed to commit low stock notification: %w", err)
	}

	n.Type = domain.NotificationLowStock
	return true, nil
}

func (r *notificationRepo) List(ctx context.Context, filter domain.NotificationFilter) ([]domain.Notification, int64, error) {
	ctx, span := r.tracer.Start(ctx, "NotificationRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.String("type", string(filter.Type)),
		attribute.Bool("unread_only", filter.UnreadOnly),
		attribute.Int("limit", filter.Limit),
		attribute.Int("offset", filter.Offset),
	)

	where := `WHERE ($1 = '' OR type = $1) AND (NOT $2 OR is_read = FALSE)`

	var total int64
	if err := r.pool.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM notifications `+where,
		string(filter.Type),
		filter.UnreadOnly,
	).Scan(&total); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+notificationColumns+` FROM notifications `+where+` ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`,
		string(filter.Type),
		filter.UnreadOnly,
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to query notifications", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := scanNotification(rows, &n); err != nil {
			span.RecordError(err)
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		result = append(result, n)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("failed to iterate notifications: %w", err)
	}

	return result, total, nil
}

func (r *notificationRepo) CountUnread(ctx context.Context) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "NotificationRepository.CountUnread")
	defer span.End()

	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE is_read = FALSE`).Scan(&count); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	return count, nil
}

func (r *notificationRepo) MarkRead(ctx context.Context, id int64) (*domain.Notification, error) {
	ctx, span := r.tracer.Start(ctx, "NotificationRepository.MarkRead")
	defer span.End()

	span.SetAttributes(attribute.Int64("notification_id", id))

	var n domain.Notification
	err := scanNotification(
		r.pool.QueryRow(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 RETURNING `+notificationColumns, id),
		&n,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}

	return &n, nil
}

func (r *notificationRepo) MarkAllRead(ctx context.Context) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "NotificationRepository.MarkAllRead")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE is_read = FALSE`)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *notificationRepo) Delete(ctx context.Context, id int64) error {
	ctx, span := r.tracer.Start(ctx, "NotificationRepository.Delete")
	defer span.End()

	span.SetAttributes(attribute.Int64("notification_id", id))

	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete notification: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}

	return nil
}

func (r *notificationRepo) Stats(ctx context.Context) (*domain.NotificationStats, error) {
	ctx, span := r.tracer.Start(ctx, "NotificationRepository.Stats")
	defer span.End()

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_read = FALSE),
			COUNT(*) FILTER (WHERE is_read = TRUE),
			COUNT(*) FILTER (WHERE type = 'low_stock'),
			COUNT(*) FILTER (WHERE type = 'new_order')
		FROM notifications
	`

	var stats domain.NotificationStats
	if err := r.pool.QueryRow(ctx, query).Scan(
		&stats.Total,
		&stats.Unread,
		&stats.Read,
		&stats.LowStock,
		&stats.NewOrder,
	); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query notification stats: %w", err)
	}

	return &stats, nil
}
