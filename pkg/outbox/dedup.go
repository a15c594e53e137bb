package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

// ProcessOnce runs action inside the same transaction that records eventID in
// processed_events. A redelivered event is skipped and reported as success.
func ProcessOnce(
	ctx context.Context,
	db TxBeginner,
	logger *zap.Logger,
	eventID int64,
	action func(ctx context.Context, tx pgx.Tx) error,
) error {
	span := trace.SpanFromContext(ctx)

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		shutdownCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(shutdownCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(shutdownCtx, logger, "Error rolling back transaction", zap.Error(err))
		}
	}()

	_, err = tx.Exec(ctx, `INSERT INTO processed_events (event_id) VALUES ($1)`, eventID)
	if err != nil {
		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == uniqueViolation {
			mylogger.Info(ctx, logger, "Event already processed, skipping", zap.Int64("event_id", eventID))
			return nil
		}

		span.RecordError(err)
		return fmt.Errorf("failed to record processed event: %w", err)
	}

	if err := action(ctx, tx); err != nil {
		span.RecordError(err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, logger, "Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit processed event: %w", err)
	}

	return nil
}
