package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"go.uber.org/zap"
)

// DB is the slice of *pgxpool.Pool the services need.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

func rollback(ctx context.Context, tx pgx.Tx, logger *zap.Logger) {
	shutdownCtx := context.WithoutCancel(ctx)

	if err := tx.Rollback(shutdownCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		mylogger.Warn(shutdownCtx, logger, "Error rolling back transaction", zap.Error(err))
	}
}
