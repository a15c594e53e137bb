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

type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	LockForOrder(ctx context.Context, tx pgx.Tx, ids []int64) (map[int64]*domain.Product, error)
	ApplyPurchase(ctx context.Context, tx pgx.Tx, id int64, quantity int32) (*domain.StockLevel, error)
	ListLowStock(ctx context.Context) ([]domain.Product, error)
}

type productRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewProductRepository(pool *pgxpool.Pool, logger *zap.Logger) ProductRepository {
	return &productRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("product_repository"),
	}
}

const productColumns = `id, name, description, price, quantity, purchased_count, low_stock_threshold, created_at, updated_at`

func scanProduct(row pgx.Row, p *domain.Product) error {
	return row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.Quantity,
		&p.PurchasedCount,
		&p.LowStockThreshold,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}

func (r *productRepo) Create(ctx context.Context, product *domain.Product) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Create")
	defer span.End()

	span.SetAttributes(attribute.String("product_name", product.Name))

	threshold := product.LowStockThreshold
	if threshold <= 0 {
		threshold = domain.DefaultLowStockThreshold
	}

	query := `
		INSERT INTO products (name, description, price, quantity, low_stock_threshold)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, purchased_count, low_stock_threshold, created_at, updated_at
	`

	err := r.pool.QueryRow(
		ctx,
		query,
		product.Name,
		product.Description,
		product.Price,
		product.Quantity,
		threshold,
	).Scan(
		&product.ID,
		&product.PurchasedCount,
		&product.LowStockThreshold,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to insert product", zap.Error(err))
		return 0, fmt.Errorf("failed to insert product: %w", err)
	}

	return product.ID, nil
}

func (r *productRepo) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("product_id", id))

	var p domain.Product
	err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to query product", zap.Int64("product_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	return &p, nil
}

// LockForOrder reads the requested products with row locks taken in ascending
// id order. Missing ids are simply absent from the result.
func (r *productRepo) LockForOrder(ctx context.Context, tx pgx.Tx, ids []int64) (map[int64]*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.LockForOrder")
	defer span.End()

	span.SetAttributes(attribute.Int("products_count", len(ids)))

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`

	rows, err := tx.Query(ctx, query, ids)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to lock products", zap.Error(err))
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]*domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := scanProduct(rows, &p); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		result[p.ID] = &p
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	return result, nil
}

// ApplyPurchase decrements quantity and bumps the purchased counter in one
// conditional statement, so it can never drive the quantity below zero.
func (r *productRepo) ApplyPurchase(ctx context.Context, tx pgx.Tx, id int64, quantity int32) (*domain.StockLevel, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.ApplyPurchase")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", id),
		attribute.Int("quantity", int(quantity)),
	)

	query := `
		UPDATE products
		SET quantity = quantity - $2,
			purchased_count = purchased_count + $2,
			updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
		RETURNING id, name, quantity, purchased_count, low_stock_threshold
	`

	var level domain.StockLevel
	err := tx.QueryRow(ctx, query, id, quantity).Scan(
		&level.ProductID,
		&level.Name,
		&level.Quantity,
		&level.PurchasedCount,
		&level.LowStockThreshold,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(ctx, r.logger, "Not enough stock to apply purchase", zap.Int64("product_id", id))
			return nil, ErrInsufficientStock
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to apply purchase", zap.Int64("product_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to apply purchase: %w", err)
	}

	return &level, nil
}

func (r *productRepo) ListLowStock(ctx context.Context) ([]domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.ListLowStock")
	defer span.End()

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE quantity <= CASE WHEN low_stock_threshold > 0 THEN low_stock_threshold ELSE $1 END
		ORDER BY quantity ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, domain.DefaultLowStockThreshold)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to query low stock products", zap.Error(err))
		return nil, fmt.Errorf("failed to query low stock products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := scanProduct(rows, &p); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	span.SetAttributes(attribute.Int("result_count", len(products)))
	return products, nil
}
