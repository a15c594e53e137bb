package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-shop-backend/internal/domain"
	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const checkoutKeyConstraint = "orders_checkout_key_key"

type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	FindIDByCheckoutKey(ctx context.Context, key uuid.UUID) (int64, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, orderID int64, status domain.OrderStatus) (*domain.StatusChange, error)
	GetByID(ctx context.Context, orderID int64) (*domain.Order, error)
	ListByCustomer(ctx context.Context, customerID int64, limit, offset int) ([]domain.Order, error)
	List(ctx context.Context, limit, offset int) ([]domain.Order, error)
}

type orderRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("order_repository"),
	}
}

// Create inserts the header and bulk-copies the lines in the caller's transaction.
func (r *orderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("customer_id", order.CustomerID),
		attribute.Int("items_count", len(order.Items)),
	)

	queryOrder := `
		INSERT INTO orders (customer_id, status, checkout_key)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	if err := tx.QueryRow(
		ctx,
		queryOrder,
		order.CustomerID,
		string(order.Status),
		order.CheckoutKey,
	).Scan(
		&order.ID,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err, checkoutKeyConstraint) {
			mylogger.Warn(ctx, r.logger, "Checkout key already used", zap.Int64("customer_id", order.CustomerID))
			return ErrCheckoutKeyConflict
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to insert order", zap.Error(err))
		return fmt.Errorf("failed to insert order: %w", err)
	}

	rows := make([][]any, 0, len(order.Items))
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		order.Items[i].Position = int32(i)
		rows = append(rows, []any{
			order.ID,
			order.Items[i].ProductID,
			order.Items[i].Quantity,
			order.Items[i].Position,
		})
	}

	copied, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"order_items"},
		[]string{"order_id", "product_id", "quantity", "position"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to insert order items", zap.Int64("order_id", order.ID), zap.Error(err))
		return fmt.Errorf("failed to insert order items: %w", err)
	}

	if copied != int64(len(order.Items)) {
		return fmt.Errorf("inserted %d of %d order items", copied, len(order.Items))
	}

	span.SetAttributes(attribute.Int64("order_id", order.ID))
	return nil
}

func (r *orderRepo) FindIDByCheckoutKey(ctx context.Context, key uuid.UUID) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.FindIDByCheckoutKey")
	defer span.End()

	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM orders WHERE checkout_key = $1`, key).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrOrderNotFound
		}

		span.RecordError(err)
		return 0, fmt.Errorf("failed to query order by checkout key: %w", err)
	}

	return id, nil
}

// UpdateStatus locks the order row, overwrites its status and reports the previous one.
func (r *orderRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, orderID int64, status domain.OrderStatus) (*domain.StatusChange, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("status", string(status)),
	)

	change := &domain.StatusChange{
		OrderID: orderID,
		Current: status,
	}

	err := tx.QueryRow(
		ctx,
		`SELECT status, customer_id FROM orders WHERE id = $1 FOR UPDATE`,
		orderID,
	).Scan(&change.Previous, &change.CustomerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(ctx, r.logger, "Order not found", zap.Int64("order_id", orderID))
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to lock order", zap.Error(err))
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	err = tx.QueryRow(
		ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`,
		string(status),
		orderID,
	).Scan(&change.ChangedAt)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to update order", zap.Error(err))
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	return change, nil
}

func (r *orderRepo) GetByID(ctx context.Context, orderID int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	var order domain.Order
	err := r.pool.QueryRow(
		ctx,
		`SELECT id, customer_id, status, checkout_key, created_at, updated_at FROM orders WHERE id = $1`,
		orderID,
	).Scan(
		&order.ID,
		&order.CustomerID,
		&order.Status,
		&order.CheckoutKey,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to query order", zap.Error(err))
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	items, err := r.itemsOf(ctx, []int64{order.ID})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	order.Items = items[order.ID]

	return &order, nil
}

func (r *orderRepo) ListByCustomer(ctx context.Context, customerID int64, limit, offset int) ([]domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.ListByCustomer")
	defer span.End()

	span.SetAttributes(attribute.Int64("customer_id", customerID))

	query := `
		SELECT id, customer_id, status, checkout_key, created_at, updated_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	return r.listOrders(ctx, span, query, customerID, limit, offset)
}

func (r *orderRepo) List(ctx context.Context, limit, offset int) ([]domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	query := `
		SELECT id, customer_id, status, checkout_key, created_at, updated_at
		FROM orders
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	return r.listOrders(ctx, span, query, limit, offset)
}

func (r *orderRepo) listOrders(ctx context.Context, span trace.Span, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to query orders", zap.Error(err))
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	var ids []int64
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(
			&o.ID,
			&o.CustomerID,
			&o.Status,
			&o.CheckoutKey,
			&o.CreatedAt,
			&o.UpdatedAt,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}

	if len(ids) == 0 {
		return orders, nil
	}

	items, err := r.itemsOf(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}

	return orders, nil
}

func (r *orderRepo) itemsOf(ctx context.Context, orderIDs []int64) (map[int64][]domain.OrderItem, error) {
	query := `
		SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.quantity, oi.position
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.position
	`

	rows, err := r.pool.Query(ctx, query, orderIDs)
	if err != nil {
		mylogger.Error(ctx, r.logger, "Failed to query order_items", zap.Error(err))
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.Position,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		result[item.OrderID] = append(result[item.OrderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order items: %w", err)
	}

	return result, nil
}
