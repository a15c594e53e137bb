package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/go-shop-backend/internal/domain"
	"github.com/sakashimaa/go-shop-backend/internal/effects"
	"github.com/sakashimaa/go-shop-backend/internal/metrics"
	"github.com/sakashimaa/go-shop-backend/internal/push"
	"github.com/sakashimaa/go-shop-backend/internal/repository"
	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"github.com/sakashimaa/go-shop-backend/pkg/outbox"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type OrderLine struct {
	ProductID int64
	Quantity  int32
}

type PlaceOrderCommand struct {
	CustomerID  int64
	CheckoutKey *uuid.UUID
	Lines       []OrderLine
}

type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (int64, error)
	UpdateStatus(ctx context.Context, orderID int64, rawStatus string) (*domain.StatusChange, error)
	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	ListCustomerOrders(ctx context.Context, customerID int64, limit, offset int) ([]domain.Order, error)
	ListOrders(ctx context.Context, limit, offset int) ([]domain.Order, error)
	HandleUserRegistered(ctx context.Context, event *domain.UserRegisteredEvent) error
}

// Notifier is satisfied by *push.Dispatcher.
type Notifier interface {
	Dispatch(ctx context.Context, tokens []string, msg push.Message) push.Result
}

type TokenSource interface {
	TokensByUser(ctx context.Context, userID int64) ([]string, error)
	TokensByRole(ctx context.Context, role string) ([]string, error)
}

type OrderServiceDeps struct {
	DB            DB
	Products      repository.ProductRepository
	Orders        repository.OrderRepository
	Users         repository.UserRepository
	Outbox        outbox.Repository
	Tokens        TokenSource
	Notifications NotificationRecorder
	Notifier      Notifier
	Effects       *effects.Runner
	OrderTopic    string
}

type orderService struct {
	db            DB
	products      repository.ProductRepository
	orders        repository.OrderRepository
	users         repository.UserRepository
	outbox        outbox.Repository
	tokens        TokenSource
	notifications NotificationRecorder
	notifier      Notifier
	effects       *effects.Runner
	orderTopic    string
	logger        *zap.Logger
	tracer        trace.Tracer
}

func NewOrderService(deps OrderServiceDeps, logger *zap.Logger) OrderService {
	topic := deps.OrderTopic
	if topic == "" {
		topic = "order_events"
	}

	return &orderService{
		db:            deps.DB,
		products:      deps.Products,
		orders:        deps.Orders,
		users:         deps.Users,
		outbox:        deps.Outbox,
		tokens:        deps.Tokens,
		notifications: deps.Notifications,
		notifier:      deps.Notifier,
		effects:       deps.Effects,
		orderTopic:    topic,
		logger:        logger,
		tracer:        otel.Tracer("order_service"),
	}
}

// PlaceOrder validates every line against locked stock, then commits the
// order, its lines, the stock movement and the customer's counter together.
// Notifications run after commit and cannot affect the result.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.PlaceOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("customer_id", cmd.CustomerID),
		attribute.Int("lines_count", len(cmd.Lines)),
	)

	if err := validateLines(cmd.Lines); err != nil {
		metrics.OrdersRejected.WithLabelValues("invalid_input").Inc()
		return 0, err
	}

	if cmd.CheckoutKey != nil {
		id, err := s.orders.FindIDByCheckoutKey(ctx, *cmd.CheckoutKey)
		switch {
		case err == nil:
			mylogger.Info(ctx, s.logger, "Checkout already placed, returning existing order", zap.Int64("order_id", id))
			return id, nil
		case !errors.Is(err, repository.ErrOrderNotFound):
			span.RecordError(err)
			return 0, fmt.Errorf("failed to look up checkout: %w", err)
		}
	}

	order, levels, err := s.placeInTx(ctx, cmd)
	if err != nil {
		if errors.Is(err, repository.ErrCheckoutKeyConflict) && cmd.CheckoutKey != nil {
			if id, findErr := s.orders.FindIDByCheckoutKey(ctx, *cmd.CheckoutKey); findErr == nil {
				return id, nil
			}
		}

		span.RecordError(err)
		metrics.OrdersRejected.WithLabelValues(rejectionReason(err)).Inc()
		return 0, err
	}

	metrics.OrdersPlaced.Inc()
	span.SetAttributes(attribute.Int64("order_id", order.ID))

	mylogger.Info(
		ctx,
		s.logger,
		"Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("customer_id", order.CustomerID),
	)

	s.effects.Go(ctx, s.placementEffects(order, levels)...)

	return order.ID, nil
}

func (s *orderService) placeInTx(ctx context.Context, cmd PlaceOrderCommand) (*domain.Order, []domain.StockLevel, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return nil, nil, transactionFailure("begin", err)
	}
	defer rollback(ctx, tx, s.logger)

	productIDs, totals := aggregateLines(cmd.Lines)

	products, err := s.products.LockForOrder(ctx, tx, productIDs)
	if err != nil {
		return nil, nil, transactionFailure("lock products", err)
	}

	for _, id := range productIDs {
		product, ok := products[id]
		if !ok {
			mylogger.Warn(ctx, s.logger, "Product not found", zap.Int64("product_id", id))
			return nil, nil, &ProductNotFoundError{ProductID: id}
		}

		if int64(product.Quantity) < totals[id] {
			mylogger.Warn(
				ctx,
				s.logger,
				"Insufficient stock",
				zap.Int64("product_id", id),
				zap.Int32("available", product.Quantity),
				zap.Int64("requested", totals[id]),
			)
			return nil, nil, &InsufficientStockError{
				ProductID: id,
				Name:      product.Name,
				Available: product.Quantity,
				Requested: totals[id],
			}
		}
	}

	order := &domain.Order{
		CustomerID:  cmd.CustomerID,
		Status:      domain.OrderStatusPending,
		CheckoutKey: cmd.CheckoutKey,
		Items:       make([]domain.OrderItem, 0, len(cmd.Lines)),
	}
	for _, line := range cmd.Lines {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:   line.ProductID,
			ProductName: products[line.ProductID].Name,
			Quantity:    line.Quantity,
		})
	}

	if err := s.orders.Create(ctx, tx, order); err != nil {
		if errors.Is(err, repository.ErrCheckoutKeyConflict) {
			return nil, nil, err
		}
		return nil, nil, transactionFailure("create order", err)
	}

	levels := make([]domain.StockLevel, 0, len(productIDs))
	for _, id := range productIDs {
		level, err := s.products.ApplyPurchase(ctx, tx, id, int32(totals[id]))
		if err != nil {
			if errors.Is(err, repository.ErrInsufficientStock) {
				return nil, nil, &InsufficientStockError{
					ProductID: id,
					Name:      products[id].Name,
					Available: products[id].Quantity,
					Requested: totals[id],
				}
			}
			return nil, nil, transactionFailure("apply purchase", err)
		}
		levels = append(levels, *level)
	}

	if err := s.users.IncrementOrderCount(ctx, tx, cmd.CustomerID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, err
		}
		return nil, nil, transactionFailure("increment order count", err)
	}

	eventLines := make([]domain.OrderPlacedLine, 0, len(order.Items))
	for _, item := range order.Items {
		eventLines = append(eventLines, domain.OrderPlacedLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	event, err := outbox.NewEvent(s.orderTopic, "Order", order.ID, domain.EventOrderPlaced, domain.OrderPlacedEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Items:      eventLines,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := s.outbox.SaveEvent(ctx, tx, event); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to save outbox event", zap.Error(err))
		return nil, nil, transactionFailure("save outbox event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return nil, nil, transactionFailure("commit", err)
	}

	return order, levels, nil
}

func (s *orderService) placementEffects(order *domain.Order, levels []domain.StockLevel) []effects.Effect {
	var low []domain.StockLevel
	for _, level := range levels {
		if level.IsLowStock() {
			low = append(low, level)
		}
	}

	list := []effects.Effect{
		{
			Name: "record_new_order",
			Run: func(ctx context.Context) error {
				return s.notifications.RecordNewOrder(ctx, order)
			},
		},
	}

	if len(low) > 0 {
		list = append(list, effects.Effect{
			Name: "record_low_stock",
			Run: func(ctx context.Context) error {
				var errs []error
				for _, level := range low {
					if _, err := s.notifications.RecordLowStock(ctx, level); err != nil {
						errs = append(errs, err)
					}
				}
				return errors.Join(errs...)
			},
		})
	}

	list = append(list, effects.Effect{
		Name: "notify_operators",
		Run: func(ctx context.Context) error {
			tokens, err := s.tokens.TokensByRole(ctx, domain.RoleAdmin)
			if err != nil {
				return fmt.Errorf("failed to load operator devices: %w", err)
			}

			res := s.notifier.Dispatch(ctx, tokens, push.NewOrderMessage(order.ID))
			tokens = withoutTokens(tokens, res.Pruned)

			for _, level := range low {
				res = s.notifier.Dispatch(ctx, tokens, push.LowStockMessage(level.ProductID, level.Name, level.Quantity))
				tokens = withoutTokens(tokens, res.Pruned)
			}
			return nil
		},
	})

	return list
}

// UpdateStatus overwrites the order status with any known literal and
// notifies the owning customer after commit.
func (s *orderService) UpdateStatus(ctx context.Context, orderID int64, rawStatus string) (*domain.StatusChange, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("raw_status", rawStatus),
	)

	status, err := domain.ParseOrderStatus(rawStatus)
	if err != nil {
		return nil, &InvalidStatusError{Value: rawStatus, Allowed: domain.AllowedStatusLiterals()}
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, transactionFailure("begin", err)
	}
	defer rollback(ctx, tx, s.logger)

	change, err := s.orders.UpdateStatus(ctx, tx, orderID, status)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, err
		}
		span.RecordError(err)
		return nil, transactionFailure("update status", err)
	}

	event, err := outbox.NewEvent(s.orderTopic, "Order", orderID, domain.EventOrderStatusChanged, domain.OrderStatusChangedEvent{
		OrderID:        change.OrderID,
		CustomerID:     change.CustomerID,
		PreviousStatus: change.Previous,
		Status:         change.Current,
	})
	if err != nil {
		return nil, err
	}

	if err := s.outbox.SaveEvent(ctx, tx, event); err != nil {
		return nil, transactionFailure("save outbox event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return nil, transactionFailure("commit", err)
	}

	metrics.StatusUpdates.WithLabelValues(string(change.Current)).Inc()
	mylogger.Info(
		ctx,
		s.logger,
		"Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("from", string(change.Previous)),
		zap.String("to", string(change.Current)),
	)

	s.effects.Go(ctx,
		effects.Effect{
			Name: "record_status_change",
			Run: func(ctx context.Context) error {
				return s.notifications.RecordStatusChange(ctx, change)
			},
		},
		effects.Effect{
			Name: "notify_customer",
			Run: func(ctx context.Context) error {
				tokens, err := s.tokens.TokensByUser(ctx, change.CustomerID)
				if err != nil {
					return fmt.Errorf("failed to load customer devices: %w", err)
				}

				s.notifier.Dispatch(ctx, tokens, push.StatusChangeMessage(*change))
				return nil
			},
		},
	)

	return change, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrder")
	defer span.End()

	return s.orders.GetByID(ctx, orderID)
}

func (s *orderService) ListCustomerOrders(ctx context.Context, customerID int64, limit, offset int) ([]domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.ListCustomerOrders")
	defer span.End()

	limit, offset = normalizePage(limit, offset)
	return s.orders.ListByCustomer(ctx, customerID, limit, offset)
}

func (s *orderService) ListOrders(ctx context.Context, limit, offset int) ([]domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.ListOrders")
	defer span.End()

	limit, offset = normalizePage(limit, offset)
	return s.orders.List(ctx, limit, offset)
}

func (s *orderService) HandleUserRegistered(ctx context.Context, event *domain.UserRegisteredEvent) error {
	ctx, span := s.tracer.Start(ctx, "OrderService.HandleUserRegistered")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", event.UserID))

	if event.EventID == 0 {
		return ErrMissingEventID
	}

	err := outbox.ProcessOnce(ctx, s.db, s.logger, event.EventID, func(ctx context.Context, tx pgx.Tx) error {
		return s.users.SaveUser(ctx, tx, &domain.User{
			ID:    event.UserID,
			Email: event.Email,
			Role:  event.Role,
		})
	})
	if err != nil {
		span.RecordError(err)
		mylogger.Warn(ctx, s.logger, "Failed to save user", zap.Error(err))
		return err
	}

	mylogger.Info(ctx, s.logger, "User saved successfully", zap.Int64("user_id", event.UserID))
	return nil
}

func validateLines(lines []OrderLine) error {
	if len(lines) == 0 {
		return ErrEmptyOrder
	}

	for i, line := range lines {
		if line.Quantity < 1 {
			return fmt.Errorf("line %d: %w", i, ErrInvalidQuantity)
		}
	}

	return nil
}

// aggregateLines returns product ids in first-seen order plus the total
// quantity requested per product. Totals are int64 so repeated lines cannot
// wrap around; a total above the locked stock never reaches ApplyPurchase.
func aggregateLines(lines []OrderLine) ([]int64, map[int64]int64) {
	totals := make(map[int64]int64, len(lines))
	ids := make([]int64, 0, len(lines))

	for _, line := range lines {
		if _, ok := totals[line.ProductID]; !ok {
			ids = append(ids, line.ProductID)
		}
		totals[line.ProductID] += int64(line.Quantity)
	}

	return ids, totals
}

func withoutTokens(tokens, removed []string) []string {
	if len(removed) == 0 {
		return tokens
	}

	drop := make(map[string]struct{}, len(removed))
	for _, t := range removed {
		drop[t] = struct{}{}
	}

	kept := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := drop[t]; !ok {
			kept = append(kept, t)
		}
	}
	return kept
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, repository.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, repository.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrTransactionFailure):
		return "transaction_failure"
	default:
		return "other"
	}
}
