package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/go-shop-backend/internal/domain"
	"github.com/sakashimaa/go-shop-backend/internal/push"
	"github.com/sakashimaa/go-shop-backend/internal/repository"
	"github.com/sakashimaa/go-shop-backend/pkg/outbox"
	"github.com/stretchr/testify/mock"
)

// fakeTx records how a transaction ended. Every other pgx.Tx method panics.
type fakeTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

type fakeDB struct {
	tx       *fakeTx
	beginErr error
}

func (d *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return d.BeginTx(ctx, pgx.TxOptions{})
}

func (d *fakeDB) BeginTx(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	return d.tx, nil
}

type mockProducts struct {
	mock.Mock
}

func (m *mockProducts) Create(ctx context.Context, product *domain.Product) (int64, error) {
	args := m.Called(ctx, product)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockProducts) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*domain.Product)
	return p, args.Error(1)
}

func (m *mockProducts) LockForOrder(ctx context.Context, tx pgx.Tx, ids []int64) (map[int64]*domain.Product, error) {
	args := m.Called(ctx, tx, ids)
	res, _ := args.Get(0).(map[int64]*domain.Product)
	return res, args.Error(1)
}

func (m *mockProducts) ApplyPurchase(ctx context.Context, tx pgx.Tx, id int64, quantity int32) (*domain.StockLevel, error) {
	args := m.Called(ctx, tx, id, quantity)
	level, _ := args.Get(0).(*domain.StockLevel)
	return level, args.Error(1)
}

func (m *mockProducts) ListLowStock(ctx context.Context) ([]domain.Product, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]domain.Product)
	return res, args.Error(1)
}

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	return m.Called(ctx, tx, order).Error(0)
}

func (m *mockOrders) FindIDByCheckoutKey(ctx context.Context, key uuid.UUID) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockOrders) UpdateStatus(ctx context.Context, tx pgx.Tx, orderID int64, status domain.OrderStatus) (*domain.StatusChange, error) {
	args := m.Called(ctx, tx, orderID, status)
	change, _ := args.Get(0).(*domain.StatusChange)
	return change, args.Error(1)
}

func (m *mockOrders) GetByID(ctx context.Context, orderID int64) (*domain.Order, error) {
	args := m.Called(ctx, orderID)
	order, _ := args.Get(0).(*domain.Order)
	return order, args.Error(1)
}

func (m *mockOrders) ListByCustomer(ctx context.Context, customerID int64, limit, offset int) ([]domain.Order, error) {
	args := m.Called(ctx, customerID, limit, offset)
	res, _ := args.Get(0).([]domain.Order)
	return res, args.Error(1)
}

func (m *mockOrders) List(ctx context.Context, limit, offset int) ([]domain.Order, error) {
	args := m.Called(ctx, limit, offset)
	res, _ := args.Get(0).([]domain.Order)
	return res, args.Error(1)
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) SaveUser(ctx context.Context, q repository.Querier, user *domain.User) error {
	return m.Called(ctx, q, user).Error(0)
}

func (m *mockUsers) IncrementOrderCount(ctx context.Context, tx pgx.Tx, userID int64) error {
	return m.Called(ctx, tx, userID).Error(0)
}

type mockOutbox struct {
	mock.Mock
}

func (m *mockOutbox) SaveEvent(ctx context.Context, tx pgx.Tx, event *outbox.Event) error {
	return m.Called(ctx, tx, event).Error(0)
}

func (m *mockOutbox) GetUnpublishedEvents(ctx context.Context, tx pgx.Tx, batchSize int) ([]*outbox.Event, error) {
	args := m.Called(ctx, tx, batchSize)
	res, _ := args.Get(0).([]*outbox.Event)
	return res, args.Error(1)
}

func (m *mockOutbox) MarkEventPublished(ctx context.Context, tx pgx.Tx, eventID int64) error {
	return m.Called(ctx, tx, eventID).Error(0)
}

func (m *mockOutbox) MarkEventFailed(ctx context.Context, tx pgx.Tx, eventID int64, errMsg string) error {
	return m.Called(ctx, tx, eventID, errMsg).Error(0)
}

type mockTokens struct {
	mock.Mock
}

func (m *mockTokens) TokensByUser(ctx context.Context, userID int64) ([]string, error) {
	args := m.Called(ctx, userID)
	res, _ := args.Get(0).([]string)
	return res, args.Error(1)
}

func (m *mockTokens) TokensByRole(ctx context.Context, role string) ([]string, error) {
	args := m.Called(ctx, role)
	res, _ := args.Get(0).([]string)
	return res, args.Error(1)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordNewOrder(ctx context.Context, order *domain.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *mockRecorder) RecordLowStock(ctx context.Context, level domain.StockLevel) (bool, error) {
	args := m.Called(ctx, level)
	return args.Bool(0), args.Error(1)
}

func (m *mockRecorder) RecordStatusChange(ctx context.Context, change *domain.StatusChange) error {
	return m.Called(ctx, change).Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Dispatch(ctx context.Context, tokens []string, msg push.Message) push.Result {
	return m.Called(ctx, tokens, msg).Get(0).(push.Result)
}

type mockNotificationRepo struct {
	mock.Mock
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *mockNotificationRepo) CreateLowStockUnlessRecent(ctx context.Context, n *domain.Notification, productID int64, since time.Time) (bool, error) {
	args := m.Called(ctx, n, productID, since)
	return args.Bool(0), args.Error(1)
}

func (m *mockNotificationRepo) List(ctx context.Context, filter domain.NotificationFilter) ([]domain.Notification, int64, error) {
	args := m.Called(ctx, filter)
	res, _ := args.Get(0).([]domain.Notification)
	return res, args.Get(1).(int64), args.Error(2)
}

func (m *mockNotificationRepo) CountUnread(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id int64) (*domain.Notification, error) {
	args := m.Called(ctx, id)
	n, _ := args.Get(0).(*domain.Notification)
	return n, args.Error(1)
}

func (m *mockNotificationRepo) MarkAllRead(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockNotificationRepo) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockNotificationRepo) Stats(ctx context.Context) (*domain.NotificationStats, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*domain.NotificationStats)
	return s, args.Error(1)
}
