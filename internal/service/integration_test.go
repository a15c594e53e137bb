package service_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/go-shop-backend/internal/domain"
	"github.com/sakashimaa/go-shop-backend/internal/effects"
	"github.com/sakashimaa/go-shop-backend/internal/push"
	"github.com/sakashimaa/go-shop-backend/internal/repository"
	"github.com/sakashimaa/go-shop-backend/internal/service"
	"github.com/sakashimaa/go-shop-backend/pkg/outbox"
	"github.com/sakashimaa/go-shop-backend/pkg/testsuite"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

// scriptedTransport reports every token listed in invalid as permanently dead.
type scriptedTransport struct {
	mu      sync.Mutex
	invalid map[string]bool
	sent    [][]string
}

func (t *scriptedTransport) SendBatch(_ context.Context, tokens []string, _ push.Message) (*push.BatchResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sent = append(t.sent, tokens)

	res := &push.BatchResult{Responses: make([]push.TokenResult, 0, len(tokens))}
	for _, token := range tokens {
		if t.invalid[token] {
			res.FailureCount++
			res.Responses = append(res.Responses, push.TokenResult{
				Token:  token,
				Reason: push.ReasonInvalidToken,
				Err:    errors.New("registration-token-not-registered"),
			})
			continue
		}
		res.SuccessCount++
		res.Responses = append(res.Responses, push.TokenResult{Token: token, Success: true})
	}
	return res, nil
}

type IntegrationTestSuite struct {
	testsuite.BaseSuite

	OrderService        service.OrderService
	NotificationService service.NotificationService
	DeviceService       service.DeviceService
	Products            repository.ProductRepository
	Devices             repository.DeviceRepository
	Transport           *scriptedTransport
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure(testsuite.Options{
		MigrationsRelPath: "../../migrations",
		WithRedis:         true,
	})
}

func (s *IntegrationTestSuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *IntegrationTestSuite) SetupTest() {
	s.TruncateTables("order_items", "orders", "notifications", "user_devices", "products", "users", "outbox", "processed_events")
	s.Require().NoError(s.Redis.FlushDB(s.Ctx).Err())

	logger := zap.NewNop()

	s.Products = repository.NewProductRepository(s.DbPool, logger)
	s.Devices = repository.NewDeviceRepository(s.DbPool, logger)
	s.Transport = &scriptedTransport{invalid: map[string]bool{}}

	s.NotificationService = service.NewNotificationService(
		repository.NewNotificationRepository(s.DbPool, logger),
		s.Products,
		logger,
	)
	s.DeviceService = service.NewDeviceService(s.DbPool, s.Devices, logger)

	s.OrderService = service.NewCachedOrderService(
		service.NewOrderService(service.OrderServiceDeps{
			DB:            s.DbPool,
			Products:      s.Products,
			Orders:        repository.NewOrderRepository(s.DbPool, logger),
			Users:         repository.NewUserRepository(logger),
			Outbox:        outbox.NewRepository(),
			Tokens:        s.Devices,
			Notifications: s.NotificationService,
			Notifier:      push.NewDispatcher(s.Transport, s.Devices, logger),
			Effects:       effects.NewRunner(logger, 10*time.Second, effects.Synchronous()),
		}, logger),
		s.Redis,
		time.Minute,
		logger,
	)
}

func (s *IntegrationTestSuite) seedUser(id int64, email, role string) {
	err := s.OrderService.HandleUserRegistered(s.Ctx, &domain.UserRegisteredEvent{
		EventID: id * 1000,
		UserID:  id,
		Email:   email,
		Role:    role,
	})
	s.Require().NoError(err)
}

func (s *IntegrationTestSuite) seedProduct(name string, quantity, threshold int32) int64 {
	id, err := s.Products.Create(s.Ctx, &domain.Product{
		Name:              name,
		Price:             1000,
		Quantity:          quantity,
		LowStockThreshold: threshold,
	})
	s.Require().NoError(err)
	return id
}

func (s *IntegrationTestSuite) seedDevice(token string, userID int64) {
	_, err := s.DeviceService.Register(s.Ctx, service.RegisterDeviceCommand{
		Token:  token,
		Type:   domain.DeviceAndroid,
		UserID: &userID,
	})
	s.Require().NoError(err)
}

func (s *IntegrationTestSuite) count(query string, args ...any) int {
	var n int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, query, args...).Scan(&n))
	return n
}

func (s *IntegrationTestSuite) TestPlaceOrder_LowStockScenario() {
	s.seedUser(1, "client@shop.test", domain.RoleClient)
	s.seedUser(2, "admin@shop.test", domain.RoleAdmin)
	s.seedDevice("admin-phone", 2)
	productID := s.seedProduct("Mechanical keyboard", 12, 10)

	orderID, err := s.OrderService.PlaceOrder(s.Ctx, service.PlaceOrderCommand{
		CustomerID: 1,
		Lines:      []service.OrderLine{{ProductID: productID, Quantity: 3}},
	})
	s.Require().NoError(err)
	s.Require().NotZero(orderID)

	product, err := s.Products.GetByID(s.Ctx, productID)
	s.Require().NoError(err)
	s.Require().Equal(int32(9), product.Quantity)
	s.Require().Equal(int32(3), product.PurchasedCount)

	s.Require().Equal(1, s.count(`SELECT order_count FROM users WHERE id = 1`))
	s.Require().Equal(1, s.count(`SELECT COUNT(*) FROM order_items WHERE order_id = $1`, orderID))
	s.Require().Equal(1, s.count(`SELECT COUNT(*) FROM outbox WHERE aggregate_id = $1 AND event_type = 'OrderPlaced'`, strconv.FormatInt(orderID, 10)))
	s.Require().Equal(1, s.count(`SELECT COUNT(*) FROM notifications WHERE type = 'new_order'`))
	s.Require().Equal(1, s.count(`SELECT COUNT(*) FROM notifications WHERE type = 'low_stock' AND priority = 'high'`))

	s.Require().Len(s.Transport.sent, 2, "one new order push and one low stock push")

	order, err := s.OrderService.GetOrder(s.Ctx, orderID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusPending, order.Status)
	s.Require().Len(order.Items, 1)
	s.Require().Equal("Mechanical keyboard", order.Items[0].ProductName)
}

func (s *IntegrationTestSuite) TestPlaceOrder_LowStockRecordedOncePerDay() {
	s.seedUser(1, "client@shop.test", domain.RoleClient)
	productID := s.seedProduct("Cable", 8, 10)

	for i := 0; i < 3; i++ {
		_, err := s.OrderService.PlaceOrder(s.Ctx, service.PlaceOrderCommand{
			CustomerID: 1,
			Lines:      []service.OrderLine{{ProductID: productID, Quantity: 1}},
		})
		s.Require().NoError(err)
	}

	s.Require().Equal(1, s.count(`SELECT COUNT(*) FROM notifications WHERE type = 'low_stock'`))

	created, err := s.NotificationService.SweepLowStock(s.Ctx)
	s.Require().NoError(err)
	s.Require().Zero(created)
}

func (s *IntegrationTestSuite) TestRecordLowStock_ConcurrentWritersRecordOnce() {
	productID := s.seedProduct("Adapter", 2, 10)

	const writers = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ok, err := s.NotificationService.RecordLowStock(context.Background(), domain.StockLevel{
				ProductID:         productID,
				Name:              "Adapter",
				Quantity:          2,
				LowStockThreshold: 10,
			})
			s.NoError(err)

			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Require().Equal(1, created)
	s.Require().Equal(1, s.count(`SELECT COUNT(*) FROM notifications WHERE type = 'low_stock'`))
}

func (s *IntegrationTestSuite) TestPlaceOrder_AllOrNothing() {
	s.seedUser(1, "client@shop.test", domain.RoleClient)
	plenty := s.seedProduct("Mouse", 50, 10)
	scarce := s.seedProduct("Monitor", 1, 10)

	_, err := s.OrderService.PlaceOrder(s.Ctx, service.PlaceOrderCommand{
		CustomerID: 1,
		Lines: []service.OrderLine{
			{ProductID: plenty, Quantity: 2},
			{ProductID: scarce, Quantity: 2},
		},
	})
	s.Require().ErrorIs(err, repository.ErrInsufficientStock)

	var stockErr *service.InsufficientStockError
	s.Require().True(errors.As(err, &stockErr))
	s.Require().Equal(scarce, stockErr.ProductID)

	s.Require().Zero(s.count(`SELECT COUNT(*) FROM orders`))
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM order_items`))
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM outbox`))
	s.Require().Zero(s.count(`SELECT order_count FROM users WHERE id = 1`))
	s.Require().Equal(50, s.count(`SELECT quantity FROM products WHERE id = $1`, plenty))
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM notifications`))
}

func (s *IntegrationTestSuite) TestPlaceOrder_UnknownProduct() {
	s.seedUser(1, "client@shop.test", domain.RoleClient)

	_, err := s.OrderService.PlaceOrder(s.Ctx, service.PlaceOrderCommand{
		CustomerID: 1,
		Lines:      []service.OrderLine{{ProductID: 424242, Quantity: 1}},
	})

	s.Require().ErrorIs(err, repository.ErrProductNotFound)
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM orders`))
}

func (s *IntegrationTestSuite) TestPlaceOrder_ConcurrentOrdersNeverOversell() {
	s.seedUser(1, "client@shop.test", domain.RoleClient)
	productID := s.seedProduct("Limited edition", 5, 1)

	const buyers = 12

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := s.OrderService.PlaceOrder(context.Background(), service.PlaceOrderCommand{
				CustomerID: 1,
				Lines:      []service.OrderLine{{ProductID: productID, Quantity: 1}},
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, repository.ErrInsufficientStock):
				rejected++
			}
		}()
	}
	wg.Wait()

	s.Require().Equal(5, succeeded)
	s.Require().Equal(buyers-5, rejected)
	s.Require().Zero(s.count(`SELECT quantity FROM products WHERE id = $1`, productID))
	s.Require().Equal(5, s.count(`SELECT purchased_count FROM products WHERE id = $1`, productID))
	s.Require().Equal(5, s.count(`SELECT order_count FROM users WHERE id = 1`))
}

func (s *IntegrationTestSuite) TestPlaceOrder_CheckoutKeyIsIdempotent() {
	s.seedUser(1, "client@shop.test", domain.RoleClient)
	productID := s.seedProduct("Desk", 10, 2)
	key := uuid.New()

	cmd := service.PlaceOrderCommand{
		CustomerID:  1,
		CheckoutKey: &key,
		Lines:       []service.OrderLine{{ProductID: productID, Quantity: 1}},
	}

	first, err := s.OrderService.PlaceOrder(s.Ctx, cmd)
	s.Require().NoError(err)

	second, err := s.OrderService.PlaceOrder(s.Ctx, cmd)
	s.Require().NoError(err)

	s.Require().Equal(first, second)
	s.Require().Equal(1, s.count(`SELECT COUNT(*) FROM orders`))
	s.Require().Equal(9, s.count(`SELECT quantity FROM products WHERE id = $1`, productID))
}

func (s *IntegrationTestSuite) TestUpdateStatus_StoresCanonicalValueAndNotifiesCustomer() {
	s.seedUser(1, "client@shop.test", domain.RoleClient)
	s.seedDevice("client-phone", 1)
	productID := s.seedProduct("Chair", 30, 5)

	orderID, err := s.OrderService.PlaceOrder(s.Ctx, service.PlaceOrderCommand{
		CustomerID: 1,
		Lines:      []service.OrderLine{{ProductID: productID, Quantity: 1}},
	})
	s.Require().NoError(err)

	// warm the cache so the update has something to invalidate
	cached, err := s.OrderService.GetOrder(s.Ctx, orderID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusPending, cached.Status)

	change, err := s.OrderService.UpdateStatus(s.Ctx, orderID, "expédiée")
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusPending, change.Previous)
	s.Require().Equal(domain.OrderStatusShipped, change.Current)

	var stored string
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&stored))
	s.Require().Equal("shipped", stored)

	order, err := s.OrderService.GetOrder(s.Ctx, orderID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusShipped, order.Status)

	s.Require().Equal(1, s.count(`SELECT COUNT(*) FROM notifications WHERE type = 'order_status' AND recipient_id = 1`))
	s.Require().Equal(1, s.count(`SELECT COUNT(*) FROM outbox WHERE event_type = 'OrderStatusChanged'`))
	s.Require().Contains(s.Transport.sent, []string{"client-phone"})
}

func (s *IntegrationTestSuite) TestUpdateStatus_Errors() {
	_, err := s.OrderService.UpdateStatus(s.Ctx, 1, "lost")
	s.Require().ErrorIs(err, service.ErrInvalidStatus)

	_, err = s.OrderService.UpdateStatus(s.Ctx, 999, "delivered")
	s.Require().ErrorIs(err, repository.ErrOrderNotFound)
}

func (s *IntegrationTestSuite) TestDispatch_PrunesOnlyInvalidTokens() {
	s.seedUser(2, "admin@shop.test", domain.RoleAdmin)
	s.seedUser(3, "ops@shop.test", domain.RoleAdmin)
	s.seedUser(1, "client@shop.test", domain.RoleClient)
	s.seedDevice("dead-token", 2)
	s.seedDevice("live-token", 3)
	s.Transport.invalid["dead-token"] = true

	productID := s.seedProduct("Lamp", 100, 5)

	_, err := s.OrderService.PlaceOrder(s.Ctx, service.PlaceOrderCommand{
		CustomerID: 1,
		Lines:      []service.OrderLine{{ProductID: productID, Quantity: 1}},
	})
	s.Require().NoError(err)

	s.Require().Zero(s.count(`SELECT COUNT(*) FROM user_devices WHERE token = 'dead-token'`))
	s.Require().Equal(1, s.count(`SELECT COUNT(*) FROM user_devices WHERE token = 'live-token'`))
}

func (s *IntegrationTestSuite) TestHandleUserRegistered_IsDeduplicated() {
	event := &domain.UserRegisteredEvent{EventID: 77, UserID: 5, Email: "first@shop.test", Role: domain.RoleClient}
	s.Require().NoError(s.OrderService.HandleUserRegistered(s.Ctx, event))

	replay := *event
	replay.Email = "changed@shop.test"
	s.Require().NoError(s.OrderService.HandleUserRegistered(s.Ctx, &replay))

	var email string
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT email FROM users WHERE id = 5`).Scan(&email))
	s.Require().Equal("first@shop.test", email)
}

func (s *IntegrationTestSuite) TestDeviceAssign() {
	s.seedUser(1, "client@shop.test", domain.RoleClient)
	tempID := "guest-42"

	_, err := s.DeviceService.Register(s.Ctx, service.RegisterDeviceCommand{Token: "anon-token", TempID: &tempID})
	s.Require().NoError(err)

	device, err := s.DeviceService.Assign(s.Ctx, "anon-token", 1)
	s.Require().NoError(err)
	s.Require().NotNil(device.UserID)
	s.Require().Equal(int64(1), *device.UserID)
	s.Require().Nil(device.TempID)

	_, err = s.DeviceService.Assign(s.Ctx, "missing-token", 1)
	s.Require().ErrorIs(err, repository.ErrDeviceNotFound)
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}
