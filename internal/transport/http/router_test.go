package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-shop-backend/internal/auth"
	"github.com/sakashimaa/go-shop-backend/internal/domain"
	"github.com/sakashimaa/go-shop-backend/internal/repository"
	"github.com/sakashimaa/go-shop-backend/internal/service"
	"github.com/sakashimaa/go-shop-backend/internal/transport/http/handler"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "router-test-secret"

type fakeOrderService struct {
	placeOrder   func(cmd service.PlaceOrderCommand) (int64, error)
	updateStatus func(orderID int64, raw string) (*domain.StatusChange, error)
	getOrder     func(orderID int64) (*domain.Order, error)
	lastCommand  service.PlaceOrderCommand
}

func (f *fakeOrderService) PlaceOrder(_ context.Context, cmd service.PlaceOrderCommand) (int64, error) {
	f.lastCommand = cmd
	return f.placeOrder(cmd)
}

func (f *fakeOrderService) UpdateStatus(_ context.Context, orderID int64, raw string) (*domain.StatusChange, error) {
	return f.updateStatus(orderID, raw)
}

func (f *fakeOrderService) GetOrder(_ context.Context, orderID int64) (*domain.Order, error) {
	if f.getOrder != nil {
		return f.getOrder(orderID)
	}
	return &domain.Order{ID: orderID, CustomerID: 7, Status: domain.OrderStatusShipped}, nil
}

func (f *fakeOrderService) ListCustomerOrders(context.Context, int64, int, int) ([]domain.Order, error) {
	return []domain.Order{}, nil
}

func (f *fakeOrderService) ListOrders(context.Context, int, int) ([]domain.Order, error) {
	return []domain.Order{}, nil
}

func (f *fakeOrderService) HandleUserRegistered(context.Context, *domain.UserRegisteredEvent) error {
	return nil
}

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error {
	return p.err
}

func newTestApp(t *testing.T, orders *fakeOrderService) *fiber.App {
	t.Helper()

	logger := zap.NewNop()
	app := NewApp(AppConfig{})

	RegisterRoutes(app, &Handlers{
		Order:        handler.NewOrderHandler(orders, logger),
		Notification: handler.NewNotificationHandler(nil, logger),
		Device:       handler.NewDeviceHandler(nil, logger),
		Health:       handler.NewHealthHandler(fakePinger{}),
	}, testSecret)

	return app
}

func bearer(t *testing.T, userID int64, role string) string {
	t.Helper()

	token, err := auth.GenerateToken(testSecret, userID, role, time.Minute)
	require.NoError(t, err)
	return "Bearer " + token
}

func doRequest(t *testing.T, app *fiber.App, method, path, body, authHeader string, headers ...string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}

	return resp.StatusCode, decoded
}

func TestCreateOrder_RequiresAuth(t *testing.T) {
	app := newTestApp(t, &fakeOrderService{})

	code, _ := doRequest(t, app, nethttp.MethodPost, "/api/orders", `{"lines":[{"product_id":1,"quantity":1}]}`, "")

	require.Equal(t, fiber.StatusUnauthorized, code)
}

func TestCreateOrder_Created(t *testing.T) {
	orders := &fakeOrderService{
		placeOrder: func(cmd service.PlaceOrderCommand) (int64, error) {
			return 42, nil
		},
	}
	app := newTestApp(t, orders)

	code, body := doRequest(t, app, nethttp.MethodPost, "/api/orders",
		`{"lines":[{"product_id":1,"quantity":3},{"product_id":2,"quantity":1}]}`,
		bearer(t, 7, domain.RoleClient),
		"Idempotency-Key", "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
	)

	require.Equal(t, fiber.StatusCreated, code)
	require.Equal(t, true, body["success"])
	require.EqualValues(t, 42, body["order_id"])

	require.Equal(t, int64(7), orders.lastCommand.CustomerID)
	require.Len(t, orders.lastCommand.Lines, 2)
	require.NotNil(t, orders.lastCommand.CheckoutKey)
}

func TestCreateOrder_ValidationErrors(t *testing.T) {
	app := newTestApp(t, &fakeOrderService{})
	token := bearer(t, 7, domain.RoleClient)

	code, _ := doRequest(t, app, nethttp.MethodPost, "/api/orders", `{"lines":[]}`, token)
	require.Equal(t, fiber.StatusBadRequest, code)

	code, body := doRequest(t, app, nethttp.MethodPost, "/api/orders", `{"lines":[{"product_id":1,"quantity":0}]}`, token)
	require.Equal(t, fiber.StatusBadRequest, code)
	require.NotNil(t, body["fields"])

	code, _ = doRequest(t, app, nethttp.MethodPost, "/api/orders", `{"lines":[{"product_id":1,"quantity":1}]}`, token,
		"Idempotency-Key", "not-a-uuid")
	require.Equal(t, fiber.StatusBadRequest, code)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	app := newTestApp(t, &fakeOrderService{
		placeOrder: func(service.PlaceOrderCommand) (int64, error) {
			return 0, &service.InsufficientStockError{ProductID: 3, Name: "Lamp", Available: 2, Requested: 5}
		},
	})

	code, body := doRequest(t, app, nethttp.MethodPost, "/api/orders",
		`{"lines":[{"product_id":3,"quantity":5}]}`, bearer(t, 7, domain.RoleClient))

	require.Equal(t, fiber.StatusBadRequest, code)
	require.Equal(t, false, body["success"])
	require.EqualValues(t, 2, body["available"])
}

func TestCreateOrder_InternalErrorIsHidden(t *testing.T) {
	app := newTestApp(t, &fakeOrderService{
		placeOrder: func(service.PlaceOrderCommand) (int64, error) {
			return 0, errors.Join(service.ErrTransactionFailure, errors.New("pq: connection refused"))
		},
	})

	code, body := doRequest(t, app, nethttp.MethodPost, "/api/orders",
		`{"lines":[{"product_id":3,"quantity":1}]}`, bearer(t, 7, domain.RoleClient))

	require.Equal(t, fiber.StatusInternalServerError, code)
	require.Equal(t, "internal error", body["error"])
}

func TestUpdateStatus_AdminOnly(t *testing.T) {
	app := newTestApp(t, &fakeOrderService{})

	code, _ := doRequest(t, app, nethttp.MethodPut, "/api/orders/5", `{"status":"shipped"}`, bearer(t, 7, domain.RoleClient))

	require.Equal(t, fiber.StatusForbidden, code)
}

func TestUpdateStatus(t *testing.T) {
	tests := []struct {
		name     string
		result   func(int64, string) (*domain.StatusChange, error)
		wantCode int
	}{
		{
			name: "ok",
			result: func(id int64, _ string) (*domain.StatusChange, error) {
				return &domain.StatusChange{OrderID: id, CustomerID: 7, Previous: domain.OrderStatusConfirmed, Current: domain.OrderStatusShipped}, nil
			},
			wantCode: fiber.StatusOK,
		},
		{
			name: "invalid status",
			result: func(_ int64, raw string) (*domain.StatusChange, error) {
				return nil, &service.InvalidStatusError{Value: raw, Allowed: domain.AllowedStatusLiterals()}
			},
			wantCode: fiber.StatusBadRequest,
		},
		{
			name: "not found",
			result: func(int64, string) (*domain.StatusChange, error) {
				return nil, repository.ErrOrderNotFound
			},
			wantCode: fiber.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, &fakeOrderService{updateStatus: tt.result})

			code, body := doRequest(t, app, nethttp.MethodPut, "/api/orders/5", `{"status":"expediee"}`, bearer(t, 1, domain.RoleAdmin))

			require.Equal(t, tt.wantCode, code)
			if tt.wantCode == fiber.StatusOK {
				require.Equal(t, true, body["success"])
				require.NotNil(t, body["order"])
				notification, ok := body["notification"].(map[string]any)
				require.True(t, ok)
				require.EqualValues(t, 7, notification["recipient_id"])
			}
		})
	}
}

func TestUpdateStatus_CommittedChangeSurvivesFailedReread(t *testing.T) {
	committed := false
	app := newTestApp(t, &fakeOrderService{
		updateStatus: func(id int64, _ string) (*domain.StatusChange, error) {
			committed = true
			return &domain.StatusChange{OrderID: id, CustomerID: 7, Previous: domain.OrderStatusConfirmed, Current: domain.OrderStatusShipped}, nil
		},
		getOrder: func(int64) (*domain.Order, error) {
			return nil, errors.New("connection reset")
		},
	})

	code, body := doRequest(t, app, nethttp.MethodPut, "/api/orders/5", `{"status":"shipped"}`, bearer(t, 1, domain.RoleAdmin))

	require.True(t, committed)
	require.Equal(t, fiber.StatusOK, code)
	require.Equal(t, true, body["success"])

	order, ok := body["order"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 5, order["id"])
	require.Equal(t, string(domain.OrderStatusShipped), order["status"])
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, &fakeOrderService{})

	code, body := doRequest(t, app, nethttp.MethodGet, "/health", "", "")

	require.Equal(t, fiber.StatusOK, code)
	require.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, &fakeOrderService{})

	resp, err := app.Test(httptest.NewRequest(nethttp.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Contains(t, string(raw), "go_goroutines")
}
