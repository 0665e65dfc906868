package order_api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ms-pettag/internal/apperrors"
	"ms-pettag/internal/auth"
	"ms-pettag/internal/logger"
	"ms-pettag/internal/models"
	"ms-pettag/internal/sse"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, userID string, req models.CreateOrderRequest) (*models.Order, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, orderID, userID string) (*models.OrderView, error) {
	args := m.Called(ctx, orderID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrderView), args.Error(1)
}

func (m *MockOrderService) ListOrdersForUser(ctx context.Context, userID string) ([]models.OrderView, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OrderView), args.Error(1)
}

func (m *MockOrderService) CancelOrder(ctx context.Context, orderID, userID string) (*models.Order, error) {
	args := m.Called(ctx, orderID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderService) UpdateShipping(ctx context.Context, orderID, userID string, patch models.ShippingUpdate) (*models.Order, error) {
	args := m.Called(ctx, orderID, userID, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderService) Invoice(ctx context.Context, orderID, userID string) (*models.Invoice, error) {
	args := m.Called(ctx, orderID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockOrderService) TagSheet(ctx context.Context, orderID, userID string) ([]byte, error) {
	args := m.Called(ctx, orderID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) HandleSynchronousConfirmation(ctx context.Context, orderID, ref string) (*models.SyncConfirmResult, error) {
	args := m.Called(ctx, orderID, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SyncConfirmResult), args.Error(1)
}

func (m *MockPaymentService) ChargeOrder(ctx context.Context, orderID, userID string, req models.ChargeRequest, ip string) (*models.SyncConfirmResult, error) {
	args := m.Called(ctx, orderID, userID, req, ip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SyncConfirmResult), args.Error(1)
}

func asUser(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithIdentity(r.Context(), models.Identity{UserID: userID, Role: models.RoleUser})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newTestRouter(h *Handler, s *SSEHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(asUser("user-1"))
	r.Post("/api/orders", h.CreateOrder)
	r.Get("/api/orders", h.ListOrders)
	r.Get("/api/orders/{orderId}", h.GetOrder)
	r.Get("/api/orders/{orderId}/invoice", h.GetInvoice)
	r.Get("/api/orders/{orderId}/tags.pdf", h.GetTagSheet)
	r.Patch("/api/orders/{orderId}/shipping", h.UpdateShipping)
	r.Post("/api/orders/{orderId}/pay", h.PayOrder)
	r.Post("/api/orders/{orderId}/confirm", h.ConfirmOrder)
	r.Post("/api/orders/{orderId}/cancel", h.CancelOrder)
	if s != nil {
		r.Get("/api/orders/{orderId}/events", s.HandleOrderEvents)
	}
	return r
}

func request(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestCreateOrder(t *testing.T) {
	orders := new(MockOrderService)
	h := NewHandler(orders, new(MockPaymentService), logger.NewNop())
	created := &models.Order{ID: "order-1", Quantity: 2, TotalAmount: 30000, Status: models.OrderStatusPending}
	orders.On("CreateOrder", mock.Anything, "user-1", mock.MatchedBy(func(r models.CreateOrderRequest) bool {
		return r.Quantity == 2 && r.Customer.Email == "ana@example.com"
	})).Return(created, nil)

	rec := request(t, newTestRouter(h, nil), http.MethodPost, "/api/orders",
		`{"quantity":2,"customer":{"name":"Ana","email":"ana@example.com","phone":"3001234567"},"shipping":{"address":"a","city":"c","state":"s","country":"CO"}}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	env := decode(t, rec)
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), `"totalAmount":30000`)
}

func TestCreateOrder_BadJSON(t *testing.T) {
	h := NewHandler(new(MockOrderService), new(MockPaymentService), logger.NewNop())

	rec := request(t, newTestRouter(h, nil), http.MethodPost, "/api/orders", `{"quantity":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ValidationError", decode(t, rec).Error)
}

func TestCreateOrder_ValidationErrorMapped(t *testing.T) {
	orders := new(MockOrderService)
	h := NewHandler(orders, new(MockPaymentService), logger.NewNop())
	orders.On("CreateOrder", mock.Anything, "user-1", mock.Anything).
		Return(nil, apperrors.Validation("quantity must be between 1 and 10"))

	rec := request(t, newTestRouter(h, nil), http.MethodPost, "/api/orders", `{"quantity":11}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "quantity must be between 1 and 10", env.Message)
}

func TestGetOrder_ErrorKinds(t *testing.T) {
	orders := new(MockOrderService)
	h := NewHandler(orders, new(MockPaymentService), logger.NewNop())
	orders.On("GetOrder", mock.Anything, "missing", "user-1").Return(nil, apperrors.NotFound("order not found"))
	orders.On("GetOrder", mock.Anything, "foreign", "user-1").Return(nil, apperrors.Authorization("no access"))
	router := newTestRouter(h, nil)

	assert.Equal(t, http.StatusNotFound, request(t, router, http.MethodGet, "/api/orders/missing", "").Code)
	assert.Equal(t, http.StatusForbidden, request(t, router, http.MethodGet, "/api/orders/foreign", "").Code)
}

func TestCancelOrder(t *testing.T) {
	orders := new(MockOrderService)
	h := NewHandler(orders, new(MockPaymentService), logger.NewNop())
	orders.On("CancelOrder", mock.Anything, "order-1", "user-1").
		Return(&models.Order{ID: "order-1", Status: models.OrderStatusFailed}, nil)

	rec := request(t, newTestRouter(h, nil), http.MethodPost, "/api/orders/order-1/cancel", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	orders.AssertExpectations(t)
}

func TestGetTagSheet(t *testing.T) {
	orders := new(MockOrderService)
	h := NewHandler(orders, new(MockPaymentService), logger.NewNop())
	orders.On("TagSheet", mock.Anything, "order-1", "user-1").Return([]byte("%PDF-1.4 sheet"), nil)
	orders.On("TagSheet", mock.Anything, "pending", "user-1").Return(nil, apperrors.Validation("order pending is pending"))
	router := newTestRouter(h, nil)

	rec := request(t, router, http.MethodGet, "/api/orders/order-1/tags.pdf", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "pettags-order-1.pdf")
	assert.Equal(t, "%PDF-1.4 sheet", rec.Body.String())

	rec = request(t, router, http.MethodGet, "/api/orders/pending/tags.pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ValidationError", decode(t, rec).Error)
}

func TestUpdateShipping(t *testing.T) {
	orders := new(MockOrderService)
	h := NewHandler(orders, new(MockPaymentService), logger.NewNop())
	orders.On("UpdateShipping", mock.Anything, "order-1", "user-1", mock.MatchedBy(func(p models.ShippingUpdate) bool {
		return p.City != nil && *p.City == "Cali" && p.Address == nil
	})).Return(&models.Order{ID: "order-1"}, nil)

	rec := request(t, newTestRouter(h, nil), http.MethodPatch, "/api/orders/order-1/shipping", `{"city":"Cali"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	orders.AssertExpectations(t)
}

func TestPayOrder(t *testing.T) {
	payments := new(MockPaymentService)
	h := NewHandler(new(MockOrderService), payments, logger.NewNop())
	payments.On("ChargeOrder", mock.Anything, "order-1", "user-1", models.ChargeRequest{Token: "tok", Dues: 1}, "192.0.2.1").
		Return(&models.SyncConfirmResult{Success: true, Outcome: models.OutcomeApproved, Message: "payment confirmed and order completed"}, nil)

	rec := request(t, newTestRouter(h, nil), http.MethodPost, "/api/orders/order-1/pay", `{"token":"tok","dues":1}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	payments.AssertExpectations(t)
}

func TestConfirmOrder_ChecksOwnershipFirst(t *testing.T) {
	orders := new(MockOrderService)
	payments := new(MockPaymentService)
	h := NewHandler(orders, payments, logger.NewNop())
	orders.On("GetOrder", mock.Anything, "order-1", "user-1").Return(nil, apperrors.Authorization("no access"))

	rec := request(t, newTestRouter(h, nil), http.MethodPost, "/api/orders/order-1/confirm", `{"ref":"R1"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	payments.AssertNotCalled(t, "HandleSynchronousConfirmation", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmOrder_GatewayTimeoutIs503(t *testing.T) {
	orders := new(MockOrderService)
	payments := new(MockPaymentService)
	h := NewHandler(orders, payments, logger.NewNop())
	orders.On("GetOrder", mock.Anything, "order-1", "user-1").Return(&models.OrderView{Order: &models.Order{ID: "order-1"}}, nil)
	payments.On("HandleSynchronousConfirmation", mock.Anything, "order-1", "R1").
		Return(nil, apperrors.Gateway(context.DeadlineExceeded, "payment gateway unavailable, try again"))

	rec := request(t, newTestRouter(h, nil), http.MethodPost, "/api/orders/order-1/confirm", `{"ref":"R1"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "GatewayError", decode(t, rec).Error)
}

func TestConfirmOrder_RefFromQuery(t *testing.T) {
	orders := new(MockOrderService)
	payments := new(MockPaymentService)
	h := NewHandler(orders, payments, logger.NewNop())
	orders.On("GetOrder", mock.Anything, "order-1", "user-1").Return(&models.OrderView{Order: &models.Order{ID: "order-1"}}, nil)
	payments.On("HandleSynchronousConfirmation", mock.Anything, "order-1", "R7").
		Return(&models.SyncConfirmResult{Success: true, Message: "payment already processed"}, nil)

	rec := request(t, newTestRouter(h, nil), http.MethodPost, "/api/orders/order-1/confirm?ref_payco=R7", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	payments.AssertExpectations(t)
}

func TestOrderEvents_StreamsUntilTerminal(t *testing.T) {
	orders := new(MockOrderService)
	hub := sse.NewOrderEventEmitter()
	h := NewHandler(orders, new(MockPaymentService), logger.NewNop())
	s := NewSSEHandler(orders, hub, logger.NewNop())
	orders.On("GetOrder", mock.Anything, "order-1", "user-1").
		Return(&models.OrderView{Order: &models.Order{ID: "order-1", Status: models.OrderStatusPending}}, nil)

	srv := httptest.NewServer(newTestRouter(h, s))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/orders/order-1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	reader := bufio.NewReader(resp.Body)
	first := readEvent(t, reader)
	assert.Contains(t, first, `"status":"pending"`)

	require.Eventually(t, func() bool { return hub.ClientCount("order-1") == 1 }, time.Second, 10*time.Millisecond)
	hub.NotifyOrder(&models.Order{ID: "order-1", Status: models.OrderStatusCompleted, QRCodes: []string{"a"}})

	second := readEvent(t, reader)
	assert.Contains(t, second, `"status":"completed"`)
}

func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var sb strings.Builder
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if line == "\n" {
			return sb.String()
		}
		sb.WriteString(line)
	}
}

func TestRoutes_RequireToken(t *testing.T) {
	h := NewHandler(new(MockOrderService), new(MockPaymentService), logger.NewNop())
	s := NewSSEHandler(new(MockOrderService), sse.NewOrderEventEmitter(), logger.NewNop())
	router := Routes(h, s, auth.NewHMACVerifier("k"), logger.NewNop())

	rec := request(t, router, http.MethodGet, "/", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoutes_SignedCaller(t *testing.T) {
	orders := new(MockOrderService)
	h := NewHandler(orders, new(MockPaymentService), logger.NewNop())
	s := NewSSEHandler(orders, sse.NewOrderEventEmitter(), logger.NewNop())
	router := Routes(h, s, auth.NewHMACVerifier("k"), logger.NewNop())
	orders.On("ListOrdersForUser", mock.Anything, "user-9").Return([]models.OrderView{}, nil)

	tok, err := auth.SignHMAC("k", models.Identity{UserID: "user-9", Role: models.RoleUser}, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	orders.AssertExpectations(t)
}
