package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"github.com/xiaoxuxiansheng/ordertcc"
	"github.com/xiaoxuxiansheng/ordertcc/example"
	expdao "github.com/xiaoxuxiansheng/ordertcc/example/dao"
	"github.com/xiaoxuxiansheng/ordertcc/example/pkg"
	"github.com/xiaoxuxiansheng/ordertcc/idempotent"
	"github.com/xiaoxuxiansheng/ordertcc/lock"
	"github.com/xiaoxuxiansheng/ordertcc/metrics"
	"github.com/xiaoxuxiansheng/ordertcc/txlog"
)

type mockCoordinator struct {
	err error
}

func (m *mockCoordinator) TryOrder(ctx context.Context, req *ordertcc.TryOrderReq) (*ordertcc.TCCResp, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &ordertcc.TCCResp{OrderID: req.OrderID, ACK: true, Outcome: txlog.TryOutcomeSuccess}, nil
}

func (m *mockCoordinator) ConfirmOrder(ctx context.Context, req *ordertcc.TCCReq) (*ordertcc.TCCResp, error) {
	return nil, m.err
}

func (m *mockCoordinator) CancelOrder(ctx context.Context, req *ordertcc.TCCReq) (*ordertcc.TCCResp, error) {
	return nil, m.err
}

func (m *mockCoordinator) TXLog(ctx context.Context, orderID, scene string) (*txlog.Entry, error) {
	return nil, m.err
}

type response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func do(r http.Handler, method, path string, body interface{}, header map[string]string) (int, *response) {
	var reader *bytes.Reader
	if raw, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(raw))
	} else {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w.Code, &resp
}

func newRouter(s *Server, limiter *rate.Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	Setup(r, s, limiter, prometheus.NewRegistry())
	return r
}

func Test_statusOf(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalidOrder", err: fmt.Errorf("%w: empty order id", ordertcc.ErrInvalidOrder), status: http.StatusBadRequest},
		{name: "invalidScene", err: ordertcc.ErrInvalidScene, status: http.StatusBadRequest},
		{name: "invalidGoods", err: example.ErrInvalidGoods, status: http.StatusBadRequest},
		{name: "orderNotFound", err: ordertcc.ErrOrderNotFound, status: http.StatusNotFound},
		{name: "txLogNotFound", err: txlog.ErrEntryNotFound, status: http.StatusNotFound},
		{name: "lockContention", err: fmt.Errorf("%w: key", lock.ErrLockContention), status: http.StatusConflict},
		{name: "duplicate", err: idempotent.ErrDuplicateRequest, status: http.StatusConflict},
		{name: "protocolViolation", err: ordertcc.ErrProtocolViolation, status: http.StatusUnprocessableEntity},
		{name: "suspended", err: ordertcc.ErrTXSuspended, status: http.StatusUnprocessableEntity},
		{name: "insufficientStock", err: example.ErrInsufficientStock, status: http.StatusUnprocessableEntity},
		{name: "unknown", err: errors.New("db down"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, statusOf(tt.err))
		})
	}
}

func Test_Server_errors(t *testing.T) {
	coordinator := mockCoordinator{}
	r := newRouter(NewServer(&coordinator, nil, nil), rate.NewLimiter(rate.Inf, 1))

	code, _ := do(r, http.MethodGet, "/ping", nil, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(r, http.MethodPost, "/api/orders/try", "{bad json", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := do(r, http.MethodPost, "/api/orders/try", &ordertcc.TryOrderReq{OrderID: "o1"}, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, resp.Code)

	coordinator.err = lock.ErrLockContention
	code, resp = do(r, http.MethodPost, "/api/orders/confirm", &ordertcc.TCCReq{OrderID: "o1"}, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, http.StatusConflict, resp.Code)

	coordinator.err = ordertcc.ErrProtocolViolation
	code, _ = do(r, http.MethodPost, "/api/orders/cancel", &ordertcc.TCCReq{OrderID: "o1"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	coordinator.err = txlog.ErrEntryNotFound
	code, _ = do(r, http.MethodGet, "/api/txlogs/normal-buy/o1", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(r, http.MethodPost, "/api/goods/abc/stock", map[string]int{"delta": 1}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func Test_RateLimit(t *testing.T) {
	r := newRouter(NewServer(&mockCoordinator{}, nil, nil), rate.NewLimiter(rate.Limit(0.001), 1))

	code, _ := do(r, http.MethodPost, "/api/orders/try", &ordertcc.TryOrderReq{OrderID: "o1"}, nil)
	assert.Equal(t, http.StatusOK, code)
	code, resp := do(r, http.MethodPost, "/api/orders/try", &ordertcc.TryOrderReq{OrderID: "o1"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)

	// 读接口不限流
	code, _ = do(r, http.MethodGet, "/ping", nil, nil)
	assert.Equal(t, http.StatusOK, code)
}

// 基于 sqlite 的完整链路
func Test_Server_orderFlow(t *testing.T) {
	db, err := pkg.OpenDB(pkg.DriverSQLite, "file:Test_Server_orderFlow?mode=memory&cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, nil, expdao.AutoMigrate(db))

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics().MustRegister(registry)
	orders := example.NewOrderStore(expdao.NewOrderDAO(db))
	coordinator := ordertcc.NewTXCoordinator(
		txlog.NewService(example.NewTXLogStore(expdao.NewTXLogDAO(db))),
		lock.NewLocalLocker(),
		orders,
		example.NewGoodsReader(expdao.NewGoodsDAO(db)),
		example.NewWalletSettler(expdao.NewWalletDAO(db)),
		ordertcc.WithMetrics(m),
	)
	goodsService := example.NewGoodsService(expdao.NewGoodsDAO(db), idempotent.NewExecutor(idempotent.NewMemoryStore()), nil)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	Setup(r, NewServer(coordinator, orders, goodsService), rate.NewLimiter(rate.Inf, 1), registry)

	code, resp := do(r, http.MethodPost, "/api/goods", &example.CreateGoodsReq{
		Name:  "tee",
		Type:  ordertcc.GoodsNormal,
		Price: decimal.NewFromInt(100),
		Stock: 3,
	}, map[string]string{headerIdempotencyKey: "g1"})
	assert.Equal(t, http.StatusOK, code)
	var goods ordertcc.Goods
	assert.Equal(t, nil, json.Unmarshal(resp.Data, &goods))

	code, resp = do(r, http.MethodPost, fmt.Sprintf("/api/goods/%d/stock", goods.ID), map[string]int{"delta": -1}, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, nil, json.Unmarshal(resp.Data, &goods))
	assert.Equal(t, int64(2), goods.Stock)

	code, _ = do(r, http.MethodPost, "/api/orders/try", &ordertcc.TryOrderReq{
		OrderID:        "o1",
		UserID:         7,
		GoodsID:        goods.ID,
		Quantity:       1,
		TotalAmount:    decimal.NewFromInt(100),
		DiscountAmount: decimal.NewFromInt(10),
	}, nil)
	assert.Equal(t, http.StatusOK, code)

	code, resp = do(r, http.MethodPost, "/api/orders/confirm", &ordertcc.TCCReq{OrderID: "o1"}, nil)
	assert.Equal(t, http.StatusOK, code)
	var tccResp ordertcc.TCCResp
	assert.Equal(t, nil, json.Unmarshal(resp.Data, &tccResp))
	assert.Equal(t, txlog.ConfirmOutcomeSuccess, tccResp.Outcome)

	code, resp = do(r, http.MethodGet, "/api/orders/o1", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	var order ordertcc.Order
	assert.Equal(t, nil, json.Unmarshal(resp.Data, &order))
	assert.Equal(t, ordertcc.OrderConfirmed, order.Status)
	assert.Equal(t, "90", order.FinalAmount.String())

	code, resp = do(r, http.MethodGet, "/api/txlogs/normal-buy/o1", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	var entry txlog.Entry
	assert.Equal(t, nil, json.Unmarshal(resp.Data, &entry))
	assert.Equal(t, txlog.PhaseConfirmed, entry.Phase)

	code, _ = do(r, http.MethodPost, "/api/orders/confirm", &ordertcc.TCCReq{OrderID: "o2"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = do(r, http.MethodGet, "/api/orders/o2", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ordertcc_")
}
