package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/demdxx/gocast"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/xiaoxuxiansheng/ordertcc"
	"github.com/xiaoxuxiansheng/ordertcc/example"
	"github.com/xiaoxuxiansheng/ordertcc/idempotent"
	"github.com/xiaoxuxiansheng/ordertcc/lock"
	"github.com/xiaoxuxiansheng/ordertcc/log"
	"github.com/xiaoxuxiansheng/ordertcc/txlog"
)

// 调用方通过该 header 传递幂等 token
const headerIdempotencyKey = "Idempotency-Key"

type Coordinator interface {
	TryOrder(ctx context.Context, req *ordertcc.TryOrderReq) (*ordertcc.TCCResp, error)
	ConfirmOrder(ctx context.Context, req *ordertcc.TCCReq) (*ordertcc.TCCResp, error)
	CancelOrder(ctx context.Context, req *ordertcc.TCCReq) (*ordertcc.TCCResp, error)
	TXLog(ctx context.Context, orderID, scene string) (*txlog.Entry, error)
}

type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (*ordertcc.Order, error)
}

type GoodsWriter interface {
	CreateGoods(ctx context.Context, token string, req *example.CreateGoodsReq) (*ordertcc.Goods, error)
	AdjustStock(ctx context.Context, token string, goodsID uint64, delta int64) (*ordertcc.Goods, error)
}

type Server struct {
	coordinator Coordinator
	orders      OrderReader
	goods       GoodsWriter
}

func NewServer(coordinator Coordinator, orders OrderReader, goods GoodsWriter) *Server {
	return &Server{
		coordinator: coordinator,
		orders:      orders,
		goods:       goods,
	}
}

type adjustStockReq struct {
	Delta int64 `json:"delta"`
}

func (s *Server) tryOrder(c *gin.Context) {
	var req ordertcc.TryOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	resp, err := s.coordinator.TryOrder(c.Request.Context(), &req)
	reply(c, resp, err)
}

func (s *Server) confirmOrder(c *gin.Context) {
	var req ordertcc.TCCReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	resp, err := s.coordinator.ConfirmOrder(c.Request.Context(), &req)
	reply(c, resp, err)
}

func (s *Server) cancelOrder(c *gin.Context) {
	var req ordertcc.TCCReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	resp, err := s.coordinator.CancelOrder(c.Request.Context(), &req)
	reply(c, resp, err)
}

func (s *Server) getOrder(c *gin.Context) {
	order, err := s.orders.GetOrder(c.Request.Context(), c.Param("order_id"))
	reply(c, order, err)
}

func (s *Server) getTXLog(c *gin.Context) {
	entry, err := s.coordinator.TXLog(c.Request.Context(), c.Param("biz_id"), c.Param("scene"))
	reply(c, entry, err)
}

func (s *Server) createGoods(c *gin.Context) {
	var req example.CreateGoodsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	goods, err := s.goods.CreateGoods(c.Request.Context(), token(c), &req)
	reply(c, goods, err)
}

func (s *Server) adjustStock(c *gin.Context) {
	goodsID := gocast.ToUint(c.Param("goods_id"))
	if goodsID == 0 {
		abort(c, http.StatusBadRequest, errors.New("invalid goods id"))
		return
	}
	var req adjustStockReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	goods, err := s.goods.AdjustStock(c.Request.Context(), token(c), uint64(goodsID), req.Delta)
	reply(c, goods, err)
}

// token 未携带幂等 token 的请求每次都视为新请求
func token(c *gin.Context) string {
	if t := c.GetHeader(headerIdempotencyKey); t != "" {
		return t
	}
	return uuid.NewString()
}

func reply(c *gin.Context, data interface{}, err error) {
	if err != nil {
		status := statusOf(err)
		if status >= http.StatusInternalServerError {
			log.ErrorContextf(c.Request.Context(), "%s %s failed, err: %v", c.Request.Method, c.FullPath(), err)
		}
		abort(c, status, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code": 0,
		"msg":  "ok",
		"data": data,
	})
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{
		"code": status,
		"msg":  err.Error(),
	})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ordertcc.ErrInvalidOrder),
		errors.Is(err, ordertcc.ErrInvalidScene),
		errors.Is(err, example.ErrInvalidGoods):
		return http.StatusBadRequest
	case errors.Is(err, ordertcc.ErrOrderNotFound),
		errors.Is(err, ordertcc.ErrGoodsNotFound),
		errors.Is(err, txlog.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, lock.ErrLockContention),
		errors.Is(err, idempotent.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, ordertcc.ErrProtocolViolation),
		errors.Is(err, ordertcc.ErrTXSuspended),
		errors.Is(err, example.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
