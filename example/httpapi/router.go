package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// RateLimit 进程级令牌桶限流
func RateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": http.StatusTooManyRequests,
				"msg":  "too many requests",
			})
			return
		}
		c.Next()
	}
}

// Setup 注册全部 HTTP 路由，写接口统一限流
func Setup(r *gin.Engine, s *Server, limiter *rate.Limiter, gatherer prometheus.Gatherer) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.GET("/orders/:order_id", s.getOrder)
	api.GET("/txlogs/:scene/:biz_id", s.getTXLog)

	write := api.Group("", RateLimit(limiter))
	write.POST("/orders/try", s.tryOrder)
	write.POST("/orders/confirm", s.confirmOrder)
	write.POST("/orders/cancel", s.cancelOrder)
	write.POST("/goods", s.createGoods)
	write.POST("/goods/:goods_id/stock", s.adjustStock)
}
