package handler

import (
	"racebet/internal/config"
	"racebet/internal/idempotency"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, guard *idempotency.Guard, cfg *config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Server.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 注册中间件
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(log))
	r.Use(LoggerMiddleware(log))
	r.Use(MetricsMiddleware())

	// API 路由组
	api := r.Group("/api/v1")
	api.Use(IdempotencyMiddleware(guard, log))
	{
		api.POST("/bets", h.PlaceBet)

		events := api.Group("/events")
		{
			events.GET("", h.ListEvents)
			events.POST("/:sessionKey/settle", h.SettleEvent)
		}

		users := api.Group("/users")
		{
			users.GET("/:userId", h.GetUser)
			users.GET("/:userId/ledger", h.GetLedger)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	return r
}
