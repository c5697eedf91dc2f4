package server

import (
	"context"
	"net/http"
	"time"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/auth"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/config"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/metrics"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/models"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/mw"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/service"
	"github.com/ProfessorAbraham/chereka-customer-support/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、聊天 REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, db *gorm.DB, chat *service.ChatService, hub *ws.Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw.CORS(cfg.Env, cfg.AllowedOrigins))
	r.Use(metrics.GinMiddleware())
	httpLimits := mw.NewLimiters(cfg.HTTPLimit(), 2*time.Minute)
	httpLimits.Start(30 * time.Second)
	r.Use(mw.RateLimit(httpLimits, "/ws", "/healthz", "/metrics"))

	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err = sqlDB.PingContext(ctx)
			cancel()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	resolver := auth.NewResolver(db, cfg.JWTSecret)
	h := NewHandler(chat, hub)

	// 需要 Bearer Token 的聊天接口。
	api := r.Group("/api/v1/chat")
	api.Use(auth.AuthMiddleware(resolver))
	staff := auth.RequireRole(models.RoleAgent, models.RoleAdmin)

	api.POST("/room", auth.RequireRole(models.RoleCustomer), h.CreateOrGetRoom)
	api.GET("/rooms", staff, h.ListRooms)
	api.GET("/rooms/:id", h.GetRoom)
	api.POST("/rooms/:id/join", staff, h.JoinRoom)
	api.POST("/rooms/:id/close", h.CloseRoom)
	api.GET("/rooms/:id/messages", h.ListMessages)
	api.POST("/rooms/:id/messages", h.SendMessage)
	api.GET("/stats", staff, h.Stats)

	router := ws.NewRouter(hub, chat)
	wsEvents := mw.NewLimiters(cfg.WSEventLimit(), time.Hour)
	r.GET("/ws", ws.Serve(hub, router, resolver, cfg.Env, cfg.AllowedOrigins, wsEvents))
	return r
}
