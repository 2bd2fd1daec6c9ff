package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"academic-portal/backend/config"
	"academic-portal/backend/internal/api/handler"
	"academic-portal/backend/internal/api/middleware"
	"academic-portal/backend/internal/dto"
	"academic-portal/backend/internal/model"
	"academic-portal/backend/pkg/jwt"
	"academic-portal/backend/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时 Token 黑名单与限流降级放行
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, db *gorm.DB, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	dto.RegisterValidators()

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	if cfg.Server.BodyLimit > 0 {
		r.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	}

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	var (
		blacklist middleware.TokenBlacklist
		counter   middleware.RateCounter
	)
	if rdb != nil {
		blacklist, counter = rdb, rdb
	}
	writeLimit := middleware.RateLimit(counter, cfg.RateLimit.WriteLimit, cfg.RateLimit.WriteWindow, logger)

	// ── API v1（全部需要认证）──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr, blacklist, logger))
	{
		// 排课模块：细粒度权限在 Service 层判定
		timetable := v1.Group("/timetable")
		{
			timetable.POST("", writeLimit, h.Timetable.Create)
			timetable.GET("", middleware.RoleAuth(model.RoleAdmin), h.Timetable.List)
			timetable.GET("/my-schedule", h.Timetable.MySchedule)
			timetable.GET("/semester/:id", h.Timetable.BySemester)
			timetable.GET("/semester/:id/export", middleware.RoleAuth(model.RoleAdmin, model.RoleHod), h.Export.ExportSemester)
			timetable.GET("/subject/:id", h.Timetable.BySubject)
			timetable.GET("/:id", h.Timetable.Get)
			timetable.GET("/:id/change-logs", middleware.RoleAuth(model.RoleAdmin), h.Timetable.ChangeLogs)
			timetable.PUT("/:id", writeLimit, h.Timetable.Update)
			timetable.DELETE("/:id", h.Timetable.Cancel)
			timetable.POST("/:id/grant-permission", h.Timetable.GrantPermission)
			timetable.POST("/:id/revoke-permission", h.Timetable.RevokePermission)
		}
	}

	return r
}
