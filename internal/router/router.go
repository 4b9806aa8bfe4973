// Package router builds the gin route table.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"settlement-backend/internal/config"
	"settlement-backend/internal/handlers"
	"settlement-backend/internal/middleware"
)

type Handlers struct {
	Auth           *handlers.AuthHandler
	AdminAuth      *handlers.AdminAuthHandler
	Settlement     *handlers.SettlementHandler
	Admin          *handlers.AdminHandler
	OracleCallback *handlers.OracleCallbackHandler
}

func New(cfg *config.Config, h Handlers, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.NewAuthMiddleware(logger)
	adminAuth := middleware.NewAdminAuthMiddleware(logger)
	oracleAuth := middleware.NewOracleAuthMiddleware(cfg.Oracle.CallbackToken, logger)

	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", h.Auth.LoginHandler)
		api.POST("/admin/auth/login", h.AdminAuth.AdminLoginHandler)
		api.POST("/admin/auth/totp/generate", h.AdminAuth.GenerateTOTPSecretHandler)

		api.GET("/assets", h.Settlement.ListAssets)
		api.GET("/requests/:id", h.Settlement.GetRequest)

		participant := api.Group("", auth.RequireAuth())
		{
			participant.POST("/participants/register", h.Settlement.Register)
			participant.POST("/requests/mint", h.Settlement.Mint)
			participant.POST("/requests/redeem", h.Settlement.Redeem)
			participant.POST("/requests/cleanup", h.Settlement.Cleanup)
			participant.GET("/requests", h.Settlement.ListMyRequests)
			participant.GET("/balance", h.Settlement.GetBalance)
			participant.POST("/ownership/accept", h.Settlement.AcceptOwnership)
		}

		oracle := api.Group("/oracle", oracleAuth.RequireOracleAuth())
		{
			oracle.POST("/callback", h.OracleCallback.Callback)
		}

		admin := api.Group("/admin", adminAuth.RequireAdminAuth())
		{
			admin.POST("/assets", h.Admin.ListAsset)
			admin.DELETE("/assets/:ticker", h.Admin.DelistAsset)
			admin.PUT("/assets/:ticker/timeout", h.Admin.SetAssetTimeout)
			admin.POST("/assets/:ticker/expire", h.Admin.ExpireRequests)
			admin.POST("/pause", h.Admin.Pause)
			admin.POST("/unpause", h.Admin.Unpause)
			admin.POST("/logic/upgrade", h.Admin.UpgradeLogic)
			admin.POST("/ownership/transfer", h.Admin.TransferOwnership)
			admin.POST("/credit", h.Admin.CreditParticipant)
			admin.GET("/status", h.Admin.Status)
		}
	}

	return r
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.WithFields(logrus.Fields{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
				"status": c.Writer.Status(),
			}).Error("request failed")
		}
	}
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if len(allowed) == 0 {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
