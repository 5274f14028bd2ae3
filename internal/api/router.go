package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	// Token guards every /api/v1/ingest route. An empty token rejects all calls.
	Token   string
	Metrics http.Handler
}

func NewRouter(h *IngestHandler, cfg RouterConfig, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(logger))
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	ingest := router.Group("/api/v1/ingest", bearerAuth(cfg.Token))
	ingest.GET("/health", h.Health)
	ingest.GET("/state", h.State)
	ingest.POST("/trigger", h.Trigger)
	ingest.POST("/tick", h.Tick)
	ingest.POST("/stale", h.Stale)

	return router
}

func bearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func ginLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"duration", time.Since(start),
		)
	}
}
