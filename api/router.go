package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	RateLimitPerMinute int
	RateLimitBurst     int
}

// Registrar is a handler group that mounts its routes.
type Registrar interface {
	Register(router gin.IRouter)
}

func NewRouter(cfg RouterConfig, logger *zap.Logger, handlers ...Registrar) *gin.Engine {
	router := gin.New()
	router.Use(RequestLogger(logger), Recovery(logger), RateLimit(cfg.RateLimitPerMinute, cfg.RateLimitBurst))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	for _, h := range handlers {
		h.Register(router)
	}
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Route not found"})
	})
	return router
}
