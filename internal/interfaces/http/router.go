// Package http assembles the gin engine the traffic controller listens
// on: the two unauthenticated probes and the bearer-guarded /v1/traffic
// surface.
package http

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	apptraffic "tunnelctl/internal/application/traffic"
	"tunnelctl/internal/infrastructure/kv"
	"tunnelctl/internal/interfaces/http/handlers"
	"tunnelctl/internal/interfaces/http/middleware"
	"tunnelctl/internal/shared/logger"

	_ "tunnelctl/docs"
)

// Router wraps the configured gin engine.
type Router struct {
	engine *gin.Engine
}

// NewRouter builds the controller's HTTP surface.
func NewRouter(manager *apptraffic.Manager, idx kv.Index, authToken string, log logger.Interface) *Router {
	engine := gin.New()
	engine.Use(middleware.Logging(log))
	engine.Use(middleware.Recovery(log))

	health := handlers.NewHealthHandler(idx)
	traffic := handlers.NewTrafficHandler(manager, log)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	engine.GET("/ping", health.Ping)

	v1 := engine.Group("/v1")
	v1.GET("/healthz", health.Healthz)

	authorized := v1.Group("")
	authorized.Use(middleware.BearerAuth(authToken))
	{
		authorized.POST("/traffic", traffic.Update)
		authorized.DELETE("/traffic", traffic.Delete)
		authorized.GET("/traffic/:traffic_id", traffic.Get)
	}

	return &Router{engine: engine}
}

// Engine returns the underlying gin.Engine, e.g. to wrap in an
// http.Server for graceful shutdown.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
