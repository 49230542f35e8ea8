package server

import (
	"fundplane/pkg/config"
	"fundplane/pkg/health"
	"fundplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

// ProvideRouter builds the shared gin engine. Services attach their routes
// through fx.Invoke registrations against this engine.
var ProvideRouter = fx.Module("http.router",
	fx.Provide(NewRouter),
	fx.Invoke(registerHealthRoutes),
)

func NewRouter(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Error())

	return router
}

func registerHealthRoutes(router *gin.Engine, svc health.HealthService) {
	router.GET("/healthz", svc.Liveness)
	router.GET("/readyz", svc.Readiness)
}
