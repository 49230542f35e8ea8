package dashboard

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("dashboard.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

func registerRoutes(router *gin.Engine, svc *Service) {
	v1 := router.Group("/v1/dashboard")
	v1.GET("/metrics", svc.handleMetrics)
}
