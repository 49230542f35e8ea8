package fixedfund

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("fixedfund.service",
	fx.Provide(NewService),
	fx.Invoke(migrate, registerRoutes),
)

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&FixedFund{},
		&FixedFundActivation{},
	)
}

func registerRoutes(router *gin.Engine, svc *Service) {
	v1 := router.Group("/v1/fixed-funds")
	v1.POST("", svc.handleCreateFund)
	v1.GET("", svc.handleList)
	v1.POST("/:id/activate", svc.handleActivate)
	v1.GET("/activations", svc.handleListActivations)
}
