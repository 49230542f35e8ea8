package account

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("account.service",
	fx.Provide(NewService),
	fx.Invoke(migrate, registerRoutes),
)

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Account{})
}

func registerRoutes(router *gin.Engine, svc *Service) {
	v1 := router.Group("/v1/accounts")
	v1.POST("/withdrawal-pin", svc.handleSetWithdrawalPin)
}
