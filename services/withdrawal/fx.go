package withdrawal

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("withdrawal.service",
	fx.Provide(NewService),
	fx.Invoke(migrate, registerRoutes),
)

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&WithdrawalRequest{},
		&BankInfo{},
	)
}

func registerRoutes(router *gin.Engine, svc *Service) {
	v1 := router.Group("/v1/withdrawals")
	v1.POST("", svc.handleRequest)
	v1.GET("", svc.handleList)
	v1.POST("/:id/approve", svc.handleApprove)
	v1.POST("/:id/reject", svc.handleReject)
	v1.PUT("/bank-info", svc.handleSetBankInfo)
	v1.GET("/bank-info", svc.handleGetBankInfo)
}
