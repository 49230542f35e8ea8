package activityfund

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("activityfund.service",
	fx.Provide(NewService),
	fx.Invoke(migrate, registerRoutes),
)

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ReferralRecord{},
		&ClaimRecord{},
	)
}

func registerRoutes(router *gin.Engine, svc *Service) {
	v1 := router.Group("/v1")
	v1.POST("/activity-funds/claim", svc.handleClaim)
	v1.GET("/activity-funds/report", svc.handleReport)
	v1.POST("/referrals", svc.handleRecordReferral)
}
