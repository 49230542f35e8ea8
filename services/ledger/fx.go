package ledger

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("ledger.service",
	fx.Provide(NewService),
	fx.Invoke(migrate, registerRoutes),
)

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Balance{},
		&LedgerEntry{},
	)
}

func registerRoutes(router *gin.Engine, svc *Service) {
	v1 := router.Group("/v1/ledger")
	v1.GET("/balance", svc.handleGetBalance)
	v1.GET("/entries", svc.handleListEntries)
	v1.GET("/verify", svc.handleVerifyChain)
}
