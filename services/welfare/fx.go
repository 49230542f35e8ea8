package welfare

import (
	"fundplane/pkg/taskname"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("welfare.service",
	fx.Provide(NewService),
	fx.Invoke(migrate, registerRoutes),
)

// TaskModule registers the payout handlers on the asynq mux. Only the worker
// process pulls this in.
var TaskModule = fx.Module("welfare.tasks",
	fx.Provide(NewService),
	fx.Invoke(migrate, registerTaskHandlers),
)

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&WelfarePackage{},
		&WelfareActivation{},
	)
}

func registerRoutes(router *gin.Engine, svc *Service) {
	v1 := router.Group("/v1/welfare")
	v1.POST("/packages", svc.handleCreatePackage)
	v1.GET("/packages", svc.handleListPackages)
	v1.POST("/packages/:id/activate", svc.handleActivate)
	v1.GET("/activations", svc.handleListActivations)
	v1.POST("/payouts/process", svc.handleProcessPayouts)
}

func registerTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.WelfarePayoutRun, svc.HandlePayoutRun)
	mux.HandleFunc(taskname.WelfarePayoutUser, svc.HandlePayoutUser)
}
