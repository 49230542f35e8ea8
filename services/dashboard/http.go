package dashboard

import (
	"net/http"

	"fundplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

func (s *Service) handleMetrics(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		_ = c.Error(errutil.BadRequest("user_id is required", nil))
		return
	}

	metrics, err := s.MetricsFor(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, metrics)
}
