package welfare

import (
	"net/http"

	"fundplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

func (s *Service) handleCreatePackage(c *gin.Context) {
	var req CreatePackageParams
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	pkg, err := s.CreatePackage(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, pkg)
}

func (s *Service) handleListPackages(c *gin.Context) {
	packages, err := s.ListPackages(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"packages": packages})
}

type activateRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (s *Service) handleActivate(c *gin.Context) {
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	activation, err := s.Activate(c.Request.Context(), req.UserID, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, activation)
}

func (s *Service) handleListActivations(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		_ = c.Error(errutil.BadRequest("user_id is required", nil))
		return
	}

	activations, err := s.ListActivations(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"activations": activations})
}

// handleProcessPayouts is the synchronous variant the client calls on page
// load; the background sweep covers users who never come back.
func (s *Service) handleProcessPayouts(c *gin.Context) {
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	credited, err := s.ProcessUserPayouts(c.Request.Context(), req.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"credited": credited})
}
