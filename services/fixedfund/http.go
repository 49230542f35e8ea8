package fixedfund

import (
	"net/http"

	"fundplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

func (s *Service) handleCreateFund(c *gin.Context) {
	var req CreateFundParams
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	fund, err := s.CreateFund(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, fund)
}

func (s *Service) handleList(c *gin.Context) {
	funds, err := s.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"funds": funds})
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
