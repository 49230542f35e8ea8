package account

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type setPinRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Pin    string `json:"pin" binding:"required"`
}

func (s *Service) handleSetWithdrawalPin(c *gin.Context) {
	var req setPinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	if err := s.SetWithdrawalPin(c.Request.Context(), req.UserID, req.Pin); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
