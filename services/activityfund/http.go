package activityfund

import (
	"net/http"

	"fundplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type claimRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Level  int    `json:"level" binding:"required"`
}

func (s *Service) handleClaim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	result, err := s.Claim(c.Request.Context(), req.UserID, req.Level)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Service) handleReport(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		_ = c.Error(errutil.BadRequest("user_id is required", nil))
		return
	}

	report, err := s.ReportFor(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reports": report})
}

type recordReferralRequest struct {
	ReferrerID string `json:"referrer_id" binding:"required"`
	ReferredID string `json:"referred_id" binding:"required"`
	Level      int    `json:"level" binding:"required"`
}

func (s *Service) handleRecordReferral(c *gin.Context) {
	var req recordReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	record, err := s.RecordReferral(c.Request.Context(), req.ReferrerID, req.ReferredID, req.Level)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, record)
}
