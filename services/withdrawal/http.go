package withdrawal

import (
	"net/http"

	"fundplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type withdrawRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
	Pin    string `json:"pin" binding:"required"`
}

func (s *Service) handleRequest(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	request, err := s.Request(c.Request.Context(), req.UserID, req.Amount, req.Pin)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, request)
}

func (s *Service) handleList(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		_ = c.Error(errutil.BadRequest("user_id is required", nil))
		return
	}

	requests, err := s.List(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

func (s *Service) handleApprove(c *gin.Context) {
	request, err := s.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, request)
}

func (s *Service) handleReject(c *gin.Context) {
	request, err := s.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, request)
}

type bankInfoRequest struct {
	UserID string `json:"user_id" binding:"required"`
	BankInfoParams
}

func (s *Service) handleSetBankInfo(c *gin.Context) {
	var req bankInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	info, err := s.SetBankInfo(c.Request.Context(), req.UserID, req.BankInfoParams)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, info)
}

func (s *Service) handleGetBankInfo(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		_ = c.Error(errutil.BadRequest("user_id is required", nil))
		return
	}

	info, err := s.GetBankInfo(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, info)
}
