package ledger

import (
	"net/http"

	"fundplane/pkg/db/pagination"
	"fundplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

func (s *Service) handleGetBalance(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		_ = c.Error(errutil.BadRequest("user_id is required", nil))
		return
	}

	snapshot, err := s.GetBalance(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (s *Service) handleListEntries(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		_ = c.Error(errutil.BadRequest("user_id is required", nil))
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	entries, pageInfo, err := s.ListEntries(c.Request.Context(), userID, page)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":   entries,
		"page_info": pageInfo,
	})
}

func (s *Service) handleVerifyChain(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		_ = c.Error(errutil.BadRequest("user_id is required", nil))
		return
	}

	valid, err := s.VerifyChain(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": valid})
}
