package middleware

import (
	"net/http"

	"fundplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error translates errors pushed onto the gin context into JSON responses.
// BaseError carries its own status mapping; anything else is an internal
// failure whose details stay out of the response body.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil {
			return
		}

		if v, ok := err.Err.(errutil.BaseError); ok {
			c.JSON(v.Code.HTTPStatus(), v.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": "internal error",
			},
		})
	}
}
