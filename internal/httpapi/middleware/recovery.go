package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voicethink/coach/internal/common"
)

// Recovery converts panics into the standard error envelope instead of a bare
// 500.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
