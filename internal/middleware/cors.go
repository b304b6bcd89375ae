package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type CORSConfig struct {
	AllowOrigins []string
}

// CORS answers preflight requests for the admin UI. Origins default to *
// when none are configured.
func CORS(config CORSConfig) gin.HandlerFunc {
	allowed := config.AllowOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		for _, o := range allowed {
			if o == "*" || o == origin {
				c.Header("Access-Control-Allow-Origin", o)
				break
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", strings.Join([]string{
			"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID",
		}, ", "))
		c.Header("Access-Control-Expose-Headers", "Content-Length, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
