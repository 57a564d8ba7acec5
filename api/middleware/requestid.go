package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/customeros/mailclean/internal/utils"
)

const RequestIdHeader = "X-Request-Id"

// RequestIdMiddleware keeps the caller's request id or assigns one, and echoes
// it back on the response.
func RequestIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestId := c.GetHeader(RequestIdHeader)
		if requestId == "" {
			id, err := utils.GenerateID("req")
			if err == nil {
				requestId = id
			}
		}
		c.Set("RequestId", requestId)
		c.Header(RequestIdHeader, requestId)
		c.Next()
	}
}
