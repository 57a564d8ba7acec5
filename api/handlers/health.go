package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailclean/interfaces"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

type AuthHandler struct {
	auth interfaces.AuthService
}

func NewAuthHandler(auth interfaces.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Me validates the configured Gmail credentials.
func (h *AuthHandler) Me() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AuthHandler.Me")
		defer span.Finish()

		status, err := h.auth.Status(ctx)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}
