package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/enum"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/models"
)

type AuditHandler struct {
	audit interfaces.AuditService
}

func NewAuditHandler(audit interfaces.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// Logs lists audit entries oldest first. Without after_id the newest entries
// within the limit are returned; with it the listing continues after that id.
func (h *AuditHandler) Logs() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AuditHandler.Logs")
		defer span.Finish()

		filter, err := parseAuditFilter(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		entries, err := h.audit.List(ctx, filter)
		if err != nil {
			respondError(c, span, err)
			return
		}
		if entries == nil {
			entries = []models.AuditEntry{}
		}
		c.JSON(http.StatusOK, entries)
	}
}

func parseAuditFilter(c *gin.Context) (models.AuditFilter, error) {
	filter := models.AuditFilter{EventType: enum.AuditEventType(c.Query("event_type"))}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return filter, errors.Wrapf(mailerrors.ErrInvalidInput, "limit %q is not a number", raw)
		}
		filter.Limit = limit
	}
	if raw := c.Query("after_id"); raw != "" {
		afterID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, errors.Wrapf(mailerrors.ErrInvalidInput, "after_id %q is not a number", raw)
		}
		filter.AfterID = &afterID
	}
	var err error
	if filter.From, err = timeQuery(c, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = timeQuery(c, "to"); err != nil {
		return filter, err
	}
	return filter, nil
}

func timeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.Wrapf(mailerrors.ErrInvalidInput, "%s %q is not an RFC3339 time", name, raw)
	}
	t = t.UTC()
	return &t, nil
}
