package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/enum"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/tracing"
	"github.com/customeros/mailclean/services/scorer"
)

type SendersHandler struct {
	stats  interfaces.StatsStore
	scorer *scorer.Scorer
}

func NewSendersHandler(stats interfaces.StatsStore, sc *scorer.Scorer) *SendersHandler {
	return &SendersHandler{stats: stats, scorer: sc}
}

func (h *SendersHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, _ := opentracing.StartSpanFromContext(c.Request.Context(), "SendersHandler.List")
		defer span.Finish()

		pageSize := 0
		if raw := c.Query("page_size"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				respondError(c, span, errors.Wrapf(mailerrors.ErrInvalidInput, "page_size %q is not a number", raw))
				return
			}
			pageSize = n
		}

		reference := h.stats.Current().ScannedAt()
		senders, next, err := h.stats.ListSenders(c.Query("category"), c.Query("page_token"), pageSize)
		if err != nil {
			respondError(c, span, err)
			return
		}

		page := SendersPage{Senders: make([]SenderResponse, 0, len(senders))}
		for _, sender := range senders {
			page.Senders = append(page.Senders, newSenderResponse(sender, h.scorer.Score(sender, reference)))
		}
		if next != "" {
			page.NextPageToken = &next
		}
		c.JSON(http.StatusOK, page)
	}
}

func (h *SendersHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, _ := opentracing.StartSpanFromContext(c.Request.Context(), "SendersHandler.Get")
		defer span.Finish()
		tracing.TagEntity(span, c.Param("id"))

		sender, err := h.stats.GetSender(c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}
		score := h.scorer.Score(*sender, h.stats.Current().ScannedAt())
		c.JSON(http.StatusOK, newSenderResponse(*sender, score))
	}
}

// UnsubscribeCandidates lists the senders the scorer would unsubscribe from.
func (h *SendersHandler) UnsubscribeCandidates() gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot := h.stats.Current()
		reference := snapshot.ScannedAt()

		candidates := make([]SenderResponse, 0)
		snapshot.Range(func(sender models.SenderStats) bool {
			score := h.scorer.Score(sender, reference)
			if score.Action == enum.ActionUnsubscribe {
				candidates = append(candidates, newSenderResponse(sender, score))
			}
			return true
		})
		c.JSON(http.StatusOK, candidates)
	}
}
