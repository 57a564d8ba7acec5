package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	apierrors "github.com/customeros/mailclean/api/errors"
	"github.com/customeros/mailclean/dto"
	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/enum"
	"github.com/customeros/mailclean/internal/tracing"
)

type ExecuteRequest struct {
	TargetEmail     string `json:"target_email"`
	ActionType      string `json:"action_type"`
	ListUnsubscribe string `json:"list_unsubscribe"`
	PlanID          string `json:"plan_id"`
}

type ActionsHandler struct {
	executor interfaces.ExecutorService
	undo     interfaces.UndoService
}

func NewActionsHandler(executor interfaces.ExecutorService, undo interfaces.UndoService) *ActionsHandler {
	return &ActionsHandler{executor: executor, undo: undo}
}

// Execute validates nothing beyond the body shape: the executor rejects and
// audits bad targets and actions itself.
func (h *ActionsHandler) Execute() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ActionsHandler.Execute")
		defer span.Finish()

		var req ExecuteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, span, invalidBody(err))
			return
		}

		action, ok := enum.ParseAction(req.ActionType)
		if !ok {
			action = enum.Action(req.ActionType)
		}
		record, err := h.executor.Execute(ctx, dto.ExecuteRequest{
			TargetEmail:     req.TargetEmail,
			Action:          action,
			ListUnsubscribe: req.ListUnsubscribe,
			PlanID:          req.PlanID,
		})
		if err != nil {
			respondError(c, span, err)
			return
		}
		tracing.TagExecution(span, record.ID)
		c.JSON(http.StatusOK, newExecutionResponse(record))
	}
}

func (h *ActionsHandler) WipeCategory() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ActionsHandler.WipeCategory")
		defer span.Finish()

		category := enum.Category(strings.ToLower(strings.TrimSpace(c.Param("category"))))
		record, err := h.executor.WipeCategory(ctx, category)
		if err != nil {
			respondError(c, span, err)
			return
		}
		tracing.TagExecution(span, record.ID)
		c.JSON(http.StatusOK, newExecutionResponse(record))
	}
}

func (h *ActionsHandler) Undo() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ActionsHandler.Undo")
		defer span.Finish()
		tracing.TagExecution(span, c.Param("id"))

		result, err := h.undo.Revert(ctx, c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *ActionsHandler) UndoStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ActionsHandler.UndoStatus")
		defer span.Finish()
		tracing.TagExecution(span, c.Param("id"))

		status, err := h.undo.Status(ctx, c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func invalidBody(err error) error {
	errs := apierrors.NewMultiErrors()
	errs.Add("body", "must be a JSON object: "+err.Error(), err)
	return errs
}
