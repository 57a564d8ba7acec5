package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/tracing"
)

type SimulateRequest struct {
	PlanID string `json:"plan_id"`
}

type PlanHandler struct {
	planner   interfaces.PlannerService
	simulator interfaces.SimulatorService
}

func NewPlanHandler(planner interfaces.PlannerService, simulator interfaces.SimulatorService) *PlanHandler {
	return &PlanHandler{planner: planner, simulator: simulator}
}

func (h *PlanHandler) Generate() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "PlanHandler.Generate")
		defer span.Finish()

		plan, err := h.planner.Generate(ctx)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, newPlanResponse(plan))
	}
}

func (h *PlanHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "PlanHandler.Get")
		defer span.Finish()
		tracing.TagPlan(span, c.Param("id"))

		plan, err := h.planner.GetPlan(ctx, c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, newPlanResponse(plan))
	}
}

func (h *PlanHandler) Simulate() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "PlanHandler.Simulate")
		defer span.Finish()

		var req SimulateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, span, invalidBody(err))
			return
		}
		tracing.TagPlan(span, req.PlanID)

		report, err := h.simulator.Simulate(ctx, req.PlanID)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
