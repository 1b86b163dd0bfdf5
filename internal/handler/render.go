package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hireloop/api/internal/model"
	"github.com/hireloop/api/internal/service"
	"github.com/hireloop/api/internal/videogen"
	"github.com/hireloop/api/pkg/response"
)

type RenderHandler struct {
	service   *service.RenderService
	validator *validator.Validate
}

func NewRenderHandler(svc *service.RenderService, v *validator.Validate) *RenderHandler {
	return &RenderHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/render/start
// @Summary      Start video render job
// @Description  Start an asynchronous video render against a provider
// @Tags         Render
// @Accept       json
// @Produce      json
// @Param        request body model.RenderStartRequest true "Render start request"
// @Success      202 {object} model.RenderStartResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/render/start [post]
func (h *RenderHandler) Start(c *fiber.Ctx) error {
	var req model.RenderStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.StartRender(c.Context(), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/render/status/:jobId
// @Summary      Get render job status
// @Description  Get the current status and progress of a render job
// @Tags         Render
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.RenderStatusResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/render/status/{jobId} [get]
func (h *RenderHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		if err.Error() == "job not found" {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Result handles GET /api/render/result/:jobId
// @Summary      Get render job result
// @Description  Get the task record of a terminal render job
// @Tags         Render
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.VideoRenderTask
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/render/result/{jobId} [get]
func (h *RenderHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), jobID)
	if err != nil {
		if err.Error() == "job not found" {
			return response.NotFound(c, "Job not found")
		}
		if err.Error() == "job not completed" {
			return response.ValidationError(c, "Job not completed yet", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/render/cancel/:jobId
// @Summary      Cancel render job
// @Description  Cancel a queued render job; running jobs are not interrupted
// @Tags         Render
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.RenderCancelResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/render/cancel/{jobId} [post]
func (h *RenderHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.CancelRender(c.Context(), jobID)
	if err != nil {
		if err.Error() == "job not found" {
			return response.NotFound(c, "Job not found")
		}
		if err.Error() == "job already completed" {
			return response.ValidationError(c, "Job already completed", nil)
		}
		if err.Error() == "job already running" {
			return response.ValidationError(c, "Job already running", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Plan handles GET /api/render/plan
// @Summary      Preview a duration plan
// @Description  Compute how a requested duration window maps onto provider clip segments
// @Tags         Render
// @Produce      json
// @Param        minSeconds     query int    true  "Minimum acceptable duration"
// @Param        maxSeconds     query int    true  "Maximum acceptable duration"
// @Param        baseSeconds    query int    false "Provider base clip seconds"
// @Param        extendSeconds  query int    false "Seconds added per extend hop"
// @Param        provider       query string false "Provider the plan targets"
// @Success      200 {object} model.PlanResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Router       /api/render/plan [get]
func (h *RenderHandler) Plan(c *fiber.Ctx) error {
	minSeconds := c.QueryInt("minSeconds")
	maxSeconds := c.QueryInt("maxSeconds")
	if minSeconds <= 0 || maxSeconds <= 0 {
		return response.ValidationError(c, "minSeconds and maxSeconds are required", nil)
	}
	if maxSeconds < minSeconds {
		return response.ValidationError(c, "maxSeconds must not be below minSeconds", nil)
	}

	baseSeconds := c.QueryInt("baseSeconds", 8)
	extendSeconds := c.QueryInt("extendSeconds", 7)
	if baseSeconds <= 0 || extendSeconds <= 0 {
		return response.ValidationError(c, "baseSeconds and extendSeconds must be positive", nil)
	}

	plan := videogen.ComputeRenderPlan(minSeconds, maxSeconds, baseSeconds, extendSeconds)

	segments := make([]model.PlanSegment, 0, len(plan.Segments))
	for _, seg := range plan.Segments {
		segments = append(segments, model.PlanSegment{
			Kind:    string(seg.Kind),
			Seconds: seg.Seconds,
		})
	}

	return response.OK(c, model.PlanResponse{
		Provider:            c.Query("provider", string(model.ProviderVeo)),
		Strategy:            string(plan.Strategy),
		Segments:            segments,
		FinalPlannedSeconds: plan.FinalPlannedSeconds,
	})
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
