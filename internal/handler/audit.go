package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/hireloop/api/internal/audit"
	"github.com/hireloop/api/pkg/response"
)

type AuditHandler struct {
	trail *audit.RedisTrafficLogger
}

func NewAuditHandler(trail *audit.RedisTrafficLogger) *AuditHandler {
	return &AuditHandler{trail: trail}
}

// Trail handles GET /api/render/audit/:taskId
// @Summary      Get provider traffic trail
// @Description  Return the recorded provider exchanges for a render task, newest first
// @Tags         Render
// @Produce      json
// @Param        taskId path string true "Task ID"
// @Success      200 {array} object
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/render/audit/{taskId} [get]
func (h *AuditHandler) Trail(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return response.ValidationError(c, "Task ID is required", nil)
	}

	records, err := h.trail.Trail(c.Context(), taskID)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return c.JSON(fiber.Map{
		"taskId":  taskID,
		"records": records,
	})
}
