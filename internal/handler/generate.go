package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/midistudio/api/internal/model"
	"github.com/midistudio/api/internal/service"
	"github.com/midistudio/api/internal/status"
	"github.com/midistudio/api/pkg/response"
)

type GenerateHandler struct {
	service   *service.GenerationService
	validator *validator.Validate
}

func NewGenerateHandler(svc *service.GenerationService, v *validator.Validate) *GenerateHandler {
	return &GenerateHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/generate. The response is sent as soon as the
// task is queued; pipeline progress is observable only via the status
// slot.
func (h *GenerateHandler) Start(c *fiber.Ctx) error {
	var req model.GenerationRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "User ID is a required parameter.", formatValidationErrors(err))
	}

	result, err := h.service.Start(c.Context(), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/generate/status/:userId — the polling read of
// the user's status slot.
func (h *GenerateHandler) Status(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return response.ValidationError(c, "User ID is required", nil)
	}

	st, err := h.service.GetStatus(c.Context(), userID)
	if err != nil {
		if errors.Is(err, status.ErrStatusNotFound) {
			return response.NotFound(c, "No generation status for this user")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, st)
}

// formatValidationErrors converts validator errors to a readable format
func formatValidationErrors(err error) []map[string]string {
	var errs []map[string]string

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			errs = append(errs, map[string]string{
				"field": e.Field(),
				"tag":   e.Tag(),
			})
		}
	}

	return errs
}
