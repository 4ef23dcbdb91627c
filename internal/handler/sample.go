package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/samplepack/internal/model"
	"github.com/makeasinger/samplepack/internal/service"
	"github.com/makeasinger/samplepack/pkg/response"
)

type SampleHandler struct {
	service   *service.SampleService
	validator *validator.Validate
}

func NewSampleHandler(svc *service.SampleService, v *validator.Validate) *SampleHandler {
	return &SampleHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /sample
// @Summary      Start sample pack job
// @Description  Accept a base64-encoded image and start generating a sample pack from it in the background
// @Tags         Sample
// @Accept       json
// @Produce      json
// @Param        request body model.SampleCreateRequest true "Sample pack request"
// @Success      202 {object} model.SampleCreateResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /sample [post]
func (h *SampleHandler) Create(c *fiber.Ctx) error {
	var req model.SampleCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Create(c.Context(), &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return response.Accepted(c, result)
}

// Status handles GET /sample/:jobId
// @Summary      Get sample pack job status
// @Description  Get the current status, progress and sample counters of a job
// @Tags         Sample
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.SampleStatusResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /sample/{jobId} [get]
func (h *SampleHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(jobID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return response.OK(c, result)
}

// Download handles GET /sample/:jobId/download
// @Summary      Download sample pack
// @Description  Download the zip archive of a completed job
// @Tags         Sample
// @Produce      application/zip
// @Param        jobId path string true "Job ID"
// @Success      200 {file} file
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /sample/{jobId}/download [get]
func (h *SampleHandler) Download(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	body, size, err := h.service.OpenArchive(c.Context(), jobID)
	if err != nil {
		return handleServiceError(c, err)
	}

	c.Attachment(service.ArchiveFilename)
	c.Set(fiber.HeaderContentType, service.ArchiveContentType)
	if size >= 0 {
		return c.SendStream(body, int(size))
	}
	return c.SendStream(body)
}

// Cancel handles POST /sample/:jobId/cancel
// @Summary      Cancel sample pack job
// @Description  Cancel a pending or running job
// @Tags         Sample
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.SampleCancelResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Router       /sample/{jobId}/cancel [post]
func (h *SampleHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Cancel(jobID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return response.OK(c, result)
}

func handleServiceError(c *fiber.Ctx, err error) error {
	var notReady *service.JobNotReadyError
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.As(err, &notReady):
		return response.JobNotReady(c, notReady.Error())
	case errors.Is(err, service.ErrArchiveNotFound):
		return response.ArchiveNotFound(c, "Archive not found")
	case errors.Is(err, service.ErrJobTerminal):
		return response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrInvalidImage):
		return response.ValidationError(c, err.Error(), nil)
	default:
		return response.ServiceError(c, err.Error())
	}
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return err.Error()
}
