package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fresadolab/cnc-training-api/internal/models"
	"github.com/fresadolab/cnc-training-api/internal/service"
	appErrors "github.com/fresadolab/cnc-training-api/pkg/errors"
	"github.com/fresadolab/cnc-training-api/pkg/response"
)

type responseService interface {
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.StudentResponseDetail, error)
	ListByClass(ctx context.Context, classID string, filter service.ResponseFilter) ([]models.StudentResponseDetail, error)
	ClassName(ctx context.Context, classID string) (string, error)
	Submit(ctx context.Context, assignmentID string, req service.SubmitResponseRequest, actor *models.JWTClaims) (*models.StudentResponse, error)
}

type reviewExporter interface {
	RenderReview(className string, responses []models.StudentResponseDetail, format string) (*service.ExportResult, error)
}

// ResponseHandler exposes the review and submission endpoints.
type ResponseHandler struct {
	service  responseService
	exporter reviewExporter
}

// NewResponseHandler constructs the handler.
func NewResponseHandler(svc responseService, exporter reviewExporter) *ResponseHandler {
	return &ResponseHandler{service: svc, exporter: exporter}
}

// ListByAssignment godoc
// @Summary List responses for an assignment
// @Tags Responses
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/responses [get]
func (h *ResponseHandler) ListByAssignment(c *gin.Context) {
	responses, err := h.service.ListByAssignment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, responses, nil)
}

// ListByClass godoc
// @Summary List responses for all assignments of a class
// @Tags Responses
// @Produce json
// @Param id path string true "Class ID"
// @Param assignment_id query string false "Filter by assignment"
// @Param student_id query string false "Filter by student"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/responses [get]
func (h *ResponseHandler) ListByClass(c *gin.Context) {
	filter := service.ResponseFilter{
		AssignmentID: strings.TrimSpace(c.Query("assignment_id")),
		StudentID:    strings.TrimSpace(c.Query("student_id")),
	}
	responses, err := h.service.ListByClass(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, responses, nil)
}

// Export godoc
// @Summary Export the review list of a class
// @Tags Responses
// @Produce text/csv
// @Param id path string true "Class ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /classes/{id}/responses/export [get]
func (h *ResponseHandler) Export(c *gin.Context) {
	classID := c.Param("id")
	className, err := h.service.ClassName(c.Request.Context(), classID)
	if err != nil {
		response.Error(c, err)
		return
	}
	responses, err := h.service.ListByClass(c.Request.Context(), classID, service.ResponseFilter{})
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.exporter.RenderReview(className, responses, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

// Submit godoc
// @Summary Submit an answer for an assignment
// @Tags Responses
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body service.SubmitResponseRequest true "Answer payload"
// @Success 201 {object} response.Envelope
// @Router /assignments/{id}/responses [post]
func (h *ResponseHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SubmitResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Submit(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
