package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fresadolab/cnc-training-api/internal/models"
	"github.com/fresadolab/cnc-training-api/internal/service"
	appErrors "github.com/fresadolab/cnc-training-api/pkg/errors"
	"github.com/fresadolab/cnc-training-api/pkg/response"
)

type assignmentService interface {
	List(ctx context.Context, classID string) ([]models.Assignment, error)
	Create(ctx context.Context, classID string, req service.CreateAssignmentRequest, upload *service.ImageUpload, actor *models.JWTClaims) (*models.Assignment, error)
	Update(ctx context.Context, id string, req service.UpdateAssignmentRequest, upload *service.ImageUpload, actor *models.JWTClaims) (*models.Assignment, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

// AssignmentHandler manages the assignment lifecycle endpoints.
type AssignmentHandler struct {
	service assignmentService
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(svc assignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: svc}
}

// List godoc
// @Summary List the assignments of a class
// @Tags Assignments
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	assignments, err := h.service.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// Create godoc
// @Summary Create an assignment
// @Tags Assignments
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Class ID"
// @Param title formData string true "Title"
// @Param problem_description formData string false "Problem description"
// @Param correct_answer formData string false "Expected machine-control code"
// @Param attempts formData int false "Max submission attempts"
// @Param image formData file false "Illustration"
// @Success 201 {object} response.Envelope
// @Router /classes/{id}/assignments [post]
func (h *AssignmentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateAssignmentRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid assignment payload"))
		return
	}
	upload, err := imageFromForm(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	assignment, err := h.service.Create(c.Request.Context(), c.Param("id"), req, upload, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Update godoc
// @Summary Update an assignment
// @Tags Assignments
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Assignment ID"
// @Param title formData string true "Title"
// @Param problem_description formData string false "Problem description"
// @Param correct_answer formData string false "Expected machine-control code"
// @Param attempts formData int false "Max submission attempts"
// @Param image formData file false "Replacement illustration"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id} [put]
func (h *AssignmentHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateAssignmentRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid assignment payload"))
		return
	}
	upload, err := imageFromForm(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	assignment, err := h.service.Update(c.Request.Context(), c.Param("id"), req, upload, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Delete godoc
// @Summary Delete an assignment
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 204
// @Router /assignments/{id} [delete]
func (h *AssignmentHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// imageFromForm extracts the optional image part of a multipart request.
// A missing file is not an error; the caller receives nil.
func imageFromForm(c *gin.Context) (*service.ImageUpload, error) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		// Non-multipart requests are fine too: JSON updates carry no file.
		return nil, nil
	}
	src, err := fileHeader.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open image")
	}
	return &service.ImageUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Content:  src,
	}, nil
}
