package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fresadolab/cnc-training-api/internal/middleware"
	"github.com/fresadolab/cnc-training-api/internal/models"
	"github.com/fresadolab/cnc-training-api/internal/service"
	appErrors "github.com/fresadolab/cnc-training-api/pkg/errors"
)

type assignmentServiceMock struct {
	listResp   []models.Assignment
	listErr    error
	createResp *models.Assignment
	createErr  error
	updateResp *models.Assignment
	updateErr  error
	deleteErr  error

	lastClassID string
	lastCreate  service.CreateAssignmentRequest
	lastUpload  *service.ImageUpload
	listCalled  bool
}

func (m *assignmentServiceMock) List(ctx context.Context, classID string) ([]models.Assignment, error) {
	m.listCalled = true
	m.lastClassID = classID
	return m.listResp, m.listErr
}

func (m *assignmentServiceMock) Create(ctx context.Context, classID string, req service.CreateAssignmentRequest, upload *service.ImageUpload, actor *models.JWTClaims) (*models.Assignment, error) {
	m.lastClassID = classID
	m.lastCreate = req
	m.lastUpload = upload
	return m.createResp, m.createErr
}

func (m *assignmentServiceMock) Update(ctx context.Context, id string, req service.UpdateAssignmentRequest, upload *service.ImageUpload, actor *models.JWTClaims) (*models.Assignment, error) {
	m.lastUpload = upload
	return m.updateResp, m.updateErr
}

func (m *assignmentServiceMock) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	return m.deleteErr
}

func teacherContext(w *httptest.ResponseRecorder) (*gin.Context, *gin.Engine) {
	c, r := gin.CreateTestContext(w)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	return c, r
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string, fileContent []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = part.Write(fileContent)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestAssignmentHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &assignmentServiceMock{listResp: []models.Assignment{{ID: "a1", Title: "Face milling"}}}
	handler := NewAssignmentHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := teacherContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/classes/c1/assignments", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "c1"}}

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.listCalled)
	assert.Equal(t, "c1", mockSvc.lastClassID)
}

func TestAssignmentHandlerCreateWithImage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &assignmentServiceMock{createResp: &models.Assignment{ID: "a1", Title: "Face milling"}}
	handler := NewAssignmentHandler(mockSvc)

	body, contentType := multipartBody(t, map[string]string{
		"title":          "Face milling",
		"correct_answer": "G0 X0 Y0",
		"attempts":       "3",
	}, "image", "sketch.png", []byte("png-bytes"))

	w := httptest.NewRecorder()
	c, _ := teacherContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/classes/c1/assignments", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "c1"}}

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "c1", mockSvc.lastClassID)
	assert.Equal(t, "Face milling", mockSvc.lastCreate.Title)
	assert.Equal(t, 3, mockSvc.lastCreate.Attempts)
	require.NotNil(t, mockSvc.lastUpload)
	assert.Equal(t, "sketch.png", mockSvc.lastUpload.Filename)

	content, err := io.ReadAll(mockSvc.lastUpload.Content)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), content)
}

func TestAssignmentHandlerCreateWithoutImage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &assignmentServiceMock{createResp: &models.Assignment{ID: "a1"}}
	handler := NewAssignmentHandler(mockSvc)

	body, contentType := multipartBody(t, map[string]string{"title": "Face milling"}, "", "", nil)

	w := httptest.NewRecorder()
	c, _ := teacherContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/classes/c1/assignments", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "c1"}}

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Nil(t, mockSvc.lastUpload)
}

func TestAssignmentHandlerCreateUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAssignmentHandler(&assignmentServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, contentType := multipartBody(t, map[string]string{"title": "Face milling"}, "", "", nil)
	req, _ := http.NewRequest(http.MethodPost, "/classes/c1/assignments", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAssignmentHandlerCreateServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &assignmentServiceMock{createErr: appErrors.ErrForbidden}
	handler := NewAssignmentHandler(mockSvc)

	body, contentType := multipartBody(t, map[string]string{"title": "Face milling"}, "", "", nil)

	w := httptest.NewRecorder()
	c, _ := teacherContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/classes/c1/assignments", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "c1"}}

	handler.Create(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAssignmentHandlerUpdatePassesUpload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &assignmentServiceMock{updateResp: &models.Assignment{ID: "a1"}}
	handler := NewAssignmentHandler(mockSvc)

	body, contentType := multipartBody(t, map[string]string{"title": "Updated"}, "image", "new.png", []byte("fresh"))

	w := httptest.NewRecorder()
	c, _ := teacherContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/assignments/a1", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "a1"}}

	handler.Update(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.lastUpload)
	assert.Equal(t, "new.png", mockSvc.lastUpload.Filename)
}

func TestAssignmentHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAssignmentHandler(&assignmentServiceMock{})

	w := httptest.NewRecorder()
	c, _ := teacherContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/assignments/a1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "a1"}}

	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestAssignmentHandlerDeleteNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAssignmentHandler(&assignmentServiceMock{deleteErr: appErrors.ErrNotFound})

	w := httptest.NewRecorder()
	c, _ := teacherContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/assignments/ghost", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	handler.Delete(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
