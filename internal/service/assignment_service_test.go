package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fresadolab/cnc-training-api/internal/models"
	appErrors "github.com/fresadolab/cnc-training-api/pkg/errors"
	"github.com/fresadolab/cnc-training-api/pkg/jobs"
)

type assignmentRepoStub struct {
	assignments map[string]*models.Assignment
	listed      []models.Assignment
	ids         []string
	created     []*models.Assignment
	updated     []*models.Assignment
	deleted     []string
	createErr   error
	updateErr   error
}

func (s *assignmentRepoStub) ListByClass(ctx context.Context, classID string) ([]models.Assignment, error) {
	return s.listed, nil
}

func (s *assignmentRepoStub) ListIDsByClass(ctx context.Context, classID string) ([]string, error) {
	return s.ids, nil
}

func (s *assignmentRepoStub) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	if assignment, ok := s.assignments[id]; ok {
		clone := *assignment
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *assignmentRepoStub) Create(ctx context.Context, assignment *models.Assignment) error {
	if s.createErr != nil {
		return s.createErr
	}
	assignment.ID = "generated"
	s.created = append(s.created, assignment)
	return nil
}

func (s *assignmentRepoStub) Update(ctx context.Context, assignment *models.Assignment) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updated = append(s.updated, assignment)
	return nil
}

func (s *assignmentRepoStub) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

type classReaderStub struct {
	classes map[string]*models.Class
}

func (s classReaderStub) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if class, ok := s.classes[id]; ok {
		return class, nil
	}
	return nil, sql.ErrNoRows
}

type bucketStub struct {
	saved   map[string][]byte
	deleted []string
	saveErr error
}

func (s *bucketStub) UniqueKey(filename string) string {
	return "key-" + filename
}

func (s *bucketStub) SaveStream(key string, r io.Reader) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return err
	}
	if s.saved == nil {
		s.saved = map[string][]byte{}
	}
	s.saved[key] = buf.Bytes()
	return nil
}

func (s *bucketStub) Delete(key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *bucketStub) PublicURL(key string) string {
	return "http://files.local/" + key
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (s *queueStub) Enqueue(job jobs.Job) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func newAssignmentService(repo *assignmentRepoStub, classes classReaderStub, bucket *bucketStub, queue *queueStub) *AssignmentService {
	return NewAssignmentService(repo, classes, bucket, queue, nil, NewMetricsService(), nil, zap.NewNop(), AssignmentServiceConfig{})
}

func teacherClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}
}

func pngUpload(name, content string) *ImageUpload {
	return &ImageUpload{
		Filename: name,
		Size:     int64(len(content)),
		MimeType: "image/png",
		Content:  strings.NewReader(content),
	}
}

func TestAssignmentCreateDefaultsAttemptsToOne(t *testing.T) {
	repo := &assignmentRepoStub{}
	classes := classReaderStub{classes: map[string]*models.Class{"c1": {ID: "c1", CreatedBy: "t1"}}}
	svc := newAssignmentService(repo, classes, &bucketStub{}, &queueStub{})

	assignment, err := svc.Create(context.Background(), "c1", CreateAssignmentRequest{Title: "Face milling"}, nil, teacherClaims())
	require.NoError(t, err)
	assert.Equal(t, 1, assignment.Attempts)
	assert.Nil(t, assignment.ImageURL)
}

func TestAssignmentCreateWithoutClass(t *testing.T) {
	svc := newAssignmentService(&assignmentRepoStub{}, classReaderStub{}, &bucketStub{}, &queueStub{})

	_, err := svc.Create(context.Background(), "", CreateAssignmentRequest{Title: "Face milling"}, nil, teacherClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAssignmentCreateForeignClassForbidden(t *testing.T) {
	classes := classReaderStub{classes: map[string]*models.Class{"c1": {ID: "c1", CreatedBy: "other-teacher"}}}
	svc := newAssignmentService(&assignmentRepoStub{}, classes, &bucketStub{}, &queueStub{})

	_, err := svc.Create(context.Background(), "c1", CreateAssignmentRequest{Title: "Face milling"}, nil, teacherClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAssignmentCreateAdminBypassesOwnership(t *testing.T) {
	repo := &assignmentRepoStub{}
	classes := classReaderStub{classes: map[string]*models.Class{"c1": {ID: "c1", CreatedBy: "other-teacher"}}}
	svc := newAssignmentService(repo, classes, &bucketStub{}, &queueStub{})

	_, err := svc.Create(context.Background(), "c1", CreateAssignmentRequest{Title: "Face milling"}, nil, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
}

func TestAssignmentCreateStoresImage(t *testing.T) {
	repo := &assignmentRepoStub{}
	classes := classReaderStub{classes: map[string]*models.Class{"c1": {ID: "c1", CreatedBy: "t1"}}}
	bucket := &bucketStub{}
	svc := newAssignmentService(repo, classes, bucket, &queueStub{})

	assignment, err := svc.Create(context.Background(), "c1", CreateAssignmentRequest{Title: "Face milling"}, pngUpload("sketch.png", "img-bytes"), teacherClaims())
	require.NoError(t, err)
	require.NotNil(t, assignment.ImageURL)
	assert.Equal(t, "http://files.local/key-sketch.png", *assignment.ImageURL)
	assert.Contains(t, bucket.saved, "key-sketch.png")
}

func TestAssignmentCreateInsertFailureSchedulesCleanup(t *testing.T) {
	repo := &assignmentRepoStub{createErr: errors.New("insert failed")}
	classes := classReaderStub{classes: map[string]*models.Class{"c1": {ID: "c1", CreatedBy: "t1"}}}
	bucket := &bucketStub{}
	queue := &queueStub{}
	svc := newAssignmentService(repo, classes, bucket, queue)

	_, err := svc.Create(context.Background(), "c1", CreateAssignmentRequest{Title: "Face milling"}, pngUpload("sketch.png", "img-bytes"), teacherClaims())
	require.Error(t, err)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, UploadCleanupJobType, queue.jobs[0].Type)
	assert.Equal(t, "key-sketch.png", queue.jobs[0].Payload)
}

func TestAssignmentCreateRejectsOversizeImage(t *testing.T) {
	classes := classReaderStub{classes: map[string]*models.Class{"c1": {ID: "c1", CreatedBy: "t1"}}}
	bucket := &bucketStub{}
	svc := newAssignmentService(&assignmentRepoStub{}, classes, bucket, &queueStub{})

	upload := pngUpload("big.png", "x")
	upload.Size = 100 * 1024 * 1024
	_, err := svc.Create(context.Background(), "c1", CreateAssignmentRequest{Title: "Face milling"}, upload, teacherClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, bucket.saved)
}

func TestAssignmentCreateRejectsUnsupportedMime(t *testing.T) {
	classes := classReaderStub{classes: map[string]*models.Class{"c1": {ID: "c1", CreatedBy: "t1"}}}
	svc := newAssignmentService(&assignmentRepoStub{}, classes, &bucketStub{}, &queueStub{})

	upload := pngUpload("notes.txt", "hello")
	upload.MimeType = "text/plain"
	_, err := svc.Create(context.Background(), "c1", CreateAssignmentRequest{Title: "Face milling"}, upload, teacherClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAssignmentUpdatePreservesImageWithoutUpload(t *testing.T) {
	existingURL := "http://files.local/key-old.png"
	repo := &assignmentRepoStub{assignments: map[string]*models.Assignment{
		"a1": {ID: "a1", ClassID: "c1", Title: "Old", Attempts: 3, ImageURL: &existingURL},
	}}
	classes := classReaderStub{classes: map[string]*models.Class{"c1": {ID: "c1", CreatedBy: "t1"}}}
	svc := newAssignmentService(repo, classes, &bucketStub{}, &queueStub{})

	assignment, err := svc.Update(context.Background(), "a1", UpdateAssignmentRequest{Title: "New title"}, nil, teacherClaims())
	require.NoError(t, err)
	require.NotNil(t, assignment.ImageURL)
	assert.Equal(t, existingURL, *assignment.ImageURL)
	assert.Equal(t, 3, assignment.Attempts)
	assert.Equal(t, "New title", assignment.Title)
}

func TestAssignmentUpdateReplacesImage(t *testing.T) {
	existingURL := "http://files.local/key-old.png"
	repo := &assignmentRepoStub{assignments: map[string]*models.Assignment{
		"a1": {ID: "a1", ClassID: "c1", Title: "Old", Attempts: 1, ImageURL: &existingURL},
	}}
	classes := classReaderStub{classes: map[string]*models.Class{"c1": {ID: "c1", CreatedBy: "t1"}}}
	bucket := &bucketStub{}
	svc := newAssignmentService(repo, classes, bucket, &queueStub{})

	assignment, err := svc.Update(context.Background(), "a1", UpdateAssignmentRequest{Title: "Old", Attempts: 2}, pngUpload("new.png", "fresh"), teacherClaims())
	require.NoError(t, err)
	assert.Equal(t, "http://files.local/key-new.png", *assignment.ImageURL)
	assert.Equal(t, 2, assignment.Attempts)
	assert.Empty(t, bucket.deleted)
}

func TestAssignmentDelete(t *testing.T) {
	repo := &assignmentRepoStub{assignments: map[string]*models.Assignment{
		"a1": {ID: "a1", ClassID: "c1"},
	}}
	classes := classReaderStub{classes: map[string]*models.Class{"c1": {ID: "c1", CreatedBy: "t1"}}}
	bucket := &bucketStub{}
	svc := newAssignmentService(repo, classes, bucket, &queueStub{})

	err := svc.Delete(context.Background(), "a1", teacherClaims())
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, repo.deleted)
	assert.Empty(t, bucket.deleted)
}

func TestAssignmentGetNotFound(t *testing.T) {
	svc := newAssignmentService(&assignmentRepoStub{}, classReaderStub{}, &bucketStub{}, &queueStub{})

	_, err := svc.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUploadCleanupHandlerDeletesObject(t *testing.T) {
	bucket := &bucketStub{}
	handler := NewUploadCleanupHandler(bucket, NewMetricsService(), zap.NewNop())

	err := handler(context.Background(), jobs.Job{ID: "key-orphan.png", Type: UploadCleanupJobType, Payload: "key-orphan.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"key-orphan.png"}, bucket.deleted)
}

func TestUploadCleanupHandlerBadPayload(t *testing.T) {
	handler := NewUploadCleanupHandler(&bucketStub{}, NewMetricsService(), zap.NewNop())

	err := handler(context.Background(), jobs.Job{ID: "j1", Type: UploadCleanupJobType, Payload: 42})
	require.Error(t, err)
}
