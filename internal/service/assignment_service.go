package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fresadolab/cnc-training-api/internal/models"
	appErrors "github.com/fresadolab/cnc-training-api/pkg/errors"
	"github.com/fresadolab/cnc-training-api/pkg/jobs"
)

type assignmentRepository interface {
	ListByClass(ctx context.Context, classID string) ([]models.Assignment, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id string) error
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type imageBucket interface {
	UniqueKey(filename string) string
	SaveStream(key string, r io.Reader) error
	Delete(key string) error
	PublicURL(key string) string
}

type cleanupQueue interface {
	Enqueue(job jobs.Job) error
}

// UploadCleanupJobType identifies compensation jobs that remove an
// uploaded object whose row insert never landed.
const UploadCleanupJobType = "upload_cleanup"

// ImageUpload carries upload metadata and the stream reader.
type ImageUpload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.Reader
}

// CreateAssignmentRequest captures the creation form.
type CreateAssignmentRequest struct {
	Title              string `form:"title" json:"title" validate:"required"`
	ProblemDescription string `form:"problem_description" json:"problem_description"`
	CorrectAnswer      string `form:"correct_answer" json:"correct_answer"`
	Attempts           int    `form:"attempts" json:"attempts" validate:"gte=0"`
}

// UpdateAssignmentRequest modifies assignment fields. Image handling is
// the same as on create; without a new file the stored URL is preserved.
type UpdateAssignmentRequest struct {
	Title              string `form:"title" json:"title" validate:"required"`
	ProblemDescription string `form:"problem_description" json:"problem_description"`
	CorrectAnswer      string `form:"correct_answer" json:"correct_answer"`
	Attempts           int    `form:"attempts" json:"attempts" validate:"gte=0"`
}

// AssignmentServiceConfig bounds uploaded images.
type AssignmentServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
}

// AssignmentService drives the assignment lifecycle: draft forms become
// persisted rows via create, rows mutate via update and leave via an
// irreversible delete. Image uploads run as a two-phase action: the
// object is stored before the row insert, and an insert failure schedules
// removal of the now-orphaned object.
type AssignmentService struct {
	repo      assignmentRepository
	classes   classReader
	bucket    imageBucket
	queue     cleanupQueue
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       AssignmentServiceConfig
	mimeSet   map[string]struct{}
}

// NewAssignmentService constructs the service with defaults.
func NewAssignmentService(repo assignmentRepository, classes classReader, bucket imageBucket, queue cleanupQueue, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg AssignmentServiceConfig) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 5 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"image/png", "image/jpeg", "image/webp"}
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(mt)] = struct{}{}
	}
	return &AssignmentService{
		repo:      repo,
		classes:   classes,
		bucket:    bucket,
		queue:     queue,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		mimeSet:   mimeSet,
	}
}

func assignmentsCacheKey(classID string) string {
	return fmt.Sprintf("assignments:class:%s", classID)
}

// List returns the assignments of a class, newest first.
func (s *AssignmentService) List(ctx context.Context, classID string) ([]models.Assignment, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class id is required")
	}
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	key := assignmentsCacheKey(classID)
	var cached []models.Assignment
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	assignments, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	_ = s.cache.Set(ctx, key, assignments, 0)
	return assignments, nil
}

// Get returns an assignment by id.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

// Create validates the draft, stores the optional image first and only
// then inserts the row. Attempts defaults to 1 when unspecified.
func (s *AssignmentService) Create(ctx context.Context, classID string, req CreateAssignmentRequest, upload *ImageUpload, actor *models.JWTClaims) (*models.Assignment, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "select a class before creating an assignment")
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title is required")
	}

	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwnership(class, actor); err != nil {
		return nil, err
	}

	attempts := req.Attempts
	if attempts == 0 {
		attempts = 1
	}

	var imageURL *string
	var uploadedKey string
	if upload != nil {
		key, url, err := s.storeImage(upload)
		if err != nil {
			return nil, err
		}
		uploadedKey = key
		imageURL = &url
	}

	assignment := &models.Assignment{
		ClassID:            classID,
		Title:              req.Title,
		ProblemDescription: req.ProblemDescription,
		CorrectAnswer:      req.CorrectAnswer,
		Attempts:           attempts,
		ImageURL:           imageURL,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		s.scheduleCleanup(uploadedKey)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}

	_ = s.cache.Invalidate(ctx, assignmentsCacheKey(classID))
	return assignment, nil
}

// Update modifies an assignment. A new image replaces the stored URL;
// otherwise image_url is preserved unchanged.
func (s *AssignmentService) Update(ctx context.Context, id string, req UpdateAssignmentRequest, upload *ImageUpload, actor *models.JWTClaims) (*models.Assignment, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title is required")
	}

	assignment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	class, err := s.loadClass(ctx, assignment.ClassID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwnership(class, actor); err != nil {
		return nil, err
	}

	var uploadedKey string
	if upload != nil {
		key, url, err := s.storeImage(upload)
		if err != nil {
			return nil, err
		}
		uploadedKey = key
		assignment.ImageURL = &url
	}

	assignment.Title = req.Title
	assignment.ProblemDescription = req.ProblemDescription
	assignment.CorrectAnswer = req.CorrectAnswer
	if req.Attempts > 0 {
		assignment.Attempts = req.Attempts
	}

	if err := s.repo.Update(ctx, assignment); err != nil {
		s.scheduleCleanup(uploadedKey)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
	}

	_ = s.cache.Invalidate(ctx, assignmentsCacheKey(assignment.ClassID))
	return assignment, nil
}

// Delete removes an assignment. Existing responses are kept; the bucket
// is append-only so the image stays as well.
func (s *AssignmentService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	assignment, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	class, err := s.loadClass(ctx, assignment.ClassID)
	if err != nil {
		return err
	}
	if err := s.requireOwnership(class, actor); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}

	_ = s.cache.Invalidate(ctx, assignmentsCacheKey(assignment.ClassID))
	return nil
}

func (s *AssignmentService) loadClass(ctx context.Context, classID string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

func (s *AssignmentService) requireOwnership(class *models.Class, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if class.CreatedBy != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "class belongs to another teacher")
	}
	return nil
}

func (s *AssignmentService) storeImage(upload *ImageUpload) (string, string, error) {
	if upload.Size > s.cfg.MaxFileSize {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "image exceeds the size limit")
	}
	if upload.MimeType != "" {
		if _, ok := s.mimeSet[strings.ToLower(upload.MimeType)]; !ok {
			return "", "", appErrors.Clone(appErrors.ErrValidation, "unsupported image type")
		}
	}

	key := s.bucket.UniqueKey(upload.Filename)
	if err := s.bucket.SaveStream(key, upload.Content); err != nil {
		s.metrics.RecordUpload("failed")
		return "", "", appErrors.Wrap(err, appErrors.ErrUploadFailed.Code, appErrors.ErrUploadFailed.Status, "failed to store image")
	}
	s.metrics.RecordUpload("stored")
	return key, s.bucket.PublicURL(key), nil
}

func (s *AssignmentService) scheduleCleanup(key string) {
	if key == "" || s.queue == nil {
		return
	}
	job := jobs.Job{ID: key, Type: UploadCleanupJobType, Payload: key}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Error("failed to schedule upload cleanup", zap.String("key", key), zap.Error(err))
		return
	}
	s.logger.Warn("scheduled cleanup of orphaned upload", zap.String("key", key))
}

// NewUploadCleanupHandler returns the queue handler that deletes orphaned
// uploaded objects.
func NewUploadCleanupHandler(bucket imageBucket, metrics *MetricsService, logger *zap.Logger) jobs.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job jobs.Job) error {
		key, ok := job.Payload.(string)
		if !ok || key == "" {
			return fmt.Errorf("upload cleanup job %s has no object key", job.ID)
		}
		if err := bucket.Delete(key); err != nil {
			return err
		}
		metrics.RecordUpload("orphan_cleaned")
		logger.Info("orphaned upload removed", zap.String("key", key))
		return nil
	}
}
