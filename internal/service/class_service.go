package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fresadolab/cnc-training-api/internal/models"
	appErrors "github.com/fresadolab/cnc-training-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context) ([]models.Class, error)
	ListByOwner(ctx context.Context, createdBy string) ([]models.Class, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	AddParticipant(ctx context.Context, participant *models.ClassParticipant) error
	ParticipantExists(ctx context.Context, classID, userID string) (bool, error)
	ListParticipants(ctx context.Context, classID string) ([]models.User, error)
}

type profileReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateClassRequest captures creation payload.
type CreateClassRequest struct {
	Name string `json:"name" validate:"required"`
}

// AddParticipantRequest enrolls a profile into a class.
type AddParticipantRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

const classesCacheKey = "classes:all"

// ClassService coordinates the class and participant workflows.
type ClassService struct {
	repo      classRepository
	profiles  profileReader
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo classRepository, profiles profileReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, profiles: profiles, cache: cache, validator: validate, logger: logger}
}

// List returns all classes, or only the caller's own when mine is set.
// The owner scope is resolved from the actor's identity on every call.
func (s *ClassService) List(ctx context.Context, actor *models.JWTClaims, mine bool) ([]models.Class, error) {
	if mine {
		classes, err := s.repo.ListByOwner(ctx, actor.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
		}
		return classes, nil
	}

	var cached []models.Class
	if hit, _ := s.cache.Get(ctx, classesCacheKey, &cached); hit {
		return cached, nil
	}

	classes, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	_ = s.cache.Set(ctx, classesCacheKey, classes, 0)
	return classes, nil
}

// Create adds a new class owned by the acting teacher or admin. A blank
// name never reaches the store.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest, actor *models.JWTClaims) (*models.Class, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class name is required")
	}

	class := &models.Class{
		Name:      req.Name,
		CreatedBy: actor.UserID,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}

	_ = s.cache.Invalidate(ctx, classesCacheKey)
	return class, nil
}

// AddParticipant enrolls a profile into a class. Duplicate memberships
// are rejected instead of silently producing a second relation row.
func (s *ClassService) AddParticipant(ctx context.Context, classID string, req AddParticipantRequest) (*models.ClassParticipant, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class id is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}

	if _, err := s.repo.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if _, err := s.profiles.FindByID(ctx, req.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}

	exists, err := s.repo.ParticipantExists(ctx, classID, req.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "profile is already a participant")
	}

	participant := &models.ClassParticipant{ClassID: classID, UserID: req.UserID}
	if err := s.repo.AddParticipant(ctx, participant); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add participant")
	}
	return participant, nil
}

// ListParticipants returns the profiles enrolled in a class.
func (s *ClassService) ListParticipants(ctx context.Context, classID string) ([]models.User, error) {
	if _, err := s.repo.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	participants, err := s.repo.ListParticipants(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list participants")
	}
	return participants, nil
}
