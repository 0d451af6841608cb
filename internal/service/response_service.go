package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fresadolab/cnc-training-api/internal/models"
	appErrors "github.com/fresadolab/cnc-training-api/pkg/errors"
)

type responseRepository interface {
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.StudentResponseDetail, error)
	ListByAssignmentIDs(ctx context.Context, assignmentIDs []string) ([]models.StudentResponseDetail, error)
	CountByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (int, error)
	Create(ctx context.Context, response *models.StudentResponse) error
}

type assignmentIDLister interface {
	ListIDsByClass(ctx context.Context, classID string) ([]string, error)
}

// ResponseFilter narrows an already-fetched review list. Filtering is a
// plain predicate pass, no re-fetch.
type ResponseFilter struct {
	AssignmentID string
	StudentID    string
}

// SubmitResponseRequest is a student's answer for an assignment.
type SubmitResponseRequest struct {
	Response string `json:"response" validate:"required"`
}

// ResponseService covers the teacher review workflow and the student
// submission flow.
type ResponseService struct {
	repo        responseRepository
	assignments *AssignmentService
	ids         assignmentIDLister
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewResponseService constructs ResponseService.
func NewResponseService(repo responseRepository, assignments *AssignmentService, ids assignmentIDLister, validate *validator.Validate, logger *zap.Logger) *ResponseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseService{repo: repo, assignments: assignments, ids: ids, validator: validate, logger: logger}
}

// ListByAssignment returns the enriched responses for one assignment.
func (s *ResponseService) ListByAssignment(ctx context.Context, assignmentID string) ([]models.StudentResponseDetail, error) {
	if _, err := s.assignments.Get(ctx, assignmentID); err != nil {
		return nil, err
	}
	responses, err := s.repo.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list responses")
	}
	return responses, nil
}

// ListByClass resolves the class's assignment ids first and fetches the
// responses by set membership. A class with zero assignments returns an
// empty result without ever issuing the membership query.
func (s *ResponseService) ListByClass(ctx context.Context, classID string, filter ResponseFilter) ([]models.StudentResponseDetail, error) {
	if _, err := s.assignments.loadClass(ctx, classID); err != nil {
		return nil, err
	}

	assignmentIDs, err := s.ids.ListIDsByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve assignments")
	}
	if len(assignmentIDs) == 0 {
		return []models.StudentResponseDetail{}, nil
	}

	responses, err := s.repo.ListByAssignmentIDs(ctx, assignmentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list responses")
	}
	return applyFilter(responses, filter), nil
}

// ClassName resolves a class's display name, mostly for export filenames.
func (s *ResponseService) ClassName(ctx context.Context, classID string) (string, error) {
	class, err := s.assignments.loadClass(ctx, classID)
	if err != nil {
		return "", err
	}
	return class.Name, nil
}

// Submit records a student's answer, grading it against the assignment's
// correct answer. Submissions beyond the attempt limit are refused.
func (s *ResponseService) Submit(ctx context.Context, assignmentID string, req SubmitResponseRequest, actor *models.JWTClaims) (*models.StudentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "response is required")
	}

	assignment, err := s.assignments.Get(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	used, err := s.repo.CountByAssignmentAndStudent(ctx, assignmentID, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attempts")
	}
	if used >= assignment.Attempts {
		return nil, appErrors.Clone(appErrors.ErrAttemptsExhausted, "attempt limit reached for this assignment")
	}

	response := &models.StudentResponse{
		AssignmentID: assignmentID,
		StudentID:    actor.UserID,
		Response:     req.Response,
		IsCorrect:    gradeAnswer(req.Response, assignment.CorrectAnswer),
	}
	if err := s.repo.Create(ctx, response); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record response")
	}

	s.logger.Info("response submitted",
		zap.String("assignment_id", assignmentID),
		zap.String("student_id", actor.UserID),
		zap.Bool("is_correct", response.IsCorrect),
	)
	return response, nil
}

// gradeAnswer compares a submission with the expected machine-control
// code. Whitespace and letter case carry no meaning in G-code, so both
// are ignored.
func gradeAnswer(submitted, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(expected))
}

func applyFilter(responses []models.StudentResponseDetail, filter ResponseFilter) []models.StudentResponseDetail {
	if filter.AssignmentID == "" && filter.StudentID == "" {
		return responses
	}
	filtered := make([]models.StudentResponseDetail, 0, len(responses))
	for _, r := range responses {
		if filter.AssignmentID != "" && r.AssignmentID != filter.AssignmentID {
			continue
		}
		if filter.StudentID != "" && r.StudentID != filter.StudentID {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}
