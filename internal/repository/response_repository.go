package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fresadolab/cnc-training-api/internal/models"
)

// ResponseRepository handles persistence of student responses.
type ResponseRepository struct {
	db *sqlx.DB
}

// NewResponseRepository constructs the repository.
func NewResponseRepository(db *sqlx.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

const responseDetailColumns = `sr.id, sr.assignment_id, sr.student_id, sr.response, sr.is_correct, sr.created_at,
        u.display_name AS student_name, u.email AS student_email, COALESCE(a.title, '') AS assignment_title`

// ListByAssignment returns enriched responses for one assignment.
func (r *ResponseRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.StudentResponseDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM student_responses sr
        JOIN users u ON u.id = sr.student_id
        LEFT JOIN assignments a ON a.id = sr.assignment_id
        WHERE sr.assignment_id = $1
        ORDER BY sr.created_at DESC`, responseDetailColumns)
	var responses []models.StudentResponseDetail
	if err := r.db.SelectContext(ctx, &responses, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list responses by assignment: %w", err)
	}
	return responses, nil
}

// ListByAssignmentIDs returns enriched responses for a set of assignments.
// Callers must never pass an empty set; the class-scoped review flow
// short-circuits before reaching this query.
func (r *ResponseRepository) ListByAssignmentIDs(ctx context.Context, assignmentIDs []string) ([]models.StudentResponseDetail, error) {
	base := fmt.Sprintf(`SELECT %s
        FROM student_responses sr
        JOIN users u ON u.id = sr.student_id
        LEFT JOIN assignments a ON a.id = sr.assignment_id
        WHERE sr.assignment_id IN (?)
        ORDER BY sr.created_at DESC`, responseDetailColumns)
	query, args, err := sqlx.In(base, assignmentIDs)
	if err != nil {
		return nil, fmt.Errorf("build responses query: %w", err)
	}
	query = r.db.Rebind(query)
	var responses []models.StudentResponseDetail
	if err := r.db.SelectContext(ctx, &responses, query, args...); err != nil {
		return nil, fmt.Errorf("list responses by assignment set: %w", err)
	}
	return responses, nil
}

// CountByAssignmentAndStudent returns how many submissions a student has
// already used for the assignment.
func (r *ResponseRepository) CountByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM student_responses WHERE assignment_id = $1 AND student_id = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, assignmentID, studentID); err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	return count, nil
}

// Create persists a submitted response.
func (r *ResponseRepository) Create(ctx context.Context, response *models.StudentResponse) error {
	if response.ID == "" {
		response.ID = uuid.NewString()
	}
	if response.CreatedAt.IsZero() {
		response.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_responses (id, assignment_id, student_id, response, is_correct, created_at) VALUES (:id, :assignment_id, :student_id, :response, :is_correct, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, response); err != nil {
		return fmt.Errorf("create response: %w", err)
	}
	return nil
}
