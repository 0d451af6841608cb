package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fresadolab/cnc-training-api/internal/models"
)

// ClassRepository manages persistence for classes and their memberships.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns all classes, newest first.
func (r *ClassRepository) List(ctx context.Context) ([]models.Class, error) {
	const query = `SELECT id, name, created_by, created_at, updated_at FROM classes ORDER BY created_at DESC`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// ListByOwner returns classes created by the given teacher.
func (r *ClassRepository) ListByOwner(ctx context.Context, createdBy string) ([]models.Class, error) {
	const query = `SELECT id, name, created_by, created_at, updated_at FROM classes WHERE created_by = $1 ORDER BY created_at DESC`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, createdBy); err != nil {
		return nil, fmt.Errorf("list classes by owner: %w", err)
	}
	return classes, nil
}

// FindByID returns a class record by ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, created_by, created_at, updated_at FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// Create persists a class record.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now

	const query = `INSERT INTO classes (id, name, created_by, created_at, updated_at) VALUES (:id, :name, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// AddParticipant inserts a membership row.
func (r *ClassRepository) AddParticipant(ctx context.Context, participant *models.ClassParticipant) error {
	if participant.ID == "" {
		participant.ID = uuid.NewString()
	}
	if participant.CreatedAt.IsZero() {
		participant.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO class_participants (id, class_id, user_id, created_at) VALUES (:id, :class_id, :user_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, participant); err != nil {
		return fmt.Errorf("add class participant: %w", err)
	}
	return nil
}

// ParticipantExists checks whether the membership row already exists.
func (r *ClassRepository) ParticipantExists(ctx context.Context, classID, userID string) (bool, error) {
	const query = `SELECT 1 FROM class_participants WHERE class_id = $1 AND user_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, classID, userID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class participant: %w", err)
	}
	return true, nil
}

// ListParticipants returns the profiles enrolled in a class.
func (r *ClassRepository) ListParticipants(ctx context.Context, classID string) ([]models.User, error) {
	const query = `SELECT u.id, u.email, u.password_hash, u.display_name, u.role, u.created_at, u.updated_at
        FROM class_participants cp
        JOIN users u ON u.id = cp.user_id
        WHERE cp.class_id = $1
        ORDER BY cp.created_at ASC`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, classID); err != nil {
		return nil, fmt.Errorf("list class participants: %w", err)
	}
	return users, nil
}
