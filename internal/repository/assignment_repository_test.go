package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fresadolab/cnc-training-api/internal/models"
)

func assignmentRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "class_id", "title", "problem_description", "correct_answer", "attempts", "image_url", "created_at", "updated_at"}).
		AddRow("a1", "c1", "Face milling", "Write the program", "G0 X0 Y0", 3, nil, now, now)
}

func TestListAssignmentsByClass(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, class_id, title, problem_description, correct_answer, attempts, image_url, created_at, updated_at FROM assignments WHERE class_id = $1 ORDER BY created_at DESC")).
		WithArgs("c1").
		WillReturnRows(assignmentRows(now))

	assignments, err := repo.ListByClass(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, assignments, 1)
	assert.Equal(t, "Face milling", assignments[0].Title)
	assert.Nil(t, assignments[0].ImageURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAssignmentIDsByClass(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM assignments WHERE class_id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a1").AddRow("a2"))

	ids, err := repo.ListIDsByClass(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindAssignmentNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, class_id, title, problem_description, correct_answer, attempts, image_url, created_at, updated_at FROM assignments WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAssignmentAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec("INSERT INTO assignments").WillReturnResult(sqlmock.NewResult(1, 1))

	assignment := &models.Assignment{ClassID: "c1", Title: "Face milling", Attempts: 1}
	err := repo.Create(context.Background(), assignment)
	require.NoError(t, err)
	assert.NotEmpty(t, assignment.ID)
	assert.False(t, assignment.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAssignmentTouchesTimestamp(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec("UPDATE assignments SET").WillReturnResult(sqlmock.NewResult(0, 1))

	assignment := &models.Assignment{ID: "a1", ClassID: "c1", Title: "Face milling v2", Attempts: 2}
	before := assignment.UpdatedAt
	err := repo.Update(context.Background(), assignment)
	require.NoError(t, err)
	assert.True(t, assignment.UpdatedAt.After(before))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAssignment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM assignments WHERE id = $1")).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), "a1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
