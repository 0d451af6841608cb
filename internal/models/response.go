package models

import "time"

// StudentResponse is a submitted answer for an assignment.
type StudentResponse struct {
	ID           string    `db:"id" json:"id"`
	AssignmentID string    `db:"assignment_id" json:"assignment_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	Response     string    `db:"response" json:"response"`
	IsCorrect    bool      `db:"is_correct" json:"is_correct"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// StudentResponseDetail enriches a response with the student and
// assignment context the review console displays.
type StudentResponseDetail struct {
	StudentResponse
	StudentName     string `db:"student_name" json:"student_name"`
	StudentEmail    string `db:"student_email" json:"student_email"`
	AssignmentTitle string `db:"assignment_title" json:"assignment_title"`
}
