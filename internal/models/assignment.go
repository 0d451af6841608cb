package models

import "time"

// Assignment is a milling exercise published to a class. The correct
// answer is a machine-control code (e.g. "G01 X10 Y5") and attempts caps
// how many submissions each student gets.
type Assignment struct {
	ID                 string    `db:"id" json:"id"`
	ClassID            string    `db:"class_id" json:"class_id"`
	Title              string    `db:"title" json:"title"`
	ProblemDescription string    `db:"problem_description" json:"problem_description"`
	CorrectAnswer      string    `db:"correct_answer" json:"correct_answer"`
	Attempts           int       `db:"attempts" json:"attempts"`
	ImageURL           *string   `db:"image_url" json:"image_url,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}
