package models

import "time"

// Student represents a learner registered in the school.
type Student struct {
	ID        string    `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Email     string    `db:"email" json:"email"`
	ClassID   string    `db:"class_id" json:"class_id"`
	StreamID  string    `db:"stream_id" json:"stream_id"`
	PhotoURL  *string   `db:"photo_url" json:"photo_url,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FullName joins the student's names for display and exports.
func (s Student) FullName() string {
	if s.FirstName == "" {
		return s.LastName
	}
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// StudentDetail extends Student with class and stream names for responses.
type StudentDetail struct {
	Student
	ClassName  string `db:"class_name" json:"class_name"`
	StreamName string `db:"stream_name" json:"stream_name"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	ClassID   string
	StreamID  string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// CreateStudentRequest provisions a new student account.
// Email and password are generated server-side when omitted.
type CreateStudentRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
	StreamID  string `json:"stream_id" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
}

// UpdateStudentRequest mutates an existing student.
type UpdateStudentRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	ClassID   *string `json:"class_id,omitempty"`
	StreamID  *string `json:"stream_id,omitempty"`
	PhotoURL  *string `json:"photo_url,omitempty"`
	Active    *bool   `json:"active,omitempty"`
}

// ProvisionedStudent returns the created student with the one-time password.
type ProvisionedStudent struct {
	Student  Student `json:"student"`
	Password string  `json:"password"`
}
