package models

import "time"

// Student represents a learner; ParentID is a weak reference.
type Student struct {
	ID        string    `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Level     *string   `db:"level" json:"level,omitempty"`
	ParentID  *string   `db:"parent_id" json:"parent_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search   string
	ParentID string
	Page     int
	PageSize int
}

// StudentDetail joins the parent display name for admin listings.
type StudentDetail struct {
	Student
	ParentName *string `db:"parent_name" json:"parent_name,omitempty"`
}
