package models

import "github.com/golang-jwt/jwt/v5"

// Role is the calendar audience resolved by the identity layer.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleTeacher, RoleParent, RoleAdmin:
		return true
	}
	return false
}

// Viewer is the identity-derived filter attached to calendar reads.
type Viewer struct {
	Role      Role   `json:"role"`
	UserID    string `json:"user_id,omitempty"`
	TeacherID string `json:"teacher_id,omitempty"`
	StudentID string `json:"student_id,omitempty"`
}

// ViewerClaims is the JWT payload issued by the identity layer.
type ViewerClaims struct {
	Role      Role   `json:"role"`
	TeacherID string `json:"teacher_id,omitempty"`
	StudentID string `json:"student_id,omitempty"`
	jwt.RegisteredClaims
}

// Viewer converts verified claims into a read filter; the subject is the teacher's own id.
func (c *ViewerClaims) Viewer() Viewer {
	v := Viewer{Role: c.Role, UserID: c.Subject, TeacherID: c.TeacherID, StudentID: c.StudentID}
	if v.Role == RoleTeacher && v.UserID == "" {
		v.UserID = c.TeacherID
	}
	return v
}

// LessonScope is the single dimension a viewer may read.
type LessonScope struct {
	TeacherID string
	StudentID string
}
