package model

// Role is the application role carried in the bearer token.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Student identifies the user taking exams.
type Student struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Faculty string `json:"faculty"`
	Role    Role   `json:"role"`
}
