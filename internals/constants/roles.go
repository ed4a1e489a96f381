package constants

const (
	RoleAdmin   = "admin"
	RoleProctor = "proctor"
	RoleStudent = "student"
)
