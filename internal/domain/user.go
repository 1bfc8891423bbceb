package domain

type UserRole string

const (
	RoleRegular  UserRole = "Regular"
	RoleSenior   UserRole = "SeniorCitizen"
	RoleDisabled UserRole = "Disabled"
	RoleAdmin    UserRole = "Admin"
)

type User struct {
	ID       int64    `json:"user_id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`
}
