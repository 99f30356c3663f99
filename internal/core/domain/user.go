package domain

import "time"

// Role is the closed set of portal roles an identity can register with.
type Role string

const (
	RoleStudent    Role = "student"
	RoleDepartment Role = "department"
	RoleCompany    Role = "company"
)

// Valid reports whether r is one of the registrable roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleDepartment, RoleCompany:
		return true
	}
	return false
}

// User models an identity record held by the credential store.
type User struct {
	ID           string    `json:"user_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	RealName     string    `json:"real_name"`
	Nickname     string    `json:"nickname"`
	Role         Role      `json:"role"`
	IsAdmin      bool      `json:"is_admin"`
	IsDeleted    bool      `json:"-"`
	RegisteredAt time.Time `json:"registered_at"`
}
