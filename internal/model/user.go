package model

import "time"

// Role is the access level of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// DefaultUserID owns the aggregate used by anonymous (single-tenant) calls.
const DefaultUserID = "default"

// User represents an account in the credential store.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// IsAdmin reports whether the account has the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CreateUserRequest represents a user registration request.
type CreateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse represents an authentication response with a JWT token and user info.
type AuthResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    UserResponse `json:"user"`
}

// UserResponse represents user data safe for API responses (no sensitive fields).
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToResponse strips the password hash.
func (u User) ToResponse() UserResponse {
	role := u.Role
	if role == "" {
		role = RoleUser
	}
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      role,
		CreatedAt: u.CreatedAt,
	}
}
