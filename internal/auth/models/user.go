package models

import "time"

type User struct {
	ID                    int64      `json:"id"`
	Username              string     `json:"username"`
	PasswordHash          string     `json:"-"`
	RequirePasswordChange bool       `json:"require_password_change"`
	IsAdmin               bool       `json:"is_admin"`
	LastLogin             *time.Time `json:"last_login,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token                 string `json:"token"`
	RequirePasswordChange bool   `json:"requirePasswordChange"`
}

type ChangePasswordRequest struct {
	NewPassword string `json:"newPassword"`
}
