package domain

import (
	"strings"
	"time"
)

type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	Role           string    `json:"role"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type UserInput struct {
	Email          string `json:"email"`
	Name           string `json:"name"`
	Provider       string `json:"provider"`
	ProviderUserID string `json:"provider_user_id"`
	Role           string `json:"role"`
}

type UserUpdate struct {
	Email  *string `json:"email,omitempty"`
	Name   *string `json:"name,omitempty"`
	Role   *string `json:"role,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

type UserOutput struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Provider  string    `json:"provider"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (in *UserInput) Validate() error {
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return NewValidationError("email is required and must contain @")
	}
	if in.Provider == "" {
		return NewValidationError("provider is required")
	}
	if in.ProviderUserID == "" {
		return NewValidationError("provider_user_id is required")
	}
	return nil
}

func (u *UserUpdate) Validate() error {
	if u.Email != nil && !strings.Contains(*u.Email, "@") {
		return NewValidationError("email must contain @")
	}
	return nil
}
