package models

import "github.com/google/uuid"

// User представляет минимальную информацию о пользователе
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username,omitempty"`
	Email    string    `json:"-"`
	Verified bool      `json:"verified"`
}
