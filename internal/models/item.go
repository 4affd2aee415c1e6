package models

import (
	"time"

	"github.com/google/uuid"
)

// Item представляет предмет, выставленный для обмена.
// Движок обмена меняет у предмета только OwnerID и Available.
type Item struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Title     string    `json:"title"`
	Available bool      `json:"available"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
