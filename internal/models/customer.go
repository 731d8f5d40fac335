package models

import (
	"time"

	"github.com/google/uuid"
)

type Customer struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Name      string
	Email     string
	Phone     string // normalized, see lookup.NormalizePhone
}
