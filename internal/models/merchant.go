package models

import (
	"time"

	"github.com/google/uuid"
)

// Merchant is a restaurant running its own loyalty program
type Merchant struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Name      string
	Email     string
	Category  string
	Active    bool

	// Points a card has to collect to be shown as "complete" in the card view
	RedemptionThreshold int64
}
