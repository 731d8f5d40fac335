package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EarnRule maps a customer action to a point award
//
// If SpendUnit is set the rule is spend-based: PointsAwarded is granted
// for every full SpendUnit of the purchase amount
type EarnRule struct {
	ID            uuid.UUID
	MerchantID    uuid.UUID
	CreatedAt     time.Time
	Description   string
	PointsAwarded int64
	SpendUnit     decimal.NullDecimal
	Active        bool
}

type Reward struct {
	ID             uuid.UUID
	MerchantID     uuid.UUID
	CreatedAt      time.Time
	Title          string
	Description    string
	PointsRequired int64
	Active         bool
	ExpiresAt      *time.Time // nil if reward never expires
}
