package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/pointledger/internal/apperrors"
)

const (
	TransactionTypeEarn   = "earn"
	TransactionTypeRedeem = "redeem"
)

// BalanceKey identifies a single balance: points are scoped per customer and merchant
type BalanceKey struct {
	CustomerID uuid.UUID
	MerchantID uuid.UUID
}

func (k BalanceKey) String() string {
	return k.CustomerID.String() + "/" + k.MerchantID.String()
}

type Balance struct {
	CustomerID uuid.UUID
	MerchantID uuid.UUID
	Points     int64 // never negative
	Earned     int64 // lifetime earned
	Redeemed   int64 // lifetime redeemed
	UpdatedAt  time.Time
}

func (b Balance) Key() BalanceKey {
	return BalanceKey{CustomerID: b.CustomerID, MerchantID: b.MerchantID}
}

// Transaction is an append-only ledger record
// Delta is positive for earn and negative for redeem
type Transaction struct {
	ID          uuid.UUID
	ProcessedAt time.Time
	CustomerID  uuid.UUID
	MerchantID  uuid.UUID
	Type        string
	Delta       int64
	ReasonID    uuid.UUID // EarnRule.ID for earn, Reward.ID for redeem
	Description string
}

func (t Transaction) Key() BalanceKey {
	return BalanceKey{CustomerID: t.CustomerID, MerchantID: t.MerchantID}
}

// CheckDelta reports apperrors.ErrInvalidInput if delta sign does not match the type
func (t Transaction) CheckDelta() error {
	switch {
	case t.Type == TransactionTypeEarn && t.Delta > 0:
		return nil
	case t.Type == TransactionTypeRedeem && t.Delta < 0:
		return nil
	}
	return fmt.Errorf("%w: %q transaction with delta %d", apperrors.ErrInvalidInput, t.Type, t.Delta)
}

// CardHolder is a customer holding a card (balance) at the merchant
type CardHolder struct {
	Customer Customer
	Balance  Balance
}

// BalanceEvent is emitted after a transaction is committed
type BalanceEvent struct {
	Transaction Transaction
	Balance     Balance
}

// MerchantStats aggregates balances of a single merchant
type MerchantStats struct {
	MerchantID        uuid.UUID
	Customers         int64
	OutstandingPoints int64
	EarnedPoints      int64
	RedeemedPoints    int64
}
