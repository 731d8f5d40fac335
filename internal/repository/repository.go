package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/pointledger/internal/models"
)

// Storage gives access to all repositories sharing the same connection
type Storage interface {
	Merchant() MerchantRepo
	Customer() CustomerRepo
	Catalog() CatalogRepo
	Balance() BalanceRepo
}

type MerchantRepo interface {
	CreateMerchant(ctx context.Context, m models.Merchant) (models.Merchant, error)

	// Has to return apperrors.ErrMerchantNotFound if merchant not exists
	GetMerchant(ctx context.Context, id uuid.UUID) (models.Merchant, error)

	ListMerchants(ctx context.Context) ([]models.Merchant, error)

	// Update every editable field of the merchant
	// Has to return apperrors.ErrMerchantNotFound if merchant not exists
	UpdateMerchant(ctx context.Context, m models.Merchant) (models.Merchant, error)
}

type CustomerRepo interface {
	// Has to return apperrors.ErrCustomerAlreadyExists if phone is taken
	CreateCustomer(ctx context.Context, c models.Customer) (models.Customer, error)

	// Get customer by id or normalized phone
	// If customer not found must return apperrors.ErrCustomerNotFound
	GetCustomer(ctx context.Context, id uuid.UUID) (models.Customer, error)
	GetCustomerByPhone(ctx context.Context, phone string) (models.Customer, error)
}

// Earn rules and rewards configuration
type CatalogRepo interface {
	CreateRule(ctx context.Context, r models.EarnRule) (models.EarnRule, error)

	// Has to return apperrors.ErrRuleNotFound if rule not exists (active or not)
	GetRule(ctx context.Context, id uuid.UUID) (models.EarnRule, error)
	ListRules(ctx context.Context, merchantID uuid.UUID) ([]models.EarnRule, error)
	SetRuleActive(ctx context.Context, id uuid.UUID, active bool) (models.EarnRule, error)

	CreateReward(ctx context.Context, r models.Reward) (models.Reward, error)

	// Has to return apperrors.ErrRewardNotFound if reward not exists (active or not)
	GetReward(ctx context.Context, id uuid.UUID) (models.Reward, error)

	// Rewards are ordered by points required, cheapest first
	ListRewards(ctx context.Context, merchantID uuid.UUID) ([]models.Reward, error)
	SetRewardActive(ctx context.Context, id uuid.UUID, active bool) (models.Reward, error)
}

type ListTransactionsOpts struct {
	Types []string // empty means all types
	Limit int      // zero means no limit
}

type ListCardHoldersOpts struct {
	Query string // case-insensitive substring of name, email or phone; empty means all
	Limit int    // zero means no limit
}

// Balance store
type BalanceRepo interface {
	// Return balance for the key
	// If there were no transactions yet, must return zero balance without error
	GetBalance(ctx context.Context, key models.BalanceKey) (models.Balance, error)

	// Apply transaction delta to the balance and append the transaction in one step
	// Balance is created on first positive delta
	// If resulting points would be negative must return apperrors.ErrBalanceInsufficient and change nothing
	ApplyDelta(ctx context.Context, tr models.Transaction) (models.Balance, error)

	// Transactions ordered from newest to oldest
	ListTransactions(ctx context.Context, key models.BalanceKey, opts ListTransactionsOpts) ([]models.Transaction, error)

	// All balances of customer across merchants
	ListCustomerBalances(ctx context.Context, customerID uuid.UUID) ([]models.Balance, error)

	MerchantStats(ctx context.Context, merchantID uuid.UUID) (models.MerchantStats, error)

	// Customers with a balance at the merchant, most points first
	ListCardHolders(ctx context.Context, merchantID uuid.UUID, opts ListCardHoldersOpts) ([]models.CardHolder, error)
}
