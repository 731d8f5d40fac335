package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/pointledger/internal/models"
	"github.com/nkiryanov/pointledger/internal/repository"
	"github.com/nkiryanov/pointledger/internal/service/redemption"
)

// Card is a customer balance at a merchant with everything the card screen shows
type Card struct {
	Merchant models.Merchant
	Balance  models.Balance

	// Rewards redeemable right now, cheapest first
	Affordable []models.Reward

	// All active rewards with their shortfall, cheapest first
	Rewards []redemption.RewardStatus

	// Percent of the merchant redemption threshold collected
	Progress int
}

type CardSummary struct {
	Merchant models.Merchant
	Balance  models.Balance
	Progress int
}

type CustomerCards struct {
	Customer    models.Customer
	Cards       []CardSummary
	TotalPoints int64 // sum across merchants
}

func (p *Processor) Card(ctx context.Context, key models.BalanceKey) (Card, error) {
	if _, err := p.storage.Customer().GetCustomer(ctx, key.CustomerID); err != nil {
		return Card{}, err
	}

	merchant, err := p.storage.Merchant().GetMerchant(ctx, key.MerchantID)
	if err != nil {
		return Card{}, err
	}

	balance, err := p.storage.Balance().GetBalance(ctx, key)
	if err != nil {
		return Card{}, err
	}

	rewards, err := p.storage.Catalog().ListRewards(ctx, key.MerchantID)
	if err != nil {
		return Card{}, err
	}

	now := p.now()
	return Card{
		Merchant:   merchant,
		Balance:    balance,
		Affordable: redemption.AffordableRewards(balance.Points, rewards, now),
		Rewards:    redemption.Statuses(balance.Points, rewards, now),
		Progress:   redemption.Progress(balance.Points, merchant.RedemptionThreshold),
	}, nil
}

func (p *Processor) Cards(ctx context.Context, customerID uuid.UUID) (CustomerCards, error) {
	customer, err := p.storage.Customer().GetCustomer(ctx, customerID)
	if err != nil {
		return CustomerCards{}, err
	}

	balances, err := p.storage.Balance().ListCustomerBalances(ctx, customerID)
	if err != nil {
		return CustomerCards{}, err
	}

	cards := CustomerCards{
		Customer: customer,
		Cards:    make([]CardSummary, 0, len(balances)),
	}
	for _, balance := range balances {
		merchant, err := p.storage.Merchant().GetMerchant(ctx, balance.MerchantID)
		if err != nil {
			return CustomerCards{}, err
		}

		cards.TotalPoints += balance.Points
		cards.Cards = append(cards.Cards, CardSummary{
			Merchant: merchant,
			Balance:  balance,
			Progress: redemption.Progress(balance.Points, merchant.RedemptionThreshold),
		})
	}

	return cards, nil
}

// History lists ledger records of the balance, newest first
func (p *Processor) History(ctx context.Context, key models.BalanceKey, opts repository.ListTransactionsOpts) ([]models.Transaction, error) {
	if _, err := p.storage.Customer().GetCustomer(ctx, key.CustomerID); err != nil {
		return nil, err
	}
	if _, err := p.storage.Merchant().GetMerchant(ctx, key.MerchantID); err != nil {
		return nil, err
	}

	return p.storage.Balance().ListTransactions(ctx, key, opts)
}
