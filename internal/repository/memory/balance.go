package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/pointledger/internal/apperrors"
	"github.com/nkiryanov/pointledger/internal/models"
	"github.com/nkiryanov/pointledger/internal/repository"
)

type balanceRepo Storage

func (r *balanceRepo) GetBalance(_ context.Context, key models.BalanceKey) (models.Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.balance(key), nil
}

// must be called with lock held
func (r *balanceRepo) balance(key models.BalanceKey) models.Balance {
	b, ok := r.balances[key]
	if !ok {
		return models.Balance{CustomerID: key.CustomerID, MerchantID: key.MerchantID}
	}
	return b
}

func (r *balanceRepo) ApplyDelta(_ context.Context, tr models.Transaction) (models.Balance, error) {
	if err := tr.CheckDelta(); err != nil {
		return models.Balance{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.customers[tr.CustomerID]; !ok {
		return models.Balance{}, apperrors.ErrCustomerNotFound
	}
	if _, ok := r.merchants[tr.MerchantID]; !ok {
		return models.Balance{}, apperrors.ErrMerchantNotFound
	}

	key := tr.Key()
	b := r.balance(key)
	if b.Points+tr.Delta < 0 {
		return b, apperrors.ErrBalanceInsufficient
	}

	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	if tr.ProcessedAt.IsZero() {
		tr.ProcessedAt = r.now()
	}

	b.Points += tr.Delta
	if tr.Delta > 0 {
		b.Earned += tr.Delta
	} else {
		b.Redeemed -= tr.Delta
	}
	b.UpdatedAt = tr.ProcessedAt

	r.balances[key] = b
	r.ledger[key] = append(r.ledger[key], tr)

	return b, nil
}

func (r *balanceRepo) ListTransactions(_ context.Context, key models.BalanceKey, opts repository.ListTransactionsOpts) ([]models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ledger := r.ledger[key]
	transactions := make([]models.Transaction, 0, len(ledger))

	// Ledger is append-only, so walk it backwards to get newest first
	for i := len(ledger) - 1; i >= 0; i-- {
		if opts.Limit > 0 && len(transactions) == opts.Limit {
			break
		}
		if len(opts.Types) > 0 && !slices.Contains(opts.Types, ledger[i].Type) {
			continue
		}
		transactions = append(transactions, ledger[i])
	}

	return transactions, nil
}

func (r *balanceRepo) ListCustomerBalances(_ context.Context, customerID uuid.UUID) ([]models.Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	balances := make([]models.Balance, 0)
	for key, b := range r.balances {
		if key.CustomerID == customerID {
			balances = append(balances, b)
		}
	}

	slices.SortFunc(balances, func(a, b models.Balance) int {
		return slices.Compare(a.MerchantID[:], b.MerchantID[:])
	})

	return balances, nil
}

func (r *balanceRepo) MerchantStats(_ context.Context, merchantID uuid.UUID) (models.MerchantStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := models.MerchantStats{MerchantID: merchantID}
	for key, b := range r.balances {
		if key.MerchantID != merchantID {
			continue
		}
		stats.Customers++
		stats.OutstandingPoints += b.Points
		stats.EarnedPoints += b.Earned
		stats.RedeemedPoints += b.Redeemed
	}

	return stats, nil
}

func (r *balanceRepo) ListCardHolders(_ context.Context, merchantID uuid.UUID, opts repository.ListCardHoldersOpts) ([]models.CardHolder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := strings.ToLower(opts.Query)
	holders := make([]models.CardHolder, 0)
	for key, b := range r.balances {
		if key.MerchantID != merchantID {
			continue
		}
		c := r.customers[key.CustomerID]
		if query != "" &&
			!strings.Contains(strings.ToLower(c.Name), query) &&
			!strings.Contains(strings.ToLower(c.Email), query) &&
			!strings.Contains(c.Phone, query) {
			continue
		}
		holders = append(holders, models.CardHolder{Customer: c, Balance: b})
	}

	slices.SortFunc(holders, func(a, b models.CardHolder) int {
		return cmp.Or(
			cmp.Compare(b.Balance.Points, a.Balance.Points),
			cmp.Compare(a.Customer.Name, b.Customer.Name),
			slices.Compare(a.Customer.ID[:], b.Customer.ID[:]),
		)
	})

	if opts.Limit > 0 && len(holders) > opts.Limit {
		holders = holders[:opts.Limit]
	}

	return holders, nil
}
