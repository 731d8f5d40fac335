package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/pointledger/internal/apperrors"
	"github.com/nkiryanov/pointledger/internal/models"
	"github.com/nkiryanov/pointledger/internal/repository"
)

func newKey(t *testing.T, s *Storage, phone string) models.BalanceKey {
	t.Helper()

	merchant, err := s.Merchant().CreateMerchant(t.Context(), models.Merchant{Name: "Pizza Place", Active: true})
	require.NoError(t, err)
	customer, err := s.Customer().CreateCustomer(t.Context(), models.Customer{Name: "Jane", Phone: phone})
	require.NoError(t, err)

	return models.BalanceKey{CustomerID: customer.ID, MerchantID: merchant.ID}
}

func tr(key models.BalanceKey, delta int64) models.Transaction {
	typ := models.TransactionTypeEarn
	if delta < 0 {
		typ = models.TransactionTypeRedeem
	}
	return models.Transaction{CustomerID: key.CustomerID, MerchantID: key.MerchantID, Type: typ, Delta: delta, ReasonID: uuid.New()}
}

func TestBalance(t *testing.T) {
	t.Run("zero if never earned", func(t *testing.T) {
		s := NewStorage()
		key := newKey(t, s, "+15550000001")

		balance, err := s.Balance().GetBalance(t.Context(), key)

		require.NoError(t, err)
		require.Equal(t, key, balance.Key())
		require.Zero(t, balance.Points)
	})

	t.Run("earn and redeem", func(t *testing.T) {
		s := NewStorage()
		now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return now }
		key := newKey(t, s, "+15550000001")

		_, err := s.Balance().ApplyDelta(t.Context(), tr(key, 700))
		require.NoError(t, err)
		balance, err := s.Balance().ApplyDelta(t.Context(), tr(key, -700))
		require.NoError(t, err)

		require.Equal(t, models.Balance{
			CustomerID: key.CustomerID,
			MerchantID: key.MerchantID,
			Points:     0,
			Earned:     700,
			Redeemed:   700,
			UpdatedAt:  now,
		}, balance)
	})

	t.Run("insufficient", func(t *testing.T) {
		s := NewStorage()
		key := newKey(t, s, "+15550000001")
		_, err := s.Balance().ApplyDelta(t.Context(), tr(key, 120))
		require.NoError(t, err)

		_, err = s.Balance().ApplyDelta(t.Context(), tr(key, -500))

		require.ErrorIs(t, err, apperrors.ErrBalanceInsufficient)
		history, err := s.Balance().ListTransactions(t.Context(), key, repository.ListTransactionsOpts{})
		require.NoError(t, err)
		require.Len(t, history, 1)
	})

	t.Run("unknown parties", func(t *testing.T) {
		s := NewStorage()
		key := newKey(t, s, "+15550000001")

		_, err := s.Balance().ApplyDelta(t.Context(), tr(models.BalanceKey{CustomerID: uuid.New(), MerchantID: key.MerchantID}, 1))
		require.ErrorIs(t, err, apperrors.ErrCustomerNotFound)

		_, err = s.Balance().ApplyDelta(t.Context(), tr(models.BalanceKey{CustomerID: key.CustomerID, MerchantID: uuid.New()}, 1))
		require.ErrorIs(t, err, apperrors.ErrMerchantNotFound)
	})

	t.Run("zero delta", func(t *testing.T) {
		s := NewStorage()
		key := newKey(t, s, "+15550000001")

		_, err := s.Balance().ApplyDelta(t.Context(), tr(key, 0))

		require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("delta sign must match type", func(t *testing.T) {
		s := NewStorage()
		key := newKey(t, s, "+15550000001")
		_, err := s.Balance().ApplyDelta(t.Context(), tr(key, 700))
		require.NoError(t, err)

		negativeEarn := tr(key, -100)
		negativeEarn.Type = models.TransactionTypeEarn
		positiveRedeem := tr(key, 100)
		positiveRedeem.Type = models.TransactionTypeRedeem

		for _, bad := range []models.Transaction{negativeEarn, positiveRedeem} {
			_, err := s.Balance().ApplyDelta(t.Context(), bad)
			require.ErrorIs(t, err, apperrors.ErrInvalidInput)
		}

		balance, err := s.Balance().GetBalance(t.Context(), key)
		require.NoError(t, err)
		require.Equal(t, int64(700), balance.Points)
		history, err := s.Balance().ListTransactions(t.Context(), key, repository.ListTransactionsOpts{})
		require.NoError(t, err)
		require.Len(t, history, 1)
	})

	t.Run("concurrent redeems never overdraw", func(t *testing.T) {
		s := NewStorage()
		key := newKey(t, s, "+15550000001")
		_, err := s.Balance().ApplyDelta(t.Context(), tr(key, 100))
		require.NoError(t, err)

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = s.Balance().ApplyDelta(t.Context(), tr(key, -30))
			}()
		}
		wg.Wait()

		balance, err := s.Balance().GetBalance(t.Context(), key)
		require.NoError(t, err)
		require.Equal(t, int64(10), balance.Points)
		require.Equal(t, int64(90), balance.Redeemed)
	})

	t.Run("history newest first with filter and limit", func(t *testing.T) {
		s := NewStorage()
		key := newKey(t, s, "+15550000001")
		for _, delta := range []int64{700, -500, 50} {
			_, err := s.Balance().ApplyDelta(t.Context(), tr(key, delta))
			require.NoError(t, err)
		}

		history, err := s.Balance().ListTransactions(t.Context(), key, repository.ListTransactionsOpts{})
		require.NoError(t, err)
		require.Len(t, history, 3)
		require.Equal(t, int64(50), history[0].Delta)
		require.Equal(t, int64(700), history[2].Delta)

		history, err = s.Balance().ListTransactions(t.Context(), key, repository.ListTransactionsOpts{Types: []string{models.TransactionTypeEarn}, Limit: 1})
		require.NoError(t, err)
		require.Len(t, history, 1)
		require.Equal(t, int64(50), history[0].Delta)
	})

	t.Run("customer balances and merchant stats", func(t *testing.T) {
		s := NewStorage()
		key := newKey(t, s, "+15550000001")
		other, err := s.Merchant().CreateMerchant(t.Context(), models.Merchant{Name: "Sushi", Active: true})
		require.NoError(t, err)

		_, err = s.Balance().ApplyDelta(t.Context(), tr(key, 300))
		require.NoError(t, err)
		_, err = s.Balance().ApplyDelta(t.Context(), tr(key, -100))
		require.NoError(t, err)
		_, err = s.Balance().ApplyDelta(t.Context(), tr(models.BalanceKey{CustomerID: key.CustomerID, MerchantID: other.ID}, 40))
		require.NoError(t, err)

		balances, err := s.Balance().ListCustomerBalances(t.Context(), key.CustomerID)
		require.NoError(t, err)
		require.Len(t, balances, 2)

		stats, err := s.Balance().MerchantStats(t.Context(), key.MerchantID)
		require.NoError(t, err)
		require.Equal(t, models.MerchantStats{
			MerchantID:        key.MerchantID,
			Customers:         1,
			OutstandingPoints: 200,
			EarnedPoints:      300,
			RedeemedPoints:    100,
		}, stats)
	})
}

func TestCustomer(t *testing.T) {
	s := NewStorage()

	created, err := s.Customer().CreateCustomer(t.Context(), models.Customer{Name: "Jane", Phone: "+15550102030"})
	require.NoError(t, err)

	byPhone, err := s.Customer().GetCustomerByPhone(t.Context(), "+15550102030")
	require.NoError(t, err)
	require.Equal(t, created, byPhone)

	_, err = s.Customer().CreateCustomer(t.Context(), models.Customer{Name: "John", Phone: "+15550102030"})
	require.ErrorIs(t, err, apperrors.ErrCustomerAlreadyExists)

	_, err = s.Customer().GetCustomer(t.Context(), uuid.New())
	require.ErrorIs(t, err, apperrors.ErrCustomerNotFound)
}

func TestCatalog(t *testing.T) {
	s := NewStorage()
	merchant, err := s.Merchant().CreateMerchant(t.Context(), models.Merchant{Name: "Pizza Place", Active: true})
	require.NoError(t, err)

	for _, points := range []int64{500, 150, 300} {
		_, err := s.Catalog().CreateReward(t.Context(), models.Reward{MerchantID: merchant.ID, Title: "Reward", PointsRequired: points, Active: true})
		require.NoError(t, err)
	}
	rewards, err := s.Catalog().ListRewards(t.Context(), merchant.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{150, 300, 500}, []int64{rewards[0].PointsRequired, rewards[1].PointsRequired, rewards[2].PointsRequired})

	rule, err := s.Catalog().CreateRule(t.Context(), models.EarnRule{MerchantID: merchant.ID, Description: "Visit", PointsAwarded: 50, Active: true})
	require.NoError(t, err)
	rule, err = s.Catalog().SetRuleActive(t.Context(), rule.ID, false)
	require.NoError(t, err)
	require.False(t, rule.Active)

	_, err = s.Catalog().GetRule(t.Context(), uuid.New())
	require.ErrorIs(t, err, apperrors.ErrRuleNotFound)
	_, err = s.Catalog().SetRewardActive(t.Context(), uuid.New(), true)
	require.ErrorIs(t, err, apperrors.ErrRewardNotFound)
}
