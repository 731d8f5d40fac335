package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/pointledger/internal/apperrors"
	"github.com/nkiryanov/pointledger/internal/logger"
	"github.com/nkiryanov/pointledger/internal/models"
	"github.com/nkiryanov/pointledger/internal/repository"
	"github.com/nkiryanov/pointledger/internal/repository/memory"
	"github.com/nkiryanov/pointledger/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []models.BalanceEvent
}

func (r *recorder) Publish(ev models.BalanceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type fixture struct {
	storage  *memory.Storage
	merchant models.Merchant
	customer models.Customer
}

func (f fixture) key() models.BalanceKey {
	return models.BalanceKey{CustomerID: f.customer.ID, MerchantID: f.merchant.ID}
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	storage := memory.NewStorage()

	merchant, err := storage.Merchant().CreateMerchant(t.Context(), models.Merchant{Name: "Pizza Place", Active: true, RedemptionThreshold: 1000})
	require.NoError(t, err)

	customer, err := storage.Customer().CreateCustomer(t.Context(), models.Customer{Name: "Jane", Phone: testutil.UniquePhone(1)})
	require.NoError(t, err)

	return fixture{storage: storage, merchant: merchant, customer: customer}
}

func (f fixture) rule(t *testing.T, points int64) models.EarnRule {
	t.Helper()
	rule, err := f.storage.Catalog().CreateRule(t.Context(), models.EarnRule{MerchantID: f.merchant.ID, Description: "visit", PointsAwarded: points, Active: true})
	require.NoError(t, err)
	return rule
}

func (f fixture) reward(t *testing.T, points int64) models.Reward {
	t.Helper()
	reward, err := f.storage.Catalog().CreateReward(t.Context(), models.Reward{MerchantID: f.merchant.ID, Title: "pizza", PointsRequired: points, Active: true})
	require.NoError(t, err)
	return reward
}

func (f fixture) earn(t *testing.T, p *Processor, points int64) models.Balance {
	t.Helper()
	balance, err := p.Earn(t.Context(), EarnRequest{CustomerID: f.customer.ID, MerchantID: f.merchant.ID, RuleID: f.rule(t, points).ID})
	require.NoError(t, err)
	return balance
}

func TestProcessor_Earn(t *testing.T) {
	t.Run("adds rule points and appends transaction", func(t *testing.T) {
		f := newFixture(t)
		events := &recorder{}
		p := NewProcessor(f.storage, events, logger.NewNoOpLogger())
		f.earn(t, p, 700)
		rule := f.rule(t, 50)

		balance, err := p.Earn(t.Context(), EarnRequest{CustomerID: f.customer.ID, MerchantID: f.merchant.ID, RuleID: rule.ID})

		require.NoError(t, err)
		require.Equal(t, int64(750), balance.Points)

		history, err := p.History(t.Context(), f.key(), repository.ListTransactionsOpts{})
		require.NoError(t, err)
		require.Len(t, history, 2)
		require.Equal(t, int64(50), history[0].Delta, "newest transaction goes first")
		require.Equal(t, rule.ID, history[0].ReasonID)
		require.Equal(t, models.TransactionTypeEarn, history[0].Type)

		require.Len(t, events.events, 2)
		require.Equal(t, history[0].ID, events.events[1].Transaction.ID)
		require.Equal(t, int64(750), events.events[1].Balance.Points)
	})

	t.Run("spend based rule", func(t *testing.T) {
		f := newFixture(t)
		p := NewProcessor(f.storage, nil, logger.NewNoOpLogger())
		rule, err := f.storage.Catalog().CreateRule(t.Context(), models.EarnRule{
			MerchantID:    f.merchant.ID,
			PointsAwarded: 10,
			SpendUnit:     decimal.NewNullDecimal(decimal.NewFromInt(5)),
			Active:        true,
		})
		require.NoError(t, err)

		balance, err := p.Earn(t.Context(), EarnRequest{
			CustomerID: f.customer.ID,
			MerchantID: f.merchant.ID,
			RuleID:     rule.ID,
			Amount:     decimal.RequireFromString("23.40"),
		})

		require.NoError(t, err)
		require.Equal(t, int64(40), balance.Points)
	})

	t.Run("spend amount overflowing points rejected", func(t *testing.T) {
		f := newFixture(t)
		p := NewProcessor(f.storage, nil, logger.NewNoOpLogger())
		f.earn(t, p, 700)
		rule, err := f.storage.Catalog().CreateRule(t.Context(), models.EarnRule{
			MerchantID:    f.merchant.ID,
			PointsAwarded: 4,
			SpendUnit:     decimal.NewNullDecimal(decimal.NewFromInt(1)),
			Active:        true,
		})
		require.NoError(t, err)

		_, err = p.Earn(t.Context(), EarnRequest{
			CustomerID: f.customer.ID,
			MerchantID: f.merchant.ID,
			RuleID:     rule.ID,
			Amount:     decimal.RequireFromString("4611686018427387879"),
		})

		require.ErrorIs(t, err, apperrors.ErrInvalidInput)
		balance, err := p.GetBalance(t.Context(), f.key())
		require.NoError(t, err)
		require.Equal(t, int64(700), balance.Points)
		history, err := p.History(t.Context(), f.key(), repository.ListTransactionsOpts{})
		require.NoError(t, err)
		require.Len(t, history, 1)
		require.Positive(t, history[0].Delta)
	})

	t.Run("rule not usable", func(t *testing.T) {
		f := newFixture(t)
		p := NewProcessor(f.storage, nil, logger.NewNoOpLogger())

		inactive := f.rule(t, 10)
		_, err := f.storage.Catalog().SetRuleActive(t.Context(), inactive.ID, false)
		require.NoError(t, err)

		other, err := f.storage.Merchant().CreateMerchant(t.Context(), models.Merchant{Name: "Other", Active: true})
		require.NoError(t, err)
		foreign, err := f.storage.Catalog().CreateRule(t.Context(), models.EarnRule{MerchantID: other.ID, PointsAwarded: 10, Active: true})
		require.NoError(t, err)

		for name, ruleID := range map[string]uuid.UUID{
			"unknown":        uuid.New(),
			"inactive":       inactive.ID,
			"other merchant": foreign.ID,
		} {
			t.Run(name, func(t *testing.T) {
				_, err := p.Earn(t.Context(), EarnRequest{CustomerID: f.customer.ID, MerchantID: f.merchant.ID, RuleID: ruleID})

				require.ErrorIs(t, err, apperrors.ErrRuleNotFound)
			})
		}

		balance, err := p.GetBalance(t.Context(), f.key())
		require.NoError(t, err)
		require.Zero(t, balance.Points)
	})

	t.Run("unknown customer", func(t *testing.T) {
		f := newFixture(t)
		p := NewProcessor(f.storage, nil, logger.NewNoOpLogger())

		_, err := p.Earn(t.Context(), EarnRequest{CustomerID: uuid.New(), MerchantID: f.merchant.ID, RuleID: f.rule(t, 10).ID})

		require.ErrorIs(t, err, apperrors.ErrCustomerNotFound)
	})

	t.Run("inactive merchant", func(t *testing.T) {
		f := newFixture(t)
		p := NewProcessor(f.storage, nil, logger.NewNoOpLogger())
		closed, err := f.storage.Merchant().CreateMerchant(t.Context(), models.Merchant{Name: "Closed", Active: false})
		require.NoError(t, err)

		_, err = p.Earn(t.Context(), EarnRequest{CustomerID: f.customer.ID, MerchantID: closed.ID, RuleID: f.rule(t, 10).ID})

		require.ErrorIs(t, err, apperrors.ErrMerchantInactive)
	})
}

func TestProcessor_Redeem(t *testing.T) {
	t.Run("whole balance", func(t *testing.T) {
		f := newFixture(t)
		p := NewProcessor(f.storage, nil, logger.NewNoOpLogger())
		f.earn(t, p, 500)
		reward := f.reward(t, 500)

		balance, err := p.Redeem(t.Context(), RedeemRequest{CustomerID: f.customer.ID, MerchantID: f.merchant.ID, RewardID: reward.ID})

		require.NoError(t, err)
		require.Zero(t, balance.Points)
		require.Equal(t, int64(500), balance.Redeemed)

		history, err := p.History(t.Context(), f.key(), repository.ListTransactionsOpts{Types: []string{models.TransactionTypeRedeem}})
		require.NoError(t, err)
		require.Len(t, history, 1)
		require.Equal(t, int64(-500), history[0].Delta)
		require.Equal(t, reward.ID, history[0].ReasonID)
	})

	t.Run("insufficient points", func(t *testing.T) {
		f := newFixture(t)
		p := NewProcessor(f.storage, nil, logger.NewNoOpLogger())
		f.earn(t, p, 120)
		reward := f.reward(t, 500)

		_, err := p.Redeem(t.Context(), RedeemRequest{CustomerID: f.customer.ID, MerchantID: f.merchant.ID, RewardID: reward.ID})

		require.ErrorIs(t, err, apperrors.ErrInsufficientPoints)
		var ipErr *apperrors.InsufficientPointsError
		require.ErrorAs(t, err, &ipErr)
		require.Equal(t, int64(380), ipErr.Shortfall())

		balance, err := p.GetBalance(t.Context(), f.key())
		require.NoError(t, err)
		require.Equal(t, int64(120), balance.Points, "balance must stay unchanged")
	})

	t.Run("reward not redeemable", func(t *testing.T) {
		f := newFixture(t)
		p := NewProcessor(f.storage, nil, logger.NewNoOpLogger())
		f.earn(t, p, 1000)

		inactive := f.reward(t, 10)
		_, err := f.storage.Catalog().SetRewardActive(t.Context(), inactive.ID, false)
		require.NoError(t, err)

		yesterday := time.Now().Add(-24 * time.Hour)
		expired, err := f.storage.Catalog().CreateReward(t.Context(), models.Reward{MerchantID: f.merchant.ID, PointsRequired: 10, Active: true, ExpiresAt: &yesterday})
		require.NoError(t, err)

		for name, rewardID := range map[string]uuid.UUID{
			"unknown":  uuid.New(),
			"inactive": inactive.ID,
			"expired":  expired.ID,
		} {
			t.Run(name, func(t *testing.T) {
				_, err := p.Redeem(t.Context(), RedeemRequest{CustomerID: f.customer.ID, MerchantID: f.merchant.ID, RewardID: rewardID})

				require.ErrorIs(t, err, apperrors.ErrRewardNotFound)
			})
		}
	})

	t.Run("concurrent full balance redemptions", func(t *testing.T) {
		f := newFixture(t)
		p := NewProcessor(f.storage, nil, logger.NewNoOpLogger())
		f.earn(t, p, 300)
		reward := f.reward(t, 300)

		const attempts = 8
		errs := make([]error, attempts)
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, errs[i] = p.Redeem(context.Background(), RedeemRequest{CustomerID: f.customer.ID, MerchantID: f.merchant.ID, RewardID: reward.ID})
			}()
		}
		close(start)
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			require.ErrorIs(t, err, apperrors.ErrInsufficientPoints)
		}
		require.Equal(t, 1, succeeded, "exactly one redemption must succeed")

		balance, err := p.GetBalance(t.Context(), f.key())
		require.NoError(t, err)
		require.Zero(t, balance.Points)
		require.Zero(t, p.locks.size(), "locks must be released")
	})
}

// racingBalance makes redemption writes fail the way they do when
// another process shares the database
type racingBalance struct {
	repository.BalanceRepo

	conflicts int  // number of redemption writes to fail
	drain     bool // rival spends the same amount before failing write
	writes    int
}

func (r *racingBalance) ApplyDelta(ctx context.Context, tr models.Transaction) (models.Balance, error) {
	if tr.Delta > 0 {
		return r.BalanceRepo.ApplyDelta(ctx, tr)
	}

	r.writes++
	if r.conflicts == 0 {
		return r.BalanceRepo.ApplyDelta(ctx, tr)
	}
	r.conflicts--

	if r.drain {
		rival := tr
		rival.ID = uuid.New()
		if _, err := r.BalanceRepo.ApplyDelta(ctx, rival); err != nil {
			return models.Balance{}, err
		}
	}
	return models.Balance{}, apperrors.ErrBalanceInsufficient
}

type racingStorage struct {
	*memory.Storage
	balance *racingBalance
}

func (s racingStorage) Balance() repository.BalanceRepo {
	return s.balance
}

func TestProcessor_Redeem_ConcurrentModification(t *testing.T) {
	setup := func(t *testing.T, race racingBalance) (fixture, racingStorage, *Processor) {
		f := newFixture(t)
		race.BalanceRepo = f.storage.Balance()
		storage := racingStorage{Storage: f.storage, balance: &race}
		return f, storage, NewProcessor(storage, nil, logger.NewNoOpLogger())
	}

	t.Run("retry succeeds", func(t *testing.T) {
		f, storage, p := setup(t, racingBalance{conflicts: 1})
		f.earn(t, p, 300)
		reward := f.reward(t, 200)

		balance, err := p.Redeem(t.Context(), RedeemRequest{CustomerID: f.customer.ID, MerchantID: f.merchant.ID, RewardID: reward.ID})

		require.NoError(t, err)
		require.Equal(t, int64(100), balance.Points)
		require.Equal(t, 2, storage.balance.writes)
	})

	t.Run("retry sees balance spent by rival", func(t *testing.T) {
		f, storage, p := setup(t, racingBalance{conflicts: 1, drain: true})
		f.earn(t, p, 300)
		reward := f.reward(t, 200)

		_, err := p.Redeem(t.Context(), RedeemRequest{CustomerID: f.customer.ID, MerchantID: f.merchant.ID, RewardID: reward.ID})

		var ipErr *apperrors.InsufficientPointsError
		require.ErrorAs(t, err, &ipErr, "second attempt must report the shortfall")
		require.Equal(t, int64(100), ipErr.Balance)
		require.Equal(t, int64(100), ipErr.Shortfall())
		require.Equal(t, 1, storage.balance.writes, "retry must not write when points are missing")
	})

	t.Run("surfaced after single retry", func(t *testing.T) {
		f, storage, p := setup(t, racingBalance{conflicts: 5})
		f.earn(t, p, 300)
		reward := f.reward(t, 100)

		_, err := p.Redeem(t.Context(), RedeemRequest{CustomerID: f.customer.ID, MerchantID: f.merchant.ID, RewardID: reward.ID})

		require.ErrorIs(t, err, apperrors.ErrConcurrentModification)
		require.Equal(t, 2, storage.balance.writes, "only one retry allowed")

		balance, err := p.GetBalance(t.Context(), f.key())
		require.NoError(t, err)
		require.Equal(t, int64(300), balance.Points)
	})
}

func TestProcessor_ReplayProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	// Positive op earns that many points, negative one redeems a reward of that price
	properties.Property("balance equals sum of applied deltas and never negative", prop.ForAll(
		func(ops []int64) bool {
			ctx := context.Background()
			f := newFixture(t)
			p := NewProcessor(f.storage, nil, logger.NewNoOpLogger())
			perPoint, err := f.storage.Catalog().CreateRule(ctx, models.EarnRule{
				MerchantID:    f.merchant.ID,
				PointsAwarded: 1,
				SpendUnit:     decimal.NewNullDecimal(decimal.NewFromInt(1)),
				Active:        true,
			})
			if err != nil {
				return false
			}

			var expected int64
			for _, op := range ops {
				switch {
				case op > 0:
					_, err = p.Earn(ctx, EarnRequest{CustomerID: f.customer.ID, MerchantID: f.merchant.ID, RuleID: perPoint.ID, Amount: decimal.NewFromInt(op)})
					if err != nil {
						return false
					}
					expected += op
				case op < 0:
					reward, err := f.storage.Catalog().CreateReward(ctx, models.Reward{MerchantID: f.merchant.ID, PointsRequired: -op, Active: true})
					if err != nil {
						return false
					}
					_, err = p.Redeem(ctx, RedeemRequest{CustomerID: f.customer.ID, MerchantID: f.merchant.ID, RewardID: reward.ID})
					switch {
					case err == nil:
						expected += op
					case !errors.Is(err, apperrors.ErrInsufficientPoints):
						return false
					}
				}

				balance, err := p.GetBalance(ctx, f.key())
				if err != nil || balance.Points < 0 || balance.Points != expected {
					return false
				}
			}

			history, err := p.History(ctx, f.key(), repository.ListTransactionsOpts{})
			if err != nil {
				return false
			}
			var sum int64
			for _, tr := range history {
				sum += tr.Delta
			}
			return sum == expected
		},
		gen.SliceOf(gen.Int64Range(-300, 300)),
	))

	properties.TestingRun(t)
}

func TestKeyLocker(t *testing.T) {
	l := newKeyLocker()
	key := models.BalanceKey{CustomerID: uuid.New(), MerchantID: uuid.New()}
	other := models.BalanceKey{CustomerID: uuid.New(), MerchantID: uuid.New()}

	unlock := l.Lock(key)

	t.Run("other keys are not blocked", func(t *testing.T) {
		done := make(chan struct{})
		go func() {
			l.Lock(other)()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("lock on other key must not wait")
		}
	})

	t.Run("same key waits for unlock", func(t *testing.T) {
		acquired := make(chan struct{})
		go func() {
			l.Lock(key)()
			close(acquired)
		}()

		select {
		case <-acquired:
			t.Fatal("lock on held key must wait")
		case <-time.After(50 * time.Millisecond):
		}

		unlock()
		<-acquired
		require.Zero(t, l.size())
	})
}
