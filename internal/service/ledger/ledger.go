// Package ledger is the only place where balances are mutated.
//
// Earn and Redeem serialize on the (customer, merchant) key, so the
// balance check and the write can not interleave with another mutation
// of the same balance inside the process. Stores additionally guard
// against negative balances, which covers several processes sharing a database.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/pointledger/internal/apperrors"
	"github.com/nkiryanov/pointledger/internal/logger"
	"github.com/nkiryanov/pointledger/internal/models"
	"github.com/nkiryanov/pointledger/internal/repository"
	"github.com/nkiryanov/pointledger/internal/service/earn"
	"github.com/nkiryanov/pointledger/internal/service/redemption"
)

// Notifier receives events after a transaction is committed
// Implementations must not block
type Notifier interface {
	Publish(ev models.BalanceEvent)
}

type EarnRequest struct {
	CustomerID uuid.UUID
	MerchantID uuid.UUID
	RuleID     uuid.UUID

	// Purchase amount, used by spend-based rules only
	Amount decimal.Decimal
}

func (r EarnRequest) Key() models.BalanceKey {
	return models.BalanceKey{CustomerID: r.CustomerID, MerchantID: r.MerchantID}
}

type RedeemRequest struct {
	CustomerID uuid.UUID
	MerchantID uuid.UUID
	RewardID   uuid.UUID
}

func (r RedeemRequest) Key() models.BalanceKey {
	return models.BalanceKey{CustomerID: r.CustomerID, MerchantID: r.MerchantID}
}

type Processor struct {
	storage  repository.Storage
	rules    *earn.Evaluator
	locks    *keyLocker
	notifier Notifier
	logger   logger.Logger

	now func() time.Time
}

// NewProcessor creates processor. notifier may be nil
func NewProcessor(storage repository.Storage, notifier Notifier, logger logger.Logger) *Processor {
	return &Processor{
		storage:  storage,
		rules:    earn.NewEvaluator(storage.Catalog()),
		locks:    newKeyLocker(),
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Earn awards points for the action described by the rule
func (p *Processor) Earn(ctx context.Context, req EarnRequest) (models.Balance, error) {
	if err := p.checkParties(ctx, req.CustomerID, req.MerchantID); err != nil {
		return models.Balance{}, err
	}

	rule, err := p.rules.Rule(ctx, req.MerchantID, req.RuleID)
	if err != nil {
		return models.Balance{}, err
	}

	points, err := earn.PointsForAction(rule, earn.Action{Amount: req.Amount})
	if err != nil {
		return models.Balance{}, err
	}

	unlock := p.locks.Lock(req.Key())
	defer unlock()

	tr := p.newTransaction(req.Key(), models.TransactionTypeEarn, points, rule.ID, rule.Description)
	balance, err := p.storage.Balance().ApplyDelta(ctx, tr)
	if err != nil {
		return models.Balance{}, err
	}

	p.logger.Info("points earned", "key", req.Key().String(), "rule", rule.ID, "delta", points, "balance", balance.Points)
	p.publish(tr, balance)

	return balance, nil
}

// Redeem spends reward price from the balance
//
// Returns *apperrors.InsufficientPointsError if the balance is too low.
// If the balance changes between the check and the write the whole
// redemption is retried once.
func (p *Processor) Redeem(ctx context.Context, req RedeemRequest) (models.Balance, error) {
	if err := p.checkParties(ctx, req.CustomerID, req.MerchantID); err != nil {
		return models.Balance{}, err
	}

	reward, err := p.Reward(ctx, req.MerchantID, req.RewardID)
	if err != nil {
		return models.Balance{}, err
	}

	balance, err := p.redeem(ctx, req.Key(), reward)
	if errors.Is(err, apperrors.ErrConcurrentModification) {
		p.logger.Warn("balance changed during redemption, retrying", "key", req.Key().String(), "reward", reward.ID)
		balance, err = p.redeem(ctx, req.Key(), reward)
	}

	return balance, err
}

func (p *Processor) redeem(ctx context.Context, key models.BalanceKey, reward models.Reward) (models.Balance, error) {
	unlock := p.locks.Lock(key)
	defer unlock()

	current, err := p.storage.Balance().GetBalance(ctx, key)
	if err != nil {
		return models.Balance{}, err
	}

	if !redemption.CanRedeem(current.Points, reward, p.now()) {
		return current, &apperrors.InsufficientPointsError{Required: reward.PointsRequired, Balance: current.Points}
	}

	tr := p.newTransaction(key, models.TransactionTypeRedeem, -reward.PointsRequired, reward.ID, reward.Title)
	balance, err := p.storage.Balance().ApplyDelta(ctx, tr)
	switch {
	case errors.Is(err, apperrors.ErrBalanceInsufficient):
		// Someone else (another process) spent points after our read
		return models.Balance{}, fmt.Errorf("redeem %s: %w", key, apperrors.ErrConcurrentModification)
	case err != nil:
		return models.Balance{}, err
	}

	p.logger.Info("reward redeemed", "key", key.String(), "reward", reward.ID, "delta", tr.Delta, "balance", balance.Points)
	p.publish(tr, balance)

	return balance, nil
}

// Reward returns the reward if it belongs to the merchant and may be redeemed now
// Otherwise apperrors.ErrRewardNotFound is returned
func (p *Processor) Reward(ctx context.Context, merchantID uuid.UUID, rewardID uuid.UUID) (models.Reward, error) {
	reward, err := p.storage.Catalog().GetReward(ctx, rewardID)
	if err != nil {
		return models.Reward{}, err
	}

	if reward.MerchantID != merchantID || !redemption.Available(reward, p.now()) {
		return models.Reward{}, apperrors.ErrRewardNotFound
	}

	return reward, nil
}

// GetBalance reads the balance, zero if customer never earned at the merchant
func (p *Processor) GetBalance(ctx context.Context, key models.BalanceKey) (models.Balance, error) {
	return p.storage.Balance().GetBalance(ctx, key)
}

func (p *Processor) checkParties(ctx context.Context, customerID uuid.UUID, merchantID uuid.UUID) error {
	merchant, err := p.storage.Merchant().GetMerchant(ctx, merchantID)
	if err != nil {
		return err
	}
	if !merchant.Active {
		return apperrors.ErrMerchantInactive
	}

	_, err = p.storage.Customer().GetCustomer(ctx, customerID)
	return err
}

func (p *Processor) newTransaction(key models.BalanceKey, typ string, delta int64, reasonID uuid.UUID, description string) models.Transaction {
	return models.Transaction{
		ID:          uuid.New(),
		ProcessedAt: p.now(),
		CustomerID:  key.CustomerID,
		MerchantID:  key.MerchantID,
		Type:        typ,
		Delta:       delta,
		ReasonID:    reasonID,
		Description: description,
	}
}

func (p *Processor) publish(tr models.Transaction, balance models.Balance) {
	if p.notifier == nil {
		return
	}
	p.notifier.Publish(models.BalanceEvent{Transaction: tr, Balance: balance})
}
