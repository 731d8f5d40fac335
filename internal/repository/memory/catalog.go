package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/nkiryanov/pointledger/internal/apperrors"
	"github.com/nkiryanov/pointledger/internal/models"
)

type catalogRepo Storage

func (r *catalogRepo) CreateRule(_ context.Context, rule models.EarnRule) (models.EarnRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.merchants[rule.MerchantID]; !ok {
		return models.EarnRule{}, apperrors.ErrMerchantNotFound
	}

	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	rule.CreatedAt = r.now()
	r.rules[rule.ID] = rule

	return rule, nil
}

func (r *catalogRepo) GetRule(_ context.Context, id uuid.UUID) (models.EarnRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[id]
	if !ok {
		return rule, apperrors.ErrRuleNotFound
	}

	return rule, nil
}

func (r *catalogRepo) ListRules(_ context.Context, merchantID uuid.UUID) ([]models.EarnRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]models.EarnRule, 0)
	for _, rule := range r.rules {
		if rule.MerchantID == merchantID {
			rules = append(rules, rule)
		}
	}

	sort.Slice(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID.String() < rules[j].ID.String()
	})

	return rules, nil
}

func (r *catalogRepo) SetRuleActive(_ context.Context, id uuid.UUID, active bool) (models.EarnRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.rules[id]
	if !ok {
		return rule, apperrors.ErrRuleNotFound
	}
	rule.Active = active
	r.rules[id] = rule

	return rule, nil
}

func (r *catalogRepo) CreateReward(_ context.Context, reward models.Reward) (models.Reward, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.merchants[reward.MerchantID]; !ok {
		return models.Reward{}, apperrors.ErrMerchantNotFound
	}

	if reward.ID == uuid.Nil {
		reward.ID = uuid.New()
	}
	reward.CreatedAt = r.now()
	r.rewards[reward.ID] = reward

	return reward, nil
}

func (r *catalogRepo) GetReward(_ context.Context, id uuid.UUID) (models.Reward, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reward, ok := r.rewards[id]
	if !ok {
		return reward, apperrors.ErrRewardNotFound
	}

	return reward, nil
}

func (r *catalogRepo) ListRewards(_ context.Context, merchantID uuid.UUID) ([]models.Reward, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rewards := make([]models.Reward, 0)
	for _, reward := range r.rewards {
		if reward.MerchantID == merchantID {
			rewards = append(rewards, reward)
		}
	}

	sort.Slice(rewards, func(i, j int) bool {
		a, b := rewards[i], rewards[j]
		switch {
		case a.PointsRequired != b.PointsRequired:
			return a.PointsRequired < b.PointsRequired
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.ID.String() < b.ID.String()
		}
	})

	return rewards, nil
}

func (r *catalogRepo) SetRewardActive(_ context.Context, id uuid.UUID, active bool) (models.Reward, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reward, ok := r.rewards[id]
	if !ok {
		return reward, apperrors.ErrRewardNotFound
	}
	reward.Active = active
	r.rewards[id] = reward

	return reward, nil
}
