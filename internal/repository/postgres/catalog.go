package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/pointledger/internal/apperrors"
	"github.com/nkiryanov/pointledger/internal/models"
)

// CatalogRepo stores earn rules and rewards configured by merchants
type CatalogRepo struct {
	DB DBTX
}

const ruleColumns = `id, merchant_id, created_at, description, points_awarded, spend_unit, active`

const createRule = `-- name: CreateRule
INSERT INTO earn_rules (id, merchant_id, description, points_awarded, spend_unit, active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + ruleColumns

func (r *CatalogRepo) CreateRule(ctx context.Context, rule models.EarnRule) (models.EarnRule, error) {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createRule, rule.ID, rule.MerchantID, rule.Description, rule.PointsAwarded, rule.SpendUnit, rule.Active)
	created, err := pgx.CollectOneRow(rows, rowToRule)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getRule = `-- name: GetRule
SELECT ` + ruleColumns + ` FROM earn_rules
WHERE id = $1
`

func (r *CatalogRepo) GetRule(ctx context.Context, id uuid.UUID) (models.EarnRule, error) {
	rows, _ := r.DB.Query(ctx, getRule, id)
	return collectRule(rows)
}

const listRules = `-- name: ListRules
SELECT ` + ruleColumns + ` FROM earn_rules
WHERE merchant_id = $1
ORDER BY created_at, id
`

func (r *CatalogRepo) ListRules(ctx context.Context, merchantID uuid.UUID) ([]models.EarnRule, error) {
	rows, _ := r.DB.Query(ctx, listRules, merchantID)
	rules, err := pgx.CollectRows(rows, rowToRule)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return rules, nil
}

const setRuleActive = `-- name: SetRuleActive
UPDATE earn_rules SET active = $2
WHERE id = $1
RETURNING ` + ruleColumns

func (r *CatalogRepo) SetRuleActive(ctx context.Context, id uuid.UUID, active bool) (models.EarnRule, error) {
	rows, _ := r.DB.Query(ctx, setRuleActive, id, active)
	return collectRule(rows)
}

func collectRule(rows pgx.Rows) (models.EarnRule, error) {
	rule, err := pgx.CollectOneRow(rows, rowToRule)

	switch {
	case err == nil:
		return rule, nil
	case errors.Is(err, pgx.ErrNoRows):
		return rule, apperrors.ErrRuleNotFound
	default:
		return rule, fmt.Errorf("db error: %w", err)
	}
}

func rowToRule(row pgx.CollectableRow) (models.EarnRule, error) {
	var r models.EarnRule
	err := row.Scan(&r.ID, &r.MerchantID, &r.CreatedAt, &r.Description, &r.PointsAwarded, &r.SpendUnit, &r.Active)
	return r, err
}

const rewardColumns = `id, merchant_id, created_at, title, description, points_required, active, expires_at`

const createReward = `-- name: CreateReward
INSERT INTO rewards (id, merchant_id, title, description, points_required, active, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + rewardColumns

func (r *CatalogRepo) CreateReward(ctx context.Context, reward models.Reward) (models.Reward, error) {
	if reward.ID == uuid.Nil {
		reward.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createReward,
		reward.ID, reward.MerchantID, reward.Title, reward.Description, reward.PointsRequired, reward.Active, reward.ExpiresAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToReward)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getReward = `-- name: GetReward
SELECT ` + rewardColumns + ` FROM rewards
WHERE id = $1
`

func (r *CatalogRepo) GetReward(ctx context.Context, id uuid.UUID) (models.Reward, error) {
	rows, _ := r.DB.Query(ctx, getReward, id)
	return collectReward(rows)
}

const listRewards = `-- name: ListRewards
SELECT ` + rewardColumns + ` FROM rewards
WHERE merchant_id = $1
ORDER BY points_required, created_at, id
`

func (r *CatalogRepo) ListRewards(ctx context.Context, merchantID uuid.UUID) ([]models.Reward, error) {
	rows, _ := r.DB.Query(ctx, listRewards, merchantID)
	rewards, err := pgx.CollectRows(rows, rowToReward)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return rewards, nil
}

const setRewardActive = `-- name: SetRewardActive
UPDATE rewards SET active = $2
WHERE id = $1
RETURNING ` + rewardColumns

func (r *CatalogRepo) SetRewardActive(ctx context.Context, id uuid.UUID, active bool) (models.Reward, error) {
	rows, _ := r.DB.Query(ctx, setRewardActive, id, active)
	return collectReward(rows)
}

func collectReward(rows pgx.Rows) (models.Reward, error) {
	reward, err := pgx.CollectOneRow(rows, rowToReward)

	switch {
	case err == nil:
		return reward, nil
	case errors.Is(err, pgx.ErrNoRows):
		return reward, apperrors.ErrRewardNotFound
	default:
		return reward, fmt.Errorf("db error: %w", err)
	}
}

func rowToReward(row pgx.CollectableRow) (models.Reward, error) {
	var r models.Reward
	err := row.Scan(&r.ID, &r.MerchantID, &r.CreatedAt, &r.Title, &r.Description, &r.PointsRequired, &r.Active, &r.ExpiresAt)
	return r, err
}
