// Package earn computes how many points a customer action is worth.
package earn

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/pointledger/internal/apperrors"
	"github.com/nkiryanov/pointledger/internal/models"
)

// Action describes what the customer did
type Action struct {
	// Purchase amount, used by spend-based rules only
	Amount decimal.Decimal
}

type ruleGetter interface {
	GetRule(ctx context.Context, id uuid.UUID) (models.EarnRule, error)
}

type Evaluator struct {
	rules ruleGetter
}

func NewEvaluator(rules ruleGetter) *Evaluator {
	return &Evaluator{rules: rules}
}

// Rule returns the rule if it is active and belongs to the merchant
// Otherwise apperrors.ErrRuleNotFound is returned
func (e *Evaluator) Rule(ctx context.Context, merchantID uuid.UUID, ruleID uuid.UUID) (models.EarnRule, error) {
	rule, err := e.rules.GetRule(ctx, ruleID)
	if err != nil {
		return rule, err
	}

	if !rule.Active || rule.MerchantID != merchantID {
		return models.EarnRule{}, apperrors.ErrRuleNotFound
	}

	return rule, nil
}

// PointsForAction returns positive number of points the action earns by the rule
func PointsForAction(rule models.EarnRule, action Action) (int64, error) {
	if rule.PointsAwarded <= 0 {
		return 0, fmt.Errorf("rule %s awards no points", rule.ID)
	}

	if !rule.SpendUnit.Valid {
		return rule.PointsAwarded, nil
	}

	if !rule.SpendUnit.Decimal.IsPositive() {
		return 0, fmt.Errorf("rule %s has not positive spend unit", rule.ID)
	}

	units := action.Amount.Div(rule.SpendUnit.Decimal).Floor()
	if !units.IsPositive() {
		return 0, apperrors.ErrNothingToEarn
	}

	// units * points must fit into int64
	if units.GreaterThan(decimal.NewFromInt(math.MaxInt64 / rule.PointsAwarded)) {
		return 0, fmt.Errorf("%w: amount %s is too large", apperrors.ErrInvalidInput, action.Amount)
	}

	return units.IntPart() * rule.PointsAwarded, nil
}
