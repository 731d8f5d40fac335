// Package catalog administers merchants, customers and merchant programs (earn rules and rewards).
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/pointledger/internal/apperrors"
	"github.com/nkiryanov/pointledger/internal/logger"
	"github.com/nkiryanov/pointledger/internal/models"
	"github.com/nkiryanov/pointledger/internal/repository"
	"github.com/nkiryanov/pointledger/internal/service/lookup"
)

type Service struct {
	storage repository.Storage
	logger  logger.Logger
}

func NewService(storage repository.Storage, logger logger.Logger) *Service {
	return &Service{storage: storage, logger: logger}
}

// MerchantUpdate holds merchant fields to change, nil fields are kept
type MerchantUpdate struct {
	Name                *string
	Email               *string
	Category            *string
	Active              *bool
	RedemptionThreshold *int64
}

func (u MerchantUpdate) apply(m models.Merchant) models.Merchant {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&m.Name, u.Name)
	set(&m.Email, u.Email)
	set(&m.Category, u.Category)
	if u.Active != nil {
		m.Active = *u.Active
	}
	if u.RedemptionThreshold != nil {
		m.RedemptionThreshold = *u.RedemptionThreshold
	}
	return m
}

func validateMerchant(m models.Merchant) (models.Merchant, error) {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return models.Merchant{}, fmt.Errorf("%w: merchant name must not be empty", apperrors.ErrInvalidInput)
	}
	if m.RedemptionThreshold < 0 {
		return models.Merchant{}, fmt.Errorf("%w: redemption threshold must not be negative", apperrors.ErrInvalidInput)
	}
	return m, nil
}

func (s *Service) CreateMerchant(ctx context.Context, m models.Merchant) (models.Merchant, error) {
	m, err := validateMerchant(m)
	if err != nil {
		return m, err
	}

	created, err := s.storage.Merchant().CreateMerchant(ctx, m)
	if err != nil {
		return created, err
	}

	s.logger.Info("merchant created", "merchant", created.ID, "name", created.Name)
	return created, nil
}

func (s *Service) GetMerchant(ctx context.Context, id uuid.UUID) (models.Merchant, error) {
	return s.storage.Merchant().GetMerchant(ctx, id)
}

func (s *Service) ListMerchants(ctx context.Context) ([]models.Merchant, error) {
	return s.storage.Merchant().ListMerchants(ctx)
}

// UpdateMerchant edits merchant profile. Deactivated merchant rejects earn and redeem
func (s *Service) UpdateMerchant(ctx context.Context, id uuid.UUID, upd MerchantUpdate) (models.Merchant, error) {
	merchant, err := s.storage.Merchant().GetMerchant(ctx, id)
	if err != nil {
		return merchant, err
	}

	merchant, err = validateMerchant(upd.apply(merchant))
	if err != nil {
		return merchant, err
	}

	updated, err := s.storage.Merchant().UpdateMerchant(ctx, merchant)
	if err != nil {
		return updated, err
	}

	s.logger.Info("merchant updated", "merchant", updated.ID, "active", updated.Active)
	return updated, nil
}

// ListCardHolders returns customers of the merchant with their points, most points first
func (s *Service) ListCardHolders(ctx context.Context, merchantID uuid.UUID, opts repository.ListCardHoldersOpts) ([]models.CardHolder, error) {
	if _, err := s.storage.Merchant().GetMerchant(ctx, merchantID); err != nil {
		return nil, err
	}

	opts.Query = strings.TrimSpace(opts.Query)
	return s.storage.Balance().ListCardHolders(ctx, merchantID, opts)
}

func (s *Service) MerchantStats(ctx context.Context, merchantID uuid.UUID) (models.MerchantStats, error) {
	if _, err := s.storage.Merchant().GetMerchant(ctx, merchantID); err != nil {
		return models.MerchantStats{}, err
	}

	return s.storage.Balance().MerchantStats(ctx, merchantID)
}

// CreateCustomer stores customer with normalized phone
func (s *Service) CreateCustomer(ctx context.Context, c models.Customer) (models.Customer, error) {
	phone, err := lookup.NormalizePhone(c.Phone)
	if err != nil {
		return models.Customer{}, err
	}
	c.Phone = phone

	created, err := s.storage.Customer().CreateCustomer(ctx, c)
	if err != nil {
		return created, err
	}

	s.logger.Info("customer created", "customer", created.ID)
	return created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id uuid.UUID) (models.Customer, error) {
	return s.storage.Customer().GetCustomer(ctx, id)
}

func (s *Service) CreateRule(ctx context.Context, rule models.EarnRule) (models.EarnRule, error) {
	if rule.PointsAwarded <= 0 {
		return models.EarnRule{}, fmt.Errorf("%w: rule must award positive points", apperrors.ErrInvalidInput)
	}
	if rule.SpendUnit.Valid && !rule.SpendUnit.Decimal.IsPositive() {
		return models.EarnRule{}, fmt.Errorf("%w: spend unit must be positive", apperrors.ErrInvalidInput)
	}
	if _, err := s.storage.Merchant().GetMerchant(ctx, rule.MerchantID); err != nil {
		return models.EarnRule{}, err
	}

	return s.storage.Catalog().CreateRule(ctx, rule)
}

func (s *Service) ListRules(ctx context.Context, merchantID uuid.UUID) ([]models.EarnRule, error) {
	if _, err := s.storage.Merchant().GetMerchant(ctx, merchantID); err != nil {
		return nil, err
	}

	return s.storage.Catalog().ListRules(ctx, merchantID)
}

// SetRuleActive toggles rule. Rule of other merchant is reported as not found
func (s *Service) SetRuleActive(ctx context.Context, merchantID uuid.UUID, ruleID uuid.UUID, active bool) (models.EarnRule, error) {
	rule, err := s.storage.Catalog().GetRule(ctx, ruleID)
	if err != nil {
		return rule, err
	}
	if rule.MerchantID != merchantID {
		return models.EarnRule{}, apperrors.ErrRuleNotFound
	}

	return s.storage.Catalog().SetRuleActive(ctx, ruleID, active)
}

func (s *Service) CreateReward(ctx context.Context, reward models.Reward) (models.Reward, error) {
	reward.Title = strings.TrimSpace(reward.Title)
	if reward.Title == "" {
		return models.Reward{}, fmt.Errorf("%w: reward title must not be empty", apperrors.ErrInvalidInput)
	}
	if reward.PointsRequired <= 0 {
		return models.Reward{}, fmt.Errorf("%w: reward must require positive points", apperrors.ErrInvalidInput)
	}
	if _, err := s.storage.Merchant().GetMerchant(ctx, reward.MerchantID); err != nil {
		return models.Reward{}, err
	}

	return s.storage.Catalog().CreateReward(ctx, reward)
}

// ListRewards returns every reward of the merchant, cheapest first
func (s *Service) ListRewards(ctx context.Context, merchantID uuid.UUID) ([]models.Reward, error) {
	if _, err := s.storage.Merchant().GetMerchant(ctx, merchantID); err != nil {
		return nil, err
	}

	return s.storage.Catalog().ListRewards(ctx, merchantID)
}

func (s *Service) SetRewardActive(ctx context.Context, merchantID uuid.UUID, rewardID uuid.UUID, active bool) (models.Reward, error) {
	reward, err := s.storage.Catalog().GetReward(ctx, rewardID)
	if err != nil {
		return reward, err
	}
	if reward.MerchantID != merchantID {
		return models.Reward{}, apperrors.ErrRewardNotFound
	}

	return s.storage.Catalog().SetRewardActive(ctx, rewardID, active)
}
