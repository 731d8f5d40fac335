// Package seed loads merchants, their programs and customers from a YAML file.
//
// Entries with an id that already exists are skipped, as are customers whose
// phone is taken, so the same file may be applied on every start.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/nkiryanov/pointledger/internal/apperrors"
	"github.com/nkiryanov/pointledger/internal/logger"
	"github.com/nkiryanov/pointledger/internal/models"
	"github.com/nkiryanov/pointledger/internal/repository"
	"github.com/nkiryanov/pointledger/internal/service/catalog"
)

type File struct {
	Merchants []Merchant `yaml:"merchants"`
	Customers []Customer `yaml:"customers"`
}

type Merchant struct {
	ID                  uuid.UUID `yaml:"id"`
	Name                string    `yaml:"name"`
	Email               string    `yaml:"email"`
	Category            string    `yaml:"category"`
	Active              *bool     `yaml:"active"` // true if omitted
	RedemptionThreshold int64     `yaml:"redemption_threshold"`
	Rules               []Rule    `yaml:"rules"`
	Rewards             []Reward  `yaml:"rewards"`
}

type Rule struct {
	ID          uuid.UUID `yaml:"id"`
	Description string    `yaml:"description"`
	Points      int64     `yaml:"points"`
	SpendUnit   string    `yaml:"spend_unit"` // decimal, empty for fixed award
	Active      *bool     `yaml:"active"`
}

type Reward struct {
	ID          uuid.UUID  `yaml:"id"`
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	Points      int64      `yaml:"points"`
	Active      *bool      `yaml:"active"`
	ExpiresAt   *time.Time `yaml:"expires_at"`
}

type Customer struct {
	ID    uuid.UUID `yaml:"id"`
	Name  string    `yaml:"name"`
	Email string    `yaml:"email"`
	Phone string    `yaml:"phone"`
}

// Result counts created entries
type Result struct {
	Merchants int
	Rules     int
	Rewards   int
	Customers int
}

func Load(r io.Reader) (File, error) {
	var f File

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return f, fmt.Errorf("error while decoding seed file. Err: %w", err)
	}

	return f, nil
}

func LoadFile(path string) (File, error) {
	fd, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer fd.Close() // nolint:errcheck

	return Load(fd)
}

type txStorage interface {
	InTx(ctx context.Context, fn func(repository.Storage) error) error
}

// Apply creates everything from the file
// If storage supports transactions the file is applied atomically
func Apply(ctx context.Context, storage repository.Storage, f File, logger logger.Logger) (Result, error) {
	var res Result

	apply := func(s repository.Storage) error {
		res = Result{}
		return applyFile(ctx, catalog.NewService(s, logger), f, &res)
	}

	var err error
	if tx, ok := storage.(txStorage); ok {
		err = tx.InTx(ctx, apply)
	} else {
		err = apply(storage)
	}
	if err != nil {
		return Result{}, err
	}

	logger.Info("Seed applied", "merchants", res.Merchants, "rules", res.Rules, "rewards", res.Rewards, "customers", res.Customers)
	return res, nil
}

func applyFile(ctx context.Context, svc *catalog.Service, f File, res *Result) error {
	for _, m := range f.Merchants {
		if err := applyMerchant(ctx, svc, m, res); err != nil {
			return fmt.Errorf("merchant %q: %w", m.Name, err)
		}
	}

	for _, c := range f.Customers {
		if c.ID != uuid.Nil {
			if _, err := svc.GetCustomer(ctx, c.ID); err == nil {
				continue
			}
		}

		_, err := svc.CreateCustomer(ctx, models.Customer{ID: c.ID, Name: c.Name, Email: c.Email, Phone: c.Phone})
		switch {
		case errors.Is(err, apperrors.ErrCustomerAlreadyExists):
			continue
		case err != nil:
			return fmt.Errorf("customer %q: %w", c.Name, err)
		}
		res.Customers++
	}

	return nil
}

func applyMerchant(ctx context.Context, svc *catalog.Service, m Merchant, res *Result) error {
	merchant, err := svc.GetMerchant(ctx, m.ID)
	switch {
	case m.ID != uuid.Nil && err == nil:
	case m.ID == uuid.Nil || errors.Is(err, apperrors.ErrMerchantNotFound):
		merchant, err = svc.CreateMerchant(ctx, models.Merchant{
			ID:                  m.ID,
			Name:                m.Name,
			Email:               m.Email,
			Category:            m.Category,
			Active:              enabled(m.Active),
			RedemptionThreshold: m.RedemptionThreshold,
		})
		if err != nil {
			return err
		}
		res.Merchants++
	default:
		return err
	}

	existingRules, err := svc.ListRules(ctx, merchant.ID)
	if err != nil {
		return err
	}
	for _, r := range m.Rules {
		if r.ID != uuid.Nil && containsID(existingRules, r.ID, func(e models.EarnRule) uuid.UUID { return e.ID }) {
			continue
		}

		rule := models.EarnRule{
			ID:            r.ID,
			MerchantID:    merchant.ID,
			Description:   r.Description,
			PointsAwarded: r.Points,
			Active:        enabled(r.Active),
		}
		if r.SpendUnit != "" {
			unit, err := decimal.NewFromString(r.SpendUnit)
			if err != nil {
				return fmt.Errorf("rule %q spend unit: %w", r.Description, err)
			}
			rule.SpendUnit = decimal.NewNullDecimal(unit)
		}

		if _, err := svc.CreateRule(ctx, rule); err != nil {
			return fmt.Errorf("rule %q: %w", r.Description, err)
		}
		res.Rules++
	}

	existingRewards, err := svc.ListRewards(ctx, merchant.ID)
	if err != nil {
		return err
	}
	for _, r := range m.Rewards {
		if r.ID != uuid.Nil && containsID(existingRewards, r.ID, func(e models.Reward) uuid.UUID { return e.ID }) {
			continue
		}

		_, err := svc.CreateReward(ctx, models.Reward{
			ID:             r.ID,
			MerchantID:     merchant.ID,
			Title:          r.Title,
			Description:    r.Description,
			PointsRequired: r.Points,
			Active:         enabled(r.Active),
			ExpiresAt:      r.ExpiresAt,
		})
		if err != nil {
			return fmt.Errorf("reward %q: %w", r.Title, err)
		}
		res.Rewards++
	}

	return nil
}

func enabled(flag *bool) bool {
	return flag == nil || *flag
}

func containsID[T any](items []T, id uuid.UUID, idOf func(T) uuid.UUID) bool {
	for _, item := range items {
		if idOf(item) == id {
			return true
		}
	}
	return false
}
