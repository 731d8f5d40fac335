// Package memory is an embedded storage used when no database is configured.
// State lives in process memory and is lost on restart.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/pointledger/internal/models"
	"github.com/nkiryanov/pointledger/internal/repository"
)

type Storage struct {
	mu sync.RWMutex

	merchants map[uuid.UUID]models.Merchant
	customers map[uuid.UUID]models.Customer
	phones    map[string]uuid.UUID
	rules     map[uuid.UUID]models.EarnRule
	rewards   map[uuid.UUID]models.Reward
	balances  map[models.BalanceKey]models.Balance
	ledger    map[models.BalanceKey][]models.Transaction

	now func() time.Time
}

func NewStorage() *Storage {
	return &Storage{
		merchants: make(map[uuid.UUID]models.Merchant),
		customers: make(map[uuid.UUID]models.Customer),
		phones:    make(map[string]uuid.UUID),
		rules:     make(map[uuid.UUID]models.EarnRule),
		rewards:   make(map[uuid.UUID]models.Reward),
		balances:  make(map[models.BalanceKey]models.Balance),
		ledger:    make(map[models.BalanceKey][]models.Transaction),
		now:       time.Now,
	}
}

func (s *Storage) Merchant() repository.MerchantRepo {
	return (*merchantRepo)(s)
}

func (s *Storage) Customer() repository.CustomerRepo {
	return (*customerRepo)(s)
}

func (s *Storage) Catalog() repository.CatalogRepo {
	return (*catalogRepo)(s)
}

func (s *Storage) Balance() repository.BalanceRepo {
	return (*balanceRepo)(s)
}
