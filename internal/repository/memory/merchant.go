package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/nkiryanov/pointledger/internal/apperrors"
	"github.com/nkiryanov/pointledger/internal/models"
)

type merchantRepo Storage

func (r *merchantRepo) CreateMerchant(_ context.Context, m models.Merchant) (models.Merchant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = r.now()
	r.merchants[m.ID] = m

	return m, nil
}

func (r *merchantRepo) GetMerchant(_ context.Context, id uuid.UUID) (models.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.merchants[id]
	if !ok {
		return m, apperrors.ErrMerchantNotFound
	}

	return m, nil
}

func (r *merchantRepo) ListMerchants(_ context.Context) ([]models.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	merchants := make([]models.Merchant, 0, len(r.merchants))
	for _, m := range r.merchants {
		merchants = append(merchants, m)
	}

	sort.Slice(merchants, func(i, j int) bool {
		if merchants[i].Name != merchants[j].Name {
			return merchants[i].Name < merchants[j].Name
		}
		return merchants[i].ID.String() < merchants[j].ID.String()
	})

	return merchants, nil
}

func (r *merchantRepo) UpdateMerchant(_ context.Context, m models.Merchant) (models.Merchant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.merchants[m.ID]
	if !ok {
		return models.Merchant{}, apperrors.ErrMerchantNotFound
	}

	m.CreatedAt = stored.CreatedAt
	r.merchants[m.ID] = m

	return m, nil
}

type customerRepo Storage

func (r *customerRepo) CreateCustomer(_ context.Context, c models.Customer) (models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.phones[c.Phone]; taken {
		return models.Customer{}, apperrors.ErrCustomerAlreadyExists
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = r.now()
	r.customers[c.ID] = c
	r.phones[c.Phone] = c.ID

	return c, nil
}

func (r *customerRepo) GetCustomer(_ context.Context, id uuid.UUID) (models.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.customers[id]
	if !ok {
		return c, apperrors.ErrCustomerNotFound
	}

	return c, nil
}

func (r *customerRepo) GetCustomerByPhone(_ context.Context, phone string) (models.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.phones[phone]
	if !ok {
		return models.Customer{}, apperrors.ErrCustomerNotFound
	}

	return r.customers[id], nil
}
