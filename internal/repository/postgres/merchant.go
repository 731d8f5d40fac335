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

type MerchantRepo struct {
	DB DBTX
}

const merchantColumns = `id, created_at, name, email, category, active, redemption_threshold`

const createMerchant = `-- name: CreateMerchant
INSERT INTO merchants (id, name, email, category, active, redemption_threshold)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + merchantColumns

func (r *MerchantRepo) CreateMerchant(ctx context.Context, m models.Merchant) (models.Merchant, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createMerchant, m.ID, m.Name, m.Email, m.Category, m.Active, m.RedemptionThreshold)
	merchant, err := pgx.CollectOneRow(rows, rowToMerchant)
	if err != nil {
		return merchant, fmt.Errorf("db error: %w", err)
	}

	return merchant, nil
}

const getMerchant = `-- name: GetMerchant
SELECT ` + merchantColumns + ` FROM merchants
WHERE id = $1
`

func (r *MerchantRepo) GetMerchant(ctx context.Context, id uuid.UUID) (models.Merchant, error) {
	rows, _ := r.DB.Query(ctx, getMerchant, id)
	merchant, err := pgx.CollectOneRow(rows, rowToMerchant)

	switch {
	case err == nil:
		return merchant, nil
	case errors.Is(err, pgx.ErrNoRows):
		return merchant, apperrors.ErrMerchantNotFound
	default:
		return merchant, fmt.Errorf("db error: %w", err)
	}
}

const listMerchants = `-- name: ListMerchants
SELECT ` + merchantColumns + ` FROM merchants
ORDER BY name, id
`

func (r *MerchantRepo) ListMerchants(ctx context.Context) ([]models.Merchant, error) {
	rows, _ := r.DB.Query(ctx, listMerchants)
	merchants, err := pgx.CollectRows(rows, rowToMerchant)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return merchants, nil
}

const updateMerchant = `-- name: UpdateMerchant
UPDATE merchants SET
	name = $2,
	email = $3,
	category = $4,
	active = $5,
	redemption_threshold = $6
WHERE id = $1
RETURNING ` + merchantColumns

func (r *MerchantRepo) UpdateMerchant(ctx context.Context, m models.Merchant) (models.Merchant, error) {
	rows, _ := r.DB.Query(ctx, updateMerchant, m.ID, m.Name, m.Email, m.Category, m.Active, m.RedemptionThreshold)
	merchant, err := pgx.CollectOneRow(rows, rowToMerchant)

	switch {
	case err == nil:
		return merchant, nil
	case errors.Is(err, pgx.ErrNoRows):
		return merchant, apperrors.ErrMerchantNotFound
	default:
		return merchant, fmt.Errorf("db error: %w", err)
	}
}

func rowToMerchant(row pgx.CollectableRow) (models.Merchant, error) {
	var m models.Merchant
	err := row.Scan(&m.ID, &m.CreatedAt, &m.Name, &m.Email, &m.Category, &m.Active, &m.RedemptionThreshold)
	return m, err
}
