package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/pointledger/internal/apperrors"
	"github.com/nkiryanov/pointledger/internal/models"
)

type CustomerRepo struct {
	DB DBTX
}

const createCustomer = `-- name: CreateCustomer
INSERT INTO customers (id, name, email, phone)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at, name, email, phone
`

func (r *CustomerRepo) CreateCustomer(ctx context.Context, c models.Customer) (models.Customer, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createCustomer, c.ID, c.Name, c.Email, c.Phone)
	customer, err := pgx.CollectOneRow(rows, rowToCustomer)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return customer, apperrors.ErrCustomerAlreadyExists
		}

		return customer, fmt.Errorf("db error: %w", err)
	}

	return customer, nil
}

const getCustomer = `-- name: GetCustomer
SELECT id, created_at, name, email, phone FROM customers
WHERE id = $1
`

func (r *CustomerRepo) GetCustomer(ctx context.Context, id uuid.UUID) (models.Customer, error) {
	rows, _ := r.DB.Query(ctx, getCustomer, id)
	return collectCustomer(rows)
}

const getCustomerByPhone = `-- name: GetCustomerByPhone
SELECT id, created_at, name, email, phone FROM customers
WHERE phone = $1
`

func (r *CustomerRepo) GetCustomerByPhone(ctx context.Context, phone string) (models.Customer, error) {
	rows, _ := r.DB.Query(ctx, getCustomerByPhone, phone)
	return collectCustomer(rows)
}

func collectCustomer(rows pgx.Rows) (models.Customer, error) {
	customer, err := pgx.CollectOneRow(rows, rowToCustomer)

	switch {
	case err == nil:
		return customer, nil
	case errors.Is(err, pgx.ErrNoRows):
		return customer, apperrors.ErrCustomerNotFound
	default:
		return customer, fmt.Errorf("db error: %w", err)
	}
}

func rowToCustomer(row pgx.CollectableRow) (models.Customer, error) {
	var c models.Customer
	err := row.Scan(&c.ID, &c.CreatedAt, &c.Name, &c.Email, &c.Phone)
	return c, err
}
