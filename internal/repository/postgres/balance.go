package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/pointledger/internal/apperrors"
	"github.com/nkiryanov/pointledger/internal/models"
	"github.com/nkiryanov/pointledger/internal/repository"
)

type BalanceRepo struct {
	DB DBTX
}

const balanceColumns = `customer_id, merchant_id, points, earned, redeemed, updated_at`

const getBalance = `-- name: GetBalance
SELECT ` + balanceColumns + ` FROM balances
WHERE customer_id = $1 AND merchant_id = $2
`

func (r *BalanceRepo) GetBalance(ctx context.Context, key models.BalanceKey) (models.Balance, error) {
	rows, _ := r.DB.Query(ctx, getBalance, key.CustomerID, key.MerchantID)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		return models.Balance{CustomerID: key.CustomerID, MerchantID: key.MerchantID}, nil
	default:
		return balance, fmt.Errorf("db error: %w", err)
	}
}

// Balance row is created on the first earn
const earnBalance = `-- name: EarnBalance
INSERT INTO balances (customer_id, merchant_id, points, earned, redeemed, updated_at)
VALUES ($1, $2, $3, $3, 0, $4)
ON CONFLICT (customer_id, merchant_id) DO UPDATE SET
	points = balances.points + EXCLUDED.points,
	earned = balances.earned + EXCLUDED.earned,
	updated_at = EXCLUDED.updated_at
RETURNING ` + balanceColumns

// Conditional update: no rows returned if balance is not enough
const redeemBalance = `-- name: RedeemBalance
UPDATE balances SET
	points = points - $3,
	redeemed = redeemed + $3,
	updated_at = $4
WHERE customer_id = $1 AND merchant_id = $2 AND points >= $3
RETURNING ` + balanceColumns

const insertTransaction = `-- name: InsertTransaction
INSERT INTO transactions (id, processed_at, customer_id, merchant_id, type, delta, reason_id, description)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

func (r *BalanceRepo) ApplyDelta(ctx context.Context, tr models.Transaction) (models.Balance, error) {
	var balance models.Balance

	if err := tr.CheckDelta(); err != nil {
		return balance, err
	}
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	if tr.ProcessedAt.IsZero() {
		tr.ProcessedAt = time.Now()
	}

	err := inTx(ctx, r.DB, func(tx pgx.Tx) error {
		var rows pgx.Rows
		if tr.Delta > 0 {
			rows, _ = tx.Query(ctx, earnBalance, tr.CustomerID, tr.MerchantID, tr.Delta, tr.ProcessedAt)
		} else {
			rows, _ = tx.Query(ctx, redeemBalance, tr.CustomerID, tr.MerchantID, -tr.Delta, tr.ProcessedAt)
		}

		var err error
		balance, err = pgx.CollectOneRow(rows, rowToBalance)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return apperrors.ErrBalanceInsufficient
		case err != nil:
			return mapConstraintError(err)
		}

		_, err = tx.Exec(ctx, insertTransaction,
			tr.ID, tr.ProcessedAt, tr.CustomerID, tr.MerchantID, tr.Type, tr.Delta, tr.ReasonID, tr.Description,
		)
		if err != nil {
			return mapConstraintError(err)
		}

		return nil
	})

	return balance, err
}

// Map foreign key and check violations to well known errors
func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("db error: %w", err)
	}

	switch {
	case pgErr.Code == pgerrcode.ForeignKeyViolation && pgErr.ConstraintName == "balances_customer_id_fkey":
		return apperrors.ErrCustomerNotFound
	case pgErr.Code == pgerrcode.ForeignKeyViolation && pgErr.ConstraintName == "balances_merchant_id_fkey":
		return apperrors.ErrMerchantNotFound
	case pgErr.Code == pgerrcode.CheckViolation && pgErr.ConstraintName == "balances_points_check":
		return apperrors.ErrBalanceInsufficient
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

const listTransactions = `-- name: ListTransactions
SELECT id, processed_at, customer_id, merchant_id, type, delta, reason_id, description FROM transactions
WHERE customer_id = $1 AND merchant_id = $2
	AND (cardinality($3::text[]) = 0 OR type = ANY($3::text[]))
ORDER BY processed_at DESC, id
LIMIT NULLIF($4::bigint, 0)
`

func (r *BalanceRepo) ListTransactions(ctx context.Context, key models.BalanceKey, opts repository.ListTransactionsOpts) ([]models.Transaction, error) {
	types := opts.Types
	if types == nil {
		types = []string{}
	}

	rows, _ := r.DB.Query(ctx, listTransactions, key.CustomerID, key.MerchantID, types, int64(opts.Limit))
	transactions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Transaction, error) {
		var t models.Transaction
		err := row.Scan(&t.ID, &t.ProcessedAt, &t.CustomerID, &t.MerchantID, &t.Type, &t.Delta, &t.ReasonID, &t.Description)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

const listCustomerBalances = `-- name: ListCustomerBalances
SELECT ` + balanceColumns + ` FROM balances
WHERE customer_id = $1
ORDER BY merchant_id
`

func (r *BalanceRepo) ListCustomerBalances(ctx context.Context, customerID uuid.UUID) ([]models.Balance, error) {
	rows, _ := r.DB.Query(ctx, listCustomerBalances, customerID)
	balances, err := pgx.CollectRows(rows, rowToBalance)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return balances, nil
}

const merchantStats = `-- name: MerchantStats
SELECT
	count(*),
	COALESCE(sum(points), 0)::bigint,
	COALESCE(sum(earned), 0)::bigint,
	COALESCE(sum(redeemed), 0)::bigint
FROM balances
WHERE merchant_id = $1
`

func (r *BalanceRepo) MerchantStats(ctx context.Context, merchantID uuid.UUID) (models.MerchantStats, error) {
	stats := models.MerchantStats{MerchantID: merchantID}

	err := r.DB.QueryRow(ctx, merchantStats, merchantID).Scan(
		&stats.Customers, &stats.OutstandingPoints, &stats.EarnedPoints, &stats.RedeemedPoints,
	)
	if err != nil {
		return stats, fmt.Errorf("db error: %w", err)
	}

	return stats, nil
}

// Pattern is matched with ILIKE, so it is escaped by the caller
const listCardHolders = `-- name: ListCardHolders
SELECT c.id, c.created_at, c.name, c.email, c.phone,
	b.customer_id, b.merchant_id, b.points, b.earned, b.redeemed, b.updated_at
FROM balances b
JOIN customers c ON c.id = b.customer_id
WHERE b.merchant_id = $1
	AND (c.name ILIKE $2 OR c.email ILIKE $2 OR c.phone ILIKE $2)
ORDER BY b.points DESC, c.name, c.id
LIMIT NULLIF($3::bigint, 0)
`

func (r *BalanceRepo) ListCardHolders(ctx context.Context, merchantID uuid.UUID, opts repository.ListCardHoldersOpts) ([]models.CardHolder, error) {
	rows, _ := r.DB.Query(ctx, listCardHolders, merchantID, containsPattern(opts.Query), int64(opts.Limit))
	holders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.CardHolder, error) {
		var h models.CardHolder
		c, b := &h.Customer, &h.Balance
		err := row.Scan(
			&c.ID, &c.CreatedAt, &c.Name, &c.Email, &c.Phone,
			&b.CustomerID, &b.MerchantID, &b.Points, &b.Earned, &b.Redeemed, &b.UpdatedAt,
		)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return holders, nil
}

// containsPattern builds LIKE pattern matching query anywhere in the value
func containsPattern(query string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(query)
	return "%" + escaped + "%"
}

func rowToBalance(row pgx.CollectableRow) (models.Balance, error) {
	var b models.Balance
	err := row.Scan(&b.CustomerID, &b.MerchantID, &b.Points, &b.Earned, &b.Redeemed, &b.UpdatedAt)
	return b, err
}
