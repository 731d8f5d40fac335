package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/pointledger/internal/apperrors"
	"github.com/nkiryanov/pointledger/internal/models"
	"github.com/nkiryanov/pointledger/internal/repository"
	"github.com/nkiryanov/pointledger/internal/testutil"
)

func TestCatalog(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("rules", func(t *testing.T) {
		testInTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			merchant, err := storage.Merchant().CreateMerchant(t.Context(), models.Merchant{Name: "Pizza Place", Active: true})
			require.NoError(t, err)

			t.Run("create and get", func(t *testing.T) {
				testInTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					created, err := storage.Catalog().CreateRule(t.Context(), models.EarnRule{
						MerchantID:    merchant.ID,
						Description:   "Every 5 spent",
						PointsAwarded: 10,
						SpendUnit:     decimal.NewNullDecimal(decimal.RequireFromString("5")),
						Active:        true,
					})
					require.NoError(t, err)
					require.NotEqual(t, uuid.Nil, created.ID)
					require.False(t, created.CreatedAt.IsZero())

					got, err := storage.Catalog().GetRule(t.Context(), created.ID)

					require.NoError(t, err)
					require.Equal(t, "Every 5 spent", got.Description)
					require.True(t, got.SpendUnit.Valid)
					require.True(t, got.SpendUnit.Decimal.Equal(decimal.NewFromInt(5)))
				})
			})

			t.Run("flat rule has no spend unit", func(t *testing.T) {
				testInTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					created, err := storage.Catalog().CreateRule(t.Context(), models.EarnRule{MerchantID: merchant.ID, Description: "Visit", PointsAwarded: 50, Active: true})
					require.NoError(t, err)

					require.False(t, created.SpendUnit.Valid)
				})
			})

			t.Run("unknown merchant", func(t *testing.T) {
				testInTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Catalog().CreateRule(t.Context(), models.EarnRule{MerchantID: uuid.New(), Description: "Visit", PointsAwarded: 50})

					require.Error(t, err)
				})
			})

			t.Run("get unknown", func(t *testing.T) {
				_, err := storage.Catalog().GetRule(t.Context(), uuid.New())

				require.ErrorIs(t, err, apperrors.ErrRuleNotFound)
			})

			t.Run("list and deactivate", func(t *testing.T) {
				testInTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					rule, err := storage.Catalog().CreateRule(t.Context(), models.EarnRule{MerchantID: merchant.ID, Description: "Visit", PointsAwarded: 50, Active: true})
					require.NoError(t, err)

					updated, err := storage.Catalog().SetRuleActive(t.Context(), rule.ID, false)
					require.NoError(t, err)
					require.False(t, updated.Active)

					rules, err := storage.Catalog().ListRules(t.Context(), merchant.ID)
					require.NoError(t, err)
					require.Len(t, rules, 1, "inactive rules are listed too")
					require.False(t, rules[0].Active)

					_, err = storage.Catalog().SetRuleActive(t.Context(), uuid.New(), true)
					require.ErrorIs(t, err, apperrors.ErrRuleNotFound)
				})
			})
		})
	})

	t.Run("rewards", func(t *testing.T) {
		testInTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			merchant, err := storage.Merchant().CreateMerchant(t.Context(), models.Merchant{Name: "Pizza Place", Active: true})
			require.NoError(t, err)

			t.Run("create and get", func(t *testing.T) {
				testInTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					expiresAt := testutil.MustParseTime(t, "2030-01-01 00:00:00Z")
					created, err := storage.Catalog().CreateReward(t.Context(), models.Reward{
						MerchantID:     merchant.ID,
						Title:          "Free pizza",
						PointsRequired: 500,
						Active:         true,
						ExpiresAt:      &expiresAt,
					})
					require.NoError(t, err)

					got, err := storage.Catalog().GetReward(t.Context(), created.ID)

					require.NoError(t, err)
					require.Equal(t, "Free pizza", got.Title)
					require.Equal(t, int64(500), got.PointsRequired)
					require.NotNil(t, got.ExpiresAt)
					require.WithinDuration(t, expiresAt, *got.ExpiresAt, time.Microsecond)
				})
			})

			t.Run("list cheapest first", func(t *testing.T) {
				testInTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					for _, points := range []int64{500, 150, 300} {
						_, err := storage.Catalog().CreateReward(t.Context(), models.Reward{MerchantID: merchant.ID, Title: "Reward", PointsRequired: points, Active: true})
						require.NoError(t, err)
					}

					rewards, err := storage.Catalog().ListRewards(t.Context(), merchant.ID)

					require.NoError(t, err)
					require.Len(t, rewards, 3)
					require.Equal(t, int64(150), rewards[0].PointsRequired)
					require.Equal(t, int64(300), rewards[1].PointsRequired)
					require.Equal(t, int64(500), rewards[2].PointsRequired)
					require.Nil(t, rewards[0].ExpiresAt)
				})
			})

			t.Run("deactivate", func(t *testing.T) {
				testInTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					reward, err := storage.Catalog().CreateReward(t.Context(), models.Reward{MerchantID: merchant.ID, Title: "Drink", PointsRequired: 100, Active: true})
					require.NoError(t, err)

					updated, err := storage.Catalog().SetRewardActive(t.Context(), reward.ID, false)

					require.NoError(t, err)
					require.False(t, updated.Active)
				})
			})

			t.Run("unknown", func(t *testing.T) {
				_, err := storage.Catalog().GetReward(t.Context(), uuid.New())
				require.ErrorIs(t, err, apperrors.ErrRewardNotFound)

				_, err = storage.Catalog().SetRewardActive(t.Context(), uuid.New(), false)
				require.ErrorIs(t, err, apperrors.ErrRewardNotFound)
			})
		})
	})
}
