package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/pointledger/internal/models"
)

func newEvent(key models.BalanceKey, delta int64, points int64) models.BalanceEvent {
	return models.BalanceEvent{
		Transaction: models.Transaction{
			ID:          uuid.New(),
			ProcessedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			CustomerID:  key.CustomerID,
			MerchantID:  key.MerchantID,
			Type:        models.TransactionTypeEarn,
			Delta:       delta,
			ReasonID:    uuid.New(),
			Description: "visit",
		},
		Balance: models.Balance{CustomerID: key.CustomerID, MerchantID: key.MerchantID, Points: points},
	}
}

func newKey() models.BalanceKey {
	return models.BalanceKey{CustomerID: uuid.New(), MerchantID: uuid.New()}
}
