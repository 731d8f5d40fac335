package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/pointledger/internal/models"
)

// Message is the wire form of models.BalanceEvent sent to external sinks and SSE clients
type Message struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	CustomerID    uuid.UUID `json:"customer_id"`
	MerchantID    uuid.UUID `json:"merchant_id"`
	Type          string    `json:"type"`
	Delta         int64     `json:"delta"`
	ReasonID      uuid.UUID `json:"reason_id"`
	Description   string    `json:"description,omitempty"`
	Balance       int64     `json:"balance"`
	ProcessedAt   time.Time `json:"processed_at"`
}

func NewMessage(ev models.BalanceEvent) Message {
	return Message{
		TransactionID: ev.Transaction.ID,
		CustomerID:    ev.Balance.CustomerID,
		MerchantID:    ev.Balance.MerchantID,
		Type:          ev.Transaction.Type,
		Delta:         ev.Transaction.Delta,
		ReasonID:      ev.Transaction.ReasonID,
		Description:   ev.Transaction.Description,
		Balance:       ev.Balance.Points,
		ProcessedAt:   ev.Transaction.ProcessedAt,
	}
}

func Encode(ev models.BalanceEvent) ([]byte, error) {
	return json.Marshal(NewMessage(ev))
}
