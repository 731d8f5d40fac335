package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/pointledger/internal/handlers/render"
	"github.com/nkiryanov/pointledger/internal/logger"
	"github.com/nkiryanov/pointledger/internal/models"
	"github.com/nkiryanov/pointledger/internal/repository"
	"github.com/nkiryanov/pointledger/internal/service/notify"
)

const keepAliveInterval = 15 * time.Second

type rewardStatusResponse struct {
	rewardResponse
	Affordable bool  `json:"affordable"`
	Shortfall  int64 `json:"shortfall"`
}

func handleCard(ledgerService ledgerService, l logger.Logger) http.Handler {
	type response struct {
		CustomerID   uuid.UUID              `json:"customer_id"`
		MerchantID   uuid.UUID              `json:"merchant_id"`
		MerchantName string                 `json:"merchant_name"`
		Points       int64                  `json:"points"`
		Earned       int64                  `json:"earned"`
		Redeemed     int64                  `json:"redeemed"`
		Threshold    int64                  `json:"redemption_threshold"`
		Progress     int                    `json:"progress"`
		Affordable   []rewardResponse       `json:"affordable"`
		Rewards      []rewardStatusResponse `json:"rewards"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := pathBalanceKey(w, r)
		if !ok {
			return
		}

		card, err := ledgerService.Card(r.Context(), key)
		if err != nil {
			renderError(w, err, l)
			return
		}

		res := response{
			CustomerID:   card.Balance.CustomerID,
			MerchantID:   card.Merchant.ID,
			MerchantName: card.Merchant.Name,
			Points:       card.Balance.Points,
			Earned:       card.Balance.Earned,
			Redeemed:     card.Balance.Redeemed,
			Threshold:    card.Merchant.RedemptionThreshold,
			Progress:     card.Progress,
			Affordable:   make([]rewardResponse, 0, len(card.Affordable)),
			Rewards:      make([]rewardStatusResponse, 0, len(card.Rewards)),
		}
		for _, reward := range card.Affordable {
			res.Affordable = append(res.Affordable, newRewardResponse(reward))
		}
		for _, status := range card.Rewards {
			res.Rewards = append(res.Rewards, rewardStatusResponse{
				rewardResponse: newRewardResponse(status.Reward),
				Affordable:     status.Affordable,
				Shortfall:      status.Shortfall,
			})
		}

		render.JSON(w, res)
	})
}

func handleHistory(ledgerService ledgerService, l logger.Logger) http.Handler {
	type transaction struct {
		ID          uuid.UUID `json:"id"`
		Type        string    `json:"type"`
		Delta       int64     `json:"delta"`
		ReasonID    uuid.UUID `json:"reason_id"`
		Description string    `json:"description,omitempty"`
		ProcessedAt time.Time `json:"processed_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := pathBalanceKey(w, r)
		if !ok {
			return
		}

		opts := repository.ListTransactionsOpts{}
		query := r.URL.Query()
		if typ := query.Get("type"); typ != "" {
			for _, t := range strings.Split(typ, ",") {
				if t != models.TransactionTypeEarn && t != models.TransactionTypeRedeem {
					render.ServiceError(w, "Unknown transaction type "+t, http.StatusBadRequest)
					return
				}
				opts.Types = append(opts.Types, t)
			}
		}
		if limit := query.Get("limit"); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil || n < 0 {
				render.ServiceError(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			opts.Limit = n
		}

		trs, err := ledgerService.History(r.Context(), key, opts)
		if err != nil {
			renderError(w, err, l)
			return
		}

		history := make([]transaction, 0, len(trs))
		for _, t := range trs {
			history = append(history, transaction{
				ID:          t.ID,
				Type:        t.Type,
				Delta:       t.Delta,
				ReasonID:    t.ReasonID,
				Description: t.Description,
				ProcessedAt: t.ProcessedAt,
			})
		}

		render.JSON(w, history)
	})
}

// handleEvents streams balance changes as server-sent events until client goes away
func handleEvents(events eventSource, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := pathBalanceKey(w, r)
		if !ok {
			return
		}

		rc := http.NewResponseController(w)
		ch, cancel := events.Subscribe(key)
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, ": subscribed\n\n")
		if err := rc.Flush(); err != nil {
			l.Error("Event stream can not be flushed", "error", err)
			return
		}

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return

			case <-ticker.C:
				_, _ = fmt.Fprint(w, ": keep-alive\n\n")

			case ev, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(notify.NewMessage(ev))
				if err != nil {
					l.Error("Failed to encode balance event", "error", err)
					continue
				}
				_, _ = fmt.Fprintf(w, "id: %s\nevent: balance\ndata: %s\n\n", ev.Transaction.ID, data)
			}

			if err := rc.Flush(); err != nil {
				return
			}
		}
	})
}
