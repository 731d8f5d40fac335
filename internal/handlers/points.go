package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/pointledger/internal/handlers/render"
	"github.com/nkiryanov/pointledger/internal/logger"
	"github.com/nkiryanov/pointledger/internal/service/ledger"
)

type newBalanceResponse struct {
	NewBalance int64 `json:"new_balance"`
}

func handleEarn(ledgerService ledgerService, l logger.Logger) http.Handler {
	type request struct {
		CustomerID uuid.UUID `json:"customer_id" validate:"required"`
		MerchantID uuid.UUID `json:"merchant_id" validate:"required"`
		RuleID     uuid.UUID `json:"rule_id" validate:"required"`

		// Purchase amount for spend-based rules
		Amount decimal.Decimal `json:"amount" validate:"gte=0,lte=1000000000"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		balance, err := ledgerService.Earn(r.Context(), ledger.EarnRequest{
			CustomerID: req.CustomerID,
			MerchantID: req.MerchantID,
			RuleID:     req.RuleID,
			Amount:     req.Amount,
		})
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newBalanceResponse{NewBalance: balance.Points})
	})
}

func handleRedeem(ledgerService ledgerService, l logger.Logger) http.Handler {
	type request struct {
		CustomerID uuid.UUID `json:"customer_id" validate:"required"`
		MerchantID uuid.UUID `json:"merchant_id" validate:"required"`
		RewardID   uuid.UUID `json:"reward_id" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		balance, err := ledgerService.Redeem(r.Context(), ledger.RedeemRequest{
			CustomerID: req.CustomerID,
			MerchantID: req.MerchantID,
			RewardID:   req.RewardID,
		})
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newBalanceResponse{NewBalance: balance.Points})
	})
}
