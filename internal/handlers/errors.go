package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/pointledger/internal/apperrors"
	"github.com/nkiryanov/pointledger/internal/handlers/render"
	"github.com/nkiryanov/pointledger/internal/logger"
	"github.com/nkiryanov/pointledger/internal/models"
)

// renderError writes response for errors every handler may get from services
func renderError(w http.ResponseWriter, err error, l logger.Logger) {
	var ipErr *apperrors.InsufficientPointsError

	switch {
	case errors.As(err, &ipErr):
		render.InsufficientPoints(w, ipErr.Shortfall())
	case errors.Is(err, apperrors.ErrCustomerNotFound):
		render.ServiceError(w, "Customer not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrMerchantNotFound):
		render.ServiceError(w, "Merchant not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrRuleNotFound):
		render.ServiceError(w, "Earn rule not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrRewardNotFound):
		render.ServiceError(w, "Reward not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrCustomerAlreadyExists):
		render.ServiceError(w, "Customer with this phone already exists", http.StatusConflict)
	case errors.Is(err, apperrors.ErrConcurrentModification), errors.Is(err, apperrors.ErrBalanceInsufficient):
		render.ServiceError(w, "Balance changed concurrently, try again", http.StatusConflict)
	case errors.Is(err, apperrors.ErrMerchantInactive):
		render.ServiceError(w, "Merchant is inactive", http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrNothingToEarn):
		render.ServiceError(w, "Action earns no points", http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrInvalidPhone):
		render.ServiceError(w, "Invalid phone number", http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrInvalidCode):
		render.ServiceError(w, "Invalid code", http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrInvalidInput):
		render.ServiceError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		l.Error("Request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// pathUUID parses path value or writes 400 response
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		render.ServiceError(w, "Invalid "+name, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func pathBalanceKey(w http.ResponseWriter, r *http.Request) (models.BalanceKey, bool) {
	customerID, ok := pathUUID(w, r, "customer_id")
	if !ok {
		return models.BalanceKey{}, false
	}
	merchantID, ok := pathUUID(w, r, "merchant_id")
	if !ok {
		return models.BalanceKey{}, false
	}
	return models.BalanceKey{CustomerID: customerID, MerchantID: merchantID}, true
}
