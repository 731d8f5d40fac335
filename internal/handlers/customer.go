package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/pointledger/internal/handlers/render"
	"github.com/nkiryanov/pointledger/internal/logger"
	"github.com/nkiryanov/pointledger/internal/models"
)

type customerResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

func newCustomerResponse(c models.Customer) customerResponse {
	return customerResponse{ID: c.ID, Name: c.Name, Email: c.Email, Phone: c.Phone, CreatedAt: c.CreatedAt}
}

func handleCreateCustomer(catalogService catalogService, l logger.Logger) http.Handler {
	type request struct {
		Name  string `json:"name" validate:"required"`
		Email string `json:"email" validate:"omitempty,email"`
		Phone string `json:"phone" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		customer, err := catalogService.CreateCustomer(r.Context(), models.Customer{Name: req.Name, Email: req.Email, Phone: req.Phone})
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONWithStatus(w, newCustomerResponse(customer), http.StatusCreated)
	})
}

func handleCustomerByPhone(lookupService lookupService, l logger.Logger) http.Handler {
	type response struct {
		CustomerID uuid.UUID `json:"customer_id"`
		Name       string    `json:"name"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		phone := r.URL.Query().Get("phone")
		if phone == "" {
			render.ServiceError(w, "Query parameter 'phone' is required", http.StatusBadRequest)
			return
		}

		customer, err := lookupService.ResolveByPhone(r.Context(), phone)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, response{CustomerID: customer.ID, Name: customer.Name})
	})
}

func handleCustomerByCode(lookupService lookupService, l logger.Logger) http.Handler {
	type request struct {
		Code string `json:"code" validate:"required"`
	}

	type response struct {
		CustomerID uuid.UUID  `json:"customer_id"`
		MerchantID *uuid.UUID `json:"merchant_id,omitempty"`
		Name       string     `json:"name"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := lookupService.ResolveByScannedCode(r.Context(), req.Code)
		if err != nil {
			renderError(w, err, l)
			return
		}

		out := response{CustomerID: res.Customer.ID, Name: res.Customer.Name}
		if res.MerchantID != uuid.Nil {
			out.MerchantID = &res.MerchantID
		}
		render.JSON(w, out)
	})
}

func handleCustomerCards(ledgerService ledgerService, l logger.Logger) http.Handler {
	type card struct {
		MerchantID   uuid.UUID `json:"merchant_id"`
		MerchantName string    `json:"merchant_name"`
		Points       int64     `json:"points"`
		Progress     int       `json:"progress"`
		UpdatedAt    time.Time `json:"updated_at"`
	}

	type response struct {
		CustomerID  uuid.UUID `json:"customer_id"`
		TotalPoints int64     `json:"total_points"`
		Cards       []card    `json:"cards"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := pathUUID(w, r, "customer_id")
		if !ok {
			return
		}

		cards, err := ledgerService.Cards(r.Context(), customerID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		res := response{
			CustomerID:  cards.Customer.ID,
			TotalPoints: cards.TotalPoints,
			Cards:       make([]card, 0, len(cards.Cards)),
		}
		for _, c := range cards.Cards {
			res.Cards = append(res.Cards, card{
				MerchantID:   c.Merchant.ID,
				MerchantName: c.Merchant.Name,
				Points:       c.Balance.Points,
				Progress:     c.Progress,
				UpdatedAt:    c.Balance.UpdatedAt,
			})
		}

		render.JSON(w, res)
	})
}

// handleCardCode issues code the customer shows to the scanner
func handleCardCode(catalogService catalogService, codes codeIssuer, l logger.Logger) http.Handler {
	type response struct {
		Code      string    `json:"code"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := pathBalanceKey(w, r)
		if !ok {
			return
		}

		if _, err := catalogService.GetCustomer(r.Context(), key.CustomerID); err != nil {
			renderError(w, err, l)
			return
		}
		if _, err := catalogService.GetMerchant(r.Context(), key.MerchantID); err != nil {
			renderError(w, err, l)
			return
		}

		code, err := codes.Issue(key)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, response{Code: code.Value, ExpiresAt: code.ExpiresAt})
	})
}
