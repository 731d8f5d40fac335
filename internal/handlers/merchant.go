package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/pointledger/internal/handlers/render"
	"github.com/nkiryanov/pointledger/internal/logger"
	"github.com/nkiryanov/pointledger/internal/models"
	"github.com/nkiryanov/pointledger/internal/repository"
	"github.com/nkiryanov/pointledger/internal/service/catalog"
)

type merchantResponse struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	Email               string    `json:"email,omitempty"`
	Category            string    `json:"category,omitempty"`
	Active              bool      `json:"active"`
	RedemptionThreshold int64     `json:"redemption_threshold"`
	CreatedAt           time.Time `json:"created_at"`
}

func newMerchantResponse(m models.Merchant) merchantResponse {
	return merchantResponse{
		ID:                  m.ID,
		Name:                m.Name,
		Email:               m.Email,
		Category:            m.Category,
		Active:              m.Active,
		RedemptionThreshold: m.RedemptionThreshold,
		CreatedAt:           m.CreatedAt,
	}
}

type ruleResponse struct {
	ID            uuid.UUID        `json:"id"`
	MerchantID    uuid.UUID        `json:"merchant_id"`
	Description   string           `json:"description"`
	PointsAwarded int64            `json:"points_awarded"`
	SpendUnit     *decimal.Decimal `json:"spend_unit,omitempty"`
	Active        bool             `json:"active"`
	CreatedAt     time.Time        `json:"created_at"`
}

func newRuleResponse(rule models.EarnRule) ruleResponse {
	res := ruleResponse{
		ID:            rule.ID,
		MerchantID:    rule.MerchantID,
		Description:   rule.Description,
		PointsAwarded: rule.PointsAwarded,
		Active:        rule.Active,
		CreatedAt:     rule.CreatedAt,
	}
	if rule.SpendUnit.Valid {
		res.SpendUnit = &rule.SpendUnit.Decimal
	}
	return res
}

type rewardResponse struct {
	ID             uuid.UUID  `json:"id"`
	MerchantID     uuid.UUID  `json:"merchant_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	PointsRequired int64      `json:"points_required"`
	Active         bool       `json:"active"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

func newRewardResponse(reward models.Reward) rewardResponse {
	return rewardResponse{
		ID:             reward.ID,
		MerchantID:     reward.MerchantID,
		Title:          reward.Title,
		Description:    reward.Description,
		PointsRequired: reward.PointsRequired,
		Active:         reward.Active,
		ExpiresAt:      reward.ExpiresAt,
	}
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func valueOr(flag *bool, def bool) bool {
	if flag == nil {
		return def
	}
	return *flag
}

func handleCreateMerchant(catalogService catalogService, l logger.Logger) http.Handler {
	type request struct {
		Name                string `json:"name" validate:"required"`
		Email               string `json:"email" validate:"omitempty,email"`
		Category            string `json:"category"`
		Active              *bool  `json:"active"`
		RedemptionThreshold int64  `json:"redemption_threshold" validate:"gte=0"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		merchant, err := catalogService.CreateMerchant(r.Context(), models.Merchant{
			Name:                req.Name,
			Email:               req.Email,
			Category:            req.Category,
			Active:              valueOr(req.Active, true),
			RedemptionThreshold: req.RedemptionThreshold,
		})
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONWithStatus(w, newMerchantResponse(merchant), http.StatusCreated)
	})
}

func handleListMerchants(catalogService catalogService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		merchants, err := catalogService.ListMerchants(r.Context())
		if err != nil {
			renderError(w, err, l)
			return
		}

		res := make([]merchantResponse, 0, len(merchants))
		for _, m := range merchants {
			res = append(res, newMerchantResponse(m))
		}
		render.JSON(w, res)
	})
}

func handleUpdateMerchant(catalogService catalogService, l logger.Logger) http.Handler {
	type request struct {
		Name                *string `json:"name" validate:"omitempty,min=1"`
		Email               *string `json:"email" validate:"omitempty,email"`
		Category            *string `json:"category"`
		Active              *bool   `json:"active"`
		RedemptionThreshold *int64  `json:"redemption_threshold" validate:"omitempty,gte=0"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := pathUUID(w, r, "merchant_id")
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		merchant, err := catalogService.UpdateMerchant(r.Context(), merchantID, catalog.MerchantUpdate(req))
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newMerchantResponse(merchant))
	})
}

// handleCardHolders lists merchant customers with points, optionally filtered by ?q= and ?limit=
func handleCardHolders(catalogService catalogService, l logger.Logger) http.Handler {
	type cardHolder struct {
		CustomerID uuid.UUID `json:"customer_id"`
		Name       string    `json:"name"`
		Email      string    `json:"email,omitempty"`
		Phone      string    `json:"phone"`
		Points     int64     `json:"points"`
		Earned     int64     `json:"earned"`
		Redeemed   int64     `json:"redeemed"`
		UpdatedAt  time.Time `json:"updated_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := pathUUID(w, r, "merchant_id")
		if !ok {
			return
		}

		query := r.URL.Query()
		opts := repository.ListCardHoldersOpts{Query: query.Get("q")}
		if limit := query.Get("limit"); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil || n < 0 {
				render.ServiceError(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			opts.Limit = n
		}

		holders, err := catalogService.ListCardHolders(r.Context(), merchantID, opts)
		if err != nil {
			renderError(w, err, l)
			return
		}

		res := make([]cardHolder, 0, len(holders))
		for _, h := range holders {
			res = append(res, cardHolder{
				CustomerID: h.Customer.ID,
				Name:       h.Customer.Name,
				Email:      h.Customer.Email,
				Phone:      h.Customer.Phone,
				Points:     h.Balance.Points,
				Earned:     h.Balance.Earned,
				Redeemed:   h.Balance.Redeemed,
				UpdatedAt:  h.Balance.UpdatedAt,
			})
		}
		render.JSON(w, res)
	})
}

func handleMerchantStats(catalogService catalogService, l logger.Logger) http.Handler {
	type response struct {
		MerchantID        uuid.UUID `json:"merchant_id"`
		Customers         int64     `json:"customers"`
		OutstandingPoints int64     `json:"outstanding_points"`
		EarnedPoints      int64     `json:"earned_points"`
		RedeemedPoints    int64     `json:"redeemed_points"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := pathUUID(w, r, "merchant_id")
		if !ok {
			return
		}

		stats, err := catalogService.MerchantStats(r.Context(), merchantID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, response(stats))
	})
}

func handleCreateRule(catalogService catalogService, l logger.Logger) http.Handler {
	type request struct {
		Description   string              `json:"description" validate:"required"`
		PointsAwarded int64               `json:"points_awarded" validate:"gt=0"`
		SpendUnit     decimal.NullDecimal `json:"spend_unit" validate:"omitempty,gt=0"`
		Active        *bool               `json:"active"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := pathUUID(w, r, "merchant_id")
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		rule, err := catalogService.CreateRule(r.Context(), models.EarnRule{
			MerchantID:    merchantID,
			Description:   req.Description,
			PointsAwarded: req.PointsAwarded,
			SpendUnit:     req.SpendUnit,
			Active:        valueOr(req.Active, true),
		})
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONWithStatus(w, newRuleResponse(rule), http.StatusCreated)
	})
}

func handleListRules(catalogService catalogService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := pathUUID(w, r, "merchant_id")
		if !ok {
			return
		}

		rules, err := catalogService.ListRules(r.Context(), merchantID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		res := make([]ruleResponse, 0, len(rules))
		for _, rule := range rules {
			res = append(res, newRuleResponse(rule))
		}
		render.JSON(w, res)
	})
}

func handleUpdateRule(catalogService catalogService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := pathUUID(w, r, "merchant_id")
		if !ok {
			return
		}
		ruleID, ok := pathUUID(w, r, "rule_id")
		if !ok {
			return
		}

		req, err := render.BindAndValidate[setActiveRequest](w, r)
		if err != nil {
			return
		}

		rule, err := catalogService.SetRuleActive(r.Context(), merchantID, ruleID, *req.Active)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newRuleResponse(rule))
	})
}

func handleCreateReward(catalogService catalogService, l logger.Logger) http.Handler {
	type request struct {
		Title          string     `json:"title" validate:"required"`
		Description    string     `json:"description"`
		PointsRequired int64      `json:"points_required" validate:"gt=0"`
		Active         *bool      `json:"active"`
		ExpiresAt      *time.Time `json:"expires_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := pathUUID(w, r, "merchant_id")
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		reward, err := catalogService.CreateReward(r.Context(), models.Reward{
			MerchantID:     merchantID,
			Title:          req.Title,
			Description:    req.Description,
			PointsRequired: req.PointsRequired,
			Active:         valueOr(req.Active, true),
			ExpiresAt:      req.ExpiresAt,
		})
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONWithStatus(w, newRewardResponse(reward), http.StatusCreated)
	})
}

func handleListRewards(catalogService catalogService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := pathUUID(w, r, "merchant_id")
		if !ok {
			return
		}

		rewards, err := catalogService.ListRewards(r.Context(), merchantID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		res := make([]rewardResponse, 0, len(rewards))
		for _, reward := range rewards {
			res = append(res, newRewardResponse(reward))
		}
		render.JSON(w, res)
	})
}

func handleUpdateReward(catalogService catalogService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		merchantID, ok := pathUUID(w, r, "merchant_id")
		if !ok {
			return
		}
		rewardID, ok := pathUUID(w, r, "reward_id")
		if !ok {
			return
		}

		req, err := render.BindAndValidate[setActiveRequest](w, r)
		if err != nil {
			return
		}

		reward, err := catalogService.SetRewardActive(r.Context(), merchantID, rewardID, *req.Active)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newRewardResponse(reward))
	})
}
