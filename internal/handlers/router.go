package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/pointledger/internal/handlers/middleware"
	"github.com/nkiryanov/pointledger/internal/logger"
	"github.com/nkiryanov/pointledger/internal/models"
	"github.com/nkiryanov/pointledger/internal/repository"
	"github.com/nkiryanov/pointledger/internal/service/cardcode"
	"github.com/nkiryanov/pointledger/internal/service/catalog"
	"github.com/nkiryanov/pointledger/internal/service/ledger"
	"github.com/nkiryanov/pointledger/internal/service/lookup"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type Services struct {
	Ledger  ledgerService
	Lookup  lookupService
	Catalog catalogService
	Codes   codeIssuer
	Events  eventSource

	// Optional limit for customer lookup, nil disables it
	LookupLimiter *middleware.RateLimiter
}

func NewRouter(s Services, logger logger.Logger) http.Handler {
	api := http.NewServeMux()

	// Points ledger
	api.Handle("POST /points/earn", handleEarn(s.Ledger, logger))
	api.Handle("POST /points/redeem", handleRedeem(s.Ledger, logger))

	// Balances
	api.Handle("GET /balances/{customer_id}/{merchant_id}", handleCard(s.Ledger, logger))
	api.Handle("GET /balances/{customer_id}/{merchant_id}/transactions", handleHistory(s.Ledger, logger))
	api.Handle("GET /balances/{customer_id}/{merchant_id}/events", handleEvents(s.Events, logger))

	// Customers and lookup
	api.Handle("POST /customers", handleCreateCustomer(s.Catalog, logger))
	api.Handle("GET /customers/byPhone", limited(s.LookupLimiter, handleCustomerByPhone(s.Lookup, logger)))
	api.Handle("POST /customers/byCode", limited(s.LookupLimiter, handleCustomerByCode(s.Lookup, logger)))
	api.Handle("GET /customers/{customer_id}/cards", handleCustomerCards(s.Ledger, logger))
	api.Handle("GET /customers/{customer_id}/cards/{merchant_id}/code", handleCardCode(s.Catalog, s.Codes, logger))

	// Merchants and their programs
	api.Handle("POST /merchants", handleCreateMerchant(s.Catalog, logger))
	api.Handle("GET /merchants", handleListMerchants(s.Catalog, logger))
	api.Handle("PATCH /merchants/{merchant_id}", handleUpdateMerchant(s.Catalog, logger))
	api.Handle("GET /merchants/{merchant_id}/stats", handleMerchantStats(s.Catalog, logger))
	api.Handle("GET /merchants/{merchant_id}/customers", handleCardHolders(s.Catalog, logger))
	api.Handle("POST /merchants/{merchant_id}/rules", handleCreateRule(s.Catalog, logger))
	api.Handle("GET /merchants/{merchant_id}/rules", handleListRules(s.Catalog, logger))
	api.Handle("PATCH /merchants/{merchant_id}/rules/{rule_id}", handleUpdateRule(s.Catalog, logger))
	api.Handle("POST /merchants/{merchant_id}/rewards", handleCreateReward(s.Catalog, logger))
	api.Handle("GET /merchants/{merchant_id}/rewards", handleListRewards(s.Catalog, logger))
	api.Handle("PATCH /merchants/{merchant_id}/rewards/{reward_id}", handleUpdateReward(s.Catalog, logger))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type ledgerService interface {
	// Has to return apperrors.ErrRuleNotFound if rule unknown, inactive or of other merchant
	Earn(ctx context.Context, req ledger.EarnRequest) (models.Balance, error)

	// Has to return *apperrors.InsufficientPointsError if balance is too low
	Redeem(ctx context.Context, req ledger.RedeemRequest) (models.Balance, error)

	Card(ctx context.Context, key models.BalanceKey) (ledger.Card, error)
	Cards(ctx context.Context, customerID uuid.UUID) (ledger.CustomerCards, error)
	History(ctx context.Context, key models.BalanceKey, opts repository.ListTransactionsOpts) ([]models.Transaction, error)
}

type lookupService interface {
	ResolveByPhone(ctx context.Context, phone string) (models.Customer, error)
	ResolveByScannedCode(ctx context.Context, payload string) (lookup.Resolution, error)
}

type catalogService interface {
	CreateMerchant(ctx context.Context, m models.Merchant) (models.Merchant, error)
	GetMerchant(ctx context.Context, id uuid.UUID) (models.Merchant, error)
	ListMerchants(ctx context.Context) ([]models.Merchant, error)
	UpdateMerchant(ctx context.Context, id uuid.UUID, upd catalog.MerchantUpdate) (models.Merchant, error)
	MerchantStats(ctx context.Context, merchantID uuid.UUID) (models.MerchantStats, error)
	ListCardHolders(ctx context.Context, merchantID uuid.UUID, opts repository.ListCardHoldersOpts) ([]models.CardHolder, error)

	CreateCustomer(ctx context.Context, c models.Customer) (models.Customer, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (models.Customer, error)

	CreateRule(ctx context.Context, rule models.EarnRule) (models.EarnRule, error)
	ListRules(ctx context.Context, merchantID uuid.UUID) ([]models.EarnRule, error)
	SetRuleActive(ctx context.Context, merchantID uuid.UUID, ruleID uuid.UUID, active bool) (models.EarnRule, error)

	CreateReward(ctx context.Context, reward models.Reward) (models.Reward, error)
	ListRewards(ctx context.Context, merchantID uuid.UUID) ([]models.Reward, error)
	SetRewardActive(ctx context.Context, merchantID uuid.UUID, rewardID uuid.UUID, active bool) (models.Reward, error)
}

type codeIssuer interface {
	Issue(key models.BalanceKey) (cardcode.IssuedCode, error)
}

type eventSource interface {
	// Channel is closed after cancel is called
	Subscribe(key models.BalanceKey) (events <-chan models.BalanceEvent, cancel func())
}

func limited(rl *middleware.RateLimiter, h http.Handler) http.Handler {
	if rl == nil {
		return h
	}
	return rl.Middleware(h)
}
