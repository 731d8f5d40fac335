package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrCustomerAlreadyExists = errors.New("customer already exists")
	ErrCustomerNotFound      = errors.New("customer not found")

	ErrMerchantNotFound = errors.New("merchant not found")
	ErrMerchantInactive = errors.New("merchant is inactive")

	ErrRuleNotFound   = errors.New("earn rule not found")
	ErrNothingToEarn  = errors.New("action earns no points")
	ErrRewardNotFound = errors.New("reward not found")

	ErrInsufficientPoints     = errors.New("insufficient points")
	ErrBalanceInsufficient    = errors.New("insufficient balance")
	ErrConcurrentModification = errors.New("balance changed concurrently")

	ErrInvalidCode  = errors.New("scanned code is invalid")
	ErrInvalidPhone = errors.New("phone number is invalid")
	ErrInvalidInput = errors.New("invalid input")
)

// InsufficientPointsError is returned when a reward costs more than the current balance.
// errors.Is(err, ErrInsufficientPoints) reports true for it.
type InsufficientPointsError struct {
	Required int64
	Balance  int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: need %d more", e.Shortfall())
}

// Shortfall is the number of additional points needed
func (e *InsufficientPointsError) Shortfall() int64 {
	return e.Required - e.Balance
}

func (e *InsufficientPointsError) Is(target error) bool {
	return target == ErrInsufficientPoints
}
