// Package lookup resolves a customer from what the cashier has at hand:
// a phone number typed in or a code scanned from the customer card.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/pointledger/internal/apperrors"
	"github.com/nkiryanov/pointledger/internal/models"
	"github.com/nkiryanov/pointledger/internal/repository"
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15 // E.164

	telPrefix = "tel:"

	// base64url of `{"` every JSON token header starts with
	codeHeaderPrefix = "eyJ"
)

type codeParser interface {
	Parse(code string) (models.BalanceKey, error)
}

// Resolution is what a scanned code points to
// MerchantID is uuid.Nil if the code does not name the merchant
type Resolution struct {
	Customer   models.Customer
	MerchantID uuid.UUID
}

type Resolver struct {
	customers repository.CustomerRepo
	codes     codeParser
}

// NewResolver creates resolver. If codes is nil signed card codes are not accepted
func NewResolver(customers repository.CustomerRepo, codes codeParser) *Resolver {
	return &Resolver{customers: customers, codes: codes}
}

// NormalizePhone keeps digits and optional leading plus
// Spaces, dashes, dots and parentheses are dropped, anything else is an error
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	var b strings.Builder
	digits := 0
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", apperrors.ErrInvalidPhone
		}
	}

	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return "", apperrors.ErrInvalidPhone
	}

	return b.String(), nil
}

func (r *Resolver) ResolveByPhone(ctx context.Context, phone string) (models.Customer, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return models.Customer{}, err
	}

	return r.customers.GetCustomerByPhone(ctx, normalized)
}

// ResolveByScannedCode accepts signed card code, "tel:" uri, bare phone number or customer id
func (r *Resolver) ResolveByScannedCode(ctx context.Context, payload string) (Resolution, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Resolution{}, apperrors.ErrInvalidCode
	}

	switch {
	case r.codes != nil && isCardCode(payload):
		key, err := r.codes.Parse(payload)
		if err != nil {
			return Resolution{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidCode, err)
		}
		customer, err := r.customers.GetCustomer(ctx, key.CustomerID)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Customer: customer, MerchantID: key.MerchantID}, nil

	case strings.HasPrefix(strings.ToLower(payload), telPrefix):
		return r.byPhone(ctx, payload[len(telPrefix):])
	}

	if id, err := uuid.Parse(payload); err == nil {
		customer, err := r.customers.GetCustomer(ctx, id)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Customer: customer}, nil
	}

	return r.byPhone(ctx, payload)
}

func (r *Resolver) byPhone(ctx context.Context, phone string) (Resolution, error) {
	customer, err := r.ResolveByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidPhone) {
			return Resolution{}, apperrors.ErrInvalidCode
		}
		return Resolution{}, err
	}

	return Resolution{Customer: customer}, nil
}

// isCardCode reports whether payload is shaped as a signed token: three base64url parts
// Dotted phone numbers like 555.010.2030 are not
func isCardCode(payload string) bool {
	parts := strings.Split(payload, ".")
	if len(parts) != 3 || !strings.HasPrefix(parts[0], codeHeaderPrefix) {
		return false
	}

	for _, part := range parts {
		if part == "" || strings.IndexFunc(part, notBase64URL) >= 0 {
			return false
		}
	}
	return true
}

func notBase64URL(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		return false
	}
	return true
}
