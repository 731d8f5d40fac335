// Package cardcode issues and verifies codes shown as QR on a customer card.
package cardcode

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/nkiryanov/pointledger/internal/models"
)

const (
	defaultCodeTTL       = 24 * time.Hour
	defaultSigningMethod = "HS256"

	signingKeyLen = 32
)

// SECRET_KEY is shared by the whole service, card codes are signed with a key derived for them only
var signingKeyInfo = []byte("pointledger card code")

type CardClaims struct {
	jwt.RegisteredClaims
	CustomerID uuid.UUID `json:"uid"`
	MerchantID uuid.UUID `json:"mid"`
}

type Config struct {
	// Secret key to sign codes
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Code lifetime
	// If not set than default is used
	TTL time.Duration
}

type IssuedCode struct {
	Value     string
	ExpiresAt time.Time
}

type Manager struct {
	key []byte
	alg jwt.SigningMethod
	ttl time.Duration

	now func() time.Time
}

func New(cfg Config) (*Manager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg := jwt.GetSigningMethod(cfg.Alg)
	if alg == nil {
		return nil, fmt.Errorf("unknown signing method %q", cfg.Alg)
	}

	if cfg.TTL == 0 {
		cfg.TTL = defaultCodeTTL
	}

	key, err := deriveKey(cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	return &Manager{
		key: key,
		alg: alg,
		ttl: cfg.TTL,
		now: time.Now,
	}, nil
}

// Issue signs code for the customer card at the merchant
func (m *Manager) Issue(key models.BalanceKey) (IssuedCode, error) {
	now := m.now().Truncate(time.Second)
	expiresAt := now.Add(m.ttl)

	token := jwt.NewWithClaims(m.alg, CardClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		CustomerID: key.CustomerID,
		MerchantID: key.MerchantID,
	})

	value, err := token.SignedString(m.key)
	if err != nil {
		return IssuedCode{}, fmt.Errorf("error while signing card code. Err: %w", err)
	}

	return IssuedCode{Value: value, ExpiresAt: expiresAt}, nil
}

// Parse verifies signature and lifetime of the code
func (m *Manager) Parse(code string) (models.BalanceKey, error) {
	claims := &CardClaims{}

	_, err := jwt.ParseWithClaims(
		code,
		claims,
		func(t *jwt.Token) (any, error) {
			return m.key, nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return models.BalanceKey{}, fmt.Errorf("error while parsing or validating card code. Err: %w", err)
	}

	if claims.CustomerID == uuid.Nil {
		return models.BalanceKey{}, errors.New("card code has no customer")
	}

	return models.BalanceKey{CustomerID: claims.CustomerID, MerchantID: claims.MerchantID}, nil
}

func deriveKey(secret string) ([]byte, error) {
	key := make([]byte, signingKeyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, signingKeyInfo), key); err != nil {
		return nil, fmt.Errorf("can't derive signing key: %w", err)
	}
	return key, nil
}
