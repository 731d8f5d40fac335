package cardcode

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/pointledger/internal/models"
)

func TestManager(t *testing.T) {
	key := models.BalanceKey{CustomerID: uuid.New(), MerchantID: uuid.New()}

	t.Run("new defaults", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)

		require.Len(t, m.key, signingKeyLen)
		require.NotEqual(t, []byte("secret"), m.key, "raw secret must not be used as signing key")
		require.Equal(t, defaultCodeTTL, m.ttl)
		require.Equal(t, defaultSigningMethod, m.alg.Alg())
	})

	t.Run("new without secret", func(t *testing.T) {
		_, err := New(Config{})

		require.Error(t, err)
	})

	t.Run("new with unknown alg", func(t *testing.T) {
		_, err := New(Config{SecretKey: "secret", Alg: "ROT13"})

		require.Error(t, err)
	})

	t.Run("issue and parse", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)

		code, err := m.Issue(key)
		require.NoError(t, err)
		assert.NotEmpty(t, code.Value)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), code.ExpiresAt, 2*time.Second)

		parsed, err := m.Parse(code.Value)
		require.NoError(t, err)
		require.Equal(t, key, parsed)
	})

	t.Run("expired", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret", TTL: time.Minute})
		require.NoError(t, err)
		m.now = func() time.Time { return time.Now().Add(-time.Hour) }
		code, err := m.Issue(key)
		require.NoError(t, err)

		m.now = time.Now
		_, err = m.Parse(code.Value)

		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("signed with other key", func(t *testing.T) {
		issuer, err := New(Config{SecretKey: "other"})
		require.NoError(t, err)
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)
		code, err := issuer.Issue(key)
		require.NoError(t, err)

		_, err = m.Parse(code.Value)

		require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("other instance with same secret", func(t *testing.T) {
		issuer, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)
		code, err := issuer.Issue(key)
		require.NoError(t, err)

		parsed, err := m.Parse(code.Value)

		require.NoError(t, err)
		require.Equal(t, key, parsed)
	})

	t.Run("signed with raw secret", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)
		claims := CardClaims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
			CustomerID:       key.CustomerID,
			MerchantID:       key.MerchantID,
		}
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)

		_, err = m.Parse(forged)

		require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)

		_, err = m.Parse("not-a-code")

		require.Error(t, err)
	})
}
