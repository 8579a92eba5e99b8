package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	iss, err := NewIssuer("test-secret", "dataguardian")
	require.NoError(t, err)
	return iss
}

func TestIssuer_RoundTrip(t *testing.T) {
	iss := newTestIssuer(t)

	token, err := iss.Mint("alice", RoleCitizen, time.Hour)
	require.NoError(t, err)

	claims, err := iss.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, RoleCitizen, claims.Role)
	assert.Equal(t, "dataguardian", claims.Issuer)
}

func TestIssuer_Rejects(t *testing.T) {
	iss := newTestIssuer(t)
	valid, err := iss.Mint("alice", RoleAdmin, time.Hour)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewIssuer("other-secret", "dataguardian")
		require.NoError(t, err)
		_, err = other.Validate(valid)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewIssuer("test-secret", "someone-else")
		require.NoError(t, err)
		_, err = other.Validate(valid)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		past := newTestIssuer(t)
		past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, err := past.Mint("alice", RoleApp, time.Hour)
		require.NoError(t, err)
		_, err = iss.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned algorithm", func(t *testing.T) {
		claims := Claims{Role: RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "dataguardian",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = iss.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown role", func(t *testing.T) {
		claims := Claims{Role: "root", RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "dataguardian",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = iss.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := iss.Validate("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestIssuer_MintArguments(t *testing.T) {
	iss := newTestIssuer(t)

	_, err := iss.Mint("alice", "root", time.Hour)
	assert.Error(t, err)
	_, err = iss.Mint("", RoleApp, time.Hour)
	assert.Error(t, err)
	_, err = iss.Mint("alice", RoleApp, 0)
	assert.Error(t, err)

	_, err = NewIssuer("", "x")
	assert.Error(t, err)
}

func TestRoles(t *testing.T) {
	assert.True(t, ValidRole(RoleCitizen))
	assert.False(t, ValidRole("root"))

	assert.True(t, Allowed(RoleAdmin, RoleCitizen))
	assert.True(t, Allowed(RoleCitizen, RoleCitizen, RoleApp))
	assert.False(t, Allowed(RoleApp, RoleCitizen))
}
