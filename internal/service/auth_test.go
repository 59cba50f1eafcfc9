package service

import (
	"testing"
	"time"

	"trash2action-backend/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256-signing"

func TestTokenService_IssueAndValidate(t *testing.T) {
	svc := NewTokenService(testSecret)

	token, err := svc.Issue(model.IssueTokenRequest{Subject: alice, Name: "Alice", Role: model.RoleResponder}, time.Hour)
	require.NoError(t, err)

	caller, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, model.Caller{ID: alice, Name: "Alice", Role: model.RoleResponder}, caller)
}

func TestTokenService_RoleDefaultsToUser(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": bob,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	caller, err := NewTokenService(testSecret).Validate(token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, caller.Role)
}

func TestTokenService_Rejects(t *testing.T) {
	svc := NewTokenService(testSecret)
	expired := NewTokenService(testSecret)
	expired.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }

	sign := func(secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
		key := any([]byte(secret))
		if method == jwt.SigningMethodNone {
			key = jwt.UnsafeAllowNoneSignatureType
		}
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	expiredToken, err := expired.Issue(model.IssueTokenRequest{Subject: alice, Role: model.RoleUser}, time.Hour)
	require.NoError(t, err)

	future := time.Now().Add(time.Hour).Unix()
	tests := map[string]string{
		"garbage":      "not-a-token",
		"expired":      expiredToken,
		"wrong secret": sign("another-secret", jwt.SigningMethodHS256, jwt.MapClaims{"sub": alice, "exp": future}),
		"alg none":     sign("", jwt.SigningMethodNone, jwt.MapClaims{"sub": alice, "exp": future}),
		"missing sub":  sign(testSecret, jwt.SigningMethodHS256, jwt.MapClaims{"exp": future}),
		"unknown role": sign(testSecret, jwt.SigningMethodHS256, jwt.MapClaims{"sub": alice, "role": "root", "exp": future}),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Validate(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenService_IssueRequiresSubjectAndRole(t *testing.T) {
	svc := NewTokenService(testSecret)

	_, err := svc.Issue(model.IssueTokenRequest{Role: model.RoleUser}, time.Hour)
	assert.Error(t, err)

	_, err = svc.Issue(model.IssueTokenRequest{Subject: alice, Role: "admin"}, time.Hour)
	assert.Error(t, err)
}
