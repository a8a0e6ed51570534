package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/circle-calendar-api/internal/models"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
)

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", Issuer: "circle"})
	token, expiresAt, err := svc.IssueToken("u1", "Ana", time.Hour)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Actor())
	assert.Equal(t, "Ana", claims.DisplayName)
}

func TestValidateTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret"})
	other := NewAuthService(nil, AuthConfig{AccessTokenSecret: "other"})

	forged, _, err := other.IssueToken("u1", "", time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	expired, _, err := svc.IssueToken("u1", "", -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestValidateTokenChecksIssuer(t *testing.T) {
	issuer := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "elsewhere"})
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "circle"})

	token, _, err := issuer.IssueToken("u1", "", time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestValidateTokenRequiresActor(t *testing.T) {
	claims := &models.JWTClaims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret"}).ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
