package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndParseToken_RoundTrip(t *testing.T) {
	secret := []byte("super-secret-super-secret-super")
	keyID := uuid.New()

	tok, err := mintToken(secret, keyID, "test-client")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	gotID, err := parseToken(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, keyID, gotID)
}

func TestParseToken_WrongSecretFails(t *testing.T) {
	keyID := uuid.New()
	tok, err := mintToken([]byte("secret-one-secret-one-secret-one"), keyID, "")
	require.NoError(t, err)

	_, err = parseToken([]byte("secret-two-secret-two-secret-two"), tok)
	assert.Error(t, err)
}

func TestParseToken_ExpiredFails(t *testing.T) {
	secret := []byte("super-secret-super-secret-super")
	keyID := uuid.New()

	claims := &jwt.MapClaims{
		"iss": tokenIssuer,
		"exp": time.Now().Add(-time.Hour).Unix(),
		"sub": keyID.String(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	tokStr, err := tok.SignedString(secret)
	require.NoError(t, err)

	_, err = parseToken(secret, tokStr)
	assert.Error(t, err)
}

func TestParseToken_WrongIssuerFails(t *testing.T) {
	secret := []byte("super-secret-super-secret-super")
	keyID := uuid.New()

	claims := &jwt.MapClaims{
		"iss": "some-other-service",
		"exp": time.Now().Add(time.Hour).Unix(),
		"sub": keyID.String(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	tokStr, err := tok.SignedString(secret)
	require.NoError(t, err)

	_, err = parseToken(secret, tokStr)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc123")

	tok, err := bearerToken(req)
	require.NoError(t, err)
	assert.Equal(t, "abc123", tok)
}

func TestBearerToken_MissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, err := bearerToken(req)
	assert.Error(t, err)
}

func TestBearerToken_WrongScheme(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc123")

	_, err := bearerToken(req)
	assert.Error(t, err)
}
