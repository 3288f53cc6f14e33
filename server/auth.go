package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenIssuer is the iss claim stamped on every token minted by this
// service, and the only issuer accepted when validating one.
const tokenIssuer = "harel-serve"

// mintToken signs a bearer JWT binding the given API key ID to the
// request that presented a valid key, good for one hour.
func mintToken(secret []byte, keyID uuid.UUID, label string) (string, error) {
	claims := &jwt.MapClaims{
		"iss":   tokenIssuer,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"sub":   keyID.String(),
		"label": label,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)

	tokStr, err := tok.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tokStr, nil
}

// parseToken validates tokStr against secret and returns the API key ID
// bound to its subject claim.
func parseToken(secret []byte, tokStr string) (uuid.UUID, error) {
	tok, err := jwt.Parse(tokStr, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}), jwt.WithIssuer(tokenIssuer), jwt.WithLeeway(time.Minute))
	if err != nil {
		return uuid.UUID{}, err
	}

	subj, err := tok.Claims.GetSubject()
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("get subject: %w", err)
	}

	keyID, err := uuid.Parse(subj)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("parse subject UUID: %w", err)
	}

	return keyID, nil
}

// bearerToken extracts the token from a request's Authorization header,
// which must be of the form "Bearer <token>".
func bearerToken(req *http.Request) (string, error) {
	hdr := req.Header.Get("Authorization")
	if hdr == "" {
		return "", fmt.Errorf("no Authorization header present")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(hdr, prefix) {
		return "", fmt.Errorf("Authorization header is not a bearer token")
	}

	tok := strings.TrimSpace(strings.TrimPrefix(hdr, prefix))
	if tok == "" {
		return "", fmt.Errorf("bearer token is empty")
	}
	return tok, nil
}
