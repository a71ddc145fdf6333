// Package auth signs read-only share links, guards the API with a static
// bearer token and fingerprints changelogs.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ShareClaims grant read access to one report until Exp.
type ShareClaims struct {
	ReportID   string `json:"rid"`
	DocumentID string `json:"doc"`
	JTI        string `json:"jti"`
	Exp        int64  `json:"exp"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

func IssueShareToken(secret []byte, claims ShareClaims) (string, error) {
	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	return payload + "." + sign(secret, payload), nil
}

func ParseShareToken(secret []byte, token string, now time.Time) (ShareClaims, error) {
	payload, signature, ok := strings.Cut(token, ".")
	if !ok || strings.Contains(signature, ".") {
		return ShareClaims{}, ErrInvalidToken
	}
	if !hmac.Equal([]byte(signature), []byte(sign(secret, payload))) {
		return ShareClaims{}, ErrInvalidToken
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return ShareClaims{}, ErrInvalidToken
	}
	var claims ShareClaims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return ShareClaims{}, ErrInvalidToken
	}
	if claims.ReportID == "" || claims.JTI == "" || claims.Exp == 0 {
		return ShareClaims{}, ErrInvalidToken
	}
	if now.Unix() >= claims.Exp {
		return ShareClaims{}, ErrExpiredToken
	}
	return claims, nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}
