package credentials

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "bearer "

// Normalize strips surrounding space and any leading "Bearer " scheme.
func Normalize(token string) string {
	token = strings.TrimSpace(token)
	if len(token) >= len(bearerPrefix) && strings.EqualFold(token[:len(bearerPrefix)], bearerPrefix) {
		token = strings.TrimSpace(token[len(bearerPrefix):])
	}
	return token
}

type Claims struct {
	UserID    string
	Name      string
	ExpiresAt time.Time
}

// ParseClaims decodes the token payload without verifying the signature.
// The client never holds the signing key; the claims only serve to learn
// who is signed in and for how long the token should be kept.
func ParseClaims(token string) (*Claims, error) {
	token = Normalize(token)
	if token == "" {
		return nil, ErrNoToken
	}

	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mapClaims); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}

	claims := &Claims{
		UserID: claimString(mapClaims["sub"]),
		Name:   claimString(mapClaims["name"]),
	}
	if claims.UserID == "" {
		claims.UserID = claimString(mapClaims["user_id"])
	}
	if claims.Name == "" {
		claims.Name = claimString(mapClaims["username"])
	}

	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	return claims, nil
}

func claimString(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return ""
	}
}
