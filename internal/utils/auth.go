package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateToken signs an access token for the given acting party
func GenerateToken(actorID, role, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	claims := jwt.MapClaims{
		"id":   actorID,
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and validates a token
func ValidateToken(tokenString string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// ActorFromClaims extracts the acting party id ("id", falling back to "sub")
func ActorFromClaims(claims jwt.MapClaims) (string, error) {
	for _, key := range []string{"id", "sub"} {
		switch v := claims[key].(type) {
		case string:
			if v != "" {
				return v, nil
			}
		case float64:
			return fmt.Sprintf("%.0f", v), nil
		}
	}
	return "", errors.New("token carries no actor id")
}
