package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserCode string `json:"user_code"`
	jwt.RegisteredClaims
}

// BuildJWTString подписанный токен для userCode со сроком ttl.
func BuildJWTString(secret string, userCode string, ttl time.Duration) (string, error) {
	if secret == "" || userCode == "" {
		return "", ErrInvalidToken
	}
	now := time.Now()
	claims := Claims{
		UserCode: userCode,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   userCode,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// GetUserCode проверяет подпись и срок токена.
func GetUserCode(secret string, tokenString string) (string, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !t.Valid || claims.UserCode == "" {
		return "", ErrInvalidToken
	}
	return claims.UserCode, nil
}
