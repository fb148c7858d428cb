package user

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// TokenVerifier проверяет подпись и срок жизни bearer-токена.
// Используется сервисами, которым не нужен репозиторий пользователей:
// для проверки достаточно общего секрета.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier создаёт проверяющего с общим секретом HS256.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// VerifyToken проверяет токен и возвращает subject (user_id).
func (v *TokenVerifier) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", domain.ErrTokenInvalid
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", domain.ErrTokenInvalid
	}
	return claims.Subject, nil
}
