package models

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims представляет стандартные поля JWT и пользовательские данные,
// которые мы ожидаем в access-токене, выданном сервисом аутентификации.
type Claims struct {
	UserID               uuid.UUID `json:"user_id"`
	SessionID            string    `json:"session_id,omitempty"`
	jwt.RegisteredClaims           // Issuer, Subject, ExpiresAt, IssuedAt и т.д.
}
