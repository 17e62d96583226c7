package models

import "github.com/golang-jwt/jwt/v5"

// Claims представляет стандартные поля JWT и идентификатор пользователя.
// OwnerID - непрозрачный стабильный идентификатор, выданный провайдером
// идентичности; сервис его не разбирает и не генерирует.
type Claims struct {
	OwnerID              string `json:"owner_id"`
	jwt.RegisteredClaims        // Встраиваем стандартные поля: Issuer, Subject, ExpiresAt, IssuedAt и т.д.
}
