package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"challenge-server/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OwnerIDKey - ключ, под которым идентификатор владельца кладется в контекст Gin.
const OwnerIDKey = "ownerID"

// TokenVerifier определяет функцию, которая проверяет строку токена и возвращает claims.
// Ошибки могут быть models.ErrTokenInvalid, models.ErrTokenExpired, models.ErrTokenMalformed и т.д.
type TokenVerifier func(ctx context.Context, tokenString string) (*models.Claims, error)

// AuthMiddleware создает Gin middleware для проверки JWT.
// Оно извлекает токен из заголовка Authorization, верифицирует его и
// добавляет OwnerID в контекст запроса.
func AuthMiddleware(verifier TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.With(zap.String("path", c.Request.URL.Path))

		tokenString, err := extractBearerToken(c)
		if err != nil {
			log.Warn("Failed to extract token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized: Missing or malformed token"})
			return
		}

		claims, err := verifier(c.Request.Context(), tokenString)
		if err != nil {
			status := http.StatusUnauthorized
			msg := "Unauthorized: Invalid token"
			if errors.Is(err, models.ErrTokenExpired) {
				msg = "Unauthorized: Token expired"
			} else if !errors.Is(err, models.ErrTokenMalformed) && !errors.Is(err, models.ErrTokenInvalid) {
				log.Error("Unexpected token verification error", zap.Error(err))
				status = http.StatusInternalServerError
				msg = "Internal server error during token verification"
			}
			log.Warn("Token verification failed", zap.Error(err))
			c.AbortWithStatusJSON(status, models.ErrorResponse{Error: msg})
			return
		}

		c.Set(OwnerIDKey, claims.OwnerID)
		log.Debug("User authorized", zap.String("ownerID", claims.OwnerID))
		c.Next()
	}
}

// extractBearerToken достает токен из заголовка Authorization, а для
// WebSocket запросов - из query-параметра token (браузерный WebSocket API
// не позволяет задать заголовки).
func extractBearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", errors.New("authorization header missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", errors.New("malformed authorization header")
	}
	return parts[1], nil
}

// OwnerIDFromContext возвращает идентификатор владельца, установленный AuthMiddleware.
func OwnerIDFromContext(c *gin.Context) (string, bool) {
	value, ok := c.Get(OwnerIDKey)
	if !ok {
		return "", false
	}
	ownerID, ok := value.(string)
	return ownerID, ok && ownerID != ""
}
