package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tale-server/internal/database"
	"tale-server/internal/interfaces"
	"tale-server/internal/models"
)

// TokenVerifier определяет функцию, которая проверяет строку токена и возвращает claims.
// Ошибки могут быть models.ErrTokenInvalid, models.ErrTokenExpired, models.ErrTokenMalformed и т.д.
type TokenVerifier func(ctx context.Context, tokenString string) (*models.Claims, error)

// AuthMiddleware создает Gin middleware для проверки JWT и активности сессии.
// Оно извлекает токен, верифицирует его с помощью предоставленного verifier,
// проверяет сессию в Redis и добавляет UserID в контекст запроса.
// Строка пользователя зеркалируется в локальную БД для FK квот.
func AuthMiddleware(verifier TokenVerifier, sessions interfaces.SessionRepository, users database.UserRepository, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logger.With(zap.String("path", c.Request.URL.Path))

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Warn("Authorization header missing")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Missing token"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Warn("Malformed Authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Malformed token header"})
			return
		}
		tokenString := parts[1]

		claims, err := verifier(ctx, tokenString)
		if err != nil {
			status := http.StatusUnauthorized
			msg := "Unauthorized: Invalid token"
			if errors.Is(err, models.ErrTokenExpired) {
				msg = "Unauthorized: Token expired"
			} else if !errors.Is(err, models.ErrTokenMalformed) && !errors.Is(err, models.ErrTokenInvalid) {
				// Для неожиданных ошибок верификации
				log.Error("Unexpected token verification error", zap.Error(err))
				status = http.StatusInternalServerError
				msg = "Internal server error during token verification"
			}
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}

		active, err := sessions.IsSessionActive(ctx, claims.UserID, claims.SessionID)
		if err != nil {
			log.Error("Session lookup failed", zap.Error(err), zap.String("userID", claims.UserID.String()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if !active {
			log.Warn("Session revoked or expired", zap.String("userID", claims.UserID.String()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Session is not active"})
			return
		}

		if err := users.EnsureUser(ctx, claims.UserID); err != nil {
			log.Error("Failed to mirror user row", zap.Error(err), zap.String("userID", claims.UserID.String()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		// Добавляем UserID в контекст запроса
		c.Request = c.Request.WithContext(models.WithUserID(ctx, claims.UserID))

		log.Debug("User authorized", zap.String("userID", claims.UserID.String()))
		c.Next()
	}
}
