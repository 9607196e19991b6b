package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/walehn/reader-study-backend/internal/pkg/logger"
	"github.com/walehn/reader-study-backend/internal/services"
	"github.com/walehn/reader-study-backend/internal/types"
)

const (
	ctxReaderID = "reader_id"
	ctxClaims   = "claims"
)

type AuthMiddleware struct {
	log         *logger.Logger
	authService services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService) *AuthMiddleware {
	middlewareLog := log.With("middleware", "AuthMiddleware")
	return &AuthMiddleware{log: middlewareLog, authService: authService}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})
			return
		}

		claims, err := am.authService.ParseAccessToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})
			return
		}

		readerID, err := uuid.Parse(claims.Subject)
		if err != nil || readerID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "invalid token subject", "code": "unauthorized"},
			})
			return
		}

		c.Set(ctxReaderID, readerID)
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// RequireAdmin assumes RequireAuth already ran on the group.
func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil || claims.Role != types.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"message": "admin access required", "code": "forbidden"},
			})
			return
		}
		c.Next()
	}
}

func CurrentReaderID(c *gin.Context) uuid.UUID {
	if value, ok := c.Get(ctxReaderID); ok {
		if id, ok := value.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

func CurrentClaims(c *gin.Context) *services.Claims {
	if value, ok := c.Get(ctxClaims); ok {
		if claims, ok := value.(*services.Claims); ok {
			return claims
		}
	}
	return nil
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	return ""
}
