package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	authutil "gameshop/internal/utils"
	"gameshop/pkg/log"
	"gameshop/pkg/utils"
)

const (
	// AuthorizationHeader authorization header name
	AuthorizationHeader = "Authorization"
	// BearerPrefix bearer prefix
	BearerPrefix = "Bearer "
	// UserIDKey context key of the authenticated user id
	UserIDKey = "user_id"
	// UserRoleKey context key of the authenticated user role
	UserRoleKey = "user_role"
)

// UserInfo is the identity carried by a valid token
type UserInfo struct {
	ID   uint64 `json:"id"`
	Role string `json:"role"`
}

// TokenValidator turns a bearer token into an identity
type TokenValidator func(token string) (*UserInfo, error)

// JWTValidator validates tokens issued by m
func JWTValidator(m *authutil.JWTManager) TokenValidator {
	return func(token string) (*UserInfo, error) {
		claims, err := m.ValidateToken(token)
		if err != nil {
			return nil, err
		}
		return &UserInfo{ID: claims.UserID, Role: claims.Role}, nil
	}
}

// Auth requires a valid bearer token
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthorizationHeader)
		if authHeader == "" {
			utils.Error(c, utils.CodeUnauthorized, "Missing authorization header")
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			utils.Error(c, utils.CodeUnauthorized, "Invalid authorization header format")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
		if token == "" {
			utils.Error(c, utils.CodeUnauthorized, "Missing token")
			c.Abort()
			return
		}

		userInfo, err := validator(token)
		if err != nil {
			log.WithContext(c.Request.Context()).WithError(err).Debug("Token rejected")
			utils.Error(c, utils.CodeUnauthorized, "Invalid token")
			c.Abort()
			return
		}

		c.Set(UserIDKey, userInfo.ID)
		c.Set(UserRoleKey, userInfo.Role)
		c.Request = c.Request.WithContext(log.NewContext(c.Request.Context(), map[string]interface{}{
			"user_id": userInfo.ID,
		}))

		c.Next()
	}
}

// RequireRole must run after Auth
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if current, _ := GetUserRole(c); current != role {
			utils.Error(c, utils.CodeForbidden, "Insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user id
func GetUserID(c *gin.Context) (uint64, bool) {
	v, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok && id != 0
}

// GetUserRole returns the authenticated user role
func GetUserRole(c *gin.Context) (string, bool) {
	v, exists := c.Get(UserRoleKey)
	if !exists {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}

// MustGetUserID panics when Auth did not run
func MustGetUserID(c *gin.Context) uint64 {
	userID, exists := GetUserID(c)
	if !exists {
		panic("user ID not found in context")
	}
	return userID
}
