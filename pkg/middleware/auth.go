package middleware

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pharmacy-platform/pharmacy-service/pkg/errors"
	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
)

// Caller identity headers set by the upstream gateway
const (
	HeaderUserID         = "X-User-ID"
	HeaderUserRole       = "X-User-Role"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Context keys for the caller identity
const (
	ContextKeyUserID   = "userId"
	ContextKeyUserRole = "userRole"
)

// Roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Identity is the caller as asserted by the gateway
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the caller has the admin role
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Identify reads the caller identity headers into the gin and request
// contexts. A missing or unknown role is treated as a regular user.
func Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		role := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole)))
		if role != RoleAdmin {
			role = RoleUser
		}

		c.Set(ContextKeyUserID, userID)
		c.Set(ContextKeyUserRole, role)
		c.Request = c.Request.WithContext(logging.ContextWithUser(c.Request.Context(), userID, role))

		c.Next()
	}
}

// GetIdentity returns the caller identity stored by Identify
func GetIdentity(c *gin.Context) Identity {
	role := c.GetString(ContextKeyUserRole)
	if role == "" {
		role = RoleUser
	}
	return Identity{UserID: c.GetString(ContextKeyUserID), Role: role}
}

// RequireRole rejects callers whose role is not one of roles
func RequireRole(logger *slog.Logger, roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		if !allowed[GetIdentity(c).Role] {
			logError(logger, c, errors.ErrForbidden("role not permitted"))
			AbortWithAppError(c, errors.ErrForbidden("Insufficient permissions for this operation"))
			return
		}
		c.Next()
	}
}

// RequireOwnerOrAdmin allows admins and callers whose user id equals the
// path parameter param
func RequireOwnerOrAdmin(logger *slog.Logger, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := GetIdentity(c)
		if identity.IsAdmin() {
			c.Next()
			return
		}

		owner := strings.TrimSpace(c.Param(param))
		if identity.UserID == "" || identity.UserID != owner {
			logError(logger, c, errors.ErrForbidden("caller is not the owner"))
			AbortWithAppError(c, errors.ErrForbidden("You can only access your own resources"))
			return
		}
		c.Next()
	}
}
