// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's identity. The API serves two roles, customer
// and milkman, and every business route trusts the identity placed in the Gin
// context here ("userID", "userRole"). Identity comes from a bearer token
// (HS256, golang-jwt); for tests and local development the X-User-ID and
// X-User-Role headers act as a fallback when no token is presented.
package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

const (
	ctxKeyUserID   = "userID"
	ctxKeyUserRole = "userRole"

	// RoleCustomer and RoleMilkman are the two identities the API recognizes.
	RoleCustomer = "customer"
	RoleMilkman  = "milkman"
)

// Claims is the JWT payload issued at login. Subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Auth returns a middleware that parses an optional "Authorization: Bearer"
// token signed with secret and stashes the resolved identity in the context.
//
// Behavior:
//   - A valid token sets userID (from Subject) and userRole.
//   - A malformed, expired, or badly signed token is rejected with 401.
//   - No token: X-User-ID / X-User-Role headers are honored as a fallback.
//   - An empty secret disables token parsing entirely (dev mode); only the
//     header fallback applies.
//
// Routes that need a specific role add RequireRole after this.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw != "" && secret != "" {
			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid || claims.Subject == "" {
				c.AbortWithStatusJSON(401, gin.H{
					"request_id": c.Writer.Header().Get("X-Request-ID"),
					"code":       "unauthorized",
					"message":    "invalid or expired token",
				})
				return
			}
			c.Set(ctxKeyUserID, claims.Subject)
			c.Set(ctxKeyUserRole, claims.Role)
			c.Next()
			return
		}

		// Header fallback (tests, local development).
		if uid := strings.TrimSpace(c.GetHeader("X-User-ID")); uid != "" {
			c.Set(ctxKeyUserID, uid)
		}
		if role := strings.TrimSpace(c.GetHeader("X-User-Role")); role != "" {
			c.Set(ctxKeyUserRole, role)
		}
		c.Next()
	}
}

// RequireRole aborts with 403 unless the context carries the given role.
// Routes without a role in context are treated as customers, matching the
// header-fallback default.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := RoleFromCtx(c)
		if got != role {
			c.AbortWithStatusJSON(403, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "forbidden",
				"message":    "insufficient role",
			})
			return
		}
		c.Next()
	}
}

// RoleFromCtx returns the caller's role, defaulting to customer.
func RoleFromCtx(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserRole); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return RoleCustomer
}

// bearerToken extracts the token from the Authorization header, or "".
func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
