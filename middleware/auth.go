package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/sitecore/utils"
)

// Gin context keys set for authenticated staff.
const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
	ContextRoleKey     = "role"
)

// AuthRequired admits requests carrying a valid staff token whose role is one of
// roles. With no roles any authenticated caller passes.
func AuthRequired(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	return func(ctx *gin.Context) {
		raw, code, msg := bearerToken(ctx.GetHeader("Authorization"))
		if code != 0 {
			abort(ctx, http.StatusUnauthorized, code, msg)
			return
		}
		claims, err := utils.ParseToken(raw)
		if err != nil {
			abort(ctx, http.StatusUnauthorized, 40105, "invalid token")
			return
		}
		if len(allowed) > 0 {
			if _, ok := allowed[strings.ToLower(claims.Role)]; !ok {
				abort(ctx, http.StatusForbidden, 40301, "insufficient role")
				return
			}
		}
		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Set(ContextUsernameKey, claims.Username)
		ctx.Set(ContextRoleKey, claims.Role)
		ctx.Next()
	}
}

// bearerToken extracts the token from an Authorization header. A non-zero code
// names the rejection.
func bearerToken(header string) (token string, code int, msg string) {
	if header == "" {
		return "", 40101, "authorization header missing"
	}
	scheme, rest, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", 40102, "invalid authorization header format"
	}
	if token = strings.TrimSpace(rest); token == "" {
		return "", 40103, "empty bearer token"
	}
	return token, 0, ""
}

func abort(ctx *gin.Context, status, code int, msg string) {
	utils.Error(ctx, status, code, msg)
	ctx.Abort()
}
