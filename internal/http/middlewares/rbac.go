package middlewares

import (
	"net/http"

	"github.com/geocoder89/bizhub/internal/domain/profile"
	"github.com/gin-gonic/gin"
)

// RequireRole lets the request through only when the actor's role is in roles.
// It must run after RequireAuth.
func RequireRole(roles ...profile.Role) gin.HandlerFunc {
	allowed := profile.RoleSet(roles)

	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			abortError(c, http.StatusUnauthorized, "unauthorized", "Missing identity context", nil)
			return
		}
		if !allowed.Contains(actor.Role) {
			abortError(c, http.StatusForbidden, "forbidden", "Requires role: "+allowed.String(), gin.H{
				"allowed_roles": allowed,
			})
			return
		}
		c.Next()
	}
}
