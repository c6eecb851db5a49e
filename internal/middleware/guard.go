package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/koombo/koombo/internal/access"
	"github.com/koombo/koombo/internal/models"
)

const ContextKeyPrincipal = "principal"

// Guarded runs the access guard for the resolved tenant context and stores
// the authoritative principal for downstream handlers. The JWT's role claim
// got the request through RequireRole cheaply; this is where the role and
// the memberships are re-derived from storage, so yesterday's token cannot
// outlive today's demotion.
//
// Denials carry the redirect hint: a staff member who opened the wrong
// restaurant's board gets pointed at one they actually operate.
func Guarded(identity *access.Identity, guard *access.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ident := identity.Request()

		principal, err := ident.PrincipalFor(ctx, GetUserID(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "authorization failed",
			})
			return
		}
		if principal == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unknown principal",
			})
			return
		}

		res := GetResolution(c)
		if res == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "tenant context missing",
			})
			return
		}

		decision, err := guard.Authorize(ctx, principal, res)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "authorization failed",
			})
			return
		}
		if !decision.Admitted {
			body := gin.H{"error": decision.Reason, "redirect": "/"}
			if decision.RedirectTenant != "" {
				body["redirect_tenant"] = decision.RedirectTenant
			}
			c.AbortWithStatusJSON(http.StatusForbidden, body)
			return
		}

		c.Set(ContextKeyPrincipal, principal)
		c.Next()
	}
}

func GetPrincipal(c *gin.Context) *models.User {
	val, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return nil
	}
	u, ok := val.(*models.User)
	if !ok {
		return nil
	}
	return u
}

// TokenFromQuery lets websocket clients authenticate. Browsers cannot set
// headers on a WebSocket handshake, so the token arrives as ?token= and is
// lifted into the Authorization header before AuthMiddleware runs.
func TokenFromQuery() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			if tok := c.Query("token"); tok != "" {
				c.Request.Header.Set("Authorization", "Bearer "+tok)
			}
		}
		c.Next()
	}
}
