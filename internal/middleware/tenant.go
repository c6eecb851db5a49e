package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/koombo/koombo/internal/tenant"
)

const ContextKeyResolution = "tenant_resolution"

// ResolveTenant classifies the request's Host header before anything else
// runs. A hostname that is neither a main domain nor an active tenant's
// subdomain is a hard 404 — "restaurant not found" is a real answer, never
// a silent fallthrough to the tenant-less surface.
func ResolveTenant(resolver *tenant.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := resolver.Resolve(c.Request.Context(), c.Request.Host)
		if err != nil {
			if errors.Is(err, tenant.ErrTenantNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
					"error": "restaurant not found",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "tenant resolution failed",
			})
			return
		}

		c.Set(ContextKeyResolution, res)
		c.Next()
	}
}

func GetResolution(c *gin.Context) *tenant.Resolution {
	val, exists := c.Get(ContextKeyResolution)
	if !exists {
		return nil
	}
	res, ok := val.(*tenant.Resolution)
	if !ok {
		return nil
	}
	return res
}

// RequireTenant rejects requests that reached a tenant-only surface via
// the main domain. Runs after ResolveTenant.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		res := GetResolution(c)
		if res == nil || res.Tenant == nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error": "this endpoint is only available on a restaurant domain",
			})
			return
		}
		c.Next()
	}
}
