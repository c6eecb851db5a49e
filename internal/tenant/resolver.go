package tenant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/koombo/koombo/internal/models"
	"github.com/koombo/koombo/internal/repository"
)

// ErrTenantNotFound means the hostname looked tenant-scoped but no active
// tenant owns that subdomain. This is NOT the same as the main domain:
// callers must render a "restaurant not found" state, never fall through
// to the tenant-less surface as if nothing was wrong.
var ErrTenantNotFound = errors.New("tenant not found")

// Resolution classifies a request origin. Exactly one of the two shapes:
// main domain (Tenant nil, IsMainDomain true) or tenant-scoped (Tenant set,
// IsMainDomain false). A failed lookup is an error, not a third shape.
type Resolution struct {
	Tenant       *models.Tenant
	IsMainDomain bool
}

// Resolver maps a request's Host header to a tenant context. It is a pure
// lookup: same hostname, same answer, unless a tenant's active flag changed
// underneath it.
type Resolver struct {
	tenants       repository.TenantRepository
	mainDomains   map[string]struct{}
	parentDomains []string
}

func NewResolver(tenants repository.TenantRepository, mainDomains, parentDomains []string) *Resolver {
	md := make(map[string]struct{}, len(mainDomains))
	for _, d := range mainDomains {
		md[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	pd := make([]string, 0, len(parentDomains))
	for _, d := range parentDomains {
		pd = append(pd, strings.ToLower(strings.TrimSpace(d)))
	}
	return &Resolver{
		tenants:       tenants,
		mainDomains:   md,
		parentDomains: pd,
	}
}

// Resolve classifies a hostname.
//
//   - exact match against the main-domain list → {nil, true}
//   - "<key>.<parent-domain>" → active-tenant lookup on <key>,
//     case-insensitive, trimmed; miss → ErrTenantNotFound
//   - anything else → ErrTenantNotFound
func (r *Resolver) Resolve(ctx context.Context, hostname string) (*Resolution, error) {
	host := normalizeHost(hostname)
	if host == "" {
		return nil, ErrTenantNotFound
	}

	if _, ok := r.mainDomains[host]; ok {
		return &Resolution{Tenant: nil, IsMainDomain: true}, nil
	}

	for _, parent := range r.parentDomains {
		suffix := "." + parent
		if !strings.HasSuffix(host, suffix) {
			continue
		}
		key := strings.TrimSuffix(host, suffix)
		// Only a single label counts as a routable key. Deeper nesting
		// ("a.b.koombo.online") resolves to nothing.
		if key == "" || strings.Contains(key, ".") {
			return nil, ErrTenantNotFound
		}

		t, err := r.tenants.GetActiveBySubdomain(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("resolve tenant %q: %w", key, err)
		}
		if t == nil {
			return nil, ErrTenantNotFound
		}
		return &Resolution{Tenant: t}, nil
	}

	return nil, ErrTenantNotFound
}

// normalizeHost lowercases, trims, and strips any :port suffix.
func normalizeHost(hostname string) string {
	host := strings.ToLower(strings.TrimSpace(hostname))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}
