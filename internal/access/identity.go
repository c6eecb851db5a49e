package access

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/koombo/koombo/internal/models"
	"github.com/koombo/koombo/internal/repository"
)

// Identity is the one authoritative answer to "what is this principal's
// global role". The JWT carries a role claim for routing, but anything
// security-relevant re-derives the role from storage through this service —
// a claim minted yesterday doesn't know about today's demotion.
type Identity struct {
	users repository.UserRepository
}

func NewIdentity(users repository.UserRepository) *Identity {
	return &Identity{users: users}
}

// PrincipalFor loads a principal. nil, nil when the user no longer exists.
func (i *Identity) PrincipalFor(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if userID == uuid.Nil {
		return nil, nil
	}
	u, err := i.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load principal: %w", err)
	}
	return u, nil
}

// Request returns a per-request view that memoizes lookups, so a handler
// chain asking "who is this" three times costs one query.
func (i *Identity) Request() *RequestIdentity {
	return &RequestIdentity{
		identity: i,
		cache:    make(map[uuid.UUID]*models.User),
	}
}

// RequestIdentity memoizes principal lookups for the lifetime of one
// request. Not safe to share across requests — build a fresh one each time.
type RequestIdentity struct {
	identity *Identity
	mu       sync.Mutex
	cache    map[uuid.UUID]*models.User
}

func (r *RequestIdentity) PrincipalFor(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	if u, ok := r.cache[userID]; ok {
		r.mu.Unlock()
		return u, nil
	}
	r.mu.Unlock()

	u, err := r.identity.PrincipalFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[userID] = u
	r.mu.Unlock()
	return u, nil
}

// RoleFor is PrincipalFor narrowed to the role. Unknown principals get the
// empty role, which passes no role gate.
func (r *RequestIdentity) RoleFor(ctx context.Context, userID uuid.UUID) (models.Role, error) {
	u, err := r.PrincipalFor(ctx, userID)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", nil
	}
	return u.Role, nil
}
