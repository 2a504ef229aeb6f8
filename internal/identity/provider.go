package identity

import (
	"strings"
	"sync"

	"parlor.chat/widget/internal/model"
)

// Extractor is a bespoke claim-mapping function for providers whose claim
// shape isn't a flat candidate list. A non-nil result with a customer id
// pre-empts the provider's candidate lists entirely.
type Extractor func(claims model.Claims) *model.CustomerIdentity

// Provider is a data-driven claim mapping: ordered candidate claim names for
// the customer id and display name (first present value wins). Candidate
// names may be dot-paths into nested claim objects.
type Provider struct {
	IDClaims   []string
	NameClaims []string
	Extract    Extractor
}

// Registry holds provider configs keyed by provider name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns a registry seeded with the well-known identity
// providers. Callers register additional providers or override defaults via
// Register.
func NewRegistry() *Registry {
	r := &Registry{providers: make(map[string]Provider)}

	r.Register("microsoft", Provider{
		IDClaims:   []string{"oid", "sub"},
		NameClaims: []string{"name", "preferred_username"},
	})
	r.Register("auth0", Provider{
		IDClaims:   []string{"sub"},
		NameClaims: []string{"name", "nickname", "email"},
	})
	r.Register("cognito", Provider{
		IDClaims:   []string{"cognito:username", "sub"},
		NameClaims: []string{"name", "email"},
	})
	r.Register("keycloak", Provider{
		IDClaims:   []string{"sub"},
		NameClaims: []string{"name", "preferred_username"},
	})
	r.Register("firebase", Provider{
		IDClaims:   []string{"user_id", "sub"},
		NameClaims: []string{"name", "email"},
		// Firebase nests provider profile data under firebase.identities.
		Extract: func(claims model.Claims) *model.CustomerIdentity {
			id, ok := lookupString(claims, "user_id")
			if !ok {
				return nil
			}
			identity := &model.CustomerIdentity{CustomerID: id}
			if name, ok := lookupString(claims, "name"); ok {
				identity.CustomerName = name
			}
			return identity
		},
	})
	r.Register("generic", Provider{
		IDClaims:   []string{"sub", "oid", "uid", "user_id", "email"},
		NameClaims: []string{"name", "preferred_username", "nickname", "email"},
	})

	return r
}

func (r *Registry) Register(key string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[key] = p
}

func (r *Registry) Lookup(key string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[key]
	return p, ok
}

// lookupString resolves a claim name against the claims map, walking nested
// objects when the name contains dots. A missing intermediate key
// short-circuits to "not found" rather than an error.
func lookupString(claims model.Claims, name string) (string, bool) {
	// Exact flat key wins over dot-path interpretation; some providers use
	// literal dots in claim names (e.g. cognito custom attributes).
	if value, ok := claims[name]; ok {
		return stringValue(value)
	}
	if !strings.Contains(name, ".") {
		return "", false
	}

	parts := strings.Split(name, ".")
	var current any = map[string]any(claims)
	for _, part := range parts {
		node, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = node[part]
		if !ok {
			return "", false
		}
	}
	return stringValue(current)
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
