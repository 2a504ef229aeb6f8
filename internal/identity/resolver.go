// Package identity derives a stable customer identity from opaque bearer
// tokens using a pluggable claim-mapping registry.
package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"parlor.chat/widget/common/logger"
	"parlor.chat/widget/internal/model"
)

// Resolver extracts customer identities from tokens. Resolution is
// best-effort: malformed tokens and missing claims yield nil, and callers
// fall back to the guest identity. Nothing here ever reaches the
// user-visible error channel.
type Resolver struct {
	registry *Registry
	now      func() time.Time

	mu         sync.Mutex
	memoToken  string
	memoKey    string
	memoResult *model.CustomerIdentity
}

func NewResolver(registry *Registry) *Resolver {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Resolver{
		registry: registry,
		now:      time.Now,
	}
}

// Extract derives (customerId, customerName) from the token under the named
// provider's claim mapping. The result is memoized per token/provider pair
// and recomputed only when either changes. Returns nil when no usable claim
// exists.
func (r *Resolver) Extract(ctx context.Context, token, providerKey string) *model.CustomerIdentity {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token == r.memoToken && providerKey == r.memoKey {
		return r.memoResult
	}

	result := r.extract(ctx, token, providerKey)
	r.memoToken = token
	r.memoKey = providerKey
	r.memoResult = result
	return result
}

func (r *Resolver) extract(ctx context.Context, token, providerKey string) *model.CustomerIdentity {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "widget.identity"})

	if token == "" {
		return nil
	}

	claims, err := ParseToken(token)
	if err != nil {
		slog.WarnContext(ctx, "token unusable for identity resolution",
			"provider", providerKey,
			"error", err)
		return nil
	}

	if Expired(claims, r.now()) {
		// Expiry is advisory only; the backend enforces it where it matters.
		slog.WarnContext(ctx, "token is expired", "provider", providerKey)
	}

	provider, ok := r.registry.Lookup(providerKey)
	if !ok {
		slog.WarnContext(ctx, "unknown identity provider, using generic mapping", "provider", providerKey)
		provider, _ = r.registry.Lookup("generic")
	}

	if provider.Extract != nil {
		if identity := provider.Extract(claims); identity != nil && identity.CustomerID != "" {
			return identity
		}
	}

	var identity model.CustomerIdentity
	for _, claim := range provider.IDClaims {
		if id, ok := lookupString(claims, claim); ok {
			identity.CustomerID = id
			break
		}
	}
	if identity.CustomerID == "" {
		slog.WarnContext(ctx, "no usable id claim in token", "provider", providerKey)
		return nil
	}

	for _, claim := range provider.NameClaims {
		if name, ok := lookupString(claims, claim); ok {
			identity.CustomerName = name
			break
		}
	}
	return &identity
}
