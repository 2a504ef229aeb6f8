package identity_test

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"parlor.chat/widget/internal/identity"
	"parlor.chat/widget/internal/model"
)

func signToken(claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	Expect(err).NotTo(HaveOccurred())
	return token
}

var _ = Describe("Resolver", func() {
	var (
		ctx      context.Context
		resolver *identity.Resolver
	)

	BeforeEach(func() {
		ctx = context.Background()
		resolver = identity.NewResolver(nil)
	})

	It("maps microsoft claims to customer id and name", func() {
		token := signToken(jwt.MapClaims{"oid": "abc", "name": "X"})

		ident := resolver.Extract(ctx, token, "microsoft")

		Expect(ident).NotTo(BeNil())
		Expect(ident.CustomerID).To(Equal("abc"))
		Expect(ident.CustomerName).To(Equal("X"))
	})

	It("walks the candidate list in order", func() {
		// No oid claim, so microsoft falls through to sub.
		token := signToken(jwt.MapClaims{"sub": "user-7", "preferred_username": "seven"})

		ident := resolver.Extract(ctx, token, "microsoft")

		Expect(ident).NotTo(BeNil())
		Expect(ident.CustomerID).To(Equal("user-7"))
		Expect(ident.CustomerName).To(Equal("seven"))
	})

	It("returns nil when no usable claim exists", func() {
		token := signToken(jwt.MapClaims{"scope": "chat"})

		Expect(resolver.Extract(ctx, token, "generic")).To(BeNil())
	})

	It("returns nil for a malformed token", func() {
		Expect(resolver.Extract(ctx, "definitely-not-a-jwt", "microsoft")).To(BeNil())
	})

	It("returns nil for an empty token", func() {
		Expect(resolver.Extract(ctx, "", "microsoft")).To(BeNil())
	})

	It("falls back to the generic mapping for unknown providers", func() {
		token := signToken(jwt.MapClaims{"sub": "s-1", "name": "Sub One"})

		ident := resolver.Extract(ctx, token, "no-such-provider")

		Expect(ident).NotTo(BeNil())
		Expect(ident.CustomerID).To(Equal("s-1"))
	})

	It("resolves ids even when the token is expired", func() {
		token := signToken(jwt.MapClaims{
			"sub": "expired-user",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})

		ident := resolver.Extract(ctx, token, "generic")

		Expect(ident).NotTo(BeNil())
		Expect(ident.CustomerID).To(Equal("expired-user"))
	})

	It("accepts an id-only identity when no name claim is present", func() {
		token := signToken(jwt.MapClaims{"sub": "anon-4"})

		ident := resolver.Extract(ctx, token, "auth0")

		Expect(ident).NotTo(BeNil())
		Expect(ident.CustomerID).To(Equal("anon-4"))
		Expect(ident.CustomerName).To(BeEmpty())
	})

	Context("with a custom extractor", func() {
		var registry *identity.Registry

		BeforeEach(func() {
			registry = identity.NewRegistry()
			registry.Register("acme", identity.Provider{
				IDClaims: []string{"sub"},
				Extract: func(claims model.Claims) *model.CustomerIdentity {
					if raw, ok := claims["acme_uid"].(string); ok && raw != "" {
						return &model.CustomerIdentity{CustomerID: "acme:" + raw}
					}
					return nil
				},
			})
			resolver = identity.NewResolver(registry)
		})

		It("pre-empts the candidate lists when it yields an id", func() {
			token := signToken(jwt.MapClaims{"sub": "ignored", "acme_uid": "42"})

			ident := resolver.Extract(ctx, token, "acme")

			Expect(ident).NotTo(BeNil())
			Expect(ident.CustomerID).To(Equal("acme:42"))
		})

		It("falls through to the candidate lists when it yields nothing", func() {
			token := signToken(jwt.MapClaims{"sub": "fallback-id"})

			ident := resolver.Extract(ctx, token, "acme")

			Expect(ident).NotTo(BeNil())
			Expect(ident.CustomerID).To(Equal("fallback-id"))
		})
	})

	Context("with dot-path claim names", func() {
		BeforeEach(func() {
			registry := identity.NewRegistry()
			registry.Register("nested", identity.Provider{
				IDClaims:   []string{"ext.user.id"},
				NameClaims: []string{"ext.user.display"},
			})
			resolver = identity.NewResolver(registry)
		})

		It("walks nested claim objects", func() {
			token := signToken(jwt.MapClaims{
				"ext": map[string]any{
					"user": map[string]any{"id": "nested-9", "display": "Nested Nine"},
				},
			})

			ident := resolver.Extract(ctx, token, "nested")

			Expect(ident).NotTo(BeNil())
			Expect(ident.CustomerID).To(Equal("nested-9"))
			Expect(ident.CustomerName).To(Equal("Nested Nine"))
		})

		It("treats a missing intermediate key as not found", func() {
			token := signToken(jwt.MapClaims{"ext": map[string]any{"other": "x"}})

			Expect(resolver.Extract(ctx, token, "nested")).To(BeNil())
		})
	})
})
