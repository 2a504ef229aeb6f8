package model

import "time"

// Claims is the decoded payload of a bearer token. Values may be nested
// (map[string]any) for providers that namespace their claims.
type Claims map[string]any

// GuestCustomerID is the sentinel identity used when no usable claim exists.
const GuestCustomerID = "guest"

// CustomerIdentity is the stable identity derived from a token and provider
// pair. Name is optional; an id-only identity is valid.
type CustomerIdentity struct {
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name,omitempty"`
}

// GuestIdentity is the fallback when identity resolution fails.
func GuestIdentity() CustomerIdentity {
	return CustomerIdentity{CustomerID: GuestCustomerID}
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
