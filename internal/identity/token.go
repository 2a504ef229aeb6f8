package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"parlor.chat/widget/internal/model"
)

var ErrMalformedToken = errors.New("malformed token")

// ParseToken decodes a bearer token into its claims without verifying the
// signature. The widget only mines claims for identity; verification is the
// server's job on every request the token accompanies.
func ParseToken(token string) (model.Claims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, fmt.Errorf("%w: expected three segments", ErrMalformedToken)
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedToken, err)
	}
	return model.Claims(claims), nil
}

// Expired reports whether the token's exp claim is in the past. A missing or
// unreadable exp claim counts as not expired; expiry only ever drives a
// warning, never blocks resolution.
func Expired(claims model.Claims, now time.Time) bool {
	raw, ok := claims["exp"]
	if !ok {
		return false
	}
	var exp int64
	switch v := raw.(type) {
	case float64:
		exp = int64(v)
	case int64:
		exp = v
	default:
		return false
	}
	return exp > 0 && now.Unix() > exp
}
