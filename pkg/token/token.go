// Package token issues idempotency tokens for the opc-retry-token request header.
package token

import (
	"strings"

	"github.com/google/uuid"
)

// MaxLength is the longest token the OCI services accept in the opc-retry-token header.
const MaxLength = 64

// Issuer produces opaque tokens that are unique with overwhelming probability.
type Issuer interface {
	Issue() string
}

// IssuerFunc adapts a function to Issuer.
type IssuerFunc func() string

// Issue implements Issuer.
func (f IssuerFunc) Issue() string {
	return f()
}

// UUIDIssuer issues random (version 4) UUIDs. It holds no state and is safe for concurrent use.
type UUIDIssuer struct{}

// NewIssuer returns the default Issuer.
//
//nolint:ireturn // callers substitute issuers in tests.
func NewIssuer() Issuer {
	return UUIDIssuer{}
}

// Issue returns a fresh token. It never fails.
func (UUIDIssuer) Issue() string {
	return uuid.NewString()
}

// Resolve returns the caller-supplied token exactly as given when it is present and otherwise
// asks issuer for a fresh one. A whitespace-only value counts as absent.
func Resolve(issuer Issuer, supplied string) string {
	if strings.TrimSpace(supplied) != "" {
		return supplied
	}

	if issuer == nil {
		issuer = UUIDIssuer{}
	}

	return issuer.Issue()
}
