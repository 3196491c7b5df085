// Package access resolves who is calling and guards privileged operations.
package access

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Principal identifies the caller of an operation.
type Principal struct {
	Subject string
	Admin   bool
}

// Anonymous is the principal of unauthenticated public requests.
var Anonymous = Principal{Subject: "anonymous"}

// Authenticator checks admin tokens.
type Authenticator struct {
	tokens []adminToken
	logger zerolog.Logger
}

type adminToken struct {
	subject string
	secret  []byte
}

// NewAuthenticator builds an authenticator from configured tokens.
// A token may be written as "name:secret" to give the admin a readable subject.
func NewAuthenticator(tokens []string, logger zerolog.Logger) *Authenticator {
	a := &Authenticator{logger: logger.With().Str("component", "access").Logger()}
	for i, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		subject := fmt.Sprintf("admin-%d", i+1)
		if name, secret, ok := strings.Cut(t, ":"); ok && name != "" {
			if secret == "" {
				// "name:" left behind by an unset env placeholder.
				continue
			}
			subject, t = name, secret
		}
		a.tokens = append(a.tokens, adminToken{subject: subject, secret: []byte(t)})
	}
	return a
}

// Enabled reports whether any admin token is configured.
func (a *Authenticator) Enabled() bool {
	return len(a.tokens) > 0
}

// Authenticate maps a presented token to a principal.
// An empty token yields Anonymous; an unknown token is an AccessDeniedError.
func (a *Authenticator) Authenticate(token string) (Principal, error) {
	if token == "" {
		return Anonymous, nil
	}

	presented := []byte(token)
	match := -1
	for i, t := range a.tokens {
		// Compare against every token so timing does not reveal which one matched.
		if subtle.ConstantTimeCompare(presented, t.secret) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		a.logger.Warn().Msg("rejected admin token")
		return Anonymous, &AccessDeniedError{Reason: "invalid admin token"}
	}
	return Principal{Subject: a.tokens[match].subject, Admin: true}, nil
}

// RequireAdmin fails unless p is an administrator.
func RequireAdmin(p Principal) error {
	if !p.Admin {
		return &AccessDeniedError{Reason: "admin access required", Unauthenticated: p.Subject == Anonymous.Subject}
	}
	return nil
}

// AccessDeniedError is returned when access is denied.
type AccessDeniedError struct {
	Reason          string
	Unauthenticated bool
}

func (e *AccessDeniedError) Error() string {
	return e.Reason
}

// IsAccessDenied checks if error is access denied.
func IsAccessDenied(err error) bool {
	var ade *AccessDeniedError
	return errors.As(err, &ade)
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx, or Anonymous.
func FromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok {
		return p
	}
	return Anonymous
}
