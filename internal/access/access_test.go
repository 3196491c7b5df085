package access

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	a := NewAuthenticator([]string{"s3cret", "ops:other-secret", "  "}, zerolog.Nop())
	require.True(t, a.Enabled())

	p, err := a.Authenticate("")
	require.NoError(t, err)
	assert.Equal(t, Anonymous, p)

	p, err = a.Authenticate("s3cret")
	require.NoError(t, err)
	assert.True(t, p.Admin)
	assert.Equal(t, "admin-1", p.Subject)

	p, err = a.Authenticate("other-secret")
	require.NoError(t, err)
	assert.Equal(t, Principal{Subject: "ops", Admin: true}, p)

	p, err = a.Authenticate("wrong")
	assert.True(t, IsAccessDenied(err))
	assert.False(t, p.Admin)
}

func TestAuthenticate_NoTokensConfigured(t *testing.T) {
	a := NewAuthenticator(nil, zerolog.Nop())
	assert.False(t, a.Enabled())

	_, err := a.Authenticate("anything")
	assert.True(t, IsAccessDenied(err))
}

func TestAuthenticate_SkipsEmptySecret(t *testing.T) {
	a := NewAuthenticator([]string{"owner:"}, zerolog.Nop())
	assert.False(t, a.Enabled())

	_, err := a.Authenticate("owner:")
	assert.True(t, IsAccessDenied(err))
}

func TestRequireAdmin(t *testing.T) {
	assert.NoError(t, RequireAdmin(Principal{Subject: "ops", Admin: true}))

	err := RequireAdmin(Anonymous)
	require.Error(t, err)
	var ade *AccessDeniedError
	require.ErrorAs(t, err, &ade)
	assert.True(t, ade.Unauthenticated)

	err = RequireAdmin(Principal{Subject: "user"})
	require.ErrorAs(t, err, &ade)
	assert.False(t, ade.Unauthenticated)

	assert.True(t, IsAccessDenied(fmt.Errorf("wrapped: %w", err)))
}

func TestPrincipalContext(t *testing.T) {
	assert.Equal(t, Anonymous, FromContext(context.Background()))

	p := Principal{Subject: "ops", Admin: true}
	ctx := WithPrincipal(context.Background(), p)
	assert.Equal(t, p, FromContext(ctx))
}
