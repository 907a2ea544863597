package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delegated-groups/internal/domain"
)

func TestIsEffectiveOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.mustCreateGroup(t, domain.SystemJira, "team-space")

	_, err := env.registry.AddDirectOwner(ctx, domain.SystemJira, "team-space", "alice", "alice@example.com")
	require.NoError(t, err)

	derived, err := env.identity.ResolveOrCreatePerson(ctx, "bob", "bob@example.com")
	require.NoError(t, err)
	_, _, err = env.owners.ReconcileDerivedGrants(ctx, g.ID, "jira-admins", []int64{derived.ID})
	require.NoError(t, err)

	_, err = env.identity.ResolveOrCreatePerson(ctx, "mallory", "mallory@example.com")
	require.NoError(t, err)

	cases := []struct {
		name   string
		caller CallerIdentity
		want   bool
	}{
		{"direct owner by email", CallerIdentity{Email: "Alice@Example.com"}, true},
		{"derived owner by email", CallerIdentity{Email: "bob@example.com"}, true},
		{"known non-owner", CallerIdentity{Email: "mallory@example.com"}, false},
		{"unknown identity fails closed", CallerIdentity{Email: "stranger@example.com"}, false},
		{"username fallback", CallerIdentity{Username: "alice"}, true},
		{"empty identity fails closed", CallerIdentity{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := env.authz.IsEffectiveOwner(ctx, tc.caller, g)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestRequireOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.mustCreateGroup(t, domain.SystemJira, "team-space")

	_, err := env.registry.AddDirectOwner(ctx, domain.SystemJira, "team-space", "alice", "alice@example.com")
	require.NoError(t, err)

	require.NoError(t, env.authz.RequireOwner(ctx, CallerIdentity{Email: "alice@example.com"}, g))

	err = env.authz.RequireOwner(ctx, CallerIdentity{Email: "stranger@example.com"}, g)
	var denied *domain.AccessDeniedError
	require.ErrorAs(t, err, &denied)
}

func TestAuthzEmailTakesPrecedenceOverUsername(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.mustCreateGroup(t, domain.SystemJira, "team-space")

	// Two distinct people: the owner holds the email, a different person
	// holds the username the caller also presents.
	_, err := env.registry.AddDirectOwner(ctx, domain.SystemJira, "team-space", "owner", "shared@example.com")
	require.NoError(t, err)
	_, err = env.identity.ResolveOrCreatePerson(ctx, "impostor", "")
	require.NoError(t, err)

	ok, err := env.authz.IsEffectiveOwner(ctx, CallerIdentity{Username: "impostor", Email: "shared@example.com"}, g)
	require.NoError(t, err)
	assert.True(t, ok)
}
