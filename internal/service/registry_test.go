package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delegated-groups/internal/domain"
)

func TestCreateGroupWithInitialOwners(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	g, err := env.registry.CreateGroup(ctx, domain.SystemJira, "team-space",
		[]UserOwner{{Username: "alice", Email: "alice@example.com"}},
		[]string{"Jira-Admins"})
	require.NoError(t, err)

	owners, err := env.registry.GetGroupOwners(ctx, domain.SystemJira, "team-space")
	require.NoError(t, err)
	require.Len(t, owners.UserOwners, 1)
	assert.Equal(t, "alice", owners.UserOwners[0].Username)
	assert.Equal(t, []string{"Jira-Admins"}, owners.OwningGroups)

	// Rules wait for reconciliation; no derived grants appear at creation.
	effective, err := env.registry.ListEffectiveOwners(ctx, domain.SystemJira, "team-space")
	require.NoError(t, err)
	require.Len(t, effective, 1)
	assert.Equal(t, domain.GrantDirect, effective[0].Kind)

	_, err = env.registry.CreateGroup(ctx, domain.SystemJira, "TEAM-SPACE", nil, nil)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.NotZero(t, g.ID)
}

func TestBulkAddGroups(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustCreateGroup(t, domain.SystemConfluence, "existing")

	results, err := env.registry.BulkAddGroups(ctx, domain.SystemConfluence,
		[]string{"existing", "new-one", "New-One", "  ", "new-two"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, BulkResult{Group: "existing", Created: false}, results[0])
	assert.Equal(t, BulkResult{Group: "new-one", Created: true}, results[1])
	assert.Equal(t, BulkResult{Group: "new-two", Created: true}, results[2])

	_, err = env.registry.BulkAddGroups(ctx, domain.SystemConfluence, []string{"", "   "})
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestAddAndRemoveDirectOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustCreateGroup(t, domain.SystemJira, "team-space")

	created, err := env.registry.AddDirectOwner(ctx, domain.SystemJira, "team-space", "bob", "bob@example.com")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = env.registry.AddDirectOwner(ctx, domain.SystemJira, "team-space", "Bob", "BOB@example.com")
	require.NoError(t, err)
	assert.False(t, created)

	removed, err := env.registry.RemoveDirectOwner(ctx, domain.SystemJira, "team-space", "bob", "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// Removing an unknown person must not create an identity row.
	_, err = env.registry.RemoveDirectOwner(ctx, domain.SystemJira, "team-space", "ghost", "")
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
	_, err = env.persons.GetByUsername(ctx, "ghost")
	require.ErrorAs(t, err, &notFound)
}

func TestRemoveOwningGroupRuleCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.mustCreateGroup(t, domain.SystemJira, "team-space")

	_, err := env.registry.AddOwningGroupRule(ctx, domain.SystemJira, "team-space", "Jira-Admins")
	require.NoError(t, err)

	member, err := env.identity.ResolveOrCreatePerson(ctx, "carol", "carol@example.com")
	require.NoError(t, err)
	_, _, err = env.owners.ReconcileDerivedGrants(ctx, g.ID, "Jira-Admins", []int64{member.ID})
	require.NoError(t, err)

	removal, err := env.registry.RemoveOwningGroupRule(ctx, domain.SystemJira, "team-space", "JIRA-ADMINS")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removal.RulesDeleted)
	assert.Equal(t, int64(1), removal.GrantsDeleted)

	effective, err := env.registry.ListEffectiveOwners(ctx, domain.SystemJira, "team-space")
	require.NoError(t, err)
	assert.Empty(t, effective)
}

func TestGroupsForEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustCreateGroup(t, domain.SystemJira, "team-space")

	_, err := env.registry.AddDirectOwner(ctx, domain.SystemJira, "team-space", "dora", "dora@example.com")
	require.NoError(t, err)

	grants, err := env.registry.GroupsForEmail(ctx, "Dora@Example.com")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "team-space", grants[0].GroupName)
	assert.Equal(t, domain.GrantDirect, grants[0].Kind)

	// Unknown email is an empty answer, not an error.
	grants, err = env.registry.GroupsForEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestGetGroupNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.registry.GetGroup(context.Background(), domain.SystemJira, "missing")
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, err.Error(), "missing")
}
