package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delegated-groups/internal/domain"
)

func newTestScheduler(env *testEnv, gw *fakeGateway) *Scheduler {
	reconciler := NewReconciler(env.owners, env.identity, gw, discardLogger(), 2)
	pruner := NewPruner(env.groups, gw, discardLogger())
	return NewScheduler(reconciler, pruner, env.audit, discardLogger())
}

func TestSchedulerRunSyncAudits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	gw := newFakeGateway()

	env.mustCreateGroup(t, domain.SystemJira, "team-space")
	_, err := env.registry.AddOwningGroupRule(ctx, domain.SystemJira, "team-space", "jira-admins")
	require.NoError(t, err)
	gw.setMembers(domain.SystemJira, "jira-admins", "alice")

	summary, err := newTestScheduler(env, gw).RunSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.GrantsAdded)

	entries, err := env.audit.List(ctx, domain.AuditFilter{Action: domain.AuditSyncRun})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditStatusSuccess, entries[0].Status)
	assert.Equal(t, "scheduler", entries[0].ActorUsername)
	assert.Contains(t, entries[0].Details, `"grants_added":1`)
}

func TestSchedulerRunPruneAudits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustCreateGroup(t, domain.SystemJira, "stale")
	gw := newFakeGateway()
	gw.groups[domain.SystemJira] = []string{"live-only"}
	gw.groups[domain.SystemConfluence] = []string{"live-only"}

	summary, err := newTestScheduler(env, gw).RunPrune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.GroupsPruned)

	entries, err := env.audit.List(ctx, domain.AuditFilter{Action: domain.AuditPruneRun})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditStatusSuccess, entries[0].Status)
}

func TestSchedulerStartRejectsBadSpec(t *testing.T) {
	env := newTestEnv(t)
	s := newTestScheduler(env, newFakeGateway())

	err := s.Start("not-a-cron-spec", "")
	require.Error(t, err)
}
