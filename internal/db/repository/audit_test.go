package repository

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "delegated-groups/internal/db"
	"delegated-groups/internal/domain"
)

func TestAuditRepo_InsertAndList(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	repo := NewAuditRepo(writeDB)
	ctx := context.Background()

	entries := []domain.AuditEntry{
		{ActorUsername: "alice", Action: domain.AuditCreateGroup, Status: domain.AuditStatusSuccess, System: domain.SystemJira, GroupName: "team-a"},
		{ActorUsername: "bob", ActorEmail: "bob@example.com", Action: domain.AuditAddUserOwner, Status: domain.AuditStatusSuccess, System: domain.SystemJira, GroupName: "team-a", Details: `{"username":"carol"}`},
		{ActorUsername: "scheduler", Action: domain.AuditSyncRun, Status: domain.AuditStatusFailure},
	}
	for i := range entries {
		require.NoError(t, repo.Insert(ctx, &entries[i]))
	}

	all, err := repo.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, domain.AuditSyncRun, all[0].Action)
	assert.Equal(t, "{}", all[0].Details)

	byAction, err := repo.List(ctx, domain.AuditFilter{Action: domain.AuditAddUserOwner})
	require.NoError(t, err)
	require.Len(t, byAction, 1)
	assert.Equal(t, "bob@example.com", byAction[0].ActorEmail)
	assert.Equal(t, `{"username":"carol"}`, byAction[0].Details)

	bySystem, err := repo.List(ctx, domain.AuditFilter{System: domain.SystemJira})
	require.NoError(t, err)
	assert.Len(t, bySystem, 2)

	limited, err := repo.List(ctx, domain.AuditFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
