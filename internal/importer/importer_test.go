package importer

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delegated-groups/internal/db"
	"delegated-groups/internal/db/repository"
	"delegated-groups/internal/domain"
	"delegated-groups/internal/service"
)

type importEnv struct {
	importer *Importer
	registry *service.RegistryService
	owners   *repository.OwnerRepo
}

func newImportEnv(t *testing.T) *importEnv {
	t.Helper()
	writeDB, _ := db.OpenTestSQLite(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	persons := repository.NewPersonRepo(writeDB)
	groups := repository.NewGroupRepo(writeDB)
	owners := repository.NewOwnerRepo(writeDB)
	identity := service.NewIdentityService(persons)
	registry := service.NewRegistryService(groups, owners, identity)

	return &importEnv{
		importer: New(identity, registry, owners, logger),
		registry: registry,
		owners:   owners,
	}
}

func TestImportCreatesGrantsAndRules(t *testing.T) {
	env := newImportEnv(t)
	ctx := context.Background()

	csvData := `app,group_name,user_name,email_address,source_type,via_group_name
jira,data-platform,alice,alice@example.com,USER_OWNER,
jira,data-platform,bob,bob@example.com,GROUP_OWNER,team-platform
jira,data-platform,carol,carol@example.com,GROUP_OWNER,team-platform
confluence,wiki-space,alice,alice@example.com,USER_OWNER,
`
	summary, err := env.importer.Run(ctx, strings.NewReader(csvData))
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Rows)
	assert.Equal(t, 0, summary.SkippedRows)
	assert.Equal(t, 2, summary.DirectGrants)
	assert.Equal(t, 2, summary.DerivedGrants)
	// Both GROUP_OWNER rows share one backfilled rule.
	assert.Equal(t, 1, summary.Rules)

	group, err := env.registry.GetGroup(ctx, domain.SystemJira, "data-platform")
	require.NoError(t, err)
	effective, err := env.owners.ListEffectiveOwners(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, effective, 3)

	rules, err := env.owners.ListRules(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "team-platform", rules[0].OwningGroup)
}

func TestImportIsIdempotent(t *testing.T) {
	env := newImportEnv(t)
	ctx := context.Background()

	csvData := `app,group_name,user_name,email_address,source_type,via_group_name
jira,repeat,alice,alice@example.com,USER_OWNER,
`
	_, err := env.importer.Run(ctx, strings.NewReader(csvData))
	require.NoError(t, err)

	summary, err := env.importer.Run(ctx, strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Rows)
	assert.Equal(t, 0, summary.DirectGrants)
}

func TestImportSkipsBadRows(t *testing.T) {
	env := newImportEnv(t)
	ctx := context.Background()

	csvData := `app,group_name,user_name,email_address,source_type,via_group_name
gitlab,some-group,alice,alice@example.com,USER_OWNER,
jira,ok-group,alice,alice@example.com,USER_OWNER,
jira,ok-group,bob,bob@example.com,GROUP_OWNER,
jira,ok-group,carol
jira,ok-group,dave,dave@example.com,WEIRD_SOURCE,
`
	summary, err := env.importer.Run(ctx, strings.NewReader(csvData))
	require.NoError(t, err)

	// unknown system, GROUP_OWNER without via group, short record,
	// unknown source type
	assert.Equal(t, 4, summary.SkippedRows)
	assert.Equal(t, 1, summary.DirectGrants)

	group, err := env.registry.GetGroup(ctx, domain.SystemJira, "ok-group")
	require.NoError(t, err)
	effective, err := env.owners.ListEffectiveOwners(ctx, group.ID)
	require.NoError(t, err)
	assert.Len(t, effective, 1)
}

func TestImportRejectsMissingColumn(t *testing.T) {
	env := newImportEnv(t)

	csvData := `app,group_name,user_name
jira,x,alice
`
	_, err := env.importer.Run(context.Background(), strings.NewReader(csvData))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source_type")
}

func TestImportEmptyFileFails(t *testing.T) {
	env := newImportEnv(t)
	_, err := env.importer.Run(context.Background(), strings.NewReader(""))
	require.Error(t, err)
}
