package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	internaldb "delegated-groups/internal/db"
	"delegated-groups/internal/db/repository"
	"delegated-groups/internal/domain"
)

// testEnv wires the services against a real SQLite store in t.TempDir().
type testEnv struct {
	persons  *repository.PersonRepo
	groups   *repository.GroupRepo
	owners   *repository.OwnerRepo
	audits   *repository.AuditRepo
	identity *IdentityService
	registry *RegistryService
	authz    *AuthzService
	audit    *AuditService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	writeDB, _ := internaldb.OpenTestSQLite(t)

	env := &testEnv{
		persons: repository.NewPersonRepo(writeDB),
		groups:  repository.NewGroupRepo(writeDB),
		owners:  repository.NewOwnerRepo(writeDB),
		audits:  repository.NewAuditRepo(writeDB),
	}
	env.identity = NewIdentityService(env.persons)
	env.registry = NewRegistryService(env.groups, env.owners, env.identity)
	env.authz = NewAuthzService(env.persons, env.owners)
	env.audit = NewAuditService(env.audits, discardLogger())
	return env
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway is an in-memory DirectoryGateway. Member lists are keyed by
// the exact (system, group name) requested, matching the case sensitivity of
// the real systems; a key in failures returns an upstream error.
type fakeGateway struct {
	mu       sync.Mutex
	members  map[string][]domain.Member
	failures map[string]bool
	calls    map[string]int
	groups   map[domain.System][]string
	listErr  map[domain.System]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		members:  make(map[string][]domain.Member),
		failures: make(map[string]bool),
		calls:    make(map[string]int),
		groups:   make(map[domain.System][]string),
		listErr:  make(map[domain.System]error),
	}
}

func gatewayKey(system domain.System, group string) string {
	return string(system) + "/" + group
}

func (f *fakeGateway) setMembers(system domain.System, group string, usernames ...string) {
	members := make([]domain.Member, 0, len(usernames))
	for _, u := range usernames {
		members = append(members, domain.Member{Username: u, Email: u + "@example.com"})
	}
	f.members[gatewayKey(system, group)] = members
}

func (f *fakeGateway) ListGroupMembers(_ context.Context, system domain.System, groupName string) ([]domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := gatewayKey(system, groupName)
	f.calls[key]++
	if f.failures[key] {
		return nil, domain.ErrUpstream("%s group listing failed", system)
	}
	return f.members[key], nil
}

func (f *fakeGateway) ListGroupNames(_ context.Context, system domain.System) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[system]; err != nil {
		return nil, err
	}
	return f.groups[system], nil
}

var _ domain.DirectoryGateway = (*fakeGateway)(nil)

// mustCreateGroup is a shorthand for tests that need a registered group.
func (e *testEnv) mustCreateGroup(t *testing.T, system domain.System, name string) *domain.DelegatedGroup {
	t.Helper()
	g, err := e.registry.ResolveOrCreateGroup(context.Background(), system, name)
	require.NoError(t, err)
	return g
}
