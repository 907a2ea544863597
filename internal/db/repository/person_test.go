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

func setupPersonRepo(t *testing.T) *PersonRepo {
	t.Helper()
	writeDB, _ := internaldb.OpenTestSQLite(t)
	return NewPersonRepo(writeDB)
}

func TestPersonRepo_CreateAndGetByIdentity(t *testing.T) {
	repo := setupPersonRepo(t)
	ctx := context.Background()

	p, err := repo.Create(ctx, domain.NewPerson("Alice", "Alice@Example.COM"))
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, "Alice", p.Username)
	assert.Equal(t, "alice", p.LowerUsername)
	require.NotNil(t, p.LowerEmail)
	assert.Equal(t, "alice@example.com", *p.LowerEmail)

	email := "alice@example.com"
	found, err := repo.GetByIdentity(ctx, "alice", &email)
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)
	assert.Equal(t, "Alice@Example.COM", found.Email)
}

func TestPersonRepo_NoEmailIsDistinctIdentity(t *testing.T) {
	repo := setupPersonRepo(t)
	ctx := context.Background()

	withEmail, err := repo.Create(ctx, domain.NewPerson("bob", "bob@example.com"))
	require.NoError(t, err)

	// Same username without an email is a different identity.
	withoutEmail, err := repo.Create(ctx, domain.NewPerson("bob", ""))
	require.NoError(t, err)
	assert.NotEqual(t, withEmail.ID, withoutEmail.ID)

	found, err := repo.GetByIdentity(ctx, "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, withoutEmail.ID, found.ID)
	assert.Nil(t, found.LowerEmail)

	email := "bob@example.com"
	found, err = repo.GetByIdentity(ctx, "bob", &email)
	require.NoError(t, err)
	assert.Equal(t, withEmail.ID, found.ID)
}

func TestPersonRepo_DuplicateIdentityConflicts(t *testing.T) {
	repo := setupPersonRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, domain.NewPerson("carol", "carol@example.com"))
	require.NoError(t, err)

	// Same normalized pair, different display case.
	_, err = repo.Create(ctx, domain.NewPerson("CAROL", "Carol@Example.com"))
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)

	// Also for the no-email variant.
	_, err = repo.Create(ctx, domain.NewPerson("carol", ""))
	require.NoError(t, err)
	_, err = repo.Create(ctx, domain.NewPerson("Carol", ""))
	require.ErrorAs(t, err, &conflict)
}

func TestPersonRepo_GetByUsernameOldestWins(t *testing.T) {
	repo := setupPersonRepo(t)
	ctx := context.Background()

	first, err := repo.Create(ctx, domain.NewPerson("dave", "dave@old.example.com"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, domain.NewPerson("dave", "dave@new.example.com"))
	require.NoError(t, err)

	found, err := repo.GetByUsername(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestPersonRepo_GetByEmailNotFound(t *testing.T) {
	repo := setupPersonRepo(t)
	ctx := context.Background()

	_, err := repo.GetByEmail(ctx, "nobody@example.com")
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
}
