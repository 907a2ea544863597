// Package service implements the ownership core: identity resolution, the
// group registry, the authorization check, and the reconciliation and
// pruning jobs.
package service

import (
	"context"
	"errors"

	"delegated-groups/internal/domain"
)

// IdentityService resolves (username, email) pairs to deduplicated Person
// rows.
type IdentityService struct {
	persons domain.PersonRepository
}

func NewIdentityService(persons domain.PersonRepository) *IdentityService {
	return &IdentityService{persons: persons}
}

// ResolveOrCreatePerson returns the Person for the normalized (username,
// email) pair, creating it on first reference. A later call with the same
// username but a different email creates a distinct Person rather than
// updating the existing row.
func (s *IdentityService) ResolveOrCreatePerson(ctx context.Context, username, email string) (*domain.Person, error) {
	p := domain.NewPerson(username, email)
	if p.LowerUsername == "" {
		return nil, domain.ErrValidation("username is required")
	}

	existing, err := s.persons.GetByIdentity(ctx, p.LowerUsername, p.LowerEmail)
	if err == nil {
		return existing, nil
	}
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}

	created, err := s.persons.Create(ctx, p)
	if err == nil {
		return created, nil
	}
	// A concurrent request may have created the same identity between the
	// lookup and the insert; the unique index turns that into a conflict we
	// can resolve by re-reading.
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		return s.persons.GetByIdentity(ctx, p.LowerUsername, p.LowerEmail)
	}
	return nil, err
}

// FindPerson looks up an existing Person for the normalized (username, email)
// pair without creating one. With an empty email the lookup falls back to
// username alone. Returns a NotFoundError when no such person exists.
func (s *IdentityService) FindPerson(ctx context.Context, username, email string) (*domain.Person, error) {
	lowerUsername, lowerEmail := domain.NormalizeIdentity(username, email)
	if lowerUsername == "" {
		return nil, domain.ErrValidation("username is required")
	}
	if lowerEmail != nil {
		return s.persons.GetByIdentity(ctx, lowerUsername, lowerEmail)
	}
	return s.persons.GetByUsername(ctx, lowerUsername)
}

// FindPersonByEmail looks up an existing Person by normalized email. Returns
// a NotFoundError when no such person exists.
func (s *IdentityService) FindPersonByEmail(ctx context.Context, email string) (*domain.Person, error) {
	return s.persons.GetByEmail(ctx, email)
}
