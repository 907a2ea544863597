package service

import (
	"context"
	"errors"

	"delegated-groups/internal/domain"
)

// CallerIdentity is the identity of the requester as extracted by the
// request layer. Email is preferred for resolution; username is the
// fallback.
type CallerIdentity struct {
	Username string
	Email    string
}

// AuthzService answers whether a caller is an effective owner of a delegated
// group. Unknown identities fail closed.
type AuthzService struct {
	persons domain.PersonRepository
	owners  domain.OwnerRepository
}

func NewAuthzService(persons domain.PersonRepository, owners domain.OwnerRepository) *AuthzService {
	return &AuthzService{persons: persons, owners: owners}
}

// IsEffectiveOwner reports whether the caller holds at least one ownership
// grant of either kind on the group.
func (s *AuthzService) IsEffectiveOwner(ctx context.Context, caller CallerIdentity, group *domain.DelegatedGroup) (bool, error) {
	person, err := s.resolveCaller(ctx, caller)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return s.owners.HasAnyGrant(ctx, group.ID, person.ID)
}

// RequireOwner returns an AccessDeniedError unless the caller is an
// effective owner of the group.
func (s *AuthzService) RequireOwner(ctx context.Context, caller CallerIdentity, group *domain.DelegatedGroup) error {
	ok, err := s.IsEffectiveOwner(ctx, caller, group)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAccessDenied("only current owners can manage owners of delegated group %q", group.Name)
	}
	return nil
}

func (s *AuthzService) resolveCaller(ctx context.Context, caller CallerIdentity) (*domain.Person, error) {
	lowerUsername, lowerEmail := domain.NormalizeIdentity(caller.Username, caller.Email)
	if lowerEmail != nil {
		p, err := s.persons.GetByEmail(ctx, *lowerEmail)
		if err == nil {
			return p, nil
		}
		var notFound *domain.NotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	if lowerUsername == "" {
		return nil, domain.ErrNotFound("caller identity is unknown")
	}
	return s.persons.GetByUsername(ctx, lowerUsername)
}
