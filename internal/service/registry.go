package service

import (
	"context"
	"errors"
	"strings"

	"delegated-groups/internal/domain"
)

// RegistryService manages delegated groups and the two kinds of ownership
// grants attached to them.
type RegistryService struct {
	groups   domain.GroupRepository
	owners   domain.OwnerRepository
	identity *IdentityService
}

func NewRegistryService(groups domain.GroupRepository, owners domain.OwnerRepository, identity *IdentityService) *RegistryService {
	return &RegistryService{groups: groups, owners: owners, identity: identity}
}

// UserOwner is one direct-owner entry supplied on group creation.
type UserOwner struct {
	Username string
	Email    string
}

// BulkResult reports the outcome of one name in a bulk group add.
type BulkResult struct {
	Group   string
	Created bool
}

// GroupOwners is the configured ownership of one group: its direct owners
// and its owning-group rules, without derived-member expansion.
type GroupOwners struct {
	Group        *domain.DelegatedGroup
	UserOwners   []domain.Person
	OwningGroups []string
}

// ResolveOrCreateGroup returns the delegated group for (system, name),
// creating it on first reference.
func (s *RegistryService) ResolveOrCreateGroup(ctx context.Context, system domain.System, name string) (*domain.DelegatedGroup, error) {
	g := domain.NewDelegatedGroup(system, name)
	if g.LowerName == "" {
		return nil, domain.ErrValidation("group name is required")
	}

	existing, err := s.groups.GetByName(ctx, system, g.LowerName)
	if err == nil {
		return existing, nil
	}
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}

	created, err := s.groups.Create(ctx, g)
	if err == nil {
		return created, nil
	}
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		return s.groups.GetByName(ctx, system, g.LowerName)
	}
	return nil, err
}

// GetGroup returns the delegated group for (system, name) or a NotFoundError.
func (s *RegistryService) GetGroup(ctx context.Context, system domain.System, name string) (*domain.DelegatedGroup, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	g, err := s.groups.GetByName(ctx, system, lower)
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		return nil, domain.ErrNotFound("delegated group %q not found in %s", name, system)
	}
	return g, err
}

// CreateGroup creates a new delegated group with its initial direct owners
// and owning-group rules. It fails with a ConflictError when the group
// already exists; owning-group rules are expanded into derived grants by the
// next reconciliation run, not here.
func (s *RegistryService) CreateGroup(ctx context.Context, system domain.System, name string, userOwners []UserOwner, owningGroups []string) (*domain.DelegatedGroup, error) {
	g := domain.NewDelegatedGroup(system, name)
	if g.LowerName == "" {
		return nil, domain.ErrValidation("group name is required")
	}

	// Identities are resolved up front: upserts are idempotent, so an
	// already-existing person is harmless even if the create below fails.
	ownerIDs := make([]int64, 0, len(userOwners))
	for _, o := range userOwners {
		person, err := s.identity.ResolveOrCreatePerson(ctx, o.Username, o.Email)
		if err != nil {
			return nil, err
		}
		ownerIDs = append(ownerIDs, person.ID)
	}
	var rules []*domain.OwningGroupRule
	for _, owning := range owningGroups {
		rule := domain.NewOwningGroupRule(0, owning)
		if rule.LowerOwningGroup == "" {
			continue
		}
		rules = append(rules, rule)
	}

	created, err := s.groups.CreateWithOwnership(ctx, g, ownerIDs, rules)
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		return nil, domain.ErrConflict("delegated group %q already exists in %s", name, system)
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

// BulkAddGroups registers several delegated groups without owners, reporting
// created/exists per name.
func (s *RegistryService) BulkAddGroups(ctx context.Context, system domain.System, names []string) ([]BulkResult, error) {
	var groups []*domain.DelegatedGroup
	seen := make(map[string]bool)
	for _, name := range names {
		g := domain.NewDelegatedGroup(system, name)
		if g.LowerName == "" || seen[g.LowerName] {
			continue
		}
		seen[g.LowerName] = true
		groups = append(groups, g)
	}
	if len(groups) == 0 {
		return nil, domain.ErrValidation("no valid group names provided")
	}

	created, err := s.groups.CreateBatch(ctx, groups)
	if err != nil {
		return nil, err
	}
	results := make([]BulkResult, len(groups))
	for i, g := range groups {
		results[i] = BulkResult{Group: g.Name, Created: created[i]}
	}
	return results, nil
}

// DeleteGroup removes a delegated group and cascades to its grants and rules.
func (s *RegistryService) DeleteGroup(ctx context.Context, system domain.System, name string) (*domain.GroupDeletion, error) {
	g, err := s.GetGroup(ctx, system, name)
	if err != nil {
		return nil, err
	}
	return s.groups.Delete(ctx, g.ID)
}

// AddDirectOwner grants direct ownership of (system, groupName) to the given
// identity. It reports false when the grant already existed.
func (s *RegistryService) AddDirectOwner(ctx context.Context, system domain.System, groupName, username, email string) (bool, error) {
	g, err := s.GetGroup(ctx, system, groupName)
	if err != nil {
		return false, err
	}
	person, err := s.identity.ResolveOrCreatePerson(ctx, username, email)
	if err != nil {
		return false, err
	}
	return s.owners.AddDirectGrant(ctx, g.ID, person.ID)
}

// RemoveDirectOwner deletes the direct grant for the given identity and
// returns the number of rows removed (0 or 1). The target person must
// already exist; removal never creates identities.
func (s *RegistryService) RemoveDirectOwner(ctx context.Context, system domain.System, groupName, username, email string) (int64, error) {
	g, err := s.GetGroup(ctx, system, groupName)
	if err != nil {
		return 0, err
	}
	person, err := s.identity.FindPerson(ctx, username, email)
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		return 0, domain.ErrNotFound("target user %q not found", username)
	}
	if err != nil {
		return 0, err
	}
	return s.owners.RemoveDirectGrant(ctx, g.ID, person.ID)
}

// AddOwningGroupRule configures owning-group ownership for a delegated
// group. Members are expanded by the next reconciliation run.
func (s *RegistryService) AddOwningGroupRule(ctx context.Context, system domain.System, groupName, owningGroup string) (bool, error) {
	g, err := s.GetGroup(ctx, system, groupName)
	if err != nil {
		return false, err
	}
	rule := domain.NewOwningGroupRule(g.ID, owningGroup)
	if rule.LowerOwningGroup == "" {
		return false, domain.ErrValidation("owning group name is required")
	}
	return s.owners.AddRule(ctx, rule)
}

// RemoveOwningGroupRule removes the rule and every derived grant it produced
// as one atomic unit.
func (s *RegistryService) RemoveOwningGroupRule(ctx context.Context, system domain.System, groupName, owningGroup string) (*domain.RuleRemoval, error) {
	g, err := s.GetGroup(ctx, system, groupName)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(strings.TrimSpace(owningGroup))
	if lower == "" {
		return nil, domain.ErrValidation("owning group name is required")
	}
	return s.owners.RemoveRuleWithGrants(ctx, g.ID, lower)
}

// ListEffectiveOwners returns every person holding a grant of either kind on
// the group, ordered by grant kind then normalized username.
func (s *RegistryService) ListEffectiveOwners(ctx context.Context, system domain.System, groupName string) ([]domain.EffectiveOwner, error) {
	g, err := s.GetGroup(ctx, system, groupName)
	if err != nil {
		return nil, err
	}
	return s.owners.ListEffectiveOwners(ctx, g.ID)
}

// GetGroupOwners returns the configured ownership of the group: direct
// owners plus owning-group rule names, without derived expansion.
func (s *RegistryService) GetGroupOwners(ctx context.Context, system domain.System, groupName string) (*GroupOwners, error) {
	g, err := s.GetGroup(ctx, system, groupName)
	if err != nil {
		return nil, err
	}
	effective, err := s.owners.ListEffectiveOwners(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	out := &GroupOwners{Group: g}
	for _, o := range effective {
		if o.Kind == domain.GrantDirect {
			out.UserOwners = append(out.UserOwners, o.Person)
		}
	}
	rules, err := s.owners.ListRules(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		out.OwningGroups = append(out.OwningGroups, r.OwningGroup)
	}
	return out, nil
}

// ListGroupsWithOwners returns every delegated group with its configured
// owner labels, for the overview listing.
func (s *RegistryService) ListGroupsWithOwners(ctx context.Context) ([]GroupOwners, error) {
	groups, err := s.groups.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]GroupOwners, 0, len(groups))
	for i := range groups {
		g := groups[i]
		owners, err := s.GetGroupOwners(ctx, g.System, g.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, *owners)
	}
	return out, nil
}

// GroupsForEmail returns every grant held by the person with the given
// email. An unknown email yields an empty list, not an error.
func (s *RegistryService) GroupsForEmail(ctx context.Context, email string) ([]domain.PersonGrant, error) {
	lower := strings.ToLower(strings.TrimSpace(email))
	if lower == "" {
		return nil, domain.ErrValidation("email is required")
	}
	person, err := s.identity.FindPersonByEmail(ctx, lower)
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.owners.ListGrantsForPerson(ctx, person.ID)
}
