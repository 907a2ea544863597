package domain

import "context"

// PersonRepository provides lookup and creation of deduplicated identities.
type PersonRepository interface {
	// GetByIdentity returns the person for the exact normalized pair, or a
	// NotFoundError. A nil lowerEmail matches only rows with no email.
	GetByIdentity(ctx context.Context, lowerUsername string, lowerEmail *string) (*Person, error)
	Create(ctx context.Context, p *Person) (*Person, error)
	// GetByEmail returns the person with the given normalized email, or a
	// NotFoundError.
	GetByEmail(ctx context.Context, lowerEmail string) (*Person, error)
	// GetByUsername returns the person with the given normalized username,
	// or a NotFoundError. When several rows share the username (same human
	// recorded with and without an email) the oldest row wins.
	GetByUsername(ctx context.Context, lowerUsername string) (*Person, error)
}

// GroupRepository provides CRUD for delegated groups. Delete cascades to all
// grants and rules inside one transaction.
type GroupRepository interface {
	Create(ctx context.Context, g *DelegatedGroup) (*DelegatedGroup, error)
	// CreateWithOwnership creates the group plus its initial direct grants
	// and owning-group rules inside one transaction. GroupID on the rules is
	// ignored in favor of the new group's ID.
	CreateWithOwnership(ctx context.Context, g *DelegatedGroup, ownerPersonIDs []int64, rules []*OwningGroupRule) (*DelegatedGroup, error)
	// CreateBatch inserts the groups that do not yet exist in one
	// transaction and reports per group whether a row was created.
	CreateBatch(ctx context.Context, groups []*DelegatedGroup) ([]bool, error)
	GetByName(ctx context.Context, system System, lowerName string) (*DelegatedGroup, error)
	List(ctx context.Context) ([]DelegatedGroup, error)
	ListBySystem(ctx context.Context, system System) ([]DelegatedGroup, error)
	Delete(ctx context.Context, id int64) (*GroupDeletion, error)
}

// OwnerRepository manages ownership grants and owning-group rules for
// delegated groups. All multi-row mutations are transactional.
type OwnerRepository interface {
	// AddDirectGrant inserts a direct grant; it reports false when the grant
	// already existed.
	AddDirectGrant(ctx context.Context, groupID, personID int64) (bool, error)
	// RemoveDirectGrant deletes the matching direct grant and returns the
	// number of rows removed (0 or 1).
	RemoveDirectGrant(ctx context.Context, groupID, personID int64) (int64, error)

	// AddRule inserts an owning-group rule; it reports false when the rule
	// already existed.
	AddRule(ctx context.Context, rule *OwningGroupRule) (bool, error)
	// RemoveRuleWithGrants deletes the rule and every derived grant expanded
	// from it as one atomic unit.
	RemoveRuleWithGrants(ctx context.Context, groupID int64, lowerOwningGroup string) (*RuleRemoval, error)
	ListRules(ctx context.Context, groupID int64) ([]OwningGroupRule, error)
	// ListRuleTriples enumerates every configured (system, group, owning
	// group) reconciliation unit across all delegated groups.
	ListRuleTriples(ctx context.Context) ([]RuleTriple, error)

	// ReconcileDerivedGrants makes the derived grants for (groupID,
	// owningGroup) match desiredPersonIDs exactly, inside one transaction.
	// Rows already present are left untouched. It returns how many grants
	// were added and removed.
	ReconcileDerivedGrants(ctx context.Context, groupID int64, owningGroup string, desiredPersonIDs []int64) (added, removed int64, err error)

	ListEffectiveOwners(ctx context.Context, groupID int64) ([]EffectiveOwner, error)
	// HasAnyGrant reports whether the person holds at least one grant of
	// either kind on the group.
	HasAnyGrant(ctx context.Context, groupID, personID int64) (bool, error)
	ListGrantsForPerson(ctx context.Context, personID int64) ([]PersonGrant, error)
}

// AuditRepository persists the audit trail.
type AuditRepository interface {
	Insert(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}
