package domain

import "time"

// GrantKind distinguishes how an ownership grant was produced.
type GrantKind string

const (
	// GrantDirect is a person explicitly added as an owner.
	GrantDirect GrantKind = "direct"
	// GrantDerived is ownership held through current membership in a
	// configured owning group; recomputed by reconciliation.
	GrantDerived GrantKind = "derived"
)

// GrantSource is the closed set of grant origins. Using a sum type keeps a
// direct grant from ever carrying an owning-group name.
type GrantSource interface {
	Kind() GrantKind
	isGrantSource()
}

// DirectOwner marks a grant created by an explicit owner mutation.
type DirectOwner struct{}

func (DirectOwner) Kind() GrantKind { return GrantDirect }
func (DirectOwner) isGrantSource()  {}

// GroupOwner marks a grant expanded from membership in OwningGroup.
type GroupOwner struct {
	OwningGroup string
}

func (GroupOwner) Kind() GrantKind { return GrantDerived }
func (GroupOwner) isGrantSource()  {}

// OwnershipGrant links a Person to a DelegatedGroup they own.
type OwnershipGrant struct {
	ID        int64
	GroupID   int64
	PersonID  int64
	Source    GrantSource
	CreatedAt time.Time
}

// EffectiveOwner is one row of a group's expanded owner listing: the person
// plus how they hold ownership.
type EffectiveOwner struct {
	Person    Person
	Kind      GrantKind
	ViaGroup  string // owning group name, empty for direct grants
	CreatedAt time.Time
}

// PersonGrant is one row of a person's own grant listing across groups.
type PersonGrant struct {
	System    System
	GroupName string
	Kind      GrantKind
	ViaGroup  string
}
