package domain

import (
	"strings"
	"time"
)

// OwningGroupRule states that members of OwningGroup should be treated as
// owners of the delegated group, independent of current membership. The rule
// is expanded into derived grants only by the reconciliation engine.
type OwningGroupRule struct {
	ID               int64
	GroupID          int64
	OwningGroup      string // canonical case for display
	LowerOwningGroup string
	CreatedAt        time.Time
}

// NewOwningGroupRule builds an unsaved rule with the normalized owning-group
// name derived from the canonical-case value.
func NewOwningGroupRule(groupID int64, owningGroup string) *OwningGroupRule {
	owningGroup = strings.TrimSpace(owningGroup)
	return &OwningGroupRule{
		GroupID:          groupID,
		OwningGroup:      owningGroup,
		LowerOwningGroup: strings.ToLower(owningGroup),
	}
}

// RuleTriple is one unit of reconciliation work: a configured owning group
// backing one delegated group in one system.
type RuleTriple struct {
	System      System
	GroupID     int64
	GroupName   string
	OwningGroup string
}

// RuleRemoval reports what an atomic rule removal deleted.
type RuleRemoval struct {
	RulesDeleted  int64
	GrantsDeleted int64
}
