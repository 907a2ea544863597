package domain

import (
	"strings"
	"time"
)

// DelegatedGroup is a group in an external directory system whose ownership
// is tracked by this service. One row exists per (system, lower_name).
type DelegatedGroup struct {
	ID        int64
	System    System
	Name      string // canonical case for display
	LowerName string
	CreatedAt time.Time
}

// NewDelegatedGroup builds an unsaved DelegatedGroup with the normalized
// name derived from the canonical-case value.
func NewDelegatedGroup(system System, name string) *DelegatedGroup {
	name = strings.TrimSpace(name)
	return &DelegatedGroup{
		System:    system,
		Name:      name,
		LowerName: strings.ToLower(name),
	}
}

// GroupDeletion reports what a cascading group delete removed.
type GroupDeletion struct {
	GroupID       int64
	GroupName     string
	GrantsDeleted int64
	RulesDeleted  int64
}
