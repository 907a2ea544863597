package domain

import "context"

// Member is one (username, email) pair from an external group listing.
// Email is empty when the directory does not expose it.
type Member struct {
	Username string
	Email    string
}

// DirectoryGateway lists live group data from an external directory system.
// Implementations are rate-limited and must terminate pagination even when
// the upstream misbehaves.
type DirectoryGateway interface {
	// ListGroupMembers returns the current members of the named group.
	ListGroupMembers(ctx context.Context, system System, groupName string) ([]Member, error)
	// ListGroupNames returns every group name currently present in the
	// system; used by the stale-group pruner.
	ListGroupNames(ctx context.Context, system System) ([]string, error)
}
