package domain

import "time"

// Audit actions recorded by the mutation endpoints and batch jobs.
const (
	AuditAddUserOwner         = "ADD_USER_OWNER"
	AuditRemoveUserOwner      = "REMOVE_USER_OWNER"
	AuditAddGroupOwnerRule    = "ADD_GROUP_OWNER_RULE"
	AuditRemoveGroupOwnerRule = "REMOVE_GROUP_OWNER_RULE"
	AuditCreateGroup          = "CREATE_DELEGATED_GROUP"
	AuditDeleteGroup          = "DELETE_DELEGATED_GROUP"
	AuditSyncRun              = "SYNC_RUN"
	AuditPruneRun             = "PRUNE_RUN"
)

// Audit statuses.
const (
	AuditStatusSuccess = "SUCCESS"
	AuditStatusFailure = "FAILURE"
)

// AuditEntry is one audit-trail row. GroupName is stored alongside GroupID so
// the trail stays readable after the group is deleted.
type AuditEntry struct {
	ID            int64
	CreatedAt     time.Time
	ActorUsername string
	ActorEmail    string
	Action        string
	Status        string
	System        System // empty for global actions
	GroupID       *int64
	GroupName     string
	Details       string // JSON blob with action-specific context
	RequestID     string
}

// AuditFilter narrows an audit listing.
type AuditFilter struct {
	Action string
	System System
	Limit  int
}
