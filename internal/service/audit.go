package service

import (
	"context"
	"log/slog"

	"delegated-groups/internal/domain"
)

// AuditService records administrative actions. Recording failures are
// logged, never propagated: an audit hiccup must not fail the action it
// describes.
type AuditService struct {
	repo   domain.AuditRepository
	logger *slog.Logger
}

func NewAuditService(repo domain.AuditRepository, logger *slog.Logger) *AuditService {
	return &AuditService{repo: repo, logger: logger}
}

// Record writes one SUCCESS entry for an action taken by caller.
func (s *AuditService) Record(ctx context.Context, caller CallerIdentity, action string, system domain.System, groupName, details, requestID string) {
	s.write(ctx, caller, action, system, groupName, details, requestID, domain.AuditStatusSuccess)
}

// RecordFailure writes one FAILURE entry for an action taken by caller.
func (s *AuditService) RecordFailure(ctx context.Context, caller CallerIdentity, action string, system domain.System, groupName, details, requestID string) {
	s.write(ctx, caller, action, system, groupName, details, requestID, domain.AuditStatusFailure)
}

func (s *AuditService) write(ctx context.Context, caller CallerIdentity, action string, system domain.System, groupName, details, requestID, status string) {
	entry := &domain.AuditEntry{
		ActorUsername: caller.Username,
		ActorEmail:    caller.Email,
		Action:        action,
		Status:        status,
		System:        system,
		GroupName:     groupName,
		Details:       details,
		RequestID:     requestID,
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		s.logger.Error("audit write failed", "action", action, "group", groupName, "error", err)
	}
}

// List returns recent audit entries matching the filter.
func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	return s.repo.List(ctx, filter)
}
