package service

import (
	"context"
	"log/slog"
	"strings"

	"delegated-groups/internal/domain"
)

// Pruner deletes registered groups that no longer exist in their external
// system, cascading their grants and rules.
type Pruner struct {
	groups  domain.GroupRepository
	gateway domain.DirectoryGateway
	logger  *slog.Logger
}

func NewPruner(groups domain.GroupRepository, gateway domain.DirectoryGateway, logger *slog.Logger) *Pruner {
	return &Pruner{groups: groups, gateway: gateway, logger: logger}
}

// PruneSummary reports what one prune pass did.
type PruneSummary struct {
	GroupsChecked int             `json:"groups_checked"`
	GroupsPruned  int             `json:"groups_pruned"`
	GrantsDeleted int64           `json:"grants_deleted"`
	RulesDeleted  int64           `json:"rules_deleted"`
	Skipped       []domain.System `json:"skipped_systems,omitempty"`
	Pruned        []string        `json:"pruned,omitempty"`
}

// PruneSystem removes every registered group in one system whose name is
// absent from liveNames. Comparison is case-insensitive. An empty liveNames
// slice is refused: a directory returning nothing is far more likely an
// upstream fault than a site with zero groups.
func (p *Pruner) PruneSystem(ctx context.Context, system domain.System, liveNames []string) (*PruneSummary, error) {
	if len(liveNames) == 0 {
		return nil, domain.ErrValidation("live group list for %s is empty, refusing to prune", system)
	}
	live := make(map[string]bool, len(liveNames))
	for _, name := range liveNames {
		live[strings.ToLower(name)] = true
	}

	registered, err := p.groups.ListBySystem(ctx, system)
	if err != nil {
		return nil, err
	}

	summary := &PruneSummary{GroupsChecked: len(registered)}
	for _, g := range registered {
		if live[g.LowerName] {
			continue
		}
		deletion, err := p.groups.Delete(ctx, g.ID)
		if err != nil {
			p.logger.Warn("prune delete failed", "system", system, "group", g.Name, "error", err)
			continue
		}
		summary.GroupsPruned++
		summary.GrantsDeleted += deletion.GrantsDeleted
		summary.RulesDeleted += deletion.RulesDeleted
		summary.Pruned = append(summary.Pruned, g.Name)
		p.logger.Info("pruned stale group",
			"system", system,
			"group", g.Name,
			"grants_deleted", deletion.GrantsDeleted,
			"rules_deleted", deletion.RulesDeleted,
		)
	}
	return summary, nil
}

// LiveGroupNames fetches the current group list for one system.
func (p *Pruner) LiveGroupNames(ctx context.Context, system domain.System) ([]string, error) {
	return p.gateway.ListGroupNames(ctx, system)
}

// PruneAll fetches the live group list for every system and prunes each.
// A system whose listing fails is skipped and recorded; the others still
// run.
func (p *Pruner) PruneAll(ctx context.Context) (*PruneSummary, error) {
	total := &PruneSummary{}
	for _, system := range domain.Systems {
		names, err := p.gateway.ListGroupNames(ctx, system)
		if err != nil {
			p.logger.Warn("group listing failed, skipping system", "system", system, "error", err)
			total.Skipped = append(total.Skipped, system)
			continue
		}
		summary, err := p.PruneSystem(ctx, system, names)
		if err != nil {
			p.logger.Warn("prune failed, skipping system", "system", system, "error", err)
			total.Skipped = append(total.Skipped, system)
			continue
		}
		total.GroupsChecked += summary.GroupsChecked
		total.GroupsPruned += summary.GroupsPruned
		total.GrantsDeleted += summary.GrantsDeleted
		total.RulesDeleted += summary.RulesDeleted
		total.Pruned = append(total.Pruned, summary.Pruned...)
	}
	return total, nil
}
