package service

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"delegated-groups/internal/domain"
)

const defaultSyncConcurrency = 4

// Reconciler makes derived ownership grants match live owning-group
// membership in the external directory systems.
type Reconciler struct {
	owners      domain.OwnerRepository
	identity    *IdentityService
	gateway     domain.DirectoryGateway
	logger      *slog.Logger
	concurrency int
}

// NewReconciler builds a reconciler. concurrency bounds the worker pool for
// gateway fetches and per-triple units; values below 1 fall back to the
// default.
func NewReconciler(owners domain.OwnerRepository, identity *IdentityService, gateway domain.DirectoryGateway, logger *slog.Logger, concurrency int) *Reconciler {
	if concurrency < 1 {
		concurrency = defaultSyncConcurrency
	}
	return &Reconciler{
		owners:      owners,
		identity:    identity,
		gateway:     gateway,
		logger:      logger,
		concurrency: concurrency,
	}
}

// SyncSummary reports what one reconciliation run did.
type SyncSummary struct {
	RunID          string `json:"run_id"`
	Triples        int    `json:"triples"`
	TriplesSkipped int    `json:"triples_skipped"`
	GroupsFetched  int    `json:"owning_groups_fetched"`
	GrantsAdded    int64  `json:"grants_added"`
	GrantsRemoved  int64  `json:"grants_removed"`
}

// memberCacheKey identifies one owning group's member list within a run.
type memberCacheKey struct {
	system    domain.System
	lowerName string
}

// memberFetch is one cached gateway result. A failed fetch is cached too so
// every triple backed by the same owning group skips consistently. name keeps
// the canonical-case spelling for the upstream request: group lookups in the
// external systems can be case-sensitive, so the lowercased form is only a
// cache key, never what we send.
type memberFetch struct {
	name    string
	members []domain.Member
	err     error
}

// Run reconciles every configured (system, group, owning-group) triple.
// Each triple commits independently; a failure on one is logged and skipped
// without disturbing the others. Running twice against unchanged upstream
// membership performs zero writes on the second run.
func (r *Reconciler) Run(ctx context.Context) (*SyncSummary, error) {
	runID := uuid.NewString()
	logger := r.logger.With("sync_run", runID)

	triples, err := r.owners.ListRuleTriples(ctx)
	if err != nil {
		return nil, err
	}
	summary := &SyncSummary{RunID: runID, Triples: len(triples)}
	if len(triples) == 0 {
		logger.Info("sync run complete, nothing configured")
		return summary, nil
	}
	logger.Info("sync run started", "triples", len(triples))

	// Phase 1: fetch each distinct owning group's member list once. The
	// cache lives and dies with this run so external membership changes are
	// picked up on the next run.
	cache := make(map[memberCacheKey]*memberFetch)
	for _, t := range triples {
		key := memberCacheKey{system: t.System, lowerName: strings.ToLower(t.OwningGroup)}
		if _, ok := cache[key]; !ok {
			cache[key] = &memberFetch{name: t.OwningGroup}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for key, slot := range cache {
		key, slot := key, slot
		g.Go(func() error {
			members, err := r.gateway.ListGroupMembers(gctx, key.system, slot.name)
			slot.members, slot.err = members, err
			if err != nil {
				logger.Warn("owning group fetch failed",
					"system", key.system,
					"owning_group", slot.name,
					"error", err,
				)
			}
			return nil // fetch failures isolate to their triples
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	for _, slot := range cache {
		if slot.err == nil {
			summary.GroupsFetched++
		}
	}

	// Phase 2: one independent reconciliation unit per triple.
	var added, removed, skipped atomic.Int64
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, t := range triples {
		t := t
		g.Go(func() error {
			fetch := cache[memberCacheKey{system: t.System, lowerName: strings.ToLower(t.OwningGroup)}]
			if fetch.err != nil {
				skipped.Add(1)
				return nil
			}
			a, rm, err := r.reconcileTriple(gctx, t, fetch.members)
			if err != nil {
				skipped.Add(1)
				logger.Warn("triple reconcile failed",
					"system", t.System,
					"group", t.GroupName,
					"owning_group", t.OwningGroup,
					"error", err,
				)
				return nil
			}
			added.Add(a)
			removed.Add(rm)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	summary.GrantsAdded = added.Load()
	summary.GrantsRemoved = removed.Load()
	summary.TriplesSkipped = int(skipped.Load())
	logger.Info("sync run complete",
		"grants_added", summary.GrantsAdded,
		"grants_removed", summary.GrantsRemoved,
		"triples_skipped", summary.TriplesSkipped,
	)
	return summary, nil
}

// reconcileTriple resolves the member list into person IDs and applies the
// set diff against the existing derived grants for this exact (group,
// owning-group) pair. Direct grants and other rules' derived grants are
// never touched.
func (r *Reconciler) reconcileTriple(ctx context.Context, t domain.RuleTriple, members []domain.Member) (added, removed int64, err error) {
	desired := make([]int64, 0, len(members))
	seen := make(map[int64]bool, len(members))
	for _, m := range members {
		person, err := r.identity.ResolveOrCreatePerson(ctx, m.Username, m.Email)
		if err != nil {
			return 0, 0, err
		}
		if !seen[person.ID] {
			seen[person.ID] = true
			desired = append(desired, person.ID)
		}
	}
	return r.owners.ReconcileDerivedGrants(ctx, t.GroupID, t.OwningGroup, desired)
}
