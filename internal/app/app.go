// Package app provides application-level wiring and dependency injection
// for the ownership service.
package app

import (
	"database/sql"
	"log/slog"

	"delegated-groups/internal/config"
	"delegated-groups/internal/db/repository"
	"delegated-groups/internal/domain"
	"delegated-groups/internal/service"
)

// Deps holds the external dependencies that main() must provide:
// database handles, config, the directory gateway and the root logger.
type Deps struct {
	Cfg     *config.Config
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Gateway domain.DirectoryGateway
	Logger  *slog.Logger
}

// Services groups the service pointers the API handler and CLI need.
type Services struct {
	Identity   *service.IdentityService
	Registry   *service.RegistryService
	Authz      *service.AuthzService
	Audit      *service.AuditService
	Reconciler *service.Reconciler
	Pruner     *service.Pruner
	Scheduler  *service.Scheduler
}

// App holds the fully-wired application. OwnerRepo is exposed concretely for
// the CSV importer, which writes derived grants outside the reconciler.
type App struct {
	Services  Services
	OwnerRepo *repository.OwnerRepo
}

// New wires repositories and services from the provided deps. Mutating
// repositories ride the single-writer pool; the authorization path, which
// only reads, rides the read pool so owner checks never queue behind
// reconciliation writes.
func New(deps Deps) *App {
	// write-pool repositories
	personRepo := repository.NewPersonRepo(deps.WriteDB)
	groupRepo := repository.NewGroupRepo(deps.WriteDB)
	ownerRepo := repository.NewOwnerRepo(deps.WriteDB)
	auditRepo := repository.NewAuditRepo(deps.WriteDB)

	// read-pool repositories
	readPersonRepo := repository.NewPersonRepo(deps.ReadDB)
	readOwnerRepo := repository.NewOwnerRepo(deps.ReadDB)

	identitySvc := service.NewIdentityService(personRepo)
	registrySvc := service.NewRegistryService(groupRepo, ownerRepo, identitySvc)
	authzSvc := service.NewAuthzService(readPersonRepo, readOwnerRepo)
	auditSvc := service.NewAuditService(auditRepo, deps.Logger.With("component", "audit"))

	reconciler := service.NewReconciler(ownerRepo, identitySvc, deps.Gateway,
		deps.Logger.With("component", "reconciler"), deps.Cfg.SyncConcurrency)
	pruner := service.NewPruner(groupRepo, deps.Gateway,
		deps.Logger.With("component", "pruner"))
	scheduler := service.NewScheduler(reconciler, pruner, auditSvc,
		deps.Logger.With("component", "scheduler"))

	return &App{
		OwnerRepo: ownerRepo,
		Services: Services{
			Identity:   identitySvc,
			Registry:   registrySvc,
			Authz:      authzSvc,
			Audit:      auditSvc,
			Reconciler: reconciler,
			Pruner:     pruner,
			Scheduler:  scheduler,
		},
	}
}
