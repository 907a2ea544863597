// Package api provides HTTP handlers for the delegated-group ownership REST API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"delegated-groups/internal/domain"
	"delegated-groups/internal/middleware"
	"delegated-groups/internal/service"
)

// Handler exposes the ownership services over HTTP.
type Handler struct {
	registry  *service.RegistryService
	authz     *service.AuthzService
	audit     *service.AuditService
	scheduler *service.Scheduler
}

// NewHandler creates a Handler with all required service dependencies.
func NewHandler(
	registry *service.RegistryService,
	authz *service.AuthzService,
	audit *service.AuditService,
	scheduler *service.Scheduler,
) *Handler {
	return &Handler{
		registry:  registry,
		authz:     authz,
		audit:     audit,
		scheduler: scheduler,
	}
}

// Routes mounts all endpoints on the router. The caller is expected to have
// installed the auth middleware already; every route reads the caller
// identity from the context.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/delegated-groups", func(r chi.Router) {
		r.Post("/groups", h.createGroup)
		r.Post("/groups/bulk", h.bulkAddGroups)
		r.Delete("/groups", h.deleteGroup)
		r.Get("/groups/all-with-owners", h.listGroupsWithOwners)
		r.Get("/groups/{system}/{group}/owners", h.getGroupOwners)
		r.Post("/owners/user", h.addUserOwner)
		r.Delete("/owners/user", h.removeUserOwner)
		r.Post("/owners/group", h.addOwningGroupRule)
		r.Delete("/owners/group", h.removeOwningGroupRule)
		r.Post("/my-groups", h.myGroups)
	})
	r.Route("/ops", func(r chi.Router) {
		r.Post("/sync", h.runSync)
		r.Post("/prune", h.runPrune)
		r.Get("/audit", h.listAudit)
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := httpStatusFromDomainError(err)
	writeJSON(w, code, map[string]any{
		"code":    code,
		"message": err.Error(),
	})
}

// decodeBody parses the JSON request body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return false
	}
	return true
}

func caller(r *http.Request) service.CallerIdentity {
	c, _ := middleware.CallerFromContext(r.Context())
	return c
}

// requireGroupOwner fetches the group and checks the caller owns it. On any
// failure it writes the HTTP error and returns nil.
func (h *Handler) requireGroupOwner(w http.ResponseWriter, r *http.Request, system domain.System, groupName string) *domain.DelegatedGroup {
	group, err := h.registry.GetGroup(r.Context(), system, groupName)
	if err != nil {
		writeError(w, err)
		return nil
	}
	if err := h.authz.RequireOwner(r.Context(), caller(r), group); err != nil {
		writeError(w, err)
		return nil
	}
	return group
}

func parseSystemParam(w http.ResponseWriter, raw string) (domain.System, bool) {
	system, err := domain.ParseSystem(raw)
	if err != nil {
		writeError(w, err)
		return "", false
	}
	return system, true
}
