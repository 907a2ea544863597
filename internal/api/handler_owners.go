package api

import (
	"fmt"
	"net/http"

	"delegated-groups/internal/domain"
	"delegated-groups/internal/middleware"
)

type userOwnerRequest struct {
	System    string `json:"system"`
	GroupName string `json:"group_name"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
}

func (h *Handler) addUserOwner(w http.ResponseWriter, r *http.Request) {
	var req userOwnerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	system, ok := parseSystemParam(w, req.System)
	if !ok {
		return
	}
	group := h.requireGroupOwner(w, r, system, req.GroupName)
	if group == nil {
		return
	}

	created, err := h.registry.AddDirectOwner(r.Context(), system, req.GroupName, req.Username, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	h.audit.Record(r.Context(), caller(r), domain.AuditAddUserOwner, system, group.Name,
		fmt.Sprintf(`{"username":%q,"created":%t}`, req.Username, created),
		middleware.RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"created": created})
}

func (h *Handler) removeUserOwner(w http.ResponseWriter, r *http.Request) {
	var req userOwnerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	system, ok := parseSystemParam(w, req.System)
	if !ok {
		return
	}
	group := h.requireGroupOwner(w, r, system, req.GroupName)
	if group == nil {
		return
	}

	removed, err := h.registry.RemoveDirectOwner(r.Context(), system, req.GroupName, req.Username, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	h.audit.Record(r.Context(), caller(r), domain.AuditRemoveUserOwner, system, group.Name,
		fmt.Sprintf(`{"username":%q,"removed":%d}`, req.Username, removed),
		middleware.RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

type owningGroupRequest struct {
	System      string `json:"system"`
	GroupName   string `json:"group_name"`
	OwningGroup string `json:"owning_group"`
}

func (h *Handler) addOwningGroupRule(w http.ResponseWriter, r *http.Request) {
	var req owningGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	system, ok := parseSystemParam(w, req.System)
	if !ok {
		return
	}
	group := h.requireGroupOwner(w, r, system, req.GroupName)
	if group == nil {
		return
	}

	created, err := h.registry.AddOwningGroupRule(r.Context(), system, req.GroupName, req.OwningGroup)
	if err != nil {
		writeError(w, err)
		return
	}

	h.audit.Record(r.Context(), caller(r), domain.AuditAddGroupOwnerRule, system, group.Name,
		fmt.Sprintf(`{"owning_group":%q,"created":%t}`, req.OwningGroup, created),
		middleware.RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"created": created})
}

func (h *Handler) removeOwningGroupRule(w http.ResponseWriter, r *http.Request) {
	var req owningGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	system, ok := parseSystemParam(w, req.System)
	if !ok {
		return
	}
	group := h.requireGroupOwner(w, r, system, req.GroupName)
	if group == nil {
		return
	}

	removal, err := h.registry.RemoveOwningGroupRule(r.Context(), system, req.GroupName, req.OwningGroup)
	if err != nil {
		writeError(w, err)
		return
	}

	h.audit.Record(r.Context(), caller(r), domain.AuditRemoveGroupOwnerRule, system, group.Name,
		fmt.Sprintf(`{"owning_group":%q,"rules_deleted":%d,"grants_deleted":%d}`,
			req.OwningGroup, removal.RulesDeleted, removal.GrantsDeleted),
		middleware.RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"rules_deleted":  removal.RulesDeleted,
		"grants_deleted": removal.GrantsDeleted,
	})
}
