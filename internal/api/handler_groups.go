package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"delegated-groups/internal/domain"
	"delegated-groups/internal/middleware"
	"delegated-groups/internal/service"
)

type userOwnerPayload struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

type createGroupRequest struct {
	System       string             `json:"system"`
	GroupName    string             `json:"group_name"`
	UserOwners   []userOwnerPayload `json:"user_owners,omitempty"`
	OwningGroups []string           `json:"owning_groups,omitempty"`
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	system, ok := parseSystemParam(w, req.System)
	if !ok {
		return
	}

	owners := make([]service.UserOwner, 0, len(req.UserOwners))
	for _, o := range req.UserOwners {
		owners = append(owners, service.UserOwner{Username: o.Username, Email: o.Email})
	}
	group, err := h.registry.CreateGroup(r.Context(), system, req.GroupName, owners, req.OwningGroups)
	if err != nil {
		writeError(w, err)
		return
	}

	h.audit.Record(r.Context(), caller(r), domain.AuditCreateGroup, system, group.Name,
		fmt.Sprintf(`{"user_owners":%d,"owning_groups":%d}`, len(owners), len(req.OwningGroups)),
		middleware.RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusCreated, map[string]any{
		"system":     group.System,
		"group_name": group.Name,
		"created_at": group.CreatedAt,
	})
}

type bulkAddRequest struct {
	System     string   `json:"system"`
	GroupNames []string `json:"group_names"`
}

func (h *Handler) bulkAddGroups(w http.ResponseWriter, r *http.Request) {
	var req bulkAddRequest
	if !decodeBody(w, r, &req) {
		return
	}
	system, ok := parseSystemParam(w, req.System)
	if !ok {
		return
	}

	results, err := h.registry.BulkAddGroups(r.Context(), system, req.GroupNames)
	if err != nil {
		writeError(w, err)
		return
	}

	type bulkEntry struct {
		Group  string `json:"group"`
		Status string `json:"status"`
	}
	out := make([]bulkEntry, 0, len(results))
	created := 0
	for _, res := range results {
		status := "exists"
		if res.Created {
			status = "created"
			created++
		}
		out = append(out, bulkEntry{Group: res.Group, Status: status})
	}
	h.audit.Record(r.Context(), caller(r), domain.AuditCreateGroup, system, "",
		fmt.Sprintf(`{"bulk":true,"created":%d,"total":%d}`, created, len(out)),
		middleware.RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

type groupRequest struct {
	System    string `json:"system"`
	GroupName string `json:"group_name"`
}

func (h *Handler) deleteGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	system, ok := parseSystemParam(w, req.System)
	if !ok {
		return
	}
	if h.requireGroupOwner(w, r, system, req.GroupName) == nil {
		return
	}

	deletion, err := h.registry.DeleteGroup(r.Context(), system, req.GroupName)
	if err != nil {
		writeError(w, err)
		return
	}

	h.audit.Record(r.Context(), caller(r), domain.AuditDeleteGroup, system, deletion.GroupName,
		fmt.Sprintf(`{"grants_deleted":%d,"rules_deleted":%d}`, deletion.GrantsDeleted, deletion.RulesDeleted),
		middleware.RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"group_name":     deletion.GroupName,
		"grants_deleted": deletion.GrantsDeleted,
		"rules_deleted":  deletion.RulesDeleted,
	})
}

func (h *Handler) getGroupOwners(w http.ResponseWriter, r *http.Request) {
	system, ok := parseSystemParam(w, chi.URLParam(r, "system"))
	if !ok {
		return
	}
	groupName := chi.URLParam(r, "group")

	owners, err := h.registry.GetGroupOwners(r.Context(), system, groupName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groupOwnersToAPI(owners))
}

func (h *Handler) listGroupsWithOwners(w http.ResponseWriter, r *http.Request) {
	groups, err := h.registry.ListGroupsWithOwners(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(groups))
	for i := range groups {
		out = append(out, groupOwnersToAPI(&groups[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": out})
}

type myGroupsRequest struct {
	Email string `json:"email"`
}

func (h *Handler) myGroups(w http.ResponseWriter, r *http.Request) {
	var req myGroupsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	grants, err := h.registry.GroupsForEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	type grantEntry struct {
		System   domain.System `json:"system"`
		Group    string        `json:"group"`
		Kind     string        `json:"kind"`
		ViaGroup string        `json:"via_group,omitempty"`
	}
	out := make([]grantEntry, 0, len(grants))
	for _, g := range grants {
		out = append(out, grantEntry{
			System:   g.System,
			Group:    g.GroupName,
			Kind:     string(g.Kind),
			ViaGroup: g.ViaGroup,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": out})
}

func groupOwnersToAPI(o *service.GroupOwners) map[string]any {
	owners := make([]userOwnerPayload, 0, len(o.UserOwners))
	for _, p := range o.UserOwners {
		owners = append(owners, userOwnerPayload{Username: p.Username, Email: p.Email})
	}
	owningGroups := o.OwningGroups
	if owningGroups == nil {
		owningGroups = []string{}
	}
	return map[string]any{
		"system":        o.Group.System,
		"group_name":    o.Group.Name,
		"user_owners":   owners,
		"owning_groups": owningGroups,
	}
}
