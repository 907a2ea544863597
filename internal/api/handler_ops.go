package api

import (
	"net/http"
	"strconv"

	"delegated-groups/internal/domain"
)

func (h *Handler) runSync(w http.ResponseWriter, r *http.Request) {
	summary, err := h.scheduler.RunSync(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) runPrune(w http.ResponseWriter, r *http.Request) {
	summary, err := h.scheduler.RunPrune(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	filter := domain.AuditFilter{
		Action: r.URL.Query().Get("action"),
	}
	if raw := r.URL.Query().Get("system"); raw != "" {
		system, ok := parseSystemParam(w, raw)
		if !ok {
			return
		}
		filter.System = system
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, domain.ErrValidation("limit must be a positive integer"))
			return
		}
		filter.Limit = n
	}

	entries, err := h.audit.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	type auditEntry struct {
		ID        int64         `json:"id"`
		CreatedAt string        `json:"created_at"`
		Actor     string        `json:"actor"`
		Action    string        `json:"action"`
		Status    string        `json:"status"`
		System    domain.System `json:"system,omitempty"`
		GroupName string        `json:"group_name,omitempty"`
		Details   string        `json:"details,omitempty"`
		RequestID string        `json:"request_id,omitempty"`
	}
	out := make([]auditEntry, 0, len(entries))
	for _, e := range entries {
		actor := e.ActorEmail
		if actor == "" {
			actor = e.ActorUsername
		}
		out = append(out, auditEntry{
			ID:        e.ID,
			CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			Actor:     actor,
			Action:    e.Action,
			Status:    e.Status,
			System:    e.System,
			GroupName: e.GroupName,
			Details:   e.Details,
			RequestID: e.RequestID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
