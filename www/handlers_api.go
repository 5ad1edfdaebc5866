package www

import (
	"net/http"
	"strings"

	"github.com/sahilp2023/agrocyle-sub001/store"
)

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := h.engine.Health()
	h.jsonOK(w, map[string]any{
		"status":    "ok",
		"messaging": health["messaging"],
		"cache":     health["cache"],
		"sse":       h.eventHub.ClientCount(),
	})
}

func (h *Handlers) apiMe(w http.ResponseWriter, r *http.Request) {
	p, _ := h.sessionPrincipal(r)
	h.jsonOK(w, map[string]any{
		"username": h.getUsername(r),
		"role":     p.Role,
		"hub_id":   p.HubID,
	})
}

func (h *Handlers) apiListAudit(w http.ResponseWriter, r *http.Request) {
	if p, _ := h.sessionPrincipal(r); p.HubID != 0 {
		h.jsonError(w, "audit log is limited to head-office staff", http.StatusForbidden)
		return
	}
	entries, err := h.engine.DB().ListAuditLog(r.Context(), store.AuditFilter{
		EntityType: r.URL.Query().Get("entity_type"),
		EntityID:   queryInt(r, "entity_id", 0),
		Action:     r.URL.Query().Get("action"),
		Limit:      int(queryInt(r, "limit", 200)),
	})
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, entries)
}

func (h *Handlers) apiListHubs(w http.ResponseWriter, r *http.Request) {
	hubs, err := h.engine.DB().ListHubs(r.Context())
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, hubs)
}

func (h *Handlers) apiCreateHub(w http.ResponseWriter, r *http.Request) {
	if p, _ := h.sessionPrincipal(r); p.HubID != 0 {
		h.jsonError(w, "hubs are created by head-office staff", http.StatusForbidden)
		return
	}
	var hub store.Hub
	if err := decodeJSON(r, &hub); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	hub.Code = strings.ToUpper(strings.TrimSpace(hub.Code))
	hub.Name = strings.TrimSpace(hub.Name)
	if hub.Code == "" || hub.Name == "" {
		h.jsonError(w, "code and name are required", http.StatusBadRequest)
		return
	}
	if err := h.engine.DB().CreateHub(r.Context(), &hub); err != nil {
		if store.IsUniqueViolation(err) {
			h.jsonError(w, "hub code already exists", http.StatusConflict)
			return
		}
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonStatus(w, http.StatusCreated, hub)
}

func (h *Handlers) apiReconnectMessaging(w http.ResponseWriter, r *http.Request) {
	if p, _ := h.sessionPrincipal(r); p.HubID != 0 {
		h.jsonError(w, "messaging is managed by head-office staff", http.StatusForbidden)
		return
	}
	h.engine.ReconfigureMessaging()
	h.jsonOK(w, map[string]bool{"messaging": h.engine.Health()["messaging"]})
}
